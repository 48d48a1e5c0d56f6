// Package auth is the authentication core of Gradebook: identity
// verification, session establishment and teardown, anti-forgery
// enforcement, and one-time password-recovery tokens. Everything else in
// the application treats this package as the single gateway for "who is
// making this request and what may they do".
package auth

import (
	"time"

	"github.com/opengradebook/gradebook/internal/session"
)

// Roles. The role model is deliberately flat: a user is a student, a
// teacher, or an admin, and "has permission" means "is an admin". Nothing
// here grows into a grant table until the application needs one.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Account statuses. Registration creates a pending account; an admin
// activates it. Status does not gate login -- it gates what the rest of the
// application lets a pending user see.
const (
	StatusPending = "pending"
	StatusActive  = "active"
)

// User represents a registered principal. This is the domain model used
// throughout the application; database scanning and JSON marshaling use
// this struct directly.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	IsAdmin      bool       `json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Snapshot returns the identity snapshot stored in the session at login.
func (u *User) Snapshot() session.Identity {
	return session.Identity{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		IsAdmin:     u.IsAdmin,
	}
}

// ResetToken is a persisted password-recovery credential. Only the SHA-256
// hash of the plaintext token is ever stored; the plaintext exists exactly
// once, in the Issue return value, for out-of-band delivery.
type ResetToken struct {
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest holds the data submitted to the registration endpoint.
type RegisterRequest struct {
	Email       string `json:"email" form:"email"`
	DisplayName string `json:"display_name" form:"display_name"`
	Password    string `json:"password" form:"password"`
	Confirm     string `json:"confirm" form:"confirm"`
}

// LoginRequest holds the data submitted to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// ChangePasswordRequest holds the data for an authenticated credential change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" form:"current_password"`
	NewPassword     string `json:"new_password" form:"new_password"`
	Confirm         string `json:"confirm" form:"confirm"`
}

// ForgotPasswordRequest starts the recovery flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" form:"email"`
}

// ResetPasswordRequest redeems a recovery token.
type ResetPasswordRequest struct {
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
	Confirm  string `json:"confirm" form:"confirm"`
}

// --- Service Input DTOs ---

// RegisterInput is the validated input for creating a new user.
type RegisterInput struct {
	Email       string
	DisplayName string
	Password    string
	Confirm     string
}
