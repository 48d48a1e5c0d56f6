package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opengradebook/gradebook/internal/apperror"
	"github.com/opengradebook/gradebook/internal/session"
)

// Gateway is the authentication façade consumed by the rest of the
// application. It orchestrates the identity store, the session manager,
// the CSRF guard, and the password reset service; handlers and middleware
// call these methods and never touch the collaborators directly.
//
// A Gateway is stateless: every method takes the caller's session id and
// request origin explicitly, so one instance serves all requests and tests
// construct isolated instances freely.
type Gateway struct {
	identities IdentityStore
	sessions   *session.Manager
	csrf       *session.Guard
	reset      *PasswordResetService
}

// NewGateway wires the authentication core together.
func NewGateway(identities IdentityStore, sessions *session.Manager, csrf *session.Guard, reset *PasswordResetService) *Gateway {
	return &Gateway{
		identities: identities,
		sessions:   sessions,
		csrf:       csrf,
		reset:      reset,
	}
}

// Authenticate verifies the email/password pair and, on success,
// establishes a fresh session bound to the request origin. It returns the
// identity and the new session id for the transport cookie.
//
// Failure is always the same generic InvalidCredentials, whether the email
// is unknown or the password is wrong. No session is created on failure.
func (g *Gateway) Authenticate(ctx context.Context, prevSessionID, email, password string, origin session.Origin) (*User, string, error) {
	user, err := g.identities.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			return nil, "", apperror.NewInvalidCredentials()
		}
		return nil, "", apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(password, user.PasswordHash) {
		return nil, "", apperror.NewInvalidCredentials()
	}

	sid, err := g.sessions.Login(ctx, prevSessionID, user.Snapshot(), origin)
	if err != nil {
		return nil, "", apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	// Update the user's last login timestamp (fire-and-forget, non-critical).
	if err := g.identities.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, sid, nil
}

// Register creates a new account with the default non-privileged role and
// pending status. Registration never establishes a session: account
// creation and session establishment are deliberately separate steps.
func (g *Gateway) Register(ctx context.Context, input RegisterInput) (*User, error) {
	if err := validateRegistration(input); err != nil {
		return nil, err
	}

	email := normalizeEmail(input.Email)

	// Check if email is already taken before doing expensive hashing.
	exists, err := g.identities.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewDuplicateEmail()
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(input.DisplayName),
		PasswordHash: hash,
		Role:         RoleStudent,
		Status:       StatusPending,
		IsAdmin:      false,
		CreatedAt:    time.Now().UTC(),
	}

	if err := g.identities.Create(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// Logout destroys all session state for the id. Idempotent.
func (g *Gateway) Logout(ctx context.Context, sessionID string) {
	g.sessions.Logout(ctx, sessionID)
}

// ValidateSession checks the session against the request origin and the
// inactivity lifetime. See session.Manager.Validate for the rotation
// semantics of the replacement id.
func (g *Gateway) ValidateSession(ctx context.Context, sessionID string, origin session.Origin) (*session.Record, string, bool) {
	return g.sessions.Validate(ctx, sessionID, origin)
}

// Check reports whether the request carries a live authenticated session.
// Read-only: it neither refreshes the inactivity window nor rotates an
// expired id.
func (g *Gateway) Check(ctx context.Context, sessionID string, origin session.Origin) bool {
	_, ok := g.sessions.Peek(ctx, sessionID, origin)
	return ok
}

// CurrentIdentity resolves the full identity record referenced by the
// session. Returns nil if the session is invalid or the referenced
// identity no longer exists -- in the latter case the session is also torn
// down, since it points at nothing. Store failures are logged and treated
// as "not authenticated", never as fatal errors.
//
// Callers that need the identity more than once per request should cache
// the result for the request's duration (the HTTP middleware does).
func (g *Gateway) CurrentIdentity(ctx context.Context, sessionID string, origin session.Origin) *User {
	rec, ok := g.sessions.Peek(ctx, sessionID, origin)
	if !ok {
		return nil
	}

	user, err := g.identities.FindByID(ctx, rec.Identity.ID)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			// The account was deleted out from under the session.
			g.sessions.Logout(ctx, sessionID)
			return nil
		}
		slog.Error("resolving session identity failed",
			slog.String("identity_id", rec.Identity.ID),
			slog.Any("error", err),
		)
		return nil
	}
	return user
}

// HasRole reports whether the active session's identity carries the role.
// Read-only, like Check.
func (g *Gateway) HasRole(ctx context.Context, sessionID string, origin session.Origin, role string) bool {
	rec, ok := g.sessions.Peek(ctx, sessionID, origin)
	return ok && rec.Identity.Role == role
}

// HasPermission reports whether the active session may perform privileged
// operations. Permission is synonymous with the administrative flag; there
// is no finer-grained grant model. Read-only, like Check.
func (g *Gateway) HasPermission(ctx context.Context, sessionID string, origin session.Origin) bool {
	rec, ok := g.sessions.Peek(ctx, sessionID, origin)
	return ok && rec.Identity.IsAdmin
}

// UpdateCredential changes the password of the session's identity. It
// requires an active session and re-verification of the current password;
// a wrong current password yields the same generic InvalidCredentials as a
// failed login.
func (g *Gateway) UpdateCredential(ctx context.Context, sessionID string, origin session.Origin, currentPassword, newPassword string) error {
	user := g.CurrentIdentity(ctx, sessionID, origin)
	if user == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	if !verifyPassword(currentPassword, user.PasswordHash) {
		return apperror.NewInvalidCredentials()
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := g.identities.UpdatePassword(ctx, user.ID, hash); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating credential: %w", err))
	}

	slog.Info("credential updated", slog.String("user_id", user.ID))
	return nil
}

// IssueResetToken starts the recovery flow for the account with this email
// and returns the plaintext token for out-of-band delivery. An unknown
// email returns ("", nil): the caller must respond identically either way
// so the endpoint cannot be used to enumerate accounts.
func (g *Gateway) IssueResetToken(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", apperror.NewValidation("email is required")
	}

	user, err := g.identities.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			slog.Debug("reset requested for unknown email")
			return "", nil
		}
		return "", apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	return g.reset.Issue(ctx, user.ID)
}

// RedeemResetToken redeems a recovery token and sets the new password.
func (g *Gateway) RedeemResetToken(ctx context.Context, token, newPassword string) (*User, error) {
	if token == "" {
		return nil, apperror.NewTokenNotFound()
	}
	if err := validatePassword(newPassword); err != nil {
		return nil, err
	}
	return g.reset.Redeem(ctx, token, newPassword)
}

// ResetTokenValid is the non-consuming existence-and-expiry check, exposed
// for the UI to decide whether to render the new-password form.
func (g *Gateway) ResetTokenValid(ctx context.Context, token string) bool {
	return g.reset.IsValid(ctx, token)
}

// CsrfToken returns the session's current anti-forgery token.
func (g *Gateway) CsrfToken(ctx context.Context, sessionID string) (string, error) {
	return g.csrf.TokenFor(ctx, sessionID)
}

// VerifyCsrf checks a candidate anti-forgery token against the session.
func (g *Gateway) VerifyCsrf(ctx context.Context, sessionID, candidate string) bool {
	return g.csrf.Verify(ctx, sessionID, candidate)
}

// RotateCsrf mints a new anti-forgery token on explicit client request.
func (g *Gateway) RotateCsrf(ctx context.Context, sessionID string) (string, error) {
	return g.csrf.Rotate(ctx, sessionID)
}

// PopNotice returns and clears the session's one-shot notice, if any.
func (g *Gateway) PopNotice(ctx context.Context, sessionID string) string {
	return g.sessions.PopNotice(ctx, sessionID)
}

// --- Validation helpers ---

// normalizeEmail lowercases and trims an email address so lookups and
// uniqueness checks are case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateRegistration performs server-side validation of registration
// input. Returns a ValidationFailed error naming the first problem found.
func validateRegistration(input RegisterInput) error {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return apperror.NewValidation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperror.NewValidation("email address is not valid")
	}
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return apperror.NewValidation("display name is required")
	}
	if len(name) < 2 {
		return apperror.NewValidation("display name must be at least 2 characters")
	}
	if len(name) > 100 {
		return apperror.NewValidation("display name must be at most 100 characters")
	}
	if err := validatePassword(input.Password); err != nil {
		return err
	}
	if input.Confirm != input.Password {
		return apperror.NewValidation("passwords do not match")
	}
	return nil
}

// validatePassword enforces the password length policy.
func validatePassword(password string) error {
	if password == "" {
		return apperror.NewValidation("password is required")
	}
	if len(password) < 8 {
		return apperror.NewValidation("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return apperror.NewValidation("password must be at most 128 characters")
	}
	return nil
}
