package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opengradebook/gradebook/internal/apperror"
)

// IdentityStore defines the data access contract for user records.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type IdentityStore interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// ResetTokenStore defines durable persistence for password reset tokens.
// Consume is the serialization point for at-most-once redemption: it is a
// conditional delete, and exactly one of any set of concurrent callers for
// the same token observes true.
type ResetTokenStore interface {
	Save(ctx context.Context, token *ResetToken) error
	Find(ctx context.Context, tokenHash string) (*ResetToken, error)
	Consume(ctx context.Context, tokenHash string) (bool, error)
	DeleteForIdentity(ctx context.Context, identityID string) error
}

// --- MariaDB implementations ---

// identityRepository implements IdentityStore with hand-written MariaDB queries.
type identityRepository struct {
	db *sql.DB
}

// NewIdentityStore creates an identity store backed by the given DB pool.
func NewIdentityStore(db *sql.DB) IdentityStore {
	return &identityRepository{db: db}
}

// Create inserts a new user row into the users table.
func (r *identityRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, display_name, password_hash, role, status, is_admin, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		user.Role,
		user.Status,
		user.IsAdmin,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *identityRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, email, display_name, password_hash, role, status,
	                 is_admin, created_at, last_login_at
	          FROM users WHERE id = ?`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByEmail retrieves a user by their email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *identityRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, email, display_name, password_hash, role, status,
	                 is_admin, created_at, last_login_at
	          FROM users WHERE email = ?`

	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *identityRepository) scanOne(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// EmailExists returns true if a user with the given email already exists.
// Used during registration to check for duplicates before hashing the password.
func (r *identityRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return exists, nil
}

// UpdatePassword sets a new password hash for a user.
func (r *identityRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, userID)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}
	return nil
}

// UpdateLastLogin sets the last_login_at timestamp to now for the given user.
func (r *identityRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login_at = NOW() WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}

	return nil
}

// resetTokenRepository implements ResetTokenStore on MariaDB.
type resetTokenRepository struct {
	db *sql.DB
}

// NewResetTokenStore creates a reset token store backed by the given DB pool.
func NewResetTokenStore(db *sql.DB) ResetTokenStore {
	return &resetTokenRepository{db: db}
}

// Save inserts a new reset token record.
func (r *resetTokenRepository) Save(ctx context.Context, token *ResetToken) error {
	query := `INSERT INTO password_reset_tokens (identity_id, token_hash, expires_at)
	          VALUES (?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, token.IdentityID, token.TokenHash, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting reset token: %w", err)
	}
	return nil
}

// Find looks up a reset token by its hash without consuming it.
// Returns apperror.NotFound if no record exists.
func (r *resetTokenRepository) Find(ctx context.Context, tokenHash string) (*ResetToken, error) {
	query := `SELECT identity_id, token_hash, expires_at
	          FROM password_reset_tokens WHERE token_hash = ?`

	token := &ResetToken{}
	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.IdentityID,
		&token.TokenHash,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("reset token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying reset token: %w", err)
	}
	token.ExpiresAt = expiresAt
	return token, nil
}

// Consume deletes the token row and reports whether this caller removed it.
// The single-row DELETE is atomic in MariaDB, so under concurrent redemption
// of the same token exactly one caller sees RowsAffected == 1; everyone else
// sees 0 and must treat the token as gone.
func (r *resetTokenRepository) Consume(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("consuming reset token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading consume result: %w", err)
	}
	return n == 1, nil
}

// DeleteForIdentity removes every outstanding token for an identity.
// Called after a successful redemption so older reset links die with it.
func (r *resetTokenRepository) DeleteForIdentity(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE identity_id = ?`, identityID)
	if err != nil {
		return fmt.Errorf("deleting reset tokens for identity: %w", err)
	}
	return nil
}
