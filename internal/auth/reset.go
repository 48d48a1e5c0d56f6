package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opengradebook/gradebook/internal/apperror"
)

// PasswordResetService issues, validates, and redeems one-time recovery
// tokens. A token is a 256-bit random value whose SHA-256 digest is
// persisted with the owning identity and a fixed expiry; redemption is
// at-most-once, serialized on the store's conditional delete.
type PasswordResetService struct {
	identities IdentityStore
	tokens     ResetTokenStore
	ttl        time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewPasswordResetService creates a reset service with the given stores and
// token lifetime.
func NewPasswordResetService(identities IdentityStore, tokens ResetTokenStore, ttl time.Duration) *PasswordResetService {
	return &PasswordResetService{
		identities: identities,
		tokens:     tokens,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue creates a recovery token for the identity and returns the plaintext
// exactly once, for out-of-band delivery. Only the digest is persisted.
func (s *PasswordResetService) Issue(ctx context.Context, identityID string) (string, error) {
	token, err := newResetToken()
	if err != nil {
		return "", apperror.NewInternal(err)
	}

	rec := &ResetToken{
		IdentityID: identityID,
		TokenHash:  hashToken(token),
		ExpiresAt:  s.now().UTC().Add(s.ttl),
	}
	if err := s.tokens.Save(ctx, rec); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("saving reset token: %w", err))
	}

	slog.Info("reset token issued",
		slog.String("identity_id", identityID),
		slog.Time("expires_at", rec.ExpiresAt),
	)
	return token, nil
}

// Redeem consumes the token and sets a new credential for its identity.
//
// Failure modes: TokenNotFound if no record exists (or a concurrent caller
// consumed it first), TokenExpired if past expiry -- the record is deleted
// in that case too, so an expired token cannot be retried. On success the
// identity's credential is updated, every other outstanding token for the
// identity is invalidated, and the identity is returned.
//
// The consume step is the only serialization point: under concurrent
// redemption of the same token, whichever caller's conditional delete wins
// proceeds to the credential update; every other caller gets TokenNotFound.
func (s *PasswordResetService) Redeem(ctx context.Context, token, newPassword string) (*User, error) {
	digest := hashToken(token)

	rec, err := s.tokens.Find(ctx, digest)
	if err != nil {
		if apperror.IsType(err, apperror.TypeNotFound) {
			return nil, apperror.NewTokenNotFound()
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding reset token: %w", err))
	}

	if s.now().UTC().After(rec.ExpiresAt) {
		// Burn the expired record so the same token can't be probed again.
		if _, err := s.tokens.Consume(ctx, digest); err != nil {
			slog.Error("deleting expired reset token failed", slog.Any("error", err))
		}
		return nil, apperror.NewTokenExpired()
	}

	consumed, err := s.tokens.Consume(ctx, digest)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("consuming reset token: %w", err))
	}
	if !consumed {
		// Lost the race to a concurrent redemption.
		return nil, apperror.NewTokenNotFound()
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.identities.UpdatePassword(ctx, rec.IdentityID, hash); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("updating credential: %w", err))
	}

	// Invalidate any other outstanding tokens for this identity. Best
	// effort: the redeemed token is already gone, this just shortens the
	// life of older links.
	if err := s.tokens.DeleteForIdentity(ctx, rec.IdentityID); err != nil {
		slog.Error("invalidating outstanding reset tokens failed",
			slog.String("identity_id", rec.IdentityID),
			slog.Any("error", err),
		)
	}

	user, err := s.identities.FindByID(ctx, rec.IdentityID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("resolving identity after reset: %w", err))
	}

	slog.Info("password reset redeemed", slog.String("identity_id", user.ID))
	return user, nil
}

// IsValid reports whether the token exists and has not expired, without
// consuming it. UI convenience only (e.g. deciding whether to render the
// new-password form); Redeem re-checks everything, so this must never be
// the sole gate before a redemption.
func (s *PasswordResetService) IsValid(ctx context.Context, token string) bool {
	rec, err := s.tokens.Find(ctx, hashToken(token))
	if err != nil {
		return false
	}
	return s.now().UTC().Before(rec.ExpiresAt)
}
