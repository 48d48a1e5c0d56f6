package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// csrfTokenBytes is the number of random bytes in an anti-forgery token
// (32 bytes = 64 hex chars).
const csrfTokenBytes = 32

// Guard issues and verifies the anti-forgery token bound to a session.
// One token exists per session; it is minted at login, survives until the
// session does, and is replaced on explicit rotation. The token travels as
// the csrf_token field in mutating request bodies and is echoed back in
// successful responses so the client always holds the current value.
type Guard struct {
	store    Store
	lifetime time.Duration
}

// NewGuard creates a CSRF guard over the same store the session manager
// uses. lifetime is the session lifetime, reused as the record TTL when the
// guard has to rewrite a record.
func NewGuard(store Store, lifetime time.Duration) *Guard {
	return &Guard{store: store, lifetime: lifetime}
}

// TokenFor returns the session's current anti-forgery token, minting and
// persisting one if the record has none.
func (g *Guard) TokenFor(ctx context.Context, id string) (string, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.CsrfToken != "" {
		return rec.CsrfToken, nil
	}

	token, err := newCsrfToken()
	if err != nil {
		return "", err
	}
	rec.CsrfToken = token
	if err := g.store.Put(ctx, id, rec, g.lifetime); err != nil {
		return "", err
	}
	return token, nil
}

// Verify reports whether candidate equals the session's stored token.
// An empty candidate or a missing session always fails. The comparison is
// fixed-time so response latency doesn't leak how long a matching prefix
// the attacker has guessed.
func (g *Guard) Verify(ctx context.Context, id, candidate string) bool {
	if candidate == "" {
		return false
	}
	rec, err := g.store.Get(ctx, id)
	if err != nil || rec.CsrfToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(rec.CsrfToken)) == 1
}

// Rotate mints a new token for the session, invalidating the previous one,
// and returns it. Called on login (via Manager.Login, which mints directly)
// and on an explicit client-initiated refresh. Logout invalidates the token
// implicitly by destroying the whole record.
func (g *Guard) Rotate(ctx context.Context, id string) (string, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	token, err := newCsrfToken()
	if err != nil {
		return "", err
	}
	rec.CsrfToken = token
	if err := g.store.Put(ctx, id, rec, g.lifetime); err != nil {
		return "", err
	}
	return token, nil
}

// newCsrfToken generates a cryptographically random hex-encoded token.
func newCsrfToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
