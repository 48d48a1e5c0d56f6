package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/opengradebook/gradebook/internal/config"
)

// noticeExpired is the one-shot message shown after an inactivity expiry.
// Only the age failure gets a notice: binding mismatches fail silently so a
// stolen cookie doesn't learn why it was rejected.
const noticeExpired = "Your session expired due to inactivity. Please sign in again."

// noticeTTL bounds how long an anonymous post-expiry record (carrying only
// the notice) survives if the user never comes back to read it.
const noticeTTL = 15 * time.Minute

// Manager is the sole authority on whether a request is authenticated and
// as whom. It holds no per-request state: all trusted state lives in the
// Store, keyed by session id, so any number of Managers (or processes) can
// serve the same session.
type Manager struct {
	store    Store
	lifetime time.Duration
	binding  config.BindingPolicy

	// now is replaceable in tests.
	now func() time.Time
}

// NewManager creates a session manager with the given backing store,
// sliding inactivity lifetime, and origin binding policy.
func NewManager(store Store, lifetime time.Duration, binding config.BindingPolicy) *Manager {
	return &Manager{
		store:    store,
		lifetime: lifetime,
		binding:  binding,
		now:      time.Now,
	}
}

// Login establishes a fresh authenticated session and returns its id.
//
// The id is always newly minted and any record under the caller's previous
// id is deleted first, so an id an attacker planted before authentication
// never becomes an authenticated session (fixation resistance). The new
// record snapshots the identity, stamps CreatedAt == LastActivity == now,
// records the request origin as the binding, and mints a fresh anti-forgery
// token.
func (m *Manager) Login(ctx context.Context, prevID string, ident Identity, origin Origin) (string, error) {
	if prevID != "" {
		if err := m.store.Delete(ctx, prevID); err != nil {
			return "", err
		}
	}

	id, err := NewID()
	if err != nil {
		return "", err
	}
	token, err := newCsrfToken()
	if err != nil {
		return "", err
	}

	now := m.now().UTC()
	rec := &Record{
		Identity:     &ident,
		CreatedAt:    now,
		LastActivity: now,
		Origin:       origin,
		CsrfToken:    token,
	}

	if err := m.store.Put(ctx, id, rec, m.lifetime); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks whether the session id identifies a live authenticated
// session for a request arriving from origin. On success it refreshes
// LastActivity (sliding expiry) and returns the record.
//
// On inactivity expiry the session id is rotated: the old record is
// destroyed and a fresh anonymous record carrying a one-shot notice is
// written under a new id, which is returned as replacementID so the
// transport layer can re-issue the cookie. Every other failure (missing
// record, missing fields, origin mismatch, store error) fails closed with
// no replacement and no notice.
func (m *Manager) Validate(ctx context.Context, id string, origin Origin) (rec *Record, replacementID string, ok bool) {
	rec, ok = m.lookup(ctx, id, origin)
	if !ok {
		return nil, "", false
	}

	now := m.now().UTC()
	if now.Sub(rec.LastActivity) >= m.lifetime {
		return nil, m.expire(ctx, id), false
	}

	rec.LastActivity = now
	if err := m.store.Put(ctx, id, rec, m.lifetime); err != nil {
		slog.Error("session touch failed", slog.Any("error", err))
		return nil, "", false
	}
	return rec, "", true
}

// Peek reports whether id identifies a live authenticated session without
// the side effects of Validate: LastActivity is not refreshed and an
// expired id is destroyed without being rotated. Pure queries (role and
// permission checks) use this so an expired session is not rotated into a
// notice record whose id the caller would discard.
func (m *Manager) Peek(ctx context.Context, id string, origin Origin) (*Record, bool) {
	rec, ok := m.lookup(ctx, id, origin)
	if !ok {
		return nil, false
	}

	if m.now().UTC().Sub(rec.LastActivity) >= m.lifetime {
		m.destroy(ctx, id)
		return nil, false
	}
	return rec, true
}

// lookup runs the fail-closed record checks shared by Validate and Peek:
// existence, record completeness, and origin match. Any integrity failure
// destroys the record.
func (m *Manager) lookup(ctx context.Context, id string, origin Origin) (*Record, bool) {
	if id == "" {
		return nil, false
	}

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if err != ErrNotFound {
			slog.Error("session lookup failed", slog.Any("error", err))
		}
		return nil, false
	}

	// An anonymous record (post-expiry notice carrier) is never a valid
	// authenticated session.
	if rec.Identity == nil || rec.CreatedAt.IsZero() || rec.LastActivity.IsZero() ||
		rec.Origin.IP == "" || rec.Origin.UserAgent == "" {
		m.destroy(ctx, id)
		return nil, false
	}

	if !m.originMatches(rec.Origin, origin) {
		slog.Warn("session origin mismatch",
			slog.String("identity_id", rec.Identity.ID),
			slog.String("bound_ip", rec.Origin.IP),
			slog.String("request_ip", origin.IP),
		)
		m.destroy(ctx, id)
		return nil, false
	}
	return rec, true
}

// Logout destroys all state for the session id. Expiring the transport
// cookie is the HTTP layer's job.
func (m *Manager) Logout(ctx context.Context, id string) {
	if id == "" {
		return
	}
	m.destroy(ctx, id)
}

// PopNotice returns and clears the one-shot notice on the session, if any.
func (m *Manager) PopNotice(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil || rec.Notice == "" {
		return ""
	}
	notice := rec.Notice
	rec.Notice = ""
	if err := m.store.Put(ctx, id, rec, noticeTTL); err != nil {
		slog.Error("clearing session notice failed", slog.Any("error", err))
	}
	return notice
}

// expire handles the inactivity-expiry path: the old id is destroyed and a
// fresh anonymous record carrying the one-shot notice is written under a
// new id. The delete runs first so a racing request holding the old id
// misses in the store instead of resurrecting the session.
func (m *Manager) expire(ctx context.Context, oldID string) (newID string) {
	m.destroy(ctx, oldID)

	newID, err := NewID()
	if err != nil {
		slog.Error("session rotation failed", slog.Any("error", err))
		return ""
	}
	token, err := newCsrfToken()
	if err != nil {
		slog.Error("session rotation failed", slog.Any("error", err))
		return ""
	}

	rec := &Record{
		CsrfToken: token,
		Notice:    noticeExpired,
	}
	if err := m.store.Put(ctx, newID, rec, noticeTTL); err != nil {
		slog.Error("writing post-expiry session failed", slog.Any("error", err))
		return ""
	}
	return newID
}

// destroy deletes the record, logging store failures. Deletion failures are
// not surfaced: the caller has already decided the session is dead.
func (m *Manager) destroy(ctx context.Context, id string) {
	if err := m.store.Delete(ctx, id); err != nil {
		slog.Error("session destroy failed", slog.Any("error", err))
	}
}

// originMatches applies the configured binding policy. Strict pinning
// compares both the client address and the user-agent; relaxed pinning
// compares only the user-agent, tolerating mobile carriers and rotating
// corporate proxies that change the client address mid-session.
func (m *Manager) originMatches(bound, current Origin) bool {
	if bound.UserAgent != current.UserAgent {
		return false
	}
	if m.binding == config.BindingRelaxed {
		return true
	}
	return bound.IP == current.IP
}
