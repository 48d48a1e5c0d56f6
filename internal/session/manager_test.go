package session

import (
	"context"
	"testing"
	"time"

	"github.com/opengradebook/gradebook/internal/config"
)

// --- Test Helpers ---

func testIdentity() Identity {
	return Identity{
		ID:          "user-123",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		Role:        "teacher",
	}
}

func testOrigin() Origin {
	return Origin{IP: "203.0.113.10", UserAgent: "Mozilla/5.0 (test)"}
}

// newTestManager creates a manager over a fresh memory store with a
// controllable clock. Advance the clock through the returned *time.Time.
func newTestManager(t *testing.T, binding config.BindingPolicy) (*Manager, *MemoryStore, *time.Time) {
	t.Helper()
	store := NewMemoryStore()
	m := NewManager(store, time.Hour, binding)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, store, &now
}

// --- Login Tests ---

func TestLogin_MintsFreshSession(t *testing.T) {
	m, store, _ := newTestManager(t, config.BindingStrict)

	id, err := m.Login(context.Background(), "", testIdentity(), testOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != 64 {
		t.Errorf("expected 64-char hex session id, got %d chars", len(id))
	}

	rec, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected record in store: %v", err)
	}
	if rec.Identity == nil || rec.Identity.ID != "user-123" {
		t.Errorf("expected identity snapshot, got %+v", rec.Identity)
	}
	if !rec.CreatedAt.Equal(rec.LastActivity) {
		t.Error("expected CreatedAt == LastActivity on a fresh session")
	}
	if rec.CsrfToken == "" {
		t.Error("expected anti-forgery token minted at login")
	}
	if rec.Origin != testOrigin() {
		t.Errorf("expected origin bound at login, got %+v", rec.Origin)
	}
}

func TestLogin_NeverReusesPresentedID(t *testing.T) {
	m, store, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	// An id planted before authentication must not become the
	// authenticated session, and its record must be gone afterwards.
	planted := "deadbeef"
	_ = store.Put(ctx, planted, &Record{CsrfToken: "x"}, time.Hour)

	id, err := m.Login(ctx, planted, testIdentity(), testOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == planted {
		t.Error("expected a freshly minted session id, got the planted one")
	}
	if _, err := store.Get(ctx, planted); err != ErrNotFound {
		t.Errorf("expected planted record deleted, got %v", err)
	}
}

func TestLogin_ConsecutiveLoginsYieldDistinctIDs(t *testing.T) {
	m, _, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id1, err := m.Login(ctx, "", testIdentity(), testOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := m.Login(ctx, id1, testIdentity(), testOrigin())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 == id2 {
		t.Error("expected a new session id on re-login")
	}

	// The previous session must be dead.
	if _, _, ok := m.Validate(ctx, id1, testOrigin()); ok {
		t.Error("expected previous session id to be invalid after re-login")
	}
}

// --- Validate Tests ---

func TestValidate_Success(t *testing.T) {
	m, _, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

	*now = now.Add(10 * time.Minute)
	rec, replacement, ok := m.Validate(ctx, id, testOrigin())
	if !ok {
		t.Fatal("expected valid session")
	}
	if replacement != "" {
		t.Errorf("expected no replacement id, got %q", replacement)
	}
	if rec.Identity.Email != "alice@example.com" {
		t.Errorf("unexpected identity: %+v", rec.Identity)
	}
	if !rec.LastActivity.Equal(*now) {
		t.Errorf("expected LastActivity refreshed to %v, got %v", *now, rec.LastActivity)
	}
}

func TestValidate_EmptyAndUnknownIDs(t *testing.T) {
	m, _, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	if _, _, ok := m.Validate(ctx, "", testOrigin()); ok {
		t.Error("expected empty id to fail")
	}
	if _, replacement, ok := m.Validate(ctx, "no-such-session", testOrigin()); ok || replacement != "" {
		t.Error("expected unknown id to fail with no replacement")
	}
}

func TestValidate_SlidingExpiry(t *testing.T) {
	m, _, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

	// Activity every 50 minutes keeps a 1-hour session alive indefinitely.
	for i := 0; i < 3; i++ {
		*now = now.Add(50 * time.Minute)
		if _, _, ok := m.Validate(ctx, id, testOrigin()); !ok {
			t.Fatalf("expected session alive after touch %d", i+1)
		}
	}

	// One full lifetime of silence kills it.
	*now = now.Add(time.Hour)
	if _, _, ok := m.Validate(ctx, id, testOrigin()); ok {
		t.Error("expected session expired after a full lifetime of inactivity")
	}
}

func TestValidate_ExpiryAtExactBoundary(t *testing.T) {
	m, _, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

	// Exactly lifetime seconds of inactivity is already expired.
	*now = now.Add(time.Hour)
	if _, _, ok := m.Validate(ctx, id, testOrigin()); ok {
		t.Error("expected session expired at the exact lifetime boundary")
	}
}

func TestValidate_ExpiryRotatesIDAndCarriesNotice(t *testing.T) {
	m, store, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())
	*now = now.Add(2 * time.Hour)

	rec, replacement, ok := m.Validate(ctx, id, testOrigin())
	if ok || rec != nil {
		t.Fatal("expected expired session to be invalid")
	}
	if replacement == "" || replacement == id {
		t.Fatalf("expected a fresh replacement id, got %q", replacement)
	}

	// Old id must be unusable even if replayed.
	if _, err := store.Get(ctx, id); err != ErrNotFound {
		t.Errorf("expected old record destroyed, got %v", err)
	}

	// Replacement record is anonymous and carries the one-shot notice.
	newRec, err := store.Get(ctx, replacement)
	if err != nil {
		t.Fatalf("expected replacement record: %v", err)
	}
	if newRec.Identity != nil {
		t.Error("expected replacement record to be anonymous")
	}
	if newRec.Notice == "" {
		t.Error("expected replacement record to carry the expiry notice")
	}

	// The replacement never authenticates.
	if _, _, ok := m.Validate(ctx, replacement, testOrigin()); ok {
		t.Error("expected anonymous replacement session to be unauthenticated")
	}
}

func TestPopNotice_OneShot(t *testing.T) {
	m, _, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())
	*now = now.Add(2 * time.Hour)
	_, replacement, _ := m.Validate(ctx, id, testOrigin())

	notice := m.PopNotice(ctx, replacement)
	if notice == "" {
		t.Fatal("expected notice on first read")
	}
	if again := m.PopNotice(ctx, replacement); again != "" {
		t.Errorf("expected notice cleared after first read, got %q", again)
	}
}

func TestPopNotice_NoNotice(t *testing.T) {
	m, _, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())
	if notice := m.PopNotice(ctx, id); notice != "" {
		t.Errorf("expected no notice on a live session, got %q", notice)
	}
	if notice := m.PopNotice(ctx, ""); notice != "" {
		t.Errorf("expected no notice for empty id, got %q", notice)
	}
}

// --- Peek Tests ---

func TestPeek_ReadOnly(t *testing.T) {
	m, store, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())
	loginTime := *now

	*now = now.Add(10 * time.Minute)
	rec, ok := m.Peek(ctx, id, testOrigin())
	if !ok {
		t.Fatal("expected live session")
	}
	if rec.Identity.ID != "user-123" {
		t.Errorf("unexpected identity: %+v", rec.Identity)
	}

	// Peek must not slide the inactivity window.
	stored, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("expected record in store: %v", err)
	}
	if !stored.LastActivity.Equal(loginTime) {
		t.Errorf("expected LastActivity untouched at %v, got %v", loginTime, stored.LastActivity)
	}
}

func TestPeek_ExpiryDestroysWithoutReplacement(t *testing.T) {
	m, store, now := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())
	*now = now.Add(2 * time.Hour)

	if _, ok := m.Peek(ctx, id, testOrigin()); ok {
		t.Error("expected expired session to be invalid")
	}
	// Unlike Validate, no replacement record is minted: the store is empty.
	if store.Len() != 0 {
		t.Errorf("expected no records after expired peek, got %d", store.Len())
	}
}

func TestPeek_OriginMismatchDestroys(t *testing.T) {
	m, store, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

	stolen := testOrigin()
	stolen.IP = "198.51.100.7"
	if _, ok := m.Peek(ctx, id, stolen); ok {
		t.Error("expected origin mismatch to fail")
	}
	if _, err := store.Get(ctx, id); err != ErrNotFound {
		t.Errorf("expected record destroyed on origin mismatch, got %v", err)
	}
}

// --- Origin Binding Tests ---

func TestValidate_StrictBindingRejectsNewIP(t *testing.T) {
	m, store, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

	stolen := testOrigin()
	stolen.IP = "198.51.100.7"
	if _, replacement, ok := m.Validate(ctx, id, stolen); ok || replacement != "" {
		t.Error("expected origin mismatch to fail with no replacement")
	}

	// The session dies entirely: the legitimate origin is locked out too.
	if _, err := store.Get(ctx, id); err != ErrNotFound {
		t.Errorf("expected record destroyed on origin mismatch, got %v", err)
	}
	if _, _, ok := m.Validate(ctx, id, testOrigin()); ok {
		t.Error("expected original origin locked out after mismatch")
	}
}

func TestValidate_RelaxedBindingToleratesNewIP(t *testing.T) {
	m, _, _ := newTestManager(t, config.BindingRelaxed)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

	roaming := testOrigin()
	roaming.IP = "198.51.100.7"
	if _, _, ok := m.Validate(ctx, id, roaming); !ok {
		t.Error("expected relaxed binding to tolerate an address change")
	}
}

func TestValidate_UserAgentMismatchAlwaysFails(t *testing.T) {
	for _, binding := range []config.BindingPolicy{config.BindingStrict, config.BindingRelaxed} {
		m, _, _ := newTestManager(t, binding)
		ctx := context.Background()

		id, _ := m.Login(ctx, "", testIdentity(), testOrigin())

		other := testOrigin()
		other.UserAgent = "curl/8.0"
		if _, _, ok := m.Validate(ctx, id, other); ok {
			t.Errorf("binding %q: expected user-agent mismatch to fail", binding)
		}
	}
}

// --- Logout Tests ---

func TestLogout_DestroysSession(t *testing.T) {
	m, store, _ := newTestManager(t, config.BindingStrict)
	ctx := context.Background()

	id, _ := m.Login(ctx, "", testIdentity(), testOrigin())
	m.Logout(ctx, id)

	if _, err := store.Get(ctx, id); err != ErrNotFound {
		t.Errorf("expected record gone after logout, got %v", err)
	}
	if _, _, ok := m.Validate(ctx, id, testOrigin()); ok {
		t.Error("expected session invalid after logout")
	}

	// Logging out again (or with an empty id) is a no-op.
	m.Logout(ctx, id)
	m.Logout(ctx, "")
}
