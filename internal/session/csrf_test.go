package session

import (
	"context"
	"testing"
	"time"
)

func newTestGuard(t *testing.T) (*Guard, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewGuard(store, time.Hour), store
}

func seedSession(t *testing.T, store *MemoryStore, id, token string) {
	t.Helper()
	rec := &Record{
		Identity:     &Identity{ID: "user-123"},
		CreatedAt:    time.Now().UTC(),
		LastActivity: time.Now().UTC(),
		Origin:       Origin{IP: "203.0.113.10", UserAgent: "test"},
		CsrfToken:    token,
	}
	if err := store.Put(context.Background(), id, rec, time.Hour); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
}

func TestTokenFor_ReturnsExisting(t *testing.T) {
	guard, store := newTestGuard(t)
	seedSession(t, store, "sid", "existing-token")

	token, err := guard.TokenFor(context.Background(), "sid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "existing-token" {
		t.Errorf("expected existing token, got %q", token)
	}
}

func TestTokenFor_MintsWhenAbsent(t *testing.T) {
	guard, store := newTestGuard(t)
	seedSession(t, store, "sid", "")

	token, err := guard.TokenFor(context.Background(), "sid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(token))
	}

	// The minted token is persisted, not regenerated per call.
	again, err := guard.TokenFor(context.Background(), "sid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != token {
		t.Error("expected minted token to be stable across calls")
	}
}

func TestTokenFor_MissingSession(t *testing.T) {
	guard, _ := newTestGuard(t)
	if _, err := guard.TokenFor(context.Background(), "no-such-session"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestVerify(t *testing.T) {
	guard, store := newTestGuard(t)
	seedSession(t, store, "sid", "the-right-token")
	ctx := context.Background()

	tests := []struct {
		name      string
		sessionID string
		candidate string
		want      bool
	}{
		{"exact match", "sid", "the-right-token", true},
		{"empty candidate", "sid", "", false},
		{"wrong token", "sid", "some-other-token", false},
		{"prefix only", "sid", "the-right", false},
		{"missing session", "no-such-session", "the-right-token", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := guard.Verify(ctx, tt.sessionID, tt.candidate); got != tt.want {
				t.Errorf("Verify(%q, %q) = %v, want %v", tt.sessionID, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestVerify_SessionWithoutToken(t *testing.T) {
	guard, store := newTestGuard(t)
	seedSession(t, store, "sid", "")

	// A record with no token must reject everything, including empty-vs-empty.
	if guard.Verify(context.Background(), "sid", "") {
		t.Error("expected empty candidate against empty token to fail")
	}
	if guard.Verify(context.Background(), "sid", "anything") {
		t.Error("expected any candidate against empty token to fail")
	}
}

func TestRotate_InvalidatesPreviousToken(t *testing.T) {
	guard, store := newTestGuard(t)
	seedSession(t, store, "sid", "old-token")
	ctx := context.Background()

	newToken, err := guard.Rotate(ctx, "sid")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newToken == "old-token" {
		t.Error("expected rotation to mint a different token")
	}

	if guard.Verify(ctx, "sid", "old-token") {
		t.Error("expected old token rejected after rotation")
	}
	if !guard.Verify(ctx, "sid", newToken) {
		t.Error("expected new token accepted after rotation")
	}
}

func TestRotate_MissingSession(t *testing.T) {
	guard, _ := newTestGuard(t)
	if _, err := guard.Rotate(context.Background(), "no-such-session"); err == nil {
		t.Error("expected error rotating a missing session")
	}
}
