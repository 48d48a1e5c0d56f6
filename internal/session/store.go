// Package session owns the server-side session lifecycle for Gradebook:
// creation with a fresh id on every login (fixation resistance), origin
// binding to the client address and user-agent recorded at login, sliding
// inactivity expiry, and the per-session anti-forgery token.
//
// Sessions are opaque: the browser only ever holds a random id in an
// HttpOnly cookie. All trusted state lives in the Store.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the Redis key prefix for session records.
const keyPrefix = "session:"

// idBytes is the number of random bytes in a session id.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const idBytes = 32

// ErrNotFound is returned by Store.Get when no record exists for an id.
// A missing record and an expired-and-evicted record are indistinguishable.
var ErrNotFound = errors.New("session not found")

// Origin is the request origin a session is bound to: the client network
// address and user-agent string captured at login and re-checked on every
// subsequent request.
type Origin struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// Identity is the snapshot of the authenticated principal stored in the
// session at login. It is a copy, not a live reference: profile changes
// only become visible after the next login or an explicit re-resolution
// through the identity store.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	IsAdmin     bool   `json:"is_admin"`
}

// Record is the server-trusted state stored per session id. The id is the
// store key; this struct is the JSON-encoded value.
type Record struct {
	Identity     *Identity `json:"identity,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Origin       Origin    `json:"origin"`

	// CsrfToken is the current anti-forgery token for this session.
	CsrfToken string `json:"csrf_token"`

	// Notice is a one-shot message carried across an expiry rotation so the
	// next page can tell the user why they were signed out.
	Notice string `json:"notice,omitempty"`
}

// Store is the abstraction over the shared session backend. Production uses
// Redis; tests use the in-memory implementation. Correctness of rotation and
// logout is a property of how this store is accessed (delete-then-write on
// distinct keys), not of in-process locking.
type Store interface {
	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Put writes the record under id with the given TTL as an eviction
	// backstop. The authoritative lifetime check is the lazy comparison in
	// Manager.Validate; the TTL only keeps abandoned records from piling up.
	Put(ctx context.Context, id string, rec *Record, ttl time.Duration) error

	// Delete removes the record for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// NewID generates a cryptographically random session id.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// --- Redis implementation ---

// RedisStore stores session records as JSON values in Redis. Safe for
// concurrent use across processes: every mutation is a single Redis command.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a session store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from redis: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, data, ttl).Err(); err != nil {
		return fmt.Errorf("storing session in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}

// --- In-memory implementation (tests) ---

// MemoryStore is a mutex-guarded map implementation of Store for tests.
// Records are stored as deep copies so tests can't accidentally mutate
// store state through a returned pointer.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	if rec.Identity != nil {
		ident := *rec.Identity
		out.Identity = &ident
	}
	return &out, nil
}

func (s *MemoryStore) Put(ctx context.Context, id string, rec *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if rec.Identity != nil {
		ident := *rec.Identity
		stored.Identity = &ident
	}
	s.recs[id] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.recs, id)
	return nil
}

// Len returns the number of stored records. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
