package pagofacil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sahilchouksey/tuition-api/utils/cache"
)

// SessionKey is the fixed key the shared session lives under in Redis
const SessionKey = "pagofacil:session"

// Session is the gateway state worth caching between calls. Losing it only
// costs a new login and method lookup.
type Session struct {
	AccessToken     string    `json:"access_token"`
	TokenExpiresAt  time.Time `json:"token_expires_at"`
	MethodID        int       `json:"method_id"`
	MethodExpiresAt time.Time `json:"method_expires_at"`
}

// TokenValid reports whether the cached token can still be used at now
func (s Session) TokenValid(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.TokenExpiresAt)
}

// MethodValid reports whether the cached payment method id is still fresh
func (s Session) MethodValid(now time.Time) bool {
	return s.MethodID != 0 && now.Before(s.MethodExpiresAt)
}

// SessionStore persists a Session. Implementations need not lock across
// Load/Save pairs; a lost update only causes one extra gateway call.
type SessionStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// MemorySessionStore keeps the session in process memory
type MemorySessionStore struct {
	mu      sync.RWMutex
	session Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (m *MemorySessionStore) Load(_ context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, nil
}

func (m *MemorySessionStore) Save(_ context.Context, s Session) error {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.session = Session{}
	m.mu.Unlock()
	return nil
}

// RedisSessionStore shares one session across API processes
type RedisSessionStore struct {
	cache *cache.RedisCache
	key   string
	now   func() time.Time
}

func NewRedisSessionStore(c *cache.RedisCache) *RedisSessionStore {
	return &RedisSessionStore{cache: c, key: SessionKey, now: time.Now}
}

func (r *RedisSessionStore) Load(ctx context.Context) (Session, error) {
	var s Session
	err := r.cache.GetJSON(ctx, r.key, &s)
	if errors.Is(err, cache.ErrNotFound) {
		return Session{}, nil
	}
	return s, err
}

// Save keeps the key until the later of the two expiries
func (r *RedisSessionStore) Save(ctx context.Context, s Session) error {
	expiresAt := s.TokenExpiresAt
	if s.MethodExpiresAt.After(expiresAt) {
		expiresAt = s.MethodExpiresAt
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.cache.Delete(ctx, r.key)
	}
	return r.cache.SetJSON(ctx, r.key, s, ttl)
}

func (r *RedisSessionStore) Clear(ctx context.Context) error {
	return r.cache.Delete(ctx, r.key)
}
