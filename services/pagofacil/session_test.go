package pagofacil

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sahilchouksey/tuition-api/utils/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewRedisSessionStore(c), mr
}

func checkSessionStore(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	s, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, s.TokenValid(now))

	require.NoError(t, store.Save(ctx, Session{AccessToken: "x", TokenExpiresAt: now.Add(time.Minute)}))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x", s.AccessToken)
	assert.True(t, s.TokenValid(now))
	assert.False(t, s.MethodValid(now))

	require.NoError(t, store.Clear(ctx))
	s, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, s.TokenValid(now))
}

func TestMemorySessionStore(t *testing.T) {
	checkSessionStore(t, NewMemorySessionStore())
}

func TestRedisSessionStore(t *testing.T) {
	store, _ := newRedisStore(t)
	checkSessionStore(t, store)
}

func TestRedisSessionStoreKeepsKeyUntilLaterExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	saved := Session{
		AccessToken:     "tok",
		TokenExpiresAt:  clock.Add(55 * time.Minute),
		MethodID:        34,
		MethodExpiresAt: clock.Add(MethodCacheTTL),
	}
	require.NoError(t, store.Save(ctx, saved))
	assert.Equal(t, MethodCacheTTL, mr.TTL(SessionKey))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.AccessToken, loaded.AccessToken)
	assert.Equal(t, saved.MethodID, loaded.MethodID)
	assert.True(t, saved.TokenExpiresAt.Equal(loaded.TokenExpiresAt))

	saved.MethodExpiresAt = time.Time{}
	require.NoError(t, store.Save(ctx, saved))
	assert.Equal(t, 55*time.Minute, mr.TTL(SessionKey))

	// expired Redis key reads as an empty session
	mr.FastForward(time.Hour)
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.AccessToken)
}

func TestRedisSessionStoreDropsExpiredSession(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Session{AccessToken: "tok", TokenExpiresAt: time.Now().Add(time.Hour)}))
	require.True(t, mr.Exists(SessionKey))

	require.NoError(t, store.Save(ctx, Session{AccessToken: "old", TokenExpiresAt: time.Now().Add(-time.Minute)}))
	assert.False(t, mr.Exists(SessionKey))
}

func TestClientsShareTokenThroughRedis(t *testing.T) {
	g := newFakeGateway()
	srv := newGatewayServer(t, g)
	store, _ := newRedisStore(t)
	ctx := context.Background()

	newClient := func() *Client {
		return NewClient(Config{
			BaseURL:      srv,
			TokenService: "svc",
			TokenSecret:  "secret",
			Timeout:      5 * time.Second,
			Store:        store,
		})
	}

	first, err := newClient().GetAccessToken(ctx)
	require.NoError(t, err)
	second, err := newClient().GetAccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, g.logins.Load())
}
