package mpesa

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
)

func tokenServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/v1/generate", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "key", user)
		require.Equal(t, "secret", pass)

		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc","expires_in":"3599"}`))
	}))
}

func testTenant(apiBase string) domain.TenantConfig {
	return domain.TenantConfig{
		Env:       domain.EnvSandbox,
		AppKey:    "key",
		AppSecret: "secret",
		APIBase:   apiBase,
	}
}

func TestTokenCache_FetchAndReuse(t *testing.T) {
	var hits int32
	srv := tokenServer(t, &hits)
	defer srv.Close()

	tc := NewTokenCache(NewMemoryTokenStore(), zap.NewNop())
	cfg := testTenant(srv.URL)

	token, err := tc.Get(context.Background(), 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)

	// The second acquisition must come from the cache.
	token, err = tc.Get(context.Background(), 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTokenCache_ConcurrentSingleFetch(t *testing.T) {
	var hits int32
	srv := tokenServer(t, &hits)
	defer srv.Close()

	tc := NewTokenCache(NewMemoryTokenStore(), zap.NewNop())
	cfg := testTenant(srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := tc.Get(context.Background(), 1, cfg)
			assert.NoError(t, err)
			assert.Equal(t, "tok-abc", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTokenCache_PerTenantTokens(t *testing.T) {
	var hits int32
	srv := tokenServer(t, &hits)
	defer srv.Close()

	tc := NewTokenCache(NewMemoryTokenStore(), zap.NewNop())
	cfg := testTenant(srv.URL)

	_, err := tc.Get(context.Background(), 1, cfg)
	require.NoError(t, err)
	_, err = tc.Get(context.Background(), 2, cfg)
	require.NoError(t, err)

	// Distinct tenants never share an entry.
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestTokenCache_AuthFailureNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if atomic.LoadInt32(&hits) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"access_token":"tok-later","expires_in":"3599"}`))
	}))
	defer srv.Close()

	tc := NewTokenCache(NewMemoryTokenStore(), zap.NewNop())
	cfg := testTenant(srv.URL)

	_, err := tc.Get(context.Background(), 1, cfg)
	require.ErrorIs(t, err, domain.ErrAuth)

	// The failure was not cached; the retry goes back to the endpoint.
	token, err := tc.Get(context.Background(), 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok-later", token)
}

func TestMemoryTokenStore_PutIfAbsent(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	held, err := store.PutIfAbsent(ctx, "1", "first", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "first", held)

	// A later write against a live entry loses; the stored token wins.
	held, err = store.PutIfAbsent(ctx, "1", "second", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "first", held)

	token, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "first", token)
}

func TestMemoryTokenStore_Expiry(t *testing.T) {
	store := NewMemoryTokenStore()
	ctx := context.Background()

	_, err := store.PutIfAbsent(ctx, "1", "short-lived", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	token, err := store.Get(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, token)

	// An expired entry no longer blocks replacement.
	held, err := store.PutIfAbsent(ctx, "1", "fresh", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "fresh", held)
}
