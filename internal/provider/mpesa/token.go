// internal/provider/mpesa/token.go
package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mpesa-gateway/internal/cache"
	"mpesa-gateway/internal/domain"
)

// Provider tokens are valid for an hour; caching for 55 minutes leaves a
// margin for clock skew and in-flight requests.
const tokenTTL = 55 * time.Minute

// TokenStore persists bearer tokens per tenant key. PutIfAbsent must be
// atomic: when two fetches race, the first result wins and the loser is
// handed back the stored value, so a stale fetch can never clobber a
// fresher token.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	// PutIfAbsent stores token with the given TTL unless a live entry
	// already exists. It returns the token now held under key.
	PutIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (string, error)
}

// TokenCache acquires and caches one bearer token per tenant. Concurrent
// acquisitions for the same tenant collapse into a single credential
// exchange.
type TokenCache struct {
	store      TokenStore
	httpClient *http.Client
	group      singleflight.Group
	logger     *zap.Logger
}

func NewTokenCache(store TokenStore, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Get returns a valid bearer token for the tenant, fetching one from the
// provider only when the cache has no live entry. Failures are never cached.
func (tc *TokenCache) Get(ctx context.Context, tenantID int64, cfg domain.TenantConfig) (string, error) {
	key := strconv.FormatInt(tenantID, 10)

	if token, err := tc.store.Get(ctx, key); err == nil && token != "" {
		return token, nil
	}

	v, err, _ := tc.group.Do(key, func() (any, error) {
		// A concurrent caller may have populated the store while this
		// call waited its turn.
		if token, err := tc.store.Get(ctx, key); err == nil && token != "" {
			return token, nil
		}

		token, err := tc.fetch(ctx, cfg)
		if err != nil {
			return "", err
		}

		held, err := tc.store.PutIfAbsent(ctx, key, token, tokenTTL)
		if err != nil {
			// Store trouble is not fatal: the fetched token is valid,
			// it just will not be shared.
			tc.logger.Warn("token store write failed", zap.Int64("tenant_id", tenantID), zap.Error(err))
			return token, nil
		}
		return held, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (tc *TokenCache) fetch(ctx context.Context, cfg domain.TenantConfig) (string, error) {
	url := cfg.APIOrigin() + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	req.SetBasicAuth(cfg.AppKey, cfg.AppSecret)

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: token endpoint returned %d: %s", domain.ErrAuth, resp.StatusCode, string(body))
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	if res.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrAuth)
	}
	return res.AccessToken, nil
}

// MemoryTokenStore keeps tokens in process memory. Suitable for a single
// instance; multi-instance deployments share tokens through RedisTokenStore.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryToken
}

type memoryToken struct {
	token   string
	expires time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]memoryToken)}
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return "", nil
	}
	return entry.token, nil
}

func (s *MemoryTokenStore) PutIfAbsent(_ context.Context, key, token string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok && time.Now().Before(entry.expires) {
		return entry.token, nil
	}
	s.entries[key] = memoryToken{token: token, expires: time.Now().Add(ttl)}
	return token, nil
}

const tokenNamespace = "mpesa_token"

// RedisTokenStore shares tokens across instances through the redis cache.
type RedisTokenStore struct {
	cache *cache.Cache
}

func NewRedisTokenStore(c *cache.Cache) *RedisTokenStore {
	return &RedisTokenStore{cache: c}
}

func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, error) {
	return s.cache.Get(ctx, tokenNamespace, key)
}

func (s *RedisTokenStore) PutIfAbsent(ctx context.Context, key, token string, ttl time.Duration) (string, error) {
	created, err := s.cache.SetNX(ctx, tokenNamespace, key, token, ttl)
	if err != nil {
		return "", err
	}
	if created {
		return token, nil
	}
	held, err := s.cache.Get(ctx, tokenNamespace, key)
	if err != nil || held == "" {
		// Entry expired between SetNX and Get; the fetched token is
		// still good.
		return token, nil
	}
	return held, nil
}
