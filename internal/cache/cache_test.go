package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/attrition/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second)
	require.NoError(t, err)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second)
	require.NoError(t, err)

	// Immediately should exist
	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	// Wait for TTL to expire
	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- JSON helpers ---

// mapCache is an in-memory Cache.
type mapCache struct {
	data map[string][]byte
	err  error
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *mapCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, m.err
}

type attribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"shap_value"`
}

func TestJSON_Roundtrip(t *testing.T) {
	c := &mapCache{data: map[string][]byte{}}
	ctx := context.Background()
	in := []attribution{{"age", 0.27}, {"revenu_mensuel", -0.14}}

	require.NoError(t, cache.SetJSON(ctx, c, "explain:v1:abc", in, time.Minute))

	var out []attribution
	found, err := cache.GetJSON(ctx, c, "explain:v1:abc", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetJSON_MissAndUndecodable(t *testing.T) {
	c := &mapCache{data: map[string][]byte{"explain:v1:bad": []byte("not json")}}
	ctx := context.Background()

	var out []attribution
	found, err := cache.GetJSON(ctx, c, "explain:v1:none", &out)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = cache.GetJSON(ctx, c, "explain:v1:bad", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestJSON_PropagatesErrors(t *testing.T) {
	c := &mapCache{data: map[string][]byte{}, err: errors.New("connection refused")}
	ctx := context.Background()

	var out []attribution
	_, err := cache.GetJSON(ctx, c, "k", &out)
	assert.Error(t, err)
	assert.Error(t, cache.SetJSON(ctx, c, "k", out, time.Minute))
	assert.Error(t, cache.SetJSON(ctx, &mapCache{data: map[string][]byte{}}, "k", func() {}, time.Minute))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("http://localhost:6379")
	assert.Error(t, err)
}

func TestSetJSON_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, rc, "explain:v1:redis", []attribution{{"age", 0.5}}, 10*time.Second))
	var out []attribution
	found, err := cache.GetJSON(ctx, rc, "explain:v1:redis", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []attribution{{"age", 0.5}}, out)
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:test:" + uuid.NewString()[:8]

	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	val, err = rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(3), val)
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:expiry:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

func TestIncrWithExpiry_DoesNotExtendWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := "ratelimit:steady:" + uuid.NewString()[:8]

	_, err := rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)

	// A second hit inside the window must not push the expiry out.
	time.Sleep(1 * time.Second)
	val, err := rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	time.Sleep(1500 * time.Millisecond)
	val, err = rc.IncrWithExpiry(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestRateLimitKey(t *testing.T) {
	window := time.Date(2026, 3, 2, 9, 41, 0, 0, time.UTC)
	key := cache.RateLimitKey("ip:10.0.0.7", window)
	assert.Equal(t, "ratelimit:ip:10.0.0.7:1772444460", key)
	assert.NotEqual(t, key, cache.RateLimitKey("ip:10.0.0.7", window.Add(time.Minute)))
}

func TestExplanationKey(t *testing.T) {
	key := cache.ExplanationKey("xgb_enhanced_v1.0", "abc123")
	assert.Equal(t, "explain:xgb_enhanced_v1.0:abc123", key)
}

func TestFingerprint(t *testing.T) {
	a := cache.Fingerprint([]byte(`{"age":35}`))
	b := cache.Fingerprint([]byte(`{"age":36}`))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, cache.Fingerprint([]byte(`{"age":35}`)))
}

func TestKeyBuilders_NonColliding(t *testing.T) {
	w := time.Unix(60, 0)
	keys := map[string]bool{
		cache.RateLimitKey("key:abc", w):      true,
		cache.ExplanationKey("v1", "abc"):     true,
		cache.ExplanationKey("v2", "abc"):     true,
		cache.RateLimitKey("ip:127.0.0.1", w): true,
	}
	assert.Len(t, keys, 4, "all keys should be unique")
}
