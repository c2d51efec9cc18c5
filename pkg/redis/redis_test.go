package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hotspot-billing.com/platform/internal/config"
)

func newTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(t.Context(), config.RedisConfig{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err := Connect(t.Context(), config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}

func TestCheckRateLimit(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := t.Context()

	for i := 0; i < 3; i++ {
		allowed, _, err := client.CheckRateLimit(ctx, "ratelimit:test", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d", i+1)
	}

	allowed, retryAfter, err := client.CheckRateLimit(ctx, "ratelimit:test", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 60, retryAfter)

	assert.Equal(t, time.Minute, mr.TTL("ratelimit:test"))
	got, err := mr.Get("ratelimit:test")
	require.NoError(t, err)
	assert.Equal(t, "4", got)
}

func TestCheckRateLimitResetsAfterWindow(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := t.Context()

	allowed, _, err := client.CheckRateLimit(ctx, "k", 1, 10*time.Second)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = client.CheckRateLimit(ctx, "k", 1, 10*time.Second)
	require.NoError(t, err)
	require.False(t, allowed)

	mr.FastForward(11 * time.Second)

	allowed, _, err = client.CheckRateLimit(ctx, "k", 1, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimitRepairsMissingExpiry(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, mr.Set("k", "5"))

	allowed, retryAfter, err := client.CheckRateLimit(t.Context(), "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 60, retryAfter)
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(time.Minute + time.Second)
	allowed, _, err = client.CheckRateLimit(t.Context(), "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

// expireBeforeScript lets the window run out just before the next
// rate limit script reaches the server.
type expireBeforeScript struct {
	mr    *miniredis.Miniredis
	armed bool
}

func (h *expireBeforeScript) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h *expireBeforeScript) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if h.armed && strings.HasPrefix(cmd.Name(), "eval") {
			h.armed = false
			h.mr.FastForward(2 * time.Minute)
		}
		return next(ctx, cmd)
	}
}

func (h *expireBeforeScript) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestCheckRateLimitWindowEndsMidCall(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := t.Context()

	allowed, _, err := client.CheckRateLimit(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	hook := &expireBeforeScript{mr: mr, armed: true}
	client.client.AddHook(hook)

	allowed, _, err = client.CheckRateLimit(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.False(t, hook.armed)

	require.True(t, mr.Exists("k"))
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestPing(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, client.Ping(t.Context()))

	mr.Close()
	assert.Error(t, client.Ping(t.Context()))
}
