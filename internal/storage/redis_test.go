package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPriceCache(t *testing.T, maxAge time.Duration) (*PriceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache, err := NewPriceCache(NewRedisCacheFromClient(client), maxAge)
	require.NoError(t, err)
	return cache, mr
}

func TestPriceCacheRoundTrip(t *testing.T) {
	cache, _ := newTestPriceCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.SetPrice(ctx, "chain-eth", "0xabc", 1234.5678))

	price, ok, err := cache.GetPrice(ctx, "chain-eth", "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1234.5678, price)
}

func TestPriceCacheMissingEntry(t *testing.T) {
	cache, _ := newTestPriceCache(t, time.Hour)

	_, ok, err := cache.GetPrice(context.Background(), "chain-eth", "0xmissing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPriceCacheExpiresAtMaxAge(t *testing.T) {
	cache, mr := newTestPriceCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.SetPrice(ctx, "chain-eth", "0xabc", 2.0))

	// Past the max-age bound the price is treated as absent, not reused.
	mr.FastForward(time.Hour + time.Minute)

	_, ok, err := cache.GetPrice(ctx, "chain-eth", "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPriceCacheKeysAreChainScoped(t *testing.T) {
	cache, _ := newTestPriceCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.SetPrice(ctx, "chain-eth", "0xabc", 1.0))

	_, ok, err := cache.GetPrice(ctx, "chain-poly", "0xabc")
	require.NoError(t, err)
	assert.False(t, ok, "the same contract on another chain is a different entry")
}

func TestPriceCacheRejectsNonPositiveMaxAge(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	_, err := NewPriceCache(NewRedisCacheFromClient(client), 0)
	require.Error(t, err)
}
