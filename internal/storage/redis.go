package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-scanner/internal/config"
)

// RedisCache wraps the Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis connection.
func NewRedisCache(cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client (tests).
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks Redis reachability.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// PriceCache is the Redis-backed historical price store used as the last
// valuation fallback. Entries expire after maxAge so a previously observed
// price is never reused beyond the configured freshness bound.
type PriceCache struct {
	redis  *RedisCache
	maxAge time.Duration
}

// NewPriceCache creates the price cache. maxAge must be positive; it is both
// the entry TTL and the documented staleness bound.
func NewPriceCache(redisCache *RedisCache, maxAge time.Duration) (*PriceCache, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("price cache max age must be positive, got %s", maxAge)
	}
	return &PriceCache{redis: redisCache, maxAge: maxAge}, nil
}

func priceKey(chainID, ref string) string {
	return fmt.Sprintf("price:%s:%s", chainID, ref)
}

// GetPrice returns the cached price for a reference. ok is false for absent
// or expired entries.
func (c *PriceCache) GetPrice(ctx context.Context, chainID, ref string) (float64, bool, error) {
	val, err := c.redis.client.Get(ctx, priceKey(chainID, ref)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("price cache get: %w", err)
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt price cache entry %q: %w", val, err)
	}
	return price, true, nil
}

// SetPrice stores a freshly observed price with the max-age TTL.
func (c *PriceCache) SetPrice(ctx context.Context, chainID, ref string, price float64) error {
	val := strconv.FormatFloat(price, 'g', -1, 64)
	if err := c.redis.client.Set(ctx, priceKey(chainID, ref), val, c.maxAge).Err(); err != nil {
		return fmt.Errorf("price cache set: %w", err)
	}
	return nil
}
