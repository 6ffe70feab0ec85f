package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "listing-scraper"

// RedisDedup remembers emitted URLs in Redis so that concurrent crawls and
// later runs within the TTL skip them too.
type RedisDedup struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewRedisDedup(ctx context.Context, addr, namespace string, ttl time.Duration) (*RedisDedup, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisDedup{client: client, namespace: namespace, ttl: ttl}, nil
}

// DedupKey is the Redis key for url under namespace.
func DedupKey(namespace, url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s:%s:%s", dedupKeyPrefix, namespace, hex.EncodeToString(sum[:]))
}

func (r *RedisDedup) Seen(ctx context.Context, url string) (bool, error) {
	n, err := r.client.Exists(ctx, DedupKey(r.namespace, url)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CheckAndInsert claims url with SETNX, which is atomic across clients.
func (r *RedisDedup) CheckAndInsert(ctx context.Context, url string) (bool, error) {
	return r.client.SetNX(ctx, DedupKey(r.namespace, url), "1", r.ttl).Result()
}

func (r *RedisDedup) Close() error {
	return r.client.Close()
}
