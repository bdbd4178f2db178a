package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
)

// KV is the key-value store behind CachedClassifier. Get reports a miss with found=false.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to addr and pings it.
func NewRedisKV(ctx context.Context, addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("NewRedisKV: failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Close() error { return r.client.Close() }

// CachedClassifier memoizes verdicts by sha256 of (namespace, text). Store errors are logged and
// the call falls through to Next.
type CachedClassifier struct {
	Next  analysis.Classifier
	Store KV

	// Namespace separates verdicts of different backends and models.
	Namespace string
	TTL       time.Duration

	Logger *zap.Logger
}

var _ analysis.Classifier = (*CachedClassifier)(nil)

func (c *CachedClassifier) key(text string) string {
	h := sha256.New()
	h.Write([]byte(c.Namespace))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "loupe:sentiment:" + hex.EncodeToString(h.Sum(nil))
}

func (c *CachedClassifier) ClassifyOnce(ctx context.Context, text string) (analysis.ChunkVote, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	key := c.key(text)

	raw, found, err := c.Store.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn("sentiment cache read failed", zap.Error(err))
	case found:
		var v analysis.ChunkVote
		if err := json.Unmarshal([]byte(raw), &v); err == nil && v.Kind.Valid() {
			return v, nil
		}
		logger.Warn("discarding malformed cache entry", zap.String("key", key))
	}

	v, err := c.Next.ClassifyOnce(ctx, text)
	if err != nil {
		return analysis.ChunkVote{}, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.Store.Set(ctx, key, string(b), c.TTL); err != nil {
		logger.Warn("sentiment cache write failed", zap.Error(err))
	}
	return v, nil
}
