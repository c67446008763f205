package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/logging"
	"github.com/example/recipe-finder/internal/view"
)

// Store keeps view snapshots beyond the life of the process holding the view.
type Store interface {
	// Load returns the saved snapshot for sessionID, or nil when none exists.
	Load(ctx context.Context, sessionID string) (*view.Snapshot, error)
	Save(ctx context.Context, sessionID string, snapshot view.Snapshot) error
}

// NopStore keeps nothing. It is used when no Redis address is configured.
type NopStore struct{}

func (NopStore) Load(context.Context, string) (*view.Snapshot, error) { return nil, nil }

func (NopStore) Save(context.Context, string, view.Snapshot) error { return nil }

// Cache abstracts the Redis operations used by CacheStore to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get reads a value from Redis. A missing key yields redis.Nil.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// CacheStore serializes snapshots as JSON into a Cache with a fixed ttl.
type CacheStore struct {
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCacheStore returns a Store writing to cache with the session ttl.
func NewCacheStore(cache Cache, ttl time.Duration, logger *zap.Logger) *CacheStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheStore{
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("session_store"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("recipe-finder:view:%s", sessionID)
}

// Load implements Store.
func (s *CacheStore) Load(ctx context.Context, sessionID string) (*view.Snapshot, error) {
	var raw string
	err := s.withRetry(ctx, sessionID, "session.load", func() error {
		value, err := s.cache.Get(ctx, snapshotKey(sessionID))
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot view.Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, logging.NewOperationError("session.decode", sessionID, err)
	}
	return &snapshot, nil
}

// Save implements Store.
func (s *CacheStore) Save(ctx context.Context, sessionID string, snapshot view.Snapshot) error {
	serialized, err := json.Marshal(snapshot)
	if err != nil {
		return logging.NewOperationError("session.encode", sessionID, err)
	}
	return s.withRetry(ctx, sessionID, "session.save", func() error {
		return s.cache.Set(ctx, snapshotKey(sessionID), string(serialized), s.ttl)
	})
}

func (s *CacheStore) withRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if s.retryAttempts <= 1 {
		return logging.NewOperationError(operation, sessionID, fn())
	}

	backoff := s.initialBackoff
	opLogger := logging.WithSession(logging.WithOperation(s.logger, operation, ""), sessionID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return err
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
