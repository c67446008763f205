package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/logging"
	"github.com/example/recipe-finder/internal/recipes"
	"github.com/example/recipe-finder/internal/view"
)

type stubCache struct {
	values  map[string]string
	ttls    map[string]time.Duration
	setErrs []error
	getErrs []error
	setKeys []string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		if err != nil {
			return err
		}
	}
	s.values[key] = value.(string)
	s.ttls[key] = expiration
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return "", err
		}
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func newTestStore(cache Cache) *CacheStore {
	store := NewCacheStore(cache, 30*time.Minute, zap.NewNop())
	store.initialBackoff = time.Millisecond
	store.maxBackoff = 2 * time.Millisecond
	return store
}

func TestCacheStoreSaveAndLoad(t *testing.T) {
	cache := newStubCache()
	store := newTestStore(cache)

	snapshot := view.Snapshot{
		LastUpload:  "fridge.png",
		Ingredients: []string{"egg", "flour"},
		Recipes:     []recipes.Recipe{{Title: "Pancakes", Steps: []string{"Mix", "Cook"}}},
		UpdatedAt:   time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
	if err := store.Save(context.Background(), "sess-1", snapshot); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if ttl := cache.ttls["recipe-finder:view:sess-1"]; ttl != 30*time.Minute {
		t.Fatalf("unexpected ttl: %s", ttl)
	}

	got, err := store.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got == nil || got.LastUpload != "fridge.png" || len(got.Ingredients) != 2 || got.Recipes[0].Title != "Pancakes" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if !got.UpdatedAt.Equal(snapshot.UpdatedAt) {
		t.Fatalf("unexpected updated_at: %s", got.UpdatedAt)
	}
}

func TestCacheStoreLoadMissingReturnsNil(t *testing.T) {
	store := newTestStore(newStubCache())

	got, err := store.Load(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil snapshot, got %+v", got)
	}
}

func TestCacheStoreRetriesTransientErrors(t *testing.T) {
	cache := newStubCache()
	cache.setErrs = []error{transientRedisError{}}
	store := newTestStore(cache)

	if err := store.Save(context.Background(), "sess-2", view.Snapshot{}); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if len(cache.setKeys) != 2 || cache.setKeys[0] != cache.setKeys[1] {
		t.Fatalf("expected two attempts on the same key, got %v", cache.setKeys)
	}
}

func TestCacheStoreReturnsOperationError(t *testing.T) {
	cache := newStubCache()
	cache.getErrs = []error{errors.New("boom")}
	store := newTestStore(cache)

	_, err := store.Load(context.Background(), "sess-3")
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T (%v)", err, err)
	}
	if opErr.Operation != "session.load" || opErr.RequestID != "sess-3" {
		t.Fatalf("unexpected operation error: %+v", opErr)
	}
}

func TestCacheStoreRejectsCorruptSnapshot(t *testing.T) {
	cache := newStubCache()
	cache.values["recipe-finder:view:sess-4"] = "{not json"
	store := newTestStore(cache)

	if _, err := store.Load(context.Background(), "sess-4"); err == nil {
		t.Fatal("expected decode error")
	}
}
