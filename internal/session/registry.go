package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/recipe-finder/internal/logging"
	"github.com/example/recipe-finder/internal/recipes"
	"github.com/example/recipe-finder/internal/view"
)

const storeTimeout = 2 * time.Second

type entry struct {
	view     *view.UploadView
	lastSeen time.Time
}

// Registry owns one UploadView per session and drops views idle for longer
// than its ttl.
type Registry struct {
	generator recipes.Generator
	store     Store
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.Mutex
	views map[string]*entry

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRegistry returns a registry creating views backed by generator. A nil
// store keeps nothing beyond the process.
func NewRegistry(generator recipes.Generator, store Store, ttl time.Duration, logger *zap.Logger) *Registry {
	if store == nil {
		store = NopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		generator: generator,
		store:     store,
		ttl:       ttl,
		logger:    logger.Named("session_registry"),
		now:       time.Now,
		views:     make(map[string]*entry),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// View returns the view of sessionID, creating it on first use. A new view
// is hydrated from the store when a snapshot exists.
func (r *Registry) View(ctx context.Context, sessionID string) *view.UploadView {
	r.mu.Lock()
	if e, ok := r.views[sessionID]; ok {
		e.lastSeen = r.now()
		r.mu.Unlock()
		return e.view
	}
	v := r.newView(sessionID)
	r.views[sessionID] = &entry{view: v, lastSeen: r.now()}
	r.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	snapshot, err := r.store.Load(loadCtx, sessionID)
	if err != nil {
		logging.WithSession(r.logger, sessionID).Warn("failed to load view snapshot", zap.Error(err))
		return v
	}
	if snapshot != nil {
		v.Restore(*snapshot)
	}
	return v
}

func (r *Registry) newView(sessionID string) *view.UploadView {
	logger := logging.WithSession(r.logger, sessionID)
	return view.New(r.generator, logger, view.WithObserver(func(s view.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := r.store.Save(ctx, sessionID, s); err != nil {
			logger.Warn("failed to save view snapshot", zap.Error(err))
		}
	}))
}

// Len reports the number of live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep drops views idle since before now minus the ttl. Views with a
// request in flight are kept. It returns the number of views dropped.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.views {
		if e.lastSeen.Before(cutoff) && !e.view.Loading() {
			delete(r.views, id)
			removed++
		}
	}
	return removed
}

// Start sweeps idle views every interval until Stop is called.
func (r *Registry) Start(interval time.Duration) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(r.now()); n > 0 {
					r.logger.Debug("dropped idle views", zap.Int("count", n))
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop started by Start and waits for it to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-r.done:
	case <-time.After(time.Second):
	}
}
