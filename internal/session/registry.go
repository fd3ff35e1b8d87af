package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/whispersoftheland/whispers/internal/backend"
)

type entry struct {
	store    *Store
	lastUsed time.Time
}

// Registry holds one Store per browser client.
type Registry struct {
	backend     Backend
	reconciler  Reconciler
	opts        []Option
	idleTTL     time.Duration
	initTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
}

// NewRegistry creates a Registry. Stores unused for idleTTL are evicted by Sweep.
func NewRegistry(b Backend, r Reconciler, idleTTL time.Duration, opts ...Option) *Registry {
	return &Registry{
		backend:     b,
		reconciler:  r,
		opts:        opts,
		idleTTL:     idleTTL,
		initTimeout: 10 * time.Second,
		now:         time.Now,
		stores:      make(map[string]*entry),
	}
}

// Get returns the store for clientID. A new store is bootstrapped from token
// and initialized before it is returned.
func (r *Registry) Get(ctx context.Context, clientID, token string) *Store {
	r.mu.Lock()
	if e, ok := r.stores[clientID]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.store
	}
	s := NewStore(r.backend, r.reconciler, token, r.opts...)
	r.stores[clientID] = &entry{store: s, lastUsed: r.now()}
	r.mu.Unlock()

	initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.initTimeout)
	defer cancel()
	s.Initialize(initCtx)

	return s
}

// Lookup returns the store already held for clientID, or nil. It never
// creates one.
func (r *Registry) Lookup(clientID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.stores[clientID]
	if !ok {
		return nil
	}
	e.lastUsed = r.now()
	return e.store
}

// Discard tears down s and forgets it, provided it is still the store held
// for clientID.
func (r *Registry) Discard(clientID string, s *Store) {
	r.mu.Lock()
	e, ok := r.stores[clientID]
	if !ok || e.store != s {
		r.mu.Unlock()
		return
	}
	delete(r.stores, clientID)
	r.mu.Unlock()

	s.Teardown()
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Sweep tears down stores idle for longer than the idle TTL.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Store
	for id, e := range r.stores {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.store)
			delete(r.stores, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Teardown()
	}
	return len(idle)
}

// Start evicts idle stores every interval. It blocks until ctx is cancelled.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	slog.Info("session sweeper started", "interval", interval.String(), "idleTTL", r.idleTTL.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Info("evicted idle sessions", "count", n, "remaining", r.Len())
			}
		}
	}
}

// Rebind moves every store onto the new backend client. It is registered
// with the backend holder and runs after each reconnect. Cancellation of ctx
// does not stop it; the whole fan-out is bounded by the init timeout.
func (r *Registry) Rebind(ctx context.Context, _ *backend.Client) {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, e := range r.stores {
		stores = append(stores, e.store)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.initTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, s := range stores {
		g.Go(func() error {
			s.Rebind(gctx)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("sessions rebound to new backend", "count", len(stores))
}

// Close tears down every store.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range stores {
		e.store.Teardown()
	}
}
