package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ReplaceFunc is told about a newly installed Client.
type ReplaceFunc func(ctx context.Context, c *Client)

// listenerTimeout bounds the work listeners do after a replacement.
const listenerTimeout = 30 * time.Second

// Holder keeps the current Client. Only Reconnect replaces it.
type Holder struct {
	factory    Factory
	current    atomic.Pointer[Client]
	busy       atomic.Bool
	generation atomic.Uint64

	mu        sync.Mutex
	listeners []ReplaceFunc
}

// Open dials the first Client and returns a Holder for it.
func Open(ctx context.Context, factory Factory) (*Holder, error) {
	c, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to backend: %w", err)
	}
	return NewHolder(c, factory), nil
}

// NewHolder returns a Holder that starts with initial and uses factory to reconnect.
func NewHolder(initial *Client, factory Factory) *Holder {
	h := &Holder{factory: factory}
	h.current.Store(initial)
	return h
}

// Current returns the Client in use right now.
func (h *Holder) Current() *Client {
	return h.current.Load()
}

// Generation counts completed replacements.
func (h *Holder) Generation() uint64 {
	return h.generation.Load()
}

// Busy reports whether a reconnect is in progress.
func (h *Holder) Busy() bool {
	return h.busy.Load()
}

// OnReplace registers fn to run after every successful reconnect.
func (h *Holder) OnReplace(fn ReplaceFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reconnect discards the current Client and installs a freshly dialed one.
// While a reconnect is in flight further calls return started=false and do
// nothing. Reconnect does not touch sessions; listeners do that.
func (h *Holder) Reconnect(ctx context.Context) (started bool, err error) {
	if !h.busy.CompareAndSwap(false, true) {
		return false, nil
	}
	defer h.busy.Store(false)

	next, err := h.factory(ctx)
	if err != nil {
		slog.Error("backend reconnect failed", "error", err)
		return true, fmt.Errorf("reconnecting to backend: %w", err)
	}

	old := h.current.Swap(next)
	gen := h.generation.Add(1)
	slog.Info("backend client replaced", "generation", gen)

	h.mu.Lock()
	listeners := make([]ReplaceFunc, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	// Listeners outlive the caller: a reconnect requested by a client that
	// then goes away still rebinds every session.
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listenerTimeout)
	defer cancel()
	for _, fn := range listeners {
		fn(lctx, next)
	}

	if old != nil {
		old.Close()
	}
	return true, nil
}

// Close releases the current Client.
func (h *Holder) Close() {
	if c := h.current.Swap(nil); c != nil {
		c.Close()
	}
}
