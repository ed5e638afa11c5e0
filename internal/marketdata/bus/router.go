package bus

import (
	"context"
	"log"
	"sync"

	"fastquant/internal/model"
)

// Router dispatches ticks to one channel per symbol so each strategy runner
// only sees its own instrument. Ticks for unknown symbols are discarded.
type Router struct {
	mu      sync.RWMutex
	routes  map[string]chan model.Tick
	bufSize int

	// OnDrop is called when a symbol's channel is full.
	OnDrop func(symbol string)
	// OnUnrouted is called for ticks whose symbol has no route.
	OnUnrouted func(symbol string)
}

// NewRouter creates a Router with the given per-symbol buffer size.
func NewRouter(bufSize int) *Router {
	return &Router{routes: make(map[string]chan model.Tick), bufSize: bufSize}
}

// Route returns the channel for symbol, creating it on first use.
func (r *Router) Route(symbol string) <-chan model.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.routes[symbol]
	if !ok {
		ch = make(chan model.Tick, r.bufSize)
		r.routes[symbol] = ch
	}
	return ch
}

// Symbols returns the routed symbols.
func (r *Router) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.routes))
	for s := range r.routes {
		out = append(out, s)
	}
	return out
}

// Dispatch delivers t without blocking. It reports whether t was delivered.
func (r *Router) Dispatch(t model.Tick) bool {
	r.mu.RLock()
	ch, ok := r.routes[t.Symbol]
	r.mu.RUnlock()
	if !ok {
		if r.OnUnrouted != nil {
			r.OnUnrouted(t.Symbol)
		}
		return false
	}
	select {
	case ch <- t:
		return true
	default:
		if r.OnDrop != nil {
			r.OnDrop(t.Symbol)
		} else {
			log.Printf("[router] %s channel full, dropping tick @%d", t.Symbol, t.Timestamp)
		}
		return false
	}
}

// Run dispatches ticks from input until ctx is cancelled or input is closed,
// then closes every route.
func (r *Router) Run(ctx context.Context, input <-chan model.Tick) {
	defer r.close()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-input:
			if !ok {
				return
			}
			r.Dispatch(t)
		}
	}
}

func (r *Router) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sym, ch := range r.routes {
		close(ch)
		delete(r.routes, sym)
	}
}
