package memory

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle session's history survives before
// the registry reclaims it.
const DefaultSessionTTL = 30 * time.Minute

// Registry maps session IDs to their conversation windows. Windows are
// created on first use; sessions idle past the TTL are reclaimed by Sweep.
// The empty session ID is valid and names the default shared conversation.
type Registry struct {
	mu        sync.Mutex
	exchanges int
	ttl       time.Duration
	entries   map[string]*registryEntry
}

type registryEntry struct {
	window   *Window
	lastUsed time.Time
}

// NewRegistry constructs a Registry whose windows retain the given number of
// exchanges and whose idle sessions expire after ttl. Non-positive ttl falls
// back to DefaultSessionTTL.
func NewRegistry(exchanges int, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		exchanges: exchanges,
		ttl:       ttl,
		entries:   make(map[string]*registryEntry),
	}
}

// Get returns the window for the given session, creating it on first use
// and refreshing its idle timer.
func (r *Registry) Get(session string) *Window {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[session]
	if !ok {
		e = &registryEntry{window: NewWindow(r.exchanges)}
		r.entries[session] = e
	}
	e.lastUsed = time.Now()
	return e.window
}

// Len reports how many sessions currently hold history.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep reclaims sessions idle longer than the TTL as of now, returning how
// many were dropped.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, e := range r.entries {
		if now.Sub(e.lastUsed) > r.ttl {
			delete(r.entries, id)
			dropped++
		}
	}
	return dropped
}

// Run sweeps the registry periodically until the context is cancelled.
// Intended to run in its own goroutine alongside a server.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			r.Sweep(t)
		}
	}
}
