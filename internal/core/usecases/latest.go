package usecases

import (
	"context"
	"sync"
)

// latestTracker enforces last-request-wins per key. Starting a new resolution
// cancels the previous one for the same key, and only the newest may publish
// its result.
type latestTracker struct {
	mu       sync.Mutex
	seq      uint64
	inflight map[string]*inflightResolution
}

type inflightResolution struct {
	key    string
	seq    uint64
	cancel context.CancelFunc
}

func newLatestTracker() *latestTracker {
	return &latestTracker{inflight: make(map[string]*inflightResolution)}
}

func (t *latestTracker) begin(ctx context.Context, key string) (context.Context, *inflightResolution) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.inflight[key]; ok {
		prev.cancel()
	}
	t.seq++
	r := &inflightResolution{key: key, seq: t.seq, cancel: cancel}
	t.inflight[key] = r
	return ctx, r
}

func (t *latestTracker) isCurrent(r *inflightResolution) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.inflight[r.key]
	return ok && cur == r
}

func (t *latestTracker) finish(r *inflightResolution) {
	t.mu.Lock()
	if cur, ok := t.inflight[r.key]; ok && cur == r {
		delete(t.inflight, r.key)
	}
	t.mu.Unlock()
	r.cancel()
}

func (t *latestTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
