package utils

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Outcome is the settled result of one work item.
type Outcome[R any] struct {
	Value R
	Err   error
}

// MapBounded runs fn over items with at most limit calls in flight. The
// returned slice is index-aligned with items whatever the completion order.
// A failing or panicking item is captured in its Outcome and never aborts
// the batch; MapBounded returns only after every item has settled.
func MapBounded[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) (R, error)) []Outcome[R] {
	out := make([]Outcome[R], len(items))
	if len(items) == 0 {
		return out
	}
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i := range items {
		i := i
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					out[i] = Outcome[R]{Err: eris.Errorf("work item %d panicked: %v", i, rec)}
				}
			}()
			v, err := fn(ctx, items[i])
			out[i] = Outcome[R]{Value: v, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// WorkerPool manages a bounded pool of goroutines with rate limiting.
type WorkerPool struct {
	ctx     context.Context
	group   errgroup.Group
	limiter *rate.Limiter
}

// NewWorkerPool creates a WorkerPool with the given concurrency and minimum
// interval between job starts. A zero interval disables pacing.
func NewWorkerPool(ctx context.Context, maxWorkers int, interval time.Duration) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	wp := &WorkerPool{ctx: ctx, limiter: rate.NewLimiter(limit, 1)}
	wp.group.SetLimit(maxWorkers)
	return wp
}

// Submit enqueues a job, blocking while the pool is full.
func (wp *WorkerPool) Submit(job func(ctx context.Context)) {
	wp.group.Go(func() error {
		if err := wp.limiter.Wait(wp.ctx); err != nil {
			return nil
		}
		job(wp.ctx)
		return nil
	})
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	_ = wp.group.Wait()
}

// KeySet is a thread-safe set of strings.
type KeySet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewKeySet creates an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{seen: make(map[string]struct{})}
}

// Add returns true if the key was newly added, false if already present.
func (s *KeySet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Contains returns true if the key has been added.
func (s *KeySet) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[key]
	return exists
}

// Size returns the number of unique keys tracked.
func (s *KeySet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
