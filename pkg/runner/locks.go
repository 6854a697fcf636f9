package runner

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// lockEntry holds a per-run mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// acquire gets or creates a lock entry and increments its reference
// count. The caller must Lock entry.mu and call release after
// unlocking.
func (r *Runtime) acquire(runID string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[runID]
	if !exists {
		entry = &lockEntry{}
		r.locks[runID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and garbage-collects the
// entry at zero.
func (r *Runtime) release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.locks[runID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(r.locks, runID)
	}
}

// withRunLock executes fn while holding the run's local lock and, when
// a distributed locker is configured, the cross-instance lock too.
func (r *Runtime) withRunLock(ctx context.Context, runID string, fn func(context.Context) error) error {
	entry := r.acquire(runID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		r.release(runID)
	}()

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, runID, 30*time.Second)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				r.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"run_id", runID, "err", err)
			}
		}()
	}

	return fn(ctx)
}
