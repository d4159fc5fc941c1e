package allocation

import (
	"sync"

	"github.com/google/uuid"
)

// variantLocks serializes mutations per variant. Every counter write runs
// under the variant's lock, so check-then-write sequences never interleave
// for the same variant while unrelated variants proceed in parallel.
type variantLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newVariantLocks() *variantLocks {
	return &variantLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// acquire blocks until the variant's lock is held and returns the release
// function. Locks are never evicted; the map is bounded by the variant count.
func (l *variantLocks) acquire(variantID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[variantID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[variantID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
