package refresh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when a stripe could not be acquired in time
var ErrLockTimeout = errors.New("timed out waiting for entry lock")

// Stripes is a fixed set of binary semaphores indexed by key hash. Semaphores
// are created on first use so a large stripe count costs one pointer per slot.
type Stripes struct {
	slots   []atomic.Pointer[semaphore.Weighted]
	timeout time.Duration
}

func NewStripes(count int, timeout time.Duration) *Stripes {
	return &Stripes{
		slots:   make([]atomic.Pointer[semaphore.Weighted], max(count, 1)),
		timeout: timeout,
	}
}

func (s *Stripes) Len() int {
	return len(s.slots)
}

func (s *Stripes) index(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.slots)))
}

func (s *Stripes) slot(i int) *semaphore.Weighted {
	if sem := s.slots[i].Load(); sem != nil {
		return sem
	}
	s.slots[i].CompareAndSwap(nil, semaphore.NewWeighted(1))
	return s.slots[i].Load()
}

// Lock acquires the stripes covering keys. Distinct stripes are taken in
// ascending index order so overlapping key sets cannot deadlock. Each stripe
// waits at most the configured timeout; on failure every stripe already held
// is released. The returned func releases all stripes.
func (s *Stripes) Lock(ctx context.Context, keys []string) (func(), error) {
	indexes := make([]int, 0, len(keys))
	for _, key := range keys {
		indexes = append(indexes, s.index(key))
	}
	slices.Sort(indexes)
	indexes = slices.Compact(indexes)

	held := make([]*semaphore.Weighted, 0, len(indexes))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
	}

	for _, i := range indexes {
		sem := s.slot(i)
		if err := s.acquire(ctx, sem); err != nil {
			release()
			return nil, err
		}
		held = append(held, sem)
	}

	return release, nil
}

func (s *Stripes) acquire(ctx context.Context, sem *semaphore.Weighted) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := sem.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %s", ErrLockTimeout, s.timeout)
	}
	return nil
}
