package lumen

import (
	"context"
	"sync"
)

// Mutex is a FIFO mutual-exclusion primitive. Waiters acquire the lock in
// the order they asked for it, and acquisition can be abandoned through
// context cancellation. It serializes sync cycles (scheduled ticks, force
// syncs) against each other; ordinary store reads and writes rely on the
// store's revision checks instead.
type Mutex struct {
	mu     sync.Mutex
	locked bool
	queue  []chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex { return &Mutex{} }

// Acquire blocks until the lock is held or ctx is done.
func (m *Mutex) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.queue = append(m.queue, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.queue {
			if w == ch {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		// Already dequeued: the lock was handed to us while we were
		// cancelling. Pass it on so the queue never stalls.
		m.mu.Unlock()
		m.Release()
		return ctx.Err()
	}
}

// Release hands the lock to the oldest waiter, or unlocks when none wait.
func (m *Mutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		close(next) // lock stays held, ownership transfers
		return
	}
	m.locked = false
}

// RunExclusive runs fn while holding the lock. The lock is released even
// when fn panics, so a failing critical section never deadlocks the queue.
func (m *Mutex) RunExclusive(ctx context.Context, fn func() error) error {
	if err := m.Acquire(ctx); err != nil {
		return err
	}
	defer m.Release()
	return fn()
}
