// Package alock provides a FIFO asynchronous mutual-exclusion lock.
//
// Unlike sync.Mutex, waiters are queued and granted the lock strictly in
// arrival order, and acquisition is context-bound so a caller can give up
// waiting. It serializes interleaved operations on a shared resource such
// as the local draft backup store.
package alock

import (
	"context"
	"sync"

	"github.com/statichq/gitcms/internal/apperrors"
)

// Lock is a FIFO mutual-exclusion lock. The zero value is unusable; use New.
type Lock struct {
	mu      sync.Mutex
	held    bool
	waiters []chan struct{}
}

// New creates an unlocked Lock.
func New() *Lock {
	return &Lock{}
}

// Acquire blocks until the caller holds exclusive access or the context is
// done. Waiters are served strictly first-in, first-out.
func (l *Lock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.held = true
		l.mu.Unlock()
		return nil
	}

	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		// The grant raced with cancellation: we own the lock now and
		// must hand it on before reporting the cancellation.
		l.releaseLocked()
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Release grants the lock to the next waiter, or marks it free. It returns
// ErrLockNotHeld if the lock is not currently held.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return apperrors.ErrLockNotHeld
	}
	l.releaseLocked()
	return nil
}

func (l *Lock) releaseLocked() {
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant)
		return
	}
	l.held = false
}

// Run executes fn while holding the lock. The lock is released even if fn
// returns an error, mirroring the acquire/finally/release discipline every
// caller must follow.
func Run(ctx context.Context, l *Lock, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release() //nolint:errcheck // held by construction
	return fn()
}
