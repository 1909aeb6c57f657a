package alock

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestLock_FIFOOrder verifies two concurrent waiters are granted the lock
// strictly in arrival order.
func TestLock_FIFOOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	order := make(chan int, 2)
	firstWaiting := make(chan struct{})

	go func() {
		close(firstWaiting)
		_ = l.Acquire(ctx)
		order <- 1
		_ = l.Release()
	}()

	<-firstWaiting
	// Give the first goroutine time to enqueue before the second arrives.
	time.Sleep(10 * time.Millisecond)

	go func() {
		_ = l.Acquire(ctx)
		order <- 2
		_ = l.Release()
	}()
	time.Sleep(10 * time.Millisecond)

	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if got := <-order; got != 1 {
		t.Errorf("expected first waiter to run first, got %d", got)
	}
	if got := <-order; got != 2 {
		t.Errorf("expected second waiter to run second, got %d", got)
	}
}

// TestLock_ReleaseAfterError verifies a caller that fails while holding the
// lock still unblocks the next waiter via Run's deferred release.
func TestLock_ReleaseAfterError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := New()

	wantErr := errors.New("boom")
	if err := Run(ctx, l, func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected error from fn, got %v", err)
	}

	// The lock must be free again.
	done := make(chan struct{})
	go func() {
		_ = Run(ctx, l, func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock left stuck after failed holder")
	}
}

// TestLock_AcquireCancel verifies a waiter can abandon the queue.
func TestLock_AcquireCancel(t *testing.T) {
	t.Parallel()
	l := New()

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// Holder releases; the cancelled waiter must not have consumed the grant.
	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("lock unusable after cancelled waiter: %v", err)
	}
}

// TestLock_ReleaseWhenFree verifies releasing an unheld lock errors.
func TestLock_ReleaseWhenFree(t *testing.T) {
	t.Parallel()
	l := New()
	if err := l.Release(); err == nil {
		t.Fatal("expected error releasing an unheld lock")
	}
}
