package importer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockTable_Exclusive(t *testing.T) {
	locks := newLockTable()
	ctx := context.Background()

	release, err := locks.acquire(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// Same id blocks until timeout.
	if _, err := locks.acquire(ctx, 1, 30*time.Millisecond); !errors.Is(err, ErrConflict) {
		t.Errorf("second acquire err = %v, want ErrConflict", err)
	}

	// A different id is independent.
	release2, err := locks.acquire(ctx, 2, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire for other id failed: %v", err)
	}
	release2()

	release()

	// Released lock can be reacquired.
	release3, err := locks.acquire(ctx, 1, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	release3()
}

func TestLockTable_WaiterWinsOnRelease(t *testing.T) {
	locks := newLockTable()
	ctx := context.Background()

	release, err := locks.acquire(ctx, 7, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		r, err := locks.acquire(ctx, 7, 2*time.Second)
		if err == nil {
			r()
		}
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	if err := <-errCh; err != nil {
		t.Errorf("waiter acquire err = %v, want nil", err)
	}
}

func TestLockTable_ReleaseIsIdempotent(t *testing.T) {
	locks := newLockTable()

	release, err := locks.acquire(context.Background(), 1, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()
	release() // second call must be a no-op, not a panic
}

func TestLockTable_ContextCancel(t *testing.T) {
	locks := newLockTable()

	release, err := locks.acquire(context.Background(), 1, time.Second)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := locks.acquire(ctx, 1, 10*time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
