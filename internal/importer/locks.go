package importer

import (
	"context"
	"sync"
	"time"
)

// lockTable provides per-import mutual exclusion within this process. Two
// RunChunk calls for the same import must never read the same cursor value,
// so a call waits briefly for the holder to finish and then gives up with
// ErrConflict. Cross-process races are caught by the cursor compare-and-swap
// at commit time.
type lockTable struct {
	mu   sync.Mutex
	held map[int64]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[int64]chan struct{})}
}

// acquire takes the lock for id, waiting up to wait for the current holder.
// On success it returns a release function that must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, id int64, wait time.Duration) (func(), error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		t.mu.Lock()
		freed, taken := t.held[id]
		if !taken {
			ch := make(chan struct{})
			t.held[id] = ch
			t.mu.Unlock()

			var once sync.Once
			release := func() {
				once.Do(func() {
					t.mu.Lock()
					delete(t.held, id)
					t.mu.Unlock()
					close(ch)
				})
			}
			return release, nil
		}
		t.mu.Unlock()

		select {
		case <-freed:
			// Holder released; try again.
		case <-deadline.C:
			return nil, ErrConflict
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
