package importer

import "context"

// HoldLock takes the per-import lock directly, standing in for a concurrent
// run in tests.
func (e *Engine) HoldLock(ctx context.Context, id int64) (func(), error) {
	return e.locks.acquire(ctx, id, e.lockWait)
}
