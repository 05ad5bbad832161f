package ingest

import "sync/atomic"

// IndexLock guards a single ingestion run. It never blocks: a caller that
// loses the race gets false from TryAcquire and reports the run as busy.
// The zero value is unlocked.
type IndexLock struct {
	busy atomic.Bool
}

func (l *IndexLock) TryAcquire() bool { return l.busy.CompareAndSwap(false, true) }

// Release must only be called by the holder.
func (l *IndexLock) Release() { l.busy.Store(false) }

func (l *IndexLock) Held() bool { return l.busy.Load() }
