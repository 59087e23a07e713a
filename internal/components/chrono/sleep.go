package chrono

import (
	"context"
	"sync"
	"time"
)

// SleepAPI is the interface that anything waiting out a backoff should use.
type SleepAPI interface {
	// Sleep blocks for d or until ctx is done, whichever is first. It returns ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// StandardSleep is the standard implementation of SleepAPI using timers.
type StandardSleep struct{}

func (StandardSleep) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordingSleep never blocks, it keeps the durations it was asked to sleep for.
type RecordingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *RecordingSleep) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

// Waits returns every duration slept so far.
func (r *RecordingSleep) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}
