package syncbridge

import (
	"context"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/retries"
	"github.com/jmhodges/clock"
)

const maxRetryDelay = time.Hour

// RetryWorker replays due items of the durable queue.
type RetryWorker struct {
	bridge    *Bridge
	queue     retries.Repository
	clk       clock.Clock
	interval  time.Duration
	baseDelay time.Duration
	batch     int
	log       logging.Logger
}

func NewRetryWorker(b *Bridge, queue retries.Repository, clk clock.Clock, interval, baseDelay time.Duration, log logging.Logger) *RetryWorker {
	return &RetryWorker{
		bridge:    b,
		queue:     queue,
		clk:       clk,
		interval:  interval,
		baseDelay: baseDelay,
		batch:     50,
		log:       log.With("module", "retry-worker"),
	}
}

// Run processes the queue immediately and then every interval until ctx is done.
func (w *RetryWorker) Run(ctx context.Context) {
	timer := w.clk.NewTimer(w.interval)
	defer timer.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Error(ctx, "retry pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(w.interval)
		}
	}
}

// backoff returns the delay before attempt n+1, doubling from baseDelay.
func (w *RetryWorker) backoff(attempts int) time.Duration {
	d := w.baseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// RunOnce replays every due item once and returns how many succeeded.
func (w *RetryWorker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.queue.Due(ctx, w.clk.Now().UTC(), w.batch)
	if err != nil {
		return 0, err
	}

	ok := 0
	for _, it := range items {
		if ctx.Err() != nil {
			return ok, ctx.Err()
		}
		ictx := ctx
		if it.CorrelationID != "" {
			ictx = logging.WithCorrelationID(ctx, it.CorrelationID)
		}

		err := w.bridge.Replay(ictx, it)
		if err == nil {
			ok++
			if err := w.queue.MarkDone(ictx, it.ID); err != nil {
				return ok, err
			}
			w.log.Info(ictx, "retry succeeded", "retry_id", it.ID, "attempts", it.Attempts+1)
			continue
		}

		attempts := it.Attempts + 1
		if attempts >= it.MaxAttempts || permanent(err) {
			w.log.Error(ictx, "retry exhausted, giving up", "retry_id", it.ID, "direction", it.Direction,
				"op", it.Op, "reminder_id", it.RecordID, "external_id", it.ExternalID, "attempts", attempts, "error", err)
			if err := w.queue.MarkDead(ictx, it.ID, attempts, err.Error()); err != nil {
				return ok, err
			}
			continue
		}

		next := w.clk.Now().UTC().Add(w.backoff(attempts))
		w.log.Warn(ictx, "retry failed", "retry_id", it.ID, "attempts", attempts, "next_attempt_at", next, "error", err)
		if err := w.queue.Reschedule(ictx, it.ID, attempts, next, err.Error()); err != nil {
			return ok, err
		}
	}
	return ok, nil
}

// Pending lists queued items by status for operators.
func (w *RetryWorker) Pending(ctx context.Context, status string) ([]*models.SyncRetry, error) {
	if status == "" {
		status = models.RetryPending
	}
	return w.queue.ListByStatus(ctx, status)
}
