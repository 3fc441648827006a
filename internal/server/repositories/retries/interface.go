// Package retries is the durable queue of failed sync propagations.
package retries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

type Repository interface {
	Enqueue(ctx context.Context, r *models.SyncRetry) error
	// Due returns pending items whose next attempt is at or before now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.SyncRetry, error)
	MarkDone(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	MarkDead(ctx context.Context, id string, attempts int, lastErr string) error
	ListByStatus(ctx context.Context, status string) ([]*models.SyncRetry, error)
}
