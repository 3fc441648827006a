// Package reminders persists ReminderRecords in the SoR.
package reminders

import (
	"context"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

// Repository is the storage contract behind the Store Adapter. Methods that
// take a userID are scoped to that owner and report common.ErrorNotFound
// when the id/userID pair does not resolve.
type Repository interface {
	Create(ctx context.Context, r *models.Reminder) error
	Get(ctx context.Context, id, userID string) (*models.Reminder, error)
	// GetByID is unscoped; used by the scheduler and the sync bridge.
	GetByID(ctx context.Context, id string) (*models.Reminder, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Reminder, error)
	// Update overwrites every mutable field of r (matched by ID and UserID).
	Update(ctx context.Context, r *models.Reminder) error
	Delete(ctx context.Context, id, userID string) error
	Query(ctx context.Context, f models.ReminderFilter) ([]*models.Reminder, error)

	// SetExternalID assigns externalID only if the record has none yet.
	// false means another writer assigned one first (or the record is gone).
	SetExternalID(ctx context.Context, id, externalID string) (bool, error)
	// MarkCompleted flips is_completed from false to true. false means the
	// record was already completed.
	MarkCompleted(ctx context.Context, id, userID string, at time.Time) (bool, error)
	SetNotifications(ctx context.Context, id string, n []models.Notification) error

	ListAll(ctx context.Context) ([]*models.Reminder, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Reminder, error)
	// ListPending returns non-completed reminders dated fromDate or later,
	// templates included.
	ListPending(ctx context.Context, fromDate string) ([]*models.Reminder, error)
	ListTemplates(ctx context.Context) ([]*models.Reminder, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.Reminder, error)
	HasPendingOccurrence(ctx context.Context, templateID, fromDate string) (bool, error)
	SetLastMaterialized(ctx context.Context, templateID, date string) error
}
