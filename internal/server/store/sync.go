package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/timex"
	"github.com/google/uuid"
)

// Operations used by the sync bridge, scheduler and auditor. They are not
// owner-scoped: those components act on behalf of the system.

func (a *Adapter) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).GetByID(ctx, id)
}

func (a *Adapter) GetByExternalID(ctx context.Context, externalID string) (*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).GetByExternalID(ctx, externalID)
}

// SetExternalID records the mirror id on a record that has none.
func (a *Adapter) SetExternalID(ctx context.Context, id, externalID string) (bool, error) {
	return a.repomanager.Reminders(a.db).SetExternalID(ctx, id, externalID)
}

// ReplaceFromMirror overwrites the mutable fields of an existing record
// wholesale. Notification entries are kept, re-armed if the due time moved.
func (a *Adapter) ReplaceFromMirror(ctx context.Context, cur, incoming *models.Reminder) (*models.Reminder, error) {
	next := cur.Clone()
	next.Title = incoming.Title
	next.Date = incoming.Date
	next.Time = incoming.Time
	next.Category = incoming.Category
	next.Priority = incoming.Priority
	next.IsCompleted = incoming.IsCompleted
	next.IsLocationBased = incoming.IsLocationBased
	next.Location = incoming.Location
	next.IsRecurring = incoming.IsRecurring
	next.RecurringPattern = incoming.RecurringPattern
	next.UpdatedAt = incoming.UpdatedAt
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = a.now()
	}
	normalize(next, a.leadMinutes)
	if err := validate(next); err != nil {
		return nil, err
	}
	if next.Date != cur.Date || next.Time != cur.Time {
		for i := range next.Notifications {
			next.Notifications[i].Sent = false
		}
	}

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := a.repomanager.Reminders(tx).Update(ctx, next); err != nil {
			return err
		}
		if next.IsCompleted && !cur.IsCompleted {
			return a.repomanager.Users(tx).RecordCompletion(ctx, next.UserID, next.UpdatedAt.Format(timex.DateLayout))
		}
		return nil
	})
	if err != nil {
		return nil, wrapOp("replace reminder", err)
	}
	return next, nil
}

// InsertFromMirror creates a record that already carries its externalId.
func (a *Adapter) InsertFromMirror(ctx context.Context, incoming *models.Reminder) (*models.Reminder, error) {
	if incoming.ExternalID == nil {
		return nil, fmt.Errorf("insert from mirror: missing external id")
	}
	return a.Create(ctx, incoming)
}

// CreateOccurrence inserts a materialized occurrence of template and
// records the template's last materialized date in the same transaction.
func (a *Adapter) CreateOccurrence(ctx context.Context, template *models.Reminder, date string) (*models.Reminder, error) {
	now := a.now()
	tplID := template.ID
	occ := &models.Reminder{
		ID:               uuid.NewString(),
		UserID:           template.UserID,
		Title:            template.Title,
		Date:             date,
		Time:             template.Time,
		Category:         template.Category,
		Priority:         template.Priority,
		IsLocationBased:  template.IsLocationBased,
		Location:         template.Location,
		RecurringPattern: models.RecurNone,
		TemplateID:       &tplID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, n := range template.Notifications {
		occ.Notifications = append(occ.Notifications, models.Notification{Channel: n.Channel, LeadMinutes: n.LeadMinutes})
	}
	normalize(occ, a.leadMinutes)
	if err := validate(occ); err != nil {
		return nil, err
	}

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repomanager.Reminders(tx)
		if err := repo.Create(ctx, occ); err != nil {
			return err
		}
		if err := repo.SetLastMaterialized(ctx, template.ID, date); err != nil {
			return err
		}
		return a.repomanager.Users(tx).AdjustTotal(ctx, occ.UserID, 1)
	})
	if err != nil {
		return nil, wrapOp("create occurrence", err)
	}
	return occ, nil
}

func (a *Adapter) HasPendingOccurrence(ctx context.Context, templateID, fromDate string) (bool, error) {
	return a.repomanager.Reminders(a.db).HasPendingOccurrence(ctx, templateID, fromDate)
}

// MarkSent flags every notification entry of the record as delivered.
func (a *Adapter) MarkSent(ctx context.Context, rec *models.Reminder) error {
	n := append([]models.Notification(nil), rec.Notifications...)
	if len(n) == 0 {
		n = []models.Notification{{Channel: "push", LeadMinutes: a.leadMinutes}}
	}
	for i := range n {
		n[i].Sent = true
	}
	return a.repomanager.Reminders(a.db).SetNotifications(ctx, rec.ID, n)
}

func (a *Adapter) ListAll(ctx context.Context) ([]*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).ListAll(ctx)
}

func (a *Adapter) ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).ListUpdatedSince(ctx, since)
}

// ListSchedulable returns non-completed reminders dated fromDate or later.
func (a *Adapter) ListSchedulable(ctx context.Context, fromDate string) ([]*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).ListPending(ctx, fromDate)
}

func (a *Adapter) ListTemplates(ctx context.Context) ([]*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).ListTemplates(ctx)
}

func (a *Adapter) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).ListRecent(ctx, userID, limit)
}

func (a *Adapter) GetUser(ctx context.Context, id string) (*models.User, error) {
	return a.repomanager.Users(a.db).Get(ctx, id)
}

func (a *Adapter) ListUsersWithPushToken(ctx context.Context) ([]*models.User, error) {
	return a.repomanager.Users(a.db).ListWithPushToken(ctx)
}
