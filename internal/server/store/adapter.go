// Package store is the Store Adapter: CRUD and filtered queries over the SoR,
// scoped by owner. It knows nothing about the cache, the mirror or timers;
// callers are responsible for invalidation and propagation.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/remindsync/internal/timex"
	"github.com/google/uuid"
	"github.com/jmhodges/clock"
)

type Adapter struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	clk         clock.Clock
	leadMinutes int
}

func NewAdapter(db *sql.DB, m repomanager.RepositoryManager, clk clock.Clock, leadWindow time.Duration) *Adapter {
	return &Adapter{db: db, repomanager: m, clk: clk, leadMinutes: int(leadWindow.Minutes())}
}

func (a *Adapter) now() time.Time {
	return a.clk.Now().UTC()
}

// Create validates and inserts a new record, assigning its id.
func (a *Adapter) Create(ctx context.Context, r *models.Reminder) (*models.Reminder, error) {
	rec := r.Clone()
	normalize(rec, a.leadMinutes)
	if err := validate(rec); err != nil {
		return nil, err
	}

	rec.ID = uuid.NewString()
	now := a.now()
	rec.CreatedAt = now
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	if err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := a.repomanager.Reminders(tx).Create(ctx, rec); err != nil {
			return err
		}
		return a.repomanager.Users(tx).AdjustTotal(ctx, rec.UserID, 1)
	}); err != nil {
		return nil, wrapOp("create reminder", err)
	}
	return rec, nil
}

func (a *Adapter) Get(ctx context.Context, id, userID string) (*models.Reminder, error) {
	return a.repomanager.Reminders(a.db).Get(ctx, id, userID)
}

// Update applies patch to the record owned by userID. Setting isCompleted
// goes through the same idempotent path as MarkComplete. Moving the due
// date or time re-arms the notification entries.
func (a *Adapter) Update(ctx context.Context, id, userID string, patch *models.ReminderPatch) (*models.Reminder, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	var rec *models.Reminder
	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repomanager.Reminders(tx)
		cur, err := repo.Get(ctx, id, userID)
		if err != nil {
			return err
		}
		next := cur.Clone()
		patch.Apply(next)
		next.Title = strings.TrimSpace(next.Title)
		if !next.IsRecurring {
			next.RecurringPattern = models.RecurNone
		}
		if err := validate(next); err != nil {
			return err
		}
		if next.Date != cur.Date || next.Time != cur.Time {
			for i := range next.Notifications {
				next.Notifications[i].Sent = false
			}
		}
		next.UpdatedAt = a.now()

		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		if next.IsCompleted && !cur.IsCompleted {
			if err := a.repomanager.Users(tx).RecordCompletion(ctx, userID, next.UpdatedAt.Format(timex.DateLayout)); err != nil {
				return err
			}
		}
		rec = next
		return nil
	})
	if err != nil {
		return nil, wrapOp("update reminder", err)
	}
	return rec, nil
}

// Delete removes the record and returns it, so callers can cancel its job
// and remove its mirror document.
func (a *Adapter) Delete(ctx context.Context, id, userID string) (*models.Reminder, error) {
	var rec *models.Reminder
	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repomanager.Reminders(tx)
		cur, err := repo.Get(ctx, id, userID)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id, userID); err != nil {
			return err
		}
		rec = cur
		return a.repomanager.Users(tx).AdjustTotal(ctx, userID, -1)
	})
	if err != nil {
		return nil, wrapOp("delete reminder", err)
	}
	return rec, nil
}

// Query returns the owner's reminders matching f, ordered by date ascending.
func (a *Adapter) Query(ctx context.Context, f models.ReminderFilter) ([]*models.Reminder, error) {
	if f.UserID == "" {
		return nil, common.NewValidationError("userId", "required")
	}
	if f.DateRange != nil {
		for field, v := range map[string]string{"dateRange.from": f.DateRange.From, "dateRange.to": f.DateRange.To} {
			if v == "" {
				continue
			}
			if _, err := time.Parse(timex.DateLayout, v); err != nil {
				return nil, common.NewValidationError(field, "expected YYYY-MM-DD")
			}
		}
	}
	list, err := a.repomanager.Reminders(a.db).Query(ctx, f)
	if err != nil {
		return nil, err
	}
	sortByDue(list)
	return list, nil
}

// sortByDue orders by date, then time of day, then id. Records without a
// time sort at start of day.
func sortByDue(list []*models.Reminder) {
	minutes := func(r *models.Reminder) int {
		h, m, err := timex.ParseClock(r.Time)
		if err != nil {
			return 0
		}
		return h*60 + m
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if ma, mb := minutes(a), minutes(b); ma != mb {
			return ma < mb
		}
		return a.ID < b.ID
	})
}

// MarkComplete sets isCompleted. The user's completedReminders counter and
// streak move only on the false→true transition, so repeated calls count
// once. changed reports whether this call performed the transition.
func (a *Adapter) MarkComplete(ctx context.Context, id, userID string) (rec *models.Reminder, changed bool, err error) {
	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repomanager.Reminders(tx)
		now := a.now()
		changed, err = repo.MarkCompleted(ctx, id, userID, now)
		if err != nil {
			return err
		}
		if changed {
			if err := a.repomanager.Users(tx).RecordCompletion(ctx, userID, now.Format(timex.DateLayout)); err != nil {
				return err
			}
		}
		rec, err = repo.Get(ctx, id, userID)
		return err
	})
	if err != nil {
		return nil, false, wrapOp("complete reminder", err)
	}
	return rec, changed, nil
}

func wrapOp(op string, err error) error {
	var ve *common.ValidationError
	if errors.Is(err, common.ErrorNotFound) || errors.As(err, &ve) {
		return err
	}
	return dbx.Classify(fmt.Errorf("%s: %w", op, err))
}
