// Package services contains server-side business logic. ReminderService is
// the CRUD entry point: it commits to the SoR, then invalidates the user's
// cache generation, mirrors the change and updates the timer registry.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/cache"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

// Store is the part of the Store Adapter the service writes through.
type Store interface {
	Create(ctx context.Context, r *models.Reminder) (*models.Reminder, error)
	Get(ctx context.Context, id, userID string) (*models.Reminder, error)
	Update(ctx context.Context, id, userID string, patch *models.ReminderPatch) (*models.Reminder, error)
	Delete(ctx context.Context, id, userID string) (*models.Reminder, error)
	Query(ctx context.Context, f models.ReminderFilter) ([]*models.Reminder, error)
	MarkComplete(ctx context.Context, id, userID string) (*models.Reminder, bool, error)
}

type Mirrorer interface {
	PushUpsert(ctx context.Context, id string)
	PushDelete(ctx context.Context, rec *models.Reminder)
}

type Scheduler interface {
	Schedule(ctx context.Context, r *models.Reminder) error
	Cancel(id string)
}

const (
	resourceReminder  = "reminder"
	resourceReminders = "reminders"
)

type ReminderService struct {
	store  Store
	cache  *cache.Layer
	mirror Mirrorer
	sched  Scheduler
	ttl    time.Duration
	log    logging.Logger
}

func NewReminderService(store Store, layer *cache.Layer, mirror Mirrorer, sched Scheduler, ttl time.Duration, log logging.Logger) *ReminderService {
	return &ReminderService{
		store:  store,
		cache:  layer,
		mirror: mirror,
		sched:  sched,
		ttl:    ttl,
		log:    log.With("module", "reminders"),
	}
}

// Create validates and stores r. Propagation failures do not fail the call.
func (s *ReminderService) Create(ctx context.Context, r *models.Reminder) (*models.Reminder, error) {
	rec, err := s.store.Create(ctx, r)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, rec)
	return rec, nil
}

func (s *ReminderService) Get(ctx context.Context, id, userID string) (*models.Reminder, error) {
	return cache.Fetch(ctx, s.cache, userID, resourceReminder, id, s.ttl, func(ctx context.Context) (*models.Reminder, error) {
		return s.store.Get(ctx, id, userID)
	})
}

func (s *ReminderService) Query(ctx context.Context, f models.ReminderFilter) ([]*models.Reminder, error) {
	return cache.Fetch(ctx, s.cache, f.UserID, resourceReminders, f, s.ttl, func(ctx context.Context) ([]*models.Reminder, error) {
		return s.store.Query(ctx, f)
	})
}

func (s *ReminderService) Update(ctx context.Context, id, userID string, patch *models.ReminderPatch) (*models.Reminder, error) {
	rec, err := s.store.Update(ctx, id, userID, patch)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, rec)
	return rec, nil
}

// Complete marks a reminder completed. Completing twice is a no-op.
func (s *ReminderService) Complete(ctx context.Context, id, userID string) (*models.Reminder, error) {
	rec, changed, err := s.store.MarkComplete(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.afterWrite(ctx, rec)
	}
	return rec, nil
}

func (s *ReminderService) Delete(ctx context.Context, id, userID string) error {
	rec, err := s.store.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	s.sched.Cancel(rec.ID)
	s.mirror.PushDelete(ctx, rec)
	return nil
}

func (s *ReminderService) afterWrite(ctx context.Context, rec *models.Reminder) {
	s.invalidate(ctx, rec.UserID)
	s.mirror.PushUpsert(ctx, rec.ID)
	if err := s.sched.Schedule(ctx, rec); err != nil {
		s.log.Warn(ctx, "reminder not scheduled", "reminder_id", rec.ID, "error", err)
	}
}

func (s *ReminderService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Bump(ctx, userID); err != nil {
		s.log.Warn(ctx, "cache invalidation failed", "user_id", userID, "error", err)
	}
}
