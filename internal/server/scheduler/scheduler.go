// Package scheduler arms one timer per pending reminder, fires push
// notifications ahead of the due time and runs the periodic jobs:
// recurring expansion, the upcoming sweep and insight/suggestion fan-out.
//
// Per record: Unscheduled → Scheduled → Fired, or Scheduled → Cancelled.
// Fired and Cancelled handles leave the registry, so the next Schedule
// starts a fresh instance. Delivery is at-least-once: the durable sent
// flag is only set after the dispatcher accepted the push.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/push"
	"github.com/dmitrijs2005/remindsync/internal/syncx"
	"github.com/dmitrijs2005/remindsync/internal/timex"
	"github.com/jmhodges/clock"
)

// Records is the slice of the Store Adapter the scheduler reads and marks.
type Records interface {
	GetByID(ctx context.Context, id string) (*models.Reminder, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	MarkSent(ctx context.Context, r *models.Reminder) error
	ListSchedulable(ctx context.Context, fromDate string) ([]*models.Reminder, error)
}

type job struct {
	token   uint64
	trigger time.Time
	timer   *clock.Timer
	stop    chan struct{}
}

type Scheduler struct {
	records    Records
	dispatcher push.Dispatcher
	cache      Invalidator
	clk        clock.Clock
	lead       time.Duration
	loc        *time.Location
	log        logging.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	next    uint64
	paused  bool
	ctx     context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup

	firing *syncx.KeyedMutex
}

func New(records Records, dispatcher push.Dispatcher, cache Invalidator, clk clock.Clock, lead time.Duration, loc *time.Location, log logging.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		records:    records,
		dispatcher: dispatcher,
		cache:      cache,
		clk:        clk,
		lead:       lead,
		loc:        loc,
		log:        log.With("module", "scheduler"),
		jobs:       make(map[string]*job),
		ctx:        ctx,
		stopAll:    cancel,
		firing:     syncx.NewKeyedMutex(),
	}
}

// TriggerAt returns due − lead for the record.
func (s *Scheduler) TriggerAt(r *models.Reminder) (trigger, due time.Time, err error) {
	due, err = timex.DueAt(r.Date, r.Time, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return due.Add(-s.lead), due, nil
}

// Schedule arms (or re-arms) the record's timer. A recurring template is
// scheduled as the first instance of its series. Completed, already
// delivered and past-due records end up without a job.
func (s *Scheduler) Schedule(ctx context.Context, r *models.Reminder) error {
	_, err := s.schedule(r)
	return err
}

// schedule reports whether the record ended up with a job.
func (s *Scheduler) schedule(r *models.Reminder) (bool, error) {
	if r.IsCompleted || r.AllSent() {
		s.Cancel(r.ID)
		return false, nil
	}

	trigger, due, err := s.TriggerAt(r)
	if err != nil {
		s.Cancel(r.ID)
		return false, &common.SchedulingError{ReminderID: r.ID, Err: err}
	}

	now := s.clk.Now()
	if !due.After(now) {
		s.Cancel(r.ID)
		return false, nil
	}
	delay := trigger.Sub(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false, &common.SchedulingError{ReminderID: r.ID, Err: errors.New("scheduler stopped")}
	}
	if s.paused {
		return false, nil
	}

	if old, ok := s.jobs[r.ID]; ok {
		if old.trigger.Equal(trigger) {
			return true, nil
		}
		s.stopJob(old)
	}

	s.next++
	j := &job{token: s.next, trigger: trigger, stop: make(chan struct{})}
	if delay > 0 {
		j.timer = s.clk.NewTimer(delay)
	}
	s.jobs[r.ID] = j

	s.wg.Add(1)
	go s.wait(r.ID, j)
	return true, nil
}

func (s *Scheduler) wait(id string, j *job) {
	defer s.wg.Done()
	if j.timer != nil {
		select {
		case <-j.timer.C:
		case <-j.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
	s.fire(id, j.token)
}

// stopJob must be called with s.mu held.
func (s *Scheduler) stopJob(j *job) {
	if j.timer != nil {
		j.timer.Stop()
	}
	close(j.stop)
}

// Cancel drops the record's job. No-op when nothing is scheduled.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		s.stopJob(j)
		delete(s.jobs, id)
	}
}

// Active reports whether the record has a live handle.
func (s *Scheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Pause drops every job and ignores Schedule calls until Resume. A replica
// that is not the leader stays paused.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	for id, j := range s.jobs {
		s.stopJob(j)
		delete(s.jobs, id)
	}
}

// Resume accepts jobs again. Callers follow it with Recover.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Stop cancels every job and waits for in-flight fires.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, j := range s.jobs {
		s.stopJob(j)
		delete(s.jobs, id)
	}
	s.stopAll()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(id string, token uint64) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok || j.token != token {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	unlock := s.firing.Lock(id)
	defer unlock()

	ctx := s.ctx
	if err := s.deliver(ctx, id); err != nil && ctx.Err() == nil {
		s.log.Error(ctx, "notification not delivered", "error", err)
	}
}

func (s *Scheduler) deliver(ctx context.Context, id string) error {
	r, err := s.records.GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return &common.SchedulingError{ReminderID: id, Err: err}
	}
	if r.IsCompleted || r.AllSent() {
		return nil
	}

	u, err := s.records.GetUser(ctx, r.UserID)
	if err != nil {
		return &common.SchedulingError{ReminderID: id, Err: err}
	}

	msg := push.Message{Title: r.Title, Body: body(r)}
	data := map[string]string{"reminderId": r.ID, "category": r.Category, "priority": r.Priority}
	if err := s.dispatcher.Send(ctx, u.PushToken, msg, data); err != nil {
		return &common.SchedulingError{ReminderID: id, Err: err}
	}
	if err := s.records.MarkSent(ctx, r); err != nil {
		return &common.SchedulingError{ReminderID: id, Err: fmt.Errorf("mark sent: %w", err)}
	}
	if err := s.cache.Bump(ctx, r.UserID); err != nil {
		s.log.Warn(ctx, "cache bump failed", "user_id", r.UserID, "error", err)
	}
	s.log.Info(ctx, "notification sent", "reminder_id", id, "user_id", r.UserID)
	return nil
}

func body(r *models.Reminder) string {
	when := "today"
	if r.Time != "" {
		when = "at " + r.Time
	}
	if r.IsLocationBased && r.Location != "" {
		return fmt.Sprintf("Due %s · %s", when, r.Location)
	}
	return "Due " + when
}
