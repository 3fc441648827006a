package scheduler

import (
	"context"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/timex"
)

// Recover re-arms timers for every pending reminder. Run on boot and after
// gaining leadership; timers do not survive a restart.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	today := s.clk.Now().In(s.loc).Format(timex.DateLayout)
	list, err := s.records.ListSchedulable(ctx, today)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, r := range list {
		armed, err := s.schedule(r)
		if err != nil {
			s.log.Warn(ctx, "recovery skipped reminder", "reminder_id", r.ID, "error", err)
			continue
		}
		if armed {
			n++
		}
	}
	s.log.Info(ctx, "timers recovered", "scheduled", n, "candidates", len(list))
	return n, nil
}

// SweepUpcoming registers reminders due within the next window that lost
// their handle. It never dispatches.
func (s *Scheduler) SweepUpcoming(ctx context.Context, window time.Duration) (int, error) {
	now := s.clk.Now()
	today := now.In(s.loc).Format(timex.DateLayout)
	list, err := s.records.ListSchedulable(ctx, today)
	if err != nil {
		return 0, err
	}

	horizon := now.Add(s.lead + window)
	n := 0
	for _, r := range list {
		if s.Active(r.ID) {
			continue
		}
		_, due, err := s.TriggerAt(r)
		if err != nil || due.After(horizon) {
			continue
		}
		armed, err := s.schedule(r)
		if err != nil {
			s.log.Warn(ctx, "sweep could not schedule", "reminder_id", r.ID, "error", err)
			continue
		}
		if armed {
			n++
		}
	}
	if n > 0 {
		s.log.Info(ctx, "upcoming sweep re-registered reminders", "count", n)
	}
	return n, nil
}
