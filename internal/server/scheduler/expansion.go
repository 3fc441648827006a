package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/timex"
	"github.com/jmhodges/clock"
)

type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]*models.Reminder, error)
	HasPendingOccurrence(ctx context.Context, templateID, fromDate string) (bool, error)
	CreateOccurrence(ctx context.Context, template *models.Reminder, date string) (*models.Reminder, error)
}

// Mirrorer propagates a record to the mirror.
type Mirrorer interface {
	PushUpsert(ctx context.Context, id string)
}

type Invalidator interface {
	Bump(ctx context.Context, userID string) error
}

// Expander materializes recurring templates. The template is the first
// instance of its series; later instances are separate records, and a
// series never has more than one pending instance.
type Expander struct {
	templates TemplateStore
	sched     *Scheduler
	mirror    Mirrorer
	cache     Invalidator
	clk       clock.Clock
	loc       *time.Location
	log       logging.Logger
}

func NewExpander(templates TemplateStore, sched *Scheduler, mirror Mirrorer, cache Invalidator, clk clock.Clock, loc *time.Location, log logging.Logger) *Expander {
	return &Expander{
		templates: templates,
		sched:     sched,
		mirror:    mirror,
		cache:     cache,
		clk:       clk,
		loc:       loc,
		log:       log.With("module", "expansion"),
	}
}

// maxSteps bounds the search for a stale daily template.
const maxSteps = 100000

// NextOccurrence returns the first date one or more steps after anchor that
// is after last (when set) and on or after today. Month and year steps are
// taken from the anchor and clamp to the end of short months.
func NextOccurrence(pattern, anchor string, last *string, today string) (string, error) {
	a, err := timex.ParseDate(anchor, time.UTC)
	if err != nil {
		return "", err
	}
	step := func(k int) time.Time {
		switch pattern {
		case models.RecurDaily:
			return a.AddDate(0, 0, k)
		case models.RecurWeekly:
			return a.AddDate(0, 0, 7*k)
		case models.RecurMonthly:
			return timex.AddMonthsClamped(a, k)
		default:
			return timex.AddMonthsClamped(a, 12*k)
		}
	}
	switch pattern {
	case models.RecurDaily, models.RecurWeekly, models.RecurMonthly, models.RecurYearly:
	default:
		return "", fmt.Errorf("not a recurring pattern: %q", pattern)
	}

	floor := today
	for k := 1; k <= maxSteps; k++ {
		d := step(k).Format(timex.DateLayout)
		if last != nil && d <= *last {
			continue
		}
		if d >= floor {
			return d, nil
		}
	}
	return "", fmt.Errorf("no occurrence found for anchor %s", anchor)
}

// ExpandAll runs one expansion pass and returns the occurrences created.
func (e *Expander) ExpandAll(ctx context.Context) (int, error) {
	today := e.clk.Now().In(e.loc).Format(timex.DateLayout)
	templates, err := e.templates.ListTemplates(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	var firstErr error
	for _, tpl := range templates {
		occ, err := e.expand(ctx, tpl, today)
		if err != nil {
			e.log.Error(ctx, "expansion failed", "template_id", tpl.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if occ != nil {
			created++
		}
	}
	e.log.Info(ctx, "expansion pass finished", "templates", len(templates), "created", created)
	return created, firstErr
}

func (e *Expander) expand(ctx context.Context, tpl *models.Reminder, today string) (*models.Reminder, error) {
	if !tpl.IsCompleted && tpl.Date >= today {
		return nil, nil
	}
	pending, err := e.templates.HasPendingOccurrence(ctx, tpl.ID, today)
	if err != nil || pending {
		return nil, err
	}

	date, err := NextOccurrence(tpl.RecurringPattern, tpl.Date, tpl.LastMaterializedOn, today)
	if err != nil {
		return nil, err
	}
	occ, err := e.templates.CreateOccurrence(ctx, tpl, date)
	if err != nil {
		return nil, err
	}
	e.log.Info(ctx, "occurrence materialized", "template_id", tpl.ID, "reminder_id", occ.ID, "date", date)

	if err := e.cache.Bump(ctx, occ.UserID); err != nil {
		e.log.Warn(ctx, "cache bump failed", "user_id", occ.UserID, "error", err)
	}
	e.mirror.PushUpsert(ctx, occ.ID)
	if err := e.sched.Schedule(ctx, occ); err != nil {
		e.log.Warn(ctx, "occurrence not scheduled", "reminder_id", occ.ID, "error", err)
	}
	return occ, nil
}
