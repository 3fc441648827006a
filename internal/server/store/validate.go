package store

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/timex"
)

const maxTitleLen = 200

var priorities = map[string]bool{
	models.PriorityLow: true, models.PriorityMedium: true, models.PriorityHigh: true,
}

var patterns = map[string]bool{
	models.RecurNone: true, models.RecurDaily: true, models.RecurWeekly: true,
	models.RecurMonthly: true, models.RecurYearly: true,
}

// normalize fills defaults on a new record.
func normalize(r *models.Reminder, leadMinutes int) {
	r.Title = strings.TrimSpace(r.Title)
	if r.Priority == "" {
		r.Priority = models.PriorityMedium
	}
	if r.RecurringPattern == "" {
		r.RecurringPattern = models.RecurNone
	}
	if !r.IsRecurring {
		r.RecurringPattern = models.RecurNone
	}
	if len(r.Notifications) == 0 {
		r.Notifications = []models.Notification{{Channel: "push", LeadMinutes: leadMinutes}}
	}
}

// validate checks every field of a full record.
func validate(r *models.Reminder) error {
	if r.UserID == "" {
		return common.NewValidationError("userId", "required")
	}
	if r.Title == "" {
		return common.NewValidationError("title", "required")
	}
	if len(r.Title) > maxTitleLen {
		return common.NewValidationError("title", "too long")
	}
	if _, err := timex.ParseDate(r.Date, time.UTC); err != nil {
		return common.NewValidationError("date", "expected YYYY-MM-DD")
	}
	if strings.TrimSpace(r.Time) != "" {
		if _, _, err := timex.ParseClock(r.Time); err != nil {
			return common.NewValidationError("time", "expected 10:00 AM or 10:00")
		}
	}
	if !priorities[r.Priority] {
		return common.NewValidationError("priority", "unknown value "+r.Priority)
	}
	if !patterns[r.RecurringPattern] {
		return common.NewValidationError("recurringPattern", "unknown value "+r.RecurringPattern)
	}
	if r.IsRecurring && r.RecurringPattern == models.RecurNone {
		return common.NewValidationError("recurringPattern", "required for recurring reminders")
	}
	if r.IsLocationBased && strings.TrimSpace(r.Location) == "" {
		return common.NewValidationError("location", "required for location-based reminders")
	}
	for _, n := range r.Notifications {
		if n.LeadMinutes < 0 {
			return common.NewValidationError("notifications", "negative lead")
		}
	}
	return nil
}

// validatePatch rejects malformed fields before they touch the record.
func validatePatch(p *models.ReminderPatch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return common.NewValidationError("title", "must not be empty")
	}
	if p.Date != nil {
		if _, err := timex.ParseDate(*p.Date, time.UTC); err != nil {
			return common.NewValidationError("date", "expected YYYY-MM-DD")
		}
	}
	if p.Time != nil && strings.TrimSpace(*p.Time) != "" {
		if _, _, err := timex.ParseClock(*p.Time); err != nil {
			return common.NewValidationError("time", "expected 10:00 AM or 10:00")
		}
	}
	if p.Priority != nil && !priorities[*p.Priority] {
		return common.NewValidationError("priority", "unknown value "+*p.Priority)
	}
	if p.RecurringPattern != nil && !patterns[*p.RecurringPattern] {
		return common.NewValidationError("recurringPattern", "unknown value "+*p.RecurringPattern)
	}
	return nil
}
