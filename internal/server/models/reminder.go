// Package models defines the server-side records persisted in the SoR.
package models

import "time"

// Priority values.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// RecurringPattern values.
const (
	RecurNone    = "none"
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
	RecurYearly  = "yearly"
)

// Reminder is a ReminderRecord in the SoR.
type Reminder struct {
	ID         string
	ExternalID *string
	UserID     string

	Title    string
	Date     string // 2006-01-02
	Time     string // "10:00 AM" or "10:00"; empty means start of day
	Category string
	Priority string

	IsCompleted     bool
	IsLocationBased bool
	Location        string

	IsRecurring      bool
	RecurringPattern string

	// TemplateID is set on occurrences materialized from a recurring template.
	TemplateID *string
	// LastMaterializedOn is the date of the newest occurrence spawned from
	// this template. Only meaningful when IsRecurring.
	LastMaterializedOn *string

	Notifications []Notification

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notification is one delivery channel of a reminder.
type Notification struct {
	Channel     string `json:"channel"`
	LeadMinutes int    `json:"leadMinutes"`
	Sent        bool   `json:"sent"`
}

// ExternalIDValue returns the externalId or "".
func (r *Reminder) ExternalIDValue() string {
	if r.ExternalID == nil {
		return ""
	}
	return *r.ExternalID
}

// Clone returns a deep copy.
func (r *Reminder) Clone() *Reminder {
	c := *r
	if r.ExternalID != nil {
		v := *r.ExternalID
		c.ExternalID = &v
	}
	if r.TemplateID != nil {
		v := *r.TemplateID
		c.TemplateID = &v
	}
	if r.LastMaterializedOn != nil {
		v := *r.LastMaterializedOn
		c.LastMaterializedOn = &v
	}
	if r.Notifications != nil {
		c.Notifications = append([]Notification(nil), r.Notifications...)
	}
	return &c
}

// AllSent reports whether every notification entry has been delivered.
// A reminder without entries counts as a single unsent push.
func (r *Reminder) AllSent() bool {
	if len(r.Notifications) == 0 {
		return false
	}
	for _, n := range r.Notifications {
		if !n.Sent {
			return false
		}
	}
	return true
}
