package models

// DateRange bounds Reminder.Date inclusively; empty ends are open.
type DateRange struct {
	From string `hash:"from"`
	To   string `hash:"to"`
}

// ReminderFilter is the Store Adapter query shape. UserID is mandatory;
// nil fields do not filter.
type ReminderFilter struct {
	UserID      string     `hash:"ignore"`
	Category    *string    `hash:"category"`
	Priority    *string    `hash:"priority"`
	IsCompleted *bool      `hash:"is_completed"`
	DateRange   *DateRange `hash:"date_range"`
	TextSearch  *string    `hash:"text"`
}

// ReminderPatch carries the fields of an update; nil means unchanged.
type ReminderPatch struct {
	Title            *string
	Date             *string
	Time             *string
	Category         *string
	Priority         *string
	IsCompleted      *bool
	IsLocationBased  *bool
	Location         *string
	IsRecurring      *bool
	RecurringPattern *string
	Notifications    *[]Notification
}

// Apply copies the set fields of p onto r.
func (p *ReminderPatch) Apply(r *Reminder) {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.IsCompleted != nil {
		r.IsCompleted = *p.IsCompleted
	}
	if p.IsLocationBased != nil {
		r.IsLocationBased = *p.IsLocationBased
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.IsRecurring != nil {
		r.IsRecurring = *p.IsRecurring
	}
	if p.RecurringPattern != nil {
		r.RecurringPattern = *p.RecurringPattern
	}
	if p.Notifications != nil {
		r.Notifications = append([]Notification(nil), (*p.Notifications)...)
	}
}
