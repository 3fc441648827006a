package syncbridge

import (
	"github.com/dmitrijs2005/remindsync/internal/server/mirror"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

// ToDocument maps a record to its mirror document.
func ToDocument(r *models.Reminder) *mirror.Document {
	return &mirror.Document{
		ExternalID:       r.ExternalIDValue(),
		UserID:           r.UserID,
		Title:            r.Title,
		Date:             r.Date,
		Time:             r.Time,
		Category:         r.Category,
		Priority:         r.Priority,
		IsCompleted:      r.IsCompleted,
		IsLocationBased:  r.IsLocationBased,
		Location:         r.Location,
		IsRecurring:      r.IsRecurring,
		RecurringPattern: r.RecurringPattern,
		UpdatedAt:        r.UpdatedAt,
	}
}

// FromDocument maps a mirror document to a record without SoR-owned fields.
func FromDocument(d *mirror.Document) *models.Reminder {
	r := &models.Reminder{
		UserID:           d.UserID,
		Title:            d.Title,
		Date:             d.Date,
		Time:             d.Time,
		Category:         d.Category,
		Priority:         d.Priority,
		IsCompleted:      d.IsCompleted,
		IsLocationBased:  d.IsLocationBased,
		Location:         d.Location,
		IsRecurring:      d.IsRecurring,
		RecurringPattern: d.RecurringPattern,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.ExternalID != "" {
		ext := d.ExternalID
		r.ExternalID = &ext
	}
	return r
}

// SameContent compares the fields both stores carry, ignoring timestamps.
func SameContent(r *models.Reminder, d *mirror.Document) bool {
	o := ToDocument(r)
	o.ExternalID, o.UpdatedAt = "", d.UpdatedAt
	c := *d
	c.ExternalID = ""
	return *o == c
}
