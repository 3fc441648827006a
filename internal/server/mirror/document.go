// Package mirror is the Mobile Sync Store: a document store keyed by
// externalId with an append-only changelog that drives inbound sync and the
// live feed.
package mirror

import "time"

// Change kinds.
const (
	KindAdd    = "add"
	KindModify = "modify"
	KindRemove = "remove"
)

// Write origins. Changes written by the sync bridge are not echoed back to it.
const (
	OriginBridge = "bridge"
	OriginClient = "client"
)

// Document is the mirror's copy of a reminder.
type Document struct {
	ExternalID       string    `json:"externalId"`
	UserID           string    `json:"userId"`
	Title            string    `json:"title"`
	Date             string    `json:"date"`
	Time             string    `json:"time,omitempty"`
	Category         string    `json:"category,omitempty"`
	Priority         string    `json:"priority"`
	IsCompleted      bool      `json:"isCompleted"`
	IsLocationBased  bool      `json:"isLocationBased"`
	Location         string    `json:"location,omitempty"`
	IsRecurring      bool      `json:"isRecurring"`
	RecurringPattern string    `json:"recurringPattern"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Change is one changelog entry. Doc is nil for removals.
type Change struct {
	Seq        int64     `json:"seq"`
	Kind       string    `json:"kind"`
	Origin     string    `json:"origin"`
	ExternalID string    `json:"externalId"`
	UserID     string    `json:"userId"`
	Doc        *Document `json:"doc,omitempty"`
	At         time.Time `json:"at"`
}
