package models

import "time"

// Sync directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Sync operations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Retry statuses.
const (
	RetryPending = "pending"
	RetryDone    = "done"
	RetryDead    = "dead"
)

// SyncRetry is a propagation that failed and waits to be replayed.
type SyncRetry struct {
	ID            string
	Direction     string
	Op            string
	RecordID      string
	UserID        string
	ExternalID    string
	Payload       []byte // mirror document JSON, inbound only
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	Status        string
	CorrelationID string
	CreatedAt     time.Time
}
