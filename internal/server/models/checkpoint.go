package models

import "time"

// AuditCheckpoint marks how far an incremental reconciliation has
// progressed.
type AuditCheckpoint struct {
	Name       string
	SweptUntil time.Time
}
