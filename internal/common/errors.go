// Package common defines sentinel and typed errors shared by the SoR,
// mirror, cache, sync and scheduling layers. Callers should use errors.Is /
// errors.As to match them.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal      = errors.New("internal error")
	ErrVersionConflict = errors.New("version conflict")

	// ErrExternalIDTaken is returned when an externalId is already claimed
	// by another record.
	ErrExternalIDTaken = errors.New("external id already assigned")

	// ErrNotLeader is returned by leader-only operations on a follower.
	ErrNotLeader = errors.New("not the leader")
)

// ValidationError reports a malformed field in a record or patch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError is a shorthand constructor.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientStoreError marks a store failure worth retrying.
type TransientStoreError struct {
	Store string
	Err   error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s temporarily unavailable: %v", e.Store, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientStoreError for store. nil stays nil.
func Transient(store string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Store: store, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is transient.
func IsTransient(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}

// SyncConflict describes a concurrent whole-document overwrite resolved
// last-writer-wins. It is logged, never returned to CRUD callers.
type SyncConflict struct {
	RecordID   string
	ExternalID string
	Winner     string
}

func (e *SyncConflict) Error() string {
	return fmt.Sprintf("sync conflict on record %s (external %s): %s wins", e.RecordID, e.ExternalID, e.Winner)
}

// SchedulingError wraps a timer registration or dispatch failure.
type SchedulingError struct {
	ReminderID string
	Err        error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling reminder %s: %v", e.ReminderID, e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// CacheError wraps a non-fatal cache failure.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
