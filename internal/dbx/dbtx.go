// Package dbx provides small database/sql helpers shared by the SoR
// repositories, the retry queue and the mirror store: the DBTX interface
// satisfied by both *sql.DB and *sql.Tx, a transaction runner and
// driver-error classification.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// SoR names the system of record in transient errors.
const SoR = "sor"

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    return rm.Reminders(tx).SetCompleted(ctx, id, userID)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation, optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsConnError reports whether err looks like a lost or refused connection,
// which callers treat as transient.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.SafeToRetry(err)
}

// WrapErr annotates a SoR repository error. Lost or refused connections
// come back as a common.TransientStoreError.
func WrapErr(err error) error {
	return Classify(fmt.Errorf("db error: %w", err))
}

// Classify marks connection failures of the SoR as transient. Errors that
// are already transient pass through.
func Classify(err error) error {
	if err == nil || common.IsTransient(err) || !IsConnError(err) {
		return err
	}
	return common.Transient(SoR, err)
}
