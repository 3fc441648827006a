package retries

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const retryColumns = `id::text, direction, op, record_id, user_id, external_id, payload, attempts, max_attempts,
	next_attempt_at, last_error, status, correlation_id, created_at`

func (r *PostgresRepository) Enqueue(ctx context.Context, item *models.SyncRetry) error {
	query := `
		INSERT INTO sync_retries (id, direction, op, record_id, user_id, external_id, payload,
			attempts, max_attempts, next_attempt_at, last_error, status, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.Direction, item.Op, item.RecordID, item.UserID, item.ExternalID, item.Payload,
		item.Attempts, item.MaxAttempts, item.NextAttemptAt, item.LastError, item.Status, item.CorrelationID)
	if err != nil {
		return dbx.WrapErr(err)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.SyncRetry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.WrapErr(err)
	}
	defer rows.Close()

	var result []*models.SyncRetry
	for rows.Next() {
		var it models.SyncRetry
		if err := rows.Scan(&it.ID, &it.Direction, &it.Op, &it.RecordID, &it.UserID, &it.ExternalID, &it.Payload,
			&it.Attempts, &it.MaxAttempts, &it.NextAttemptAt, &it.LastError, &it.Status, &it.CorrelationID, &it.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.SyncRetry, error) {
	return r.list(ctx, `SELECT `+retryColumns+` FROM sync_retries
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC LIMIT $2`, now, limit)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status string) ([]*models.SyncRetry, error) {
	return r.list(ctx, `SELECT `+retryColumns+` FROM sync_retries WHERE status = $1 ORDER BY created_at`, status)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbx.WrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE sync_retries SET status = 'done' WHERE id = $1`, id)
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return r.exec(ctx, `UPDATE sync_retries SET attempts = $2, next_attempt_at = $3, last_error = $4 WHERE id = $1`,
		id, attempts, next, lastErr)
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.exec(ctx, `UPDATE sync_retries SET status = 'dead', attempts = $2, last_error = $3 WHERE id = $1`,
		id, attempts, lastErr)
}
