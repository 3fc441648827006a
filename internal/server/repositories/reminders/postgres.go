package reminders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

const selectColumns = `id::text, external_id, user_id::text, title, to_char(date, 'YYYY-MM-DD'), time,
	category, priority, is_completed, is_location_based, location, is_recurring, recurring_pattern,
	template_id::text, to_char(last_materialized_on, 'YYYY-MM-DD'), notifications, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(s scanner) (*models.Reminder, error) {
	var (
		r          models.Reminder
		externalID sql.NullString
		templateID sql.NullString
		lastMat    sql.NullString
		notif      []byte
	)
	if err := s.Scan(
		&r.ID, &externalID, &r.UserID, &r.Title, &r.Date, &r.Time,
		&r.Category, &r.Priority, &r.IsCompleted, &r.IsLocationBased, &r.Location, &r.IsRecurring, &r.RecurringPattern,
		&templateID, &lastMat, &notif, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if externalID.Valid {
		r.ExternalID = &externalID.String
	}
	if templateID.Valid {
		r.TemplateID = &templateID.String
	}
	if lastMat.Valid {
		r.LastMaterializedOn = &lastMat.String
	}
	if len(notif) > 0 {
		if err := json.Unmarshal(notif, &r.Notifications); err != nil {
			return nil, fmt.Errorf("notifications decode: %w", err)
		}
	}
	return &r, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.WrapErr(err)
	}
	defer rows.Close()

	var result []*models.Reminder
	for rows.Next() {
		item, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Reminder, error) {
	item, err := scanReminder(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapErr(err)
	}
	return item, nil
}

func encodeNotifications(n []models.Notification) ([]byte, error) {
	if n == nil {
		n = []models.Notification{}
	}
	return json.Marshal(n)
}

func (r *PostgresRepository) Create(ctx context.Context, rem *models.Reminder) error {
	notif, err := encodeNotifications(rem.Notifications)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO reminders (id, external_id, user_id, title, date, time, category, priority,
			is_completed, is_location_based, location, is_recurring, recurring_pattern,
			template_id, notifications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = r.db.ExecContext(ctx, query,
		rem.ID, rem.ExternalID, rem.UserID, rem.Title, rem.Date, rem.Time, rem.Category, rem.Priority,
		rem.IsCompleted, rem.IsLocationBased, rem.Location, rem.IsRecurring, rem.RecurringPattern,
		rem.TemplateID, notif, rem.CreatedAt, rem.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "reminders_external_id_key") {
			return common.ErrExternalIDTaken
		}
		return dbx.WrapErr(err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id, userID string) (*models.Reminder, error) {
	return r.queryOne(ctx, `SELECT `+selectColumns+` FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	return r.queryOne(ctx, `SELECT `+selectColumns+` FROM reminders WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Reminder, error) {
	return r.queryOne(ctx, `SELECT `+selectColumns+` FROM reminders WHERE external_id = $1`, externalID)
}

func (r *PostgresRepository) Update(ctx context.Context, rem *models.Reminder) error {
	notif, err := encodeNotifications(rem.Notifications)
	if err != nil {
		return err
	}
	query := `
		UPDATE reminders SET
			title = $3, date = $4::date, time = $5, category = $6, priority = $7,
			is_completed = $8, is_location_based = $9, location = $10,
			is_recurring = $11, recurring_pattern = $12, notifications = $13, updated_at = $14
		WHERE id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		rem.ID, rem.UserID, rem.Title, rem.Date, rem.Time, rem.Category, rem.Priority,
		rem.IsCompleted, rem.IsLocationBased, rem.Location,
		rem.IsRecurring, rem.RecurringPattern, notif, rem.UpdatedAt)
	if err != nil {
		return dbx.WrapErr(err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return dbx.WrapErr(err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// buildFilter turns a ReminderFilter into a WHERE clause with positional args.
func buildFilter(f models.ReminderFilter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{f.UserID}

	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Category != nil {
		add("category = $%d", *f.Category)
	}
	if f.Priority != nil {
		add("priority = $%d", *f.Priority)
	}
	if f.IsCompleted != nil {
		add("is_completed = $%d", *f.IsCompleted)
	}
	if f.DateRange != nil {
		if f.DateRange.From != "" {
			add("date >= $%d::date", f.DateRange.From)
		}
		if f.DateRange.To != "" {
			add("date <= $%d::date", f.DateRange.To)
		}
	}
	if f.TextSearch != nil && strings.TrimSpace(*f.TextSearch) != "" {
		args = append(args, "%"+strings.TrimSpace(*f.TextSearch)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR category ILIKE $%d OR location ILIKE $%d)", n, n, n))
	}

	return strings.Join(clauses, " AND "), args
}

func (r *PostgresRepository) Query(ctx context.Context, f models.ReminderFilter) ([]*models.Reminder, error) {
	where, args := buildFilter(f)
	query := `SELECT ` + selectColumns + ` FROM reminders WHERE ` + where + ` ORDER BY date ASC, created_at ASC, id ASC`
	return r.queryMany(ctx, query, args...)
}

func (r *PostgresRepository) SetExternalID(ctx context.Context, id, externalID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET external_id = $2 WHERE id = $1 AND external_id IS NULL`, id, externalID)
	if err != nil {
		if dbx.IsUniqueViolation(err, "reminders_external_id_key") {
			return false, common.ErrExternalIDTaken
		}
		return false, dbx.WrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) MarkCompleted(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET is_completed = true, updated_at = $3
		 WHERE id = $1 AND user_id = $2 AND is_completed = false`, id, userID, at)
	if err != nil {
		return false, dbx.WrapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetNotifications(ctx context.Context, id string, n []models.Notification) error {
	notif, err := encodeNotifications(n)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE reminders SET notifications = $2 WHERE id = $1`, id, notif)
	if err != nil {
		return dbx.WrapErr(err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.Reminder, error) {
	return r.queryMany(ctx, `SELECT `+selectColumns+` FROM reminders ORDER BY id`)
}

func (r *PostgresRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Reminder, error) {
	return r.queryMany(ctx, `SELECT `+selectColumns+` FROM reminders WHERE updated_at >= $1 ORDER BY updated_at`, since)
}

func (r *PostgresRepository) ListPending(ctx context.Context, fromDate string) ([]*models.Reminder, error) {
	return r.queryMany(ctx, `SELECT `+selectColumns+` FROM reminders
		WHERE is_completed = false AND date >= $1::date
		ORDER BY date ASC, created_at ASC`, fromDate)
}

func (r *PostgresRepository) ListTemplates(ctx context.Context) ([]*models.Reminder, error) {
	return r.queryMany(ctx, `SELECT `+selectColumns+` FROM reminders WHERE is_recurring = true ORDER BY id`)
}

func (r *PostgresRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Reminder, error) {
	return r.queryMany(ctx, `SELECT `+selectColumns+` FROM reminders
		WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`, userID, limit)
}

func (r *PostgresRepository) HasPendingOccurrence(ctx context.Context, templateID, fromDate string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (
		SELECT 1 FROM reminders WHERE template_id = $1 AND is_completed = false AND date >= $2::date)`,
		templateID, fromDate).Scan(&exists)
	if err != nil {
		return false, dbx.WrapErr(err)
	}
	return exists, nil
}

func (r *PostgresRepository) SetLastMaterialized(ctx context.Context, templateID, date string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reminders SET last_materialized_on = $2::date WHERE id = $1 AND is_recurring = true`, templateID, date)
	if err != nil {
		return dbx.WrapErr(err)
	}
	return expectOne(res)
}
