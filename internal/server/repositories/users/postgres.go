package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (push_token)
		 VALUES ($1)
		 RETURNING id::text, created_at
		 `

	err := r.db.QueryRowContext(ctx, query, user.PushToken).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, dbx.WrapErr(err)
	}

	return user, nil
}

func scanUser(s interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	var last sql.NullString
	if err := s.Scan(&user.ID, &user.PushToken, &user.TotalReminders, &user.CompletedReminders,
		&user.StreakDays, &last, &user.CreatedAt); err != nil {
		return nil, err
	}
	if last.Valid {
		user.LastCompletedOn = &last.String
	}
	return user, nil
}

const userColumns = `id::text, push_token, total_reminders, completed_reminders, streak_days,
	to_char(last_completed_on, 'YYYY-MM-DD'), created_at`

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapErr(err)
	}
	return user, nil
}

func (r *PostgresRepository) ListWithPushToken(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE push_token <> '' ORDER BY id`)
	if err != nil {
		return nil, dbx.WrapErr(err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
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
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SetPushToken(ctx context.Context, id, token string) error {
	return r.exec(ctx, `UPDATE users SET push_token = $2 WHERE id = $1`, id, token)
}

func (r *PostgresRepository) AdjustTotal(ctx context.Context, id string, delta int) error {
	return r.exec(ctx, `UPDATE users SET total_reminders = GREATEST(total_reminders + $2, 0) WHERE id = $1`, id, delta)
}

func (r *PostgresRepository) RecordCompletion(ctx context.Context, id, on string) error {
	query := `
		UPDATE users SET
			completed_reminders = completed_reminders + 1,
			streak_days = CASE
				WHEN last_completed_on = $2::date THEN streak_days
				WHEN last_completed_on = $2::date - 1 THEN streak_days + 1
				ELSE 1
			END,
			last_completed_on = $2::date
		WHERE id = $1
	`
	return r.exec(ctx, query, id, on)
}
