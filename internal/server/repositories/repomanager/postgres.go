// Package repomanager provides RepositoryManager implementations: PostgreSQL
// (with goose migrations) and an in-memory one.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/migrations"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/checkpoints"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/reminders"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/retries"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Reminders(db dbx.DBTX) reminders.Repository {
	return reminders.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Retries(db dbx.DBTX) retries.Repository {
	return retries.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Checkpoints(db dbx.DBTX) checkpoints.Repository {
	return checkpoints.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
