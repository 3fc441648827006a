package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/checkpoints"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/reminders"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/retries"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX so services can run
// the same code on *sql.DB or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Reminders(db dbx.DBTX) reminders.Repository
	Retries(db dbx.DBTX) retries.Repository
	Checkpoints(db dbx.DBTX) checkpoints.Repository
}
