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

// MemoryRepositoryManager ignores the DBTX handle and always returns the same
// process-local repositories. Transactions opened by services commit and
// roll back nothing.
type MemoryRepositoryManager struct {
	users       *users.MemoryRepository
	reminders   *reminders.MemoryRepository
	retries     *retries.MemoryRepository
	checkpoints *checkpoints.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:       users.NewMemoryRepository(),
		reminders:   reminders.NewMemoryRepository(),
		retries:     retries.NewMemoryRepository(),
		checkpoints: checkpoints.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.users }

func (m *MemoryRepositoryManager) Reminders(dbx.DBTX) reminders.Repository { return m.reminders }

func (m *MemoryRepositoryManager) Retries(dbx.DBTX) retries.Repository { return m.retries }

func (m *MemoryRepositoryManager) Checkpoints(dbx.DBTX) checkpoints.Repository { return m.checkpoints }
