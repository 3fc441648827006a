// Package checkpoints stores incremental reconciliation progress.
package checkpoints

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, name string) (*models.AuditCheckpoint, error)
	Save(ctx context.Context, cp *models.AuditCheckpoint) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, name string) (*models.AuditCheckpoint, error) {
	cp := &models.AuditCheckpoint{Name: name}
	err := r.db.QueryRowContext(ctx, `SELECT swept_until FROM audit_checkpoints WHERE name = $1`, name).Scan(&cp.SweptUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapErr(err)
	}
	return cp, nil
}

func (r *PostgresRepository) Save(ctx context.Context, cp *models.AuditCheckpoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_checkpoints (name, swept_until) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET swept_until = EXCLUDED.swept_until
	`, cp.Name, cp.SweptUntil)
	if err != nil {
		return dbx.WrapErr(err)
	}
	return nil
}

type MemoryRepository struct {
	mu  sync.Mutex
	cps map[string]time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{cps: make(map[string]time.Time)}
}

func (m *MemoryRepository) Get(ctx context.Context, name string) (*models.AuditCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.cps[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.AuditCheckpoint{Name: name, SweptUntil: t}, nil
}

func (m *MemoryRepository) Save(ctx context.Context, cp *models.AuditCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.Name] = cp.SweptUntil
	return nil
}
