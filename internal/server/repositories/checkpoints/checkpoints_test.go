package checkpoints

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_GetAndSave(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	at := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT swept_until FROM audit_checkpoints WHERE name = \$1`).
		WithArgs("incremental").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO audit_checkpoints .* ON CONFLICT \(name\) DO UPDATE`).
		WithArgs("incremental", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = repo.Get(context.Background(), "incremental")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, repo.Save(context.Background(), &models.AuditCheckpoint{Name: "incremental", SweptUntil: at}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemory_RoundTrip(t *testing.T) {
	m := NewMemoryRepository()
	at := time.Now()

	_, err := m.Get(context.Background(), "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, m.Save(context.Background(), &models.AuditCheckpoint{Name: "x", SweptUntil: at}))
	cp, err := m.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, at.Equal(cp.SweptUntil))
}
