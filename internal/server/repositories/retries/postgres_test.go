package retries

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

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestEnqueue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	next := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO sync_retries`).
		WithArgs("q1", "outbound", "upsert", "r1", "u1", "", []byte(nil), 0, 8, next, "boom", "pending", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Enqueue(context.Background(), &models.SyncRetry{
		ID: "q1", Direction: models.DirectionOutbound, Op: models.OpUpsert, RecordID: "r1", UserID: "u1",
		MaxAttempts: 8, NextAttemptAt: next, LastError: "boom", Status: models.RetryPending, CorrelationID: "c1",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	cols := []string{"id", "direction", "op", "record_id", "user_id", "external_id", "payload", "attempts",
		"max_attempts", "next_attempt_at", "last_error", "status", "correlation_id", "created_at"}
	mock.ExpectQuery(`FROM sync_retries\s+WHERE status = 'pending' AND next_attempt_at <= \$1`).
		WithArgs(now, 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("q1", "inbound", "upsert", "", "u1", "m-1", []byte(`{}`), 2, 8, now, "x", "pending", "c1", now))

	got, err := repo.Due(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.DirectionInbound, got[0].Direction)
	assert.Equal(t, 2, got[0].Attempts)
}

func TestMarkDone_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE sync_retries SET status = 'done' WHERE id = \$1`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.MarkDone(context.Background(), "nope"), common.ErrorNotFound)
}

func TestMemory_DueOrderingAndTransitions(t *testing.T) {
	m := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.Enqueue(ctx, &models.SyncRetry{ID: "late", Status: models.RetryPending, NextAttemptAt: now.Add(time.Hour)}))
	require.NoError(t, m.Enqueue(ctx, &models.SyncRetry{ID: "b", Status: models.RetryPending, NextAttemptAt: now.Add(-time.Second)}))
	require.NoError(t, m.Enqueue(ctx, &models.SyncRetry{ID: "a", Status: models.RetryPending, NextAttemptAt: now.Add(-time.Minute)}))

	due, err := m.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)

	require.NoError(t, m.MarkDone(ctx, "a"))
	require.NoError(t, m.MarkDead(ctx, "b", 8, "gave up"))

	due, err = m.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	dead, err := m.ListByStatus(ctx, models.RetryDead)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "gave up", dead[0].LastError)
}
