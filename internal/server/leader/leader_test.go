package leader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic_LeadsUntilDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var led atomic.Bool
	done := make(chan struct{})
	go func() {
		_ = Static{}.Campaign(ctx, func(context.Context) { led.Store(true) })
		close(done)
	}()

	assert.Eventually(t, led.Load, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestPostgresElector_AcquiresAndReleases(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := NewPostgresElector(db, 42, 10*time.Millisecond, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	leading := make(chan struct{})
	stopped := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- e.Campaign(ctx, func(lctx context.Context) {
			close(leading)
			<-lctx.Done()
			close(stopped)
		})
	}()

	<-leading
	cancel()
	require.NoError(t, <-done)
	<-stopped
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresElector_WaitsWhileAnotherLeads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(false))
	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := NewPostgresElector(db, 7, 10*time.Millisecond, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var terms atomic.Int32
	done := make(chan error)
	go func() {
		done <- e.Campaign(ctx, func(lctx context.Context) {
			terms.Add(1)
			<-lctx.Done()
		})
	}()

	assert.Eventually(t, func() bool { return terms.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresElector_LosesLeadershipOnPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectPing().WillReturnError(errors.New("connection reset"))

	e := NewPostgresElector(db, 1, 10*time.Millisecond, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lost := make(chan struct{})
	go func() {
		_ = e.Campaign(ctx, func(lctx context.Context) {
			<-lctx.Done()
			select {
			case <-lost:
			default:
				close(lost)
			}
		})
	}()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("leader context was not canceled")
	}
}
