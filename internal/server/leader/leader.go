// Package leader decides which replica runs the background loops
// (scheduler, subscription, retry worker, auditor).
package leader

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
)

// Elector runs lead while this process holds leadership. The context passed
// to lead is canceled when leadership is lost; Campaign returns when ctx
// ends.
type Elector interface {
	Campaign(ctx context.Context, lead func(ctx context.Context)) error
}

// Static always leads. Used with the memory backend, where only one
// process can exist.
type Static struct{}

func (Static) Campaign(ctx context.Context, lead func(ctx context.Context)) error {
	lead(ctx)
	<-ctx.Done()
	return nil
}

// PostgresElector holds a session-level advisory lock on a dedicated
// connection. Losing the connection loses the lock.
type PostgresElector struct {
	db       *sql.DB
	key      int64
	interval time.Duration
	log      logging.Logger
}

func NewPostgresElector(db *sql.DB, key int64, interval time.Duration, log logging.Logger) *PostgresElector {
	return &PostgresElector{db: db, key: key, interval: interval, log: log.With("module", "leader")}
}

func (e *PostgresElector) Campaign(ctx context.Context, lead func(ctx context.Context)) error {
	for {
		held, err := e.term(ctx, lead)
		if err != nil {
			e.log.Warn(ctx, "leader election attempt failed", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if held {
			e.log.Warn(ctx, "leadership lost")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.interval):
		}
	}
}

// term tries the lock once and, when it is acquired, leads until ctx ends or
// the connection fails. held reports whether the lock was ever acquired.
func (e *PostgresElector) term(ctx context.Context, lead func(ctx context.Context)) (held bool, err error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	defer conn.Close()

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, e.key).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if !ok {
		return false, nil
	}
	e.log.Info(ctx, "leadership acquired", "lock_key", e.key)

	leaderCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lead(leaderCtx)
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for err == nil {
		select {
		case <-ctx.Done():
			cancel()
			wg.Wait()
			e.unlock(conn)
			return true, nil
		case <-ticker.C:
			if perr := conn.PingContext(ctx); perr != nil {
				err = fmt.Errorf("leader connection lost: %w", perr)
			}
		}
	}
	cancel()
	wg.Wait()
	return true, err
}

func (e *PostgresElector) unlock(conn *sql.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, e.key); err != nil {
		e.log.Warn(ctx, "advisory unlock failed", "error", err)
	}
}
