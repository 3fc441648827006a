package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/dbx"
	"github.com/dmitrijs2005/remindsync/internal/server/mirror/migrations"
	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const storeName = "mirror"

// Store is the SQLite-backed mirror.
type Store struct {
	db  *sql.DB
	clk clock.Clock

	mu       sync.Mutex
	watchers map[int]chan Change
	nextID   int
}

// Open opens (and migrates) the mirror database at dsn.
func Open(ctx context.Context, dsn string, clk clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// single writer; also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mirror migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mirror migrations: %w", err)
	}

	return &Store{db: db, clk: clk, watchers: make(map[int]chan Change)}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// classify marks lock contention and lost connections as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if dbx.IsConnError(err) || strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return common.Transient(storeName, err)
	}
	return err
}

// Create stores a new document under a freshly issued externalId.
func (s *Store) Create(ctx context.Context, doc *Document, origin string) (string, error) {
	d := *doc
	d.ExternalID = uuid.NewString()
	if err := s.write(ctx, &d, origin); err != nil {
		return "", err
	}
	return d.ExternalID, nil
}

// Upsert writes doc keyed by its externalId.
func (s *Store) Upsert(ctx context.Context, doc *Document, origin string) error {
	if doc.ExternalID == "" {
		return common.NewValidationError("externalId", "required")
	}
	d := *doc
	return s.write(ctx, &d, origin)
}

func (s *Store) write(ctx context.Context, d *Document, origin string) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = s.clk.Now().UTC()
	}
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}

	var ch Change
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		kind := KindModify
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE external_id = ?`, d.ExternalID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			kind = KindAdd
		} else if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (external_id, user_id, body, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				user_id = excluded.user_id, body = excluded.body, updated_at = excluded.updated_at
		`, d.ExternalID, d.UserID, string(body), d.UpdatedAt.UnixNano()); err != nil {
			return err
		}

		ch, err = appendChange(ctx, tx, s.clk.Now().UTC(), kind, origin, d.ExternalID, d.UserID, d)
		return err
	})
	if err != nil {
		return classify(fmt.Errorf("mirror write %s: %w", d.ExternalID, err))
	}
	s.publish(ch)
	return nil
}

func appendChange(ctx context.Context, tx dbx.DBTX, at time.Time, kind, origin, externalID, userID string, d *Document) (Change, error) {
	var body sql.NullString
	if d != nil {
		b, err := json.Marshal(d)
		if err != nil {
			return Change{}, err
		}
		body = sql.NullString{String: string(b), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO changes (external_id, user_id, kind, origin, body, at) VALUES (?, ?, ?, ?, ?, ?)
	`, externalID, userID, kind, origin, body, at.UnixNano())
	if err != nil {
		return Change{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Change{}, err
	}
	return Change{Seq: seq, Kind: kind, Origin: origin, ExternalID: externalID, UserID: userID, Doc: d, At: at}, nil
}

// Delete removes the document. Deleting a missing document is not an error;
// existed reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, externalID, origin string) (existed bool, err error) {
	var ch Change
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var userID string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM documents WHERE external_id = ?`, externalID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE external_id = ?`, externalID); err != nil {
			return err
		}
		existed = true
		ch, err = appendChange(ctx, tx, s.clk.Now().UTC(), KindRemove, origin, externalID, userID, nil)
		return err
	})
	if err != nil {
		return false, classify(fmt.Errorf("mirror delete %s: %w", externalID, err))
	}
	if existed {
		s.publish(ch)
	}
	return existed, nil
}

func (s *Store) Get(ctx context.Context, externalID string) (*Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE external_id = ?`, externalID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("db error: %w", err))
	}
	var d Document
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) List(ctx context.Context) ([]*Document, error) {
	return s.listWhere(ctx, `ORDER BY external_id`)
}

func (s *Store) ListUpdatedSince(ctx context.Context, since time.Time) ([]*Document, error) {
	return s.listWhere(ctx, `WHERE updated_at >= ? ORDER BY updated_at`, since.UnixNano())
}

func (s *Store) listWhere(ctx context.Context, where string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM documents `+where, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("db error: %w", err))
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var d Document
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Changes returns up to limit changelog entries after seq, oldest first.
func (s *Store) Changes(ctx context.Context, after int64, limit int) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, external_id, user_id, kind, origin, body, at
		FROM changes WHERE seq > ? ORDER BY seq LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("db error: %w", err))
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c    Change
			body sql.NullString
			at   int64
		)
		if err := rows.Scan(&c.Seq, &c.ExternalID, &c.UserID, &c.Kind, &c.Origin, &body, &at); err != nil {
			return nil, err
		}
		c.At = time.Unix(0, at).UTC()
		if body.Valid {
			var d Document
			if err := json.Unmarshal([]byte(body.String), &d); err != nil {
				return nil, err
			}
			c.Doc = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Cursor returns the last processed seq of the named consumer, 0 if unknown.
func (s *Store) Cursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM cursors WHERE name = ?`, name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(fmt.Errorf("db error: %w", err))
	}
	return seq, nil
}

func (s *Store) SaveCursor(ctx context.Context, name string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (name, seq) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET seq = excluded.seq
	`, name, seq)
	if err != nil {
		return classify(fmt.Errorf("db error: %w", err))
	}
	return nil
}

// Watch registers an in-process listener for committed changes. Slow
// listeners lose changes rather than block writers. The returned func
// unregisters it.
func (s *Store) Watch(buffer int) (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Change, buffer)
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.watchers[id]; ok {
			close(c)
			delete(s.watchers, id)
		}
	}
}

func (s *Store) publish(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}
