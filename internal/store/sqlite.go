package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"

	appLog "github.com/lingtimeone/BAOYAN-Calendar/internal/log"
	"github.com/lingtimeone/BAOYAN-Calendar/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Row is one stored event with its surrogate id.
type Row struct {
	ID int64
	model.Event
}

// Store is the relational snapshot of the current event set.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	const op = "store.sqlite.Open"

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate brings the schema up to date. The first migration uses
// CREATE TABLE IF NOT EXISTS so databases written before migrations were
// tracked are adopted as-is.
func (s *Store) Migrate() error {
	const op = "store.sqlite.Migrate"

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	// m is not closed: that would close s.db as well.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			appLog.Debug("no migrations to apply")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	appLog.Info("migrations applied successfully")
	return nil
}

// ReplaceEvents deletes every stored event and inserts events in their
// place, in a single transaction. If anything fails the previous rows are
// kept. Missing fields are stored as empty strings, never NULL.
func (s *Store) ReplaceEvents(ctx context.Context, events []model.Event) (int, error) {
	const op = "store.sqlite.ReplaceEvents"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	// No-op after a successful Commit.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return 0, fmt.Errorf("%s: delete: %w", op, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO events(year,school,begin_time,end_time,description,url) VALUES(?,?,?,?,?,?)")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	for i, ev := range events {
		if _, err := stmt.ExecContext(ctx, ev.Year, ev.School, ev.Begin, ev.End, ev.Description, ev.URL); err != nil {
			return 0, fmt.Errorf("%s: insert #%d: %w", op, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}
	return len(events), nil
}

// Events returns all stored rows ordered by id.
func (s *Store) Events(ctx context.Context) ([]Row, error) {
	const op = "store.sqlite.Events"

	rows, err := s.db.QueryContext(ctx,
		"SELECT id,IFNULL(year,''),IFNULL(school,''),IFNULL(begin_time,''),IFNULL(end_time,''),IFNULL(description,''),IFNULL(url,'') FROM events ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Year, &r.School, &r.Begin, &r.End, &r.Description, &r.URL); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	const op = "store.sqlite.Count"

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// WriteSnapshot opens the database at path, ensures the schema and replaces
// its events. The connection is always closed before returning.
func WriteSnapshot(ctx context.Context, path string, events []model.Event) (n int, err error) {
	s, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := s.Migrate(); err != nil {
		return 0, err
	}

	n, err = s.ReplaceEvents(ctx, events)
	if err != nil {
		return 0, err
	}

	appLog.Info("database snapshot written", "path", path, "rows", n)
	return n, nil
}

// DriverCode extracts the SQLite result code from err, if there is one.
func DriverCode(err error) (sqlite3.ErrNoExtended, bool) {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode, true
	}
	return 0, false
}
