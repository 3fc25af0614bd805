// Package sqlrows implements guard.RowStore on database/sql for SQLite
// (modernc.org/sqlite) and Postgres (pgx stdlib). Every mutation is a single
// conditional statement; no transaction spans more than one call.
package sqlrows

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/goliatone/go-settings/pkg/guard"
)

// Dialect selects placeholder style and DDL types.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

const (
	DefaultTable     = "settings_rows"
	defaultSQLiteDSN = "settings.db"
	defaultPGDSN     = "postgres://localhost/settings?sslmode=disable"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Config opens a store.
type Config struct {
	Dialect Dialect
	DSN     string
	Table   string
}

// Store is a guard.RowStore backed by one SQL table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	now     func() time.Time
	owned   bool
}

var _ guard.RowStore = (*Store)(nil)

// Open connects using cfg and ensures the table exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Dialect {
	case SQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
				return nil, fmt.Errorf("sqlrows: create dirs: %w", err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlrows: open sqlite: %w", err)
		}
		// one writer connection keeps conditional updates serialised and lets
		// :memory: databases survive between calls
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlrows: busy timeout: %w", err)
		}
	case Postgres:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultPGDSN
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlrows: open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlrows: ping postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("sqlrows: unsupported dialect %q", cfg.Dialect)
	}

	store, err := New(ctx, db, cfg.Dialect, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// New wraps an existing connection pool and ensures the table exists.
func New(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlrows: db is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sqlrows: invalid table name %q", table)
	}
	s := &Store{db: db, dialect: dialect, table: table, now: time.Now}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the pool when Open created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying pool for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ensureTable(ctx context.Context) error {
	blob := "BLOB"
	if s.dialect == Postgres {
		blob = "BYTEA"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload %s NOT NULL,
		version BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, s.table, blob)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlrows: ensure table: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (guard.Row, bool, error) {
	query := s.rebind(fmt.Sprintf(`SELECT id, payload, version, updated_at FROM %s WHERE id = ?`, s.table))
	row, err := scanRow(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return guard.Row{}, false, nil
	}
	if err != nil {
		return guard.Row{}, false, fmt.Errorf("sqlrows: load %q: %w", id, err)
	}
	return row, true, nil
}

func (s *Store) List(ctx context.Context) ([]guard.Row, error) {
	order := "id"
	if s.dialect == Postgres {
		order = `id COLLATE "C"`
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, payload, version, updated_at FROM %s ORDER BY %s`, s.table, order))
	if err != nil {
		return nil, fmt.Errorf("sqlrows: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []guard.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlrows: scan: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlrows: list: %w", err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, id string, payload []byte) (guard.Row, bool, error) {
	now := s.now().UTC()
	query := s.rebind(fmt.Sprintf(
		`INSERT INTO %s (id, payload, version, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		s.table,
	))
	res, err := s.db.ExecContext(ctx, query, id, payload, guard.InitialVersion, now.UnixNano())
	if err != nil {
		return guard.Row{}, false, fmt.Errorf("sqlrows: insert %q: %w", id, err)
	}
	if ok, err := affectedOne(res); err != nil || !ok {
		return guard.Row{}, false, err
	}
	return guard.Row{ID: id, Payload: payload, Version: guard.InitialVersion, UpdatedAt: now}, true, nil
}

func (s *Store) Swap(ctx context.Context, id string, expected int64, payload []byte) (guard.Row, bool, error) {
	now := s.now().UTC()
	query := s.rebind(fmt.Sprintf(
		`UPDATE %s SET payload = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		s.table,
	))
	res, err := s.db.ExecContext(ctx, query, payload, now.UnixNano(), id, expected)
	if err != nil {
		return guard.Row{}, false, fmt.Errorf("sqlrows: swap %q: %w", id, err)
	}
	if ok, err := affectedOne(res); err != nil || !ok {
		return guard.Row{}, false, err
	}
	return guard.Row{ID: id, Payload: payload, Version: expected + 1, UpdatedAt: now}, true, nil
}

func (s *Store) Remove(ctx context.Context, id string, expected int64) (bool, error) {
	query := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND version = ?`, s.table))
	res, err := s.db.ExecContext(ctx, query, id, expected)
	if err != nil {
		return false, fmt.Errorf("sqlrows: remove %q: %w", id, err)
	}
	return affectedOne(res)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (guard.Row, error) {
	var (
		row     guard.Row
		updated int64
	)
	if err := sc.Scan(&row.ID, &row.Payload, &row.Version, &updated); err != nil {
		return guard.Row{}, err
	}
	row.UpdatedAt = time.Unix(0, updated).UTC()
	return row, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlrows: rows affected: %w", err)
	}
	return n == 1, nil
}
