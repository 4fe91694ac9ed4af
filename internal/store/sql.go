package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"             // pure-Go SQLite driver (no CGO required)
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// migration is one schema version. Statements run one by one so both
// drivers accept them.
type migration struct {
	version    int
	statements map[dialect][]string
}

var migrations = []migration{
	{
		version: 1,
		statements: map[dialect][]string{
			dialectSQLite: {
				`CREATE TABLE IF NOT EXISTS tide_records (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    station_id   TEXT NOT NULL,
    station_name TEXT NOT NULL DEFAULT '',
    height       REAL NOT NULL,
    status       TEXT NOT NULL,
    extremes     TEXT NOT NULL DEFAULT '{}',
    timestamp    INTEGER NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_tide_records_key ON tide_records(station_id, timestamp DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_tide_records_timestamp ON tide_records(timestamp)`,
				`CREATE TABLE IF NOT EXISTS weather_records (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    location_key  TEXT NOT NULL,
    latitude      REAL NOT NULL,
    longitude     REAL NOT NULL,
    wind_speed    REAL NOT NULL,
    precipitation REAL NOT NULL,
    providers     TEXT NOT NULL DEFAULT '[]',
    timestamp     INTEGER NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_weather_records_key ON weather_records(location_key, timestamp DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_weather_records_timestamp ON weather_records(timestamp)`,
			},
			dialectPostgres: {
				`CREATE TABLE IF NOT EXISTS tide_records (
    id           BIGSERIAL PRIMARY KEY,
    station_id   TEXT NOT NULL,
    station_name TEXT NOT NULL DEFAULT '',
    height       DOUBLE PRECISION NOT NULL,
    status       TEXT NOT NULL,
    extremes     TEXT NOT NULL DEFAULT '{}',
    timestamp    BIGINT NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_tide_records_key ON tide_records(station_id, timestamp DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_tide_records_timestamp ON tide_records(timestamp)`,
				`CREATE TABLE IF NOT EXISTS weather_records (
    id            BIGSERIAL PRIMARY KEY,
    location_key  TEXT NOT NULL,
    latitude      DOUBLE PRECISION NOT NULL,
    longitude     DOUBLE PRECISION NOT NULL,
    wind_speed    DOUBLE PRECISION NOT NULL,
    precipitation DOUBLE PRECISION NOT NULL,
    providers     TEXT NOT NULL DEFAULT '[]',
    timestamp     BIGINT NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_weather_records_key ON weather_records(location_key, timestamp DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_weather_records_timestamp ON weather_records(timestamp)`,
			},
		},
	},
}

// DB is a SQL-backed record store shared by the tide and weather caches.
type DB struct {
	db         *sql.DB
	dialect    dialect
	maxHistory int
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// applies pending migrations.
func OpenSQLite(ctx context.Context, path string, maxHistory int) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// SQLite allows a single writer; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	return open(ctx, db, dialectSQLite, maxHistory)
}

// OpenPostgres connects to the Postgres database at dsn through pgx and
// applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string, maxHistory int) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return open(ctx, db, dialectPostgres, maxHistory)
}

func open(ctx context.Context, db *sql.DB, d dialect, maxHistory int) (*DB, error) {
	s := &DB{db: db, dialect: d, maxHistory: maxHistory}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", d, err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *DB) migrate(ctx context.Context) error {
	versions := `CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
	if s.dialect == dialectPostgres {
		versions = `CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	}
	if _, err := s.db.ExecContext(ctx, versions); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`), m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.statements[s.dialect] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO schema_versions(version) VALUES(?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Driver reports the SQL dialect in use.
func (s *DB) Driver() string { return s.dialect.String() }

// Ping checks the database connection.
func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying connection pool.
func (s *DB) Close() error { return s.db.Close() }

// rebind rewrites ? placeholders to $n for Postgres.
func (s *DB) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
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
