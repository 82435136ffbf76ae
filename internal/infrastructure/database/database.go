package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// openVerifyTimeout bounds the ping that confirms the file is a
	// usable database before Open returns.
	openVerifyTimeout = 5 * time.Second
)

// Config is the database section of config.yaml.
type Config struct {
	// Path to the SQLite file. The parent directory is created on
	// first run.
	Path string

	// WALMode turns on write-ahead logging. The registry cache reads
	// while the sync engine writes, so this should stay on outside of
	// debugging.
	WALMode bool

	// BusyTimeout in seconds. SQLite waits this long for a lock
	// instead of returning SQLITE_BUSY immediately.
	BusyTimeout int
}

// dsn builds the go-sqlite3 connection string. Foreign keys are always
// enforced: devices, audit entries, and user grants reference each
// other and silent orphans would corrupt the audit trail's meaning.
func (cfg Config) dsn() string {
	s := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		s += "&_journal_mode=WAL&_synchronous=NORMAL"
	}
	return s
}

// DB is the shared SQLite handle. The embedded *sql.DB is used directly
// by the device, audit, and access repositories; this wrapper adds
// migrations, health checks, and lifecycle management.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the SQLite database and verifies
// it responds. The pool is pinned to a single connection: SQLite allows
// one writer, and funnelling everything through one connection avoids
// lock contention between the repositories entirely.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), openVerifyTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // already on the error path
		return nil, fmt.Errorf("verifying database: %w", err)
	}

	// The file holds audit history and user grants; keep it owner-only.
	// Chmod can fail before the first write creates the file, which is fine.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck

	return &DB{DB: sqlDB}, nil
}

// Close releases the connection. Safe on a zero-value DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck confirms the database answers a trivial query. Wired into
// the startup health pass alongside the broker and telemetry checks.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}
