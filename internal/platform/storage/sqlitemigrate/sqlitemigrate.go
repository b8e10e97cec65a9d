// Package sqlitemigrate applies embedded, forward-only SQL migrations against
// a SQLite database, tracking applied scripts in a ledger table so every
// script runs at most once.
package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

const migrationTable = "schema_migrations"

const tracerName = "github.com/featherpost/featherpost/internal/platform/storage/sqlitemigrate"

// Option customizes migration application.
type Option func(*options)

type options struct {
	logf      func(format string, args ...any)
	onApplied func(name string)
}

// WithLogf emits one log line per applied script.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(o *options) {
		o.logf = logf
	}
}

// WithOnApplied registers a hook invoked after each script commits. Callers
// use it to invalidate schema-dependent caches, the way the original system
// nudged its REST gateway after DDL changes.
func WithOnApplied(hook func(name string)) Option {
	return func(o *options) {
		o.onApplied = hook
	}
}

// Apply executes embedded migrations from migrationRoot at most once per file.
//
// Scripts run in lexicographic filename order, each inside its own
// transaction together with its ledger row, so a failed script is rolled
// back, stays unrecorded, and a later run resumes at the failure point.
func Apply(ctx context.Context, sqlDB *sql.DB, migrationFS fs.FS, migrationRoot string, opts ...Option) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	root := strings.TrimSpace(migrationRoot)
	if root == "" {
		root = "."
	}
	readRoot := root
	migrationKeyRoot := root
	if migrationKeyRoot == "." {
		migrationKeyRoot = ""
	}

	entries, err := fs.ReadDir(migrationFS, readRoot)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var sqlFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlFiles = append(sqlFiles, entry.Name())
		}
	}
	sort.Strings(sqlFiles)

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, migrationTable)
	if _, err := sqlDB.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	tracer := otel.Tracer(tracerName)

	for _, file := range sqlFiles {
		filePath := file
		if migrationKeyRoot != "" {
			filePath = filepath.ToSlash(filepath.Join(migrationKeyRoot, file))
		}

		content, err := fs.ReadFile(migrationFS, filepath.Join(readRoot, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		applied, err := isApplied(ctx, sqlDB, filePath)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied {
			continue
		}

		upSQL := ExtractUp(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		spanCtx, span := tracer.Start(ctx, "sqlitemigrate.apply "+filePath)
		if err := applyOne(spanCtx, sqlDB, filePath, upSQL); err != nil {
			span.End()
			return err
		}
		span.End()

		if cfg.logf != nil {
			cfg.logf("applied migration %s", filePath)
		}
		if cfg.onApplied != nil {
			cfg.onApplied(filePath)
		}
	}

	return nil
}

func applyOne(ctx context.Context, sqlDB *sql.DB, name string, upSQL string) error {
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, upSQL); err != nil {
		if !IsAlreadyExistsError(err) {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
		name,
		time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	return nil
}

// AppliedCount reports how many ledger rows exist.
func AppliedCount(ctx context.Context, sqlDB *sql.DB) (int, error) {
	if sqlDB == nil {
		return 0, fmt.Errorf("sql db is required")
	}
	var count int
	row := sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+migrationTable)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count applied migrations: %w", err)
	}
	return count, nil
}

// ExtractUp returns the SQL in the -- +migrate Up section, or the whole
// content when no section markers are present.
func ExtractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// IsAlreadyExistsError reports whether this error indicates idempotent DDL
// success. Only these narrow cases are tolerated; any other failure
// propagates instead of being swallowed.
func IsAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

func isApplied(ctx context.Context, sqlDB *sql.DB, name string) (bool, error) {
	var found int
	row := sqlDB.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", name)
	err := row.Scan(&found)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
