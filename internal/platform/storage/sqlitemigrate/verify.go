package sqlitemigrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Requirements lists the tables and per-table columns a migrated database
// must contain. Verify replaces ad-hoc post-migration verification scripts
// with a single hard check.
type Requirements struct {
	Tables map[string][]string
}

// Verify checks that every required table and column exists. The first
// missing object fails the check with an error naming it.
func Verify(ctx context.Context, sqlDB *sql.DB, reqs Requirements) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}

	tables := make([]string, 0, len(reqs.Tables))
	for table := range reqs.Tables {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		exists, err := tableExists(ctx, sqlDB, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s is missing", table)
		}

		columns, err := tableColumns(ctx, sqlDB, table)
		if err != nil {
			return fmt.Errorf("read columns for %s: %w", table, err)
		}
		for _, column := range reqs.Tables[table] {
			if !columns[column] {
				return fmt.Errorf("required column %s.%s is missing", table, column)
			}
		}
	}
	return nil
}

func tableExists(ctx context.Context, sqlDB *sql.DB, table string) (bool, error) {
	var name string
	row := sqlDB.QueryRowContext(
		ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		table,
	)
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func tableColumns(ctx context.Context, sqlDB *sql.DB, table string) (map[string]bool, error) {
	rows, err := sqlDB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
