package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/featherpost/featherpost/internal/services/bot/storage"
)

// GetConfig returns one versioned configuration document.
func (s *Store) GetConfig(ctx context.Context, domain string) (storage.ConfigRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConfigRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConfigRecord{}, fmt.Errorf("storage is not configured")
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return storage.ConfigRecord{}, fmt.Errorf("config domain is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT domain, value, version, updated_at
FROM bot_config
WHERE domain = ?
`, domain)
	var (
		record    storage.ConfigRecord
		updatedAt int64
	)
	if err := row.Scan(&record.Domain, &record.Value, &record.Version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ConfigRecord{}, storage.ErrNotFound
		}
		return storage.ConfigRecord{}, fmt.Errorf("get config: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutConfig upserts one configuration document, bumping its version so
// watchers can detect the change.
func (s *Store) PutConfig(ctx context.Context, domain string, value string) (storage.ConfigRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ConfigRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ConfigRecord{}, fmt.Errorf("storage is not configured")
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return storage.ConfigRecord{}, fmt.Errorf("config domain is required")
	}
	if strings.TrimSpace(value) == "" {
		return storage.ConfigRecord{}, fmt.Errorf("config value is required")
	}

	now := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bot_config (domain, value, version, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (domain) DO UPDATE SET
	value = excluded.value,
	version = bot_config.version + 1,
	updated_at = excluded.updated_at
`, domain, value, toMillis(now))
	if err != nil {
		return storage.ConfigRecord{}, fmt.Errorf("put config: %w", err)
	}
	return s.GetConfig(ctx, domain)
}

// ListConfigVersions returns the current version per domain for change polling.
func (s *Store) ListConfigVersions(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, "SELECT domain, version FROM bot_config")
	if err != nil {
		return nil, fmt.Errorf("list config versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		var (
			domain  string
			version int64
		)
		if err := rows.Scan(&domain, &version); err != nil {
			return nil, fmt.Errorf("scan config version: %w", err)
		}
		versions[domain] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config versions: %w", err)
	}
	return versions, nil
}
