// Package sqlite provides the SQLite-backed bot storage implementation.
//
// One database file holds the whole pipeline contract: posts, engagement
// snapshots, the scheduling queue, typed configuration, learning records,
// budget ledgers, and runtime leases. Open applies the embedded migration
// sequence before returning, so a store handle always sees the converged
// schema.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/featherpost/featherpost/internal/platform/storage/sqlitemigrate"
	"github.com/featherpost/featherpost/internal/services/bot/storage"
	"github.com/featherpost/featherpost/internal/services/bot/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists bot pipeline state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// toNullMillis maps optional domain times to sql.NullInt64 for nullable DB columns.
func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

// fromNullMillis maps nullable SQL timestamps back into optional domain time values.
func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func toNullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// Open opens the bot SQLite store and applies embedded migrations.
func Open(path string, opts ...sqlitemigrate.Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, migrations.Root, opts...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// DB exposes the underlying handle for verification tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// SchemaRequirements lists the tables and columns the external contract
// depends on; cmd/migrate verifies them after applying the sequence.
func SchemaRequirements() sqlitemigrate.Requirements {
	return sqlitemigrate.Requirements{Tables: map[string][]string{
		"posts": {
			"id", "content", "format", "model", "confidence", "quality_score",
			"likes_count", "retweets_count", "replies_count", "impressions_count",
			"topic", "hook_pattern", "generator", "followers_gained", "engagement_rate",
			"posted_at", "deleted_at", "created_at", "updated_at",
		},
		"post_metrics": {
			"post_id", "likes_count", "retweets_count", "replies_count",
			"impressions_count", "collected_at",
		},
		"bot_config":      {"domain", "value", "version", "updated_at"},
		"scheduled_posts": {"id", "content", "scheduled_for", "status", "claimed_by", "lease_expires_at", "posted_post_id"},
		"decision_outcomes": {
			"id", "decision_type", "arm", "predicted_score", "actual_score",
			"correct", "decided_at", "measured_at",
		},
		"bandit_arms":          {"arm", "scope", "pulls", "successes", "reward_sum"},
		"learning_cycles":      {"id", "started_at", "finished_at", "posts_analyzed", "adjustments"},
		"monthly_budget_state": {"month", "posts_used", "posts_limit", "spent_usd", "limit_usd", "reset_at"},
		"daily_budget_status":  {"date", "limit_usd", "spent_usd", "remaining_usd", "calls_made"},
		"budget_transactions":  {"occurred_at", "day", "model", "tokens", "cost_usd", "purpose"},
		"runtime_locks":        {"name", "holder", "fencing_token", "locked_until"},
	}}
}

var (
	_ storage.PostStore     = (*Store)(nil)
	_ storage.MetricsStore  = (*Store)(nil)
	_ storage.ScheduleStore = (*Store)(nil)
	_ storage.ConfigStore   = (*Store)(nil)
	_ storage.LearningStore = (*Store)(nil)
	_ storage.BudgetStore   = (*Store)(nil)
	_ storage.LockStore     = (*Store)(nil)
)
