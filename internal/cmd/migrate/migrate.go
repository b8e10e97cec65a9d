// Package migrate parses migrate flags and runs the schema upgrade.
package migrate

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"strings"

	entrypoint "github.com/featherpost/featherpost/internal/platform/cmd"
	"github.com/featherpost/featherpost/internal/platform/storage/sqlitemigrate"
	botsqlite "github.com/featherpost/featherpost/internal/services/bot/storage/sqlite"
	"github.com/featherpost/featherpost/internal/services/bot/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Config holds migrate command configuration.
type Config struct {
	DBPath     string `env:"FEATHERPOST_BOT_DB_PATH" envDefault:"data/bot.db"`
	VerifyOnly bool
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the bot SQLite database")
	fs.BoolVar(&cfg.VerifyOnly, "verify-only", false, "Verify the schema without applying scripts")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run applies the embedded migration scripts and verifies the resulting
// schema against the storage contract.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMigrate, func(ctx context.Context) error {
		return runMigrations(ctx, cfg)
	})
}

func runMigrations(ctx context.Context, cfg Config) error {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("database path is required")
	}

	sqlDB, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer sqlDB.Close()

	if !cfg.VerifyOnly {
		err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, migrations.Root,
			sqlitemigrate.WithLogf(log.Printf),
		)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	if err := sqlitemigrate.Verify(ctx, sqlDB, botsqlite.SchemaRequirements()); err != nil {
		return fmt.Errorf("verify schema: %w", err)
	}

	applied, err := sqlitemigrate.AppliedCount(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("count applied migrations: %w", err)
	}
	log.Printf("schema converged at %d applied scripts", applied)
	return nil
}
