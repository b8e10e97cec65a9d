// Package seed parses seed flags and populates default configuration.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	entrypoint "github.com/featherpost/featherpost/internal/platform/cmd"
	"github.com/featherpost/featherpost/internal/services/bot/domain/botconfig"
	"github.com/featherpost/featherpost/internal/services/bot/storage"
	botsqlite "github.com/featherpost/featherpost/internal/services/bot/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath string `env:"FEATHERPOST_BOT_DB_PATH" envDefault:"data/bot.db"`
	List   bool
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the bot SQLite database")
	fs.BoolVar(&cfg.List, "list", false, "List configuration domains without writing")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds bot_config defaults for every missing domain. Domains that
// already have a document are left untouched.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		if cfg.List {
			fmt.Fprintln(out, "Configuration domains:")
			for _, domain := range botconfig.Domains() {
				fmt.Fprintf(out, "  %s\n", domain)
			}
			return nil
		}

		store, err := botsqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		return SeedDefaults(ctx, store, out)
	})
}

// SeedDefaults writes the default document for each domain missing from the
// config store.
func SeedDefaults(ctx context.Context, store storage.ConfigStore, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	for _, domain := range botconfig.Domains() {
		_, err := store.GetConfig(ctx, string(domain))
		if err == nil {
			fmt.Fprintf(out, "%s: present, skipped\n", domain)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("check %s config: %w", domain, err)
		}

		value, err := botconfig.DefaultValue(domain)
		if err != nil {
			return fmt.Errorf("default %s config: %w", domain, err)
		}
		record, err := store.PutConfig(ctx, string(domain), value)
		if err != nil {
			return fmt.Errorf("seed %s config: %w", domain, err)
		}
		fmt.Fprintf(out, "%s: seeded at version %d\n", domain, record.Version)
	}
	return nil
}
