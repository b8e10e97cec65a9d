// Package botd parses daemon flags and launches the bot maintenance runtime.
package botd

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/featherpost/featherpost/internal/platform/cmd"
	"github.com/featherpost/featherpost/internal/platform/timeouts"
	server "github.com/featherpost/featherpost/internal/services/bot/app"
)

// Config holds botd command configuration.
type Config struct {
	Port   int    `env:"FEATHERPOST_BOTD_PORT" envDefault:"8095"`
	DBPath string `env:"FEATHERPOST_BOT_DB_PATH" envDefault:"data/bot.db"`
	Holder string `env:"FEATHERPOST_BOTD_HOLDER"`

	LockTTL       time.Duration `env:"FEATHERPOST_BOTD_LOCK_TTL"`
	SweepInterval time.Duration `env:"FEATHERPOST_BOTD_SWEEP_INTERVAL"`
	WatchInterval time.Duration `env:"FEATHERPOST_BOTD_WATCH_INTERVAL"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = timeouts.RuntimeLockTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = timeouts.MaintenanceSweep
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = timeouts.ConfigWatch
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The bot daemon gRPC health port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the bot SQLite database")
	fs.StringVar(&cfg.Holder, "holder", cfg.Holder, "Runtime lock holder name (default: generated)")
	fs.DurationVar(&cfg.LockTTL, "lock-ttl", cfg.LockTTL, "Runtime lock lease duration")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Interval between maintenance passes")
	fs.DurationVar(&cfg.WatchInterval, "watch-interval", cfg.WatchInterval, "Interval between config version polls")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the bot maintenance daemon.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBotd, func(ctx context.Context) error {
		return server.Run(ctx, server.Options{
			Port:          cfg.Port,
			DBPath:        cfg.DBPath,
			Holder:        cfg.Holder,
			LockTTL:       cfg.LockTTL,
			SweepInterval: cfg.SweepInterval,
			WatchInterval: cfg.WatchInterval,
		})
	})
}
