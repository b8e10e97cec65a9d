package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type testConfig struct {
	DBPath string `env:"CMD_TEST_DB_PATH" envDefault:"data/bot.db"`
	Port   int    `env:"CMD_TEST_PORT" envDefault:"8099"`
}

func TestParseConfigFromArgsReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_DB_PATH", "env/bot.db")
	t.Setenv("CMD_TEST_PORT", "9001")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "db path")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port")

	if err := ParseArgs(fs, []string{"-port", "9002"}); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	if cfg.DBPath != "env/bot.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
	if cfg.Port != 9002 {
		t.Fatalf("port = %d, want flag override", cfg.Port)
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected error for nil config target")
	}
}

func TestParseArgsRejectsNilFlagSet(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected error for nil flag set")
	}
}

func TestRunWithTelemetryRequiresService(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "  ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestRunWithTelemetryRequiresRun(t *testing.T) {
	if err := RunWithTelemetry(context.Background(), ServiceMigrate, nil); err == nil {
		t.Fatal("expected error for nil run function")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	want := errors.New("run failed")
	err := RunWithTelemetry(context.Background(), ServiceBotd, func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
