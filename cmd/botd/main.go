// Package main starts the bot maintenance daemon process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	botdcmd "github.com/featherpost/featherpost/internal/cmd/botd"
)

func main() {
	cfg, err := botdcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[BOTD] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := botdcmd.Run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
