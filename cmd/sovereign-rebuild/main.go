// Package main rebuilds the relationship-graph mirror from the journal.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/outpost-fi/sovereign/internal/platform/config"
	"github.com/outpost-fi/sovereign/internal/tools/rebuild"
)

func main() {
	cfg, err := rebuild.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rebuild.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("rebuild graph: %v", err)
	}
}
