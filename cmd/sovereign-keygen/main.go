// Package main generates and registers sovereign credentials.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/outpost-fi/sovereign/internal/platform/config"
	"github.com/outpost-fi/sovereign/internal/tools/keygen"
)

func main() {
	cfg, err := keygen.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := keygen.Run(ctx, cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate credential: %v", err)
	}
}
