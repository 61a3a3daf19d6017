// Package server wires the sovereign core runtime: durable storage, the
// challenge verifier, the ledger, the graph projection worker, the HTTP API,
// and a gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	httpapi "github.com/outpost-fi/sovereign/internal/api/http"
	"github.com/outpost-fi/sovereign/internal/challenge"
	"github.com/outpost-fi/sovereign/internal/graph"
	"github.com/outpost-fi/sovereign/internal/ledger"
	"github.com/outpost-fi/sovereign/internal/platform/timeouts"
	"github.com/outpost-fi/sovereign/internal/storage/sqlite"
)

// RuntimeConfig controls runtime startup and background loop behavior.
type RuntimeConfig struct {
	HTTPAddr      string
	HealthPort    int
	DBPath        string
	ChallengeTTL  time.Duration
	QueueSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	SweepInterval time.Duration
}

const (
	defaultHTTPAddr      = ":8080"
	defaultHealthPort    = 8081
	defaultDBPath        = "data/sovereign.db"
	defaultSweepInterval = time.Minute
)

// Run starts the runtime and blocks until the context ends or a listener
// fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultHealthPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close sqlite store: %v", closeErr)
		}
	}()

	verifier := challenge.NewVerifier(store).WithTTL(cfg.ChallengeTTL)
	ledgerService := ledger.New(store, verifier)
	projector := graph.NewProjector(store, ledgerService)
	worker := graph.NewWorker(projector, graph.WorkerConfig{
		QueueSize:     cfg.QueueSize,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	})
	ledgerService.OnCommit(worker.Enqueue)
	ledgerService.OnAccountCommit(worker.EnqueueAccount)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("projection worker stopped: %v", err)
		}
	}()

	go runIntegritySweep(runCtx, projector, cfg.SweepInterval)

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	defer healthListener.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("sovereign.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	grpcErr := make(chan error, 1)
	go func() {
		grpcErr <- grpcServer.Serve(healthListener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-grpcErr
	}()

	api := httpapi.NewServer(verifier, ledgerService, projector)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	httpErr := make(chan error, 1)
	go func() {
		log.Printf("http server listening at %s", cfg.HTTPAddr)
		httpErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
		<-httpErr
		cancel()
		<-workerDone
		return runCtx.Err()
	case err := <-httpErr:
		cancel()
		<-workerDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// runIntegritySweep periodically reconciles the ledger against the graph
// mirror. Variance is logged inside VerifyIntegrity; the sweep never
// repairs.
func runIntegritySweep(ctx context.Context, projector *graph.Projector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := projector.VerifyIntegrity(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("integrity sweep failed: %v", err)
			}
		}
	}
}
