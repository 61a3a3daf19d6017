// Package sovereign parses sovereign command flags and launches the runtime.
package sovereign

import (
	"context"
	"flag"
	"time"

	"github.com/outpost-fi/sovereign/internal/app/server"
	entrypoint "github.com/outpost-fi/sovereign/internal/platform/cmd"
)

// Config holds sovereign command configuration.
type Config struct {
	HTTPAddr      string        `env:"SOVEREIGN_HTTP_ADDR" envDefault:":8080"`
	HealthPort    int           `env:"SOVEREIGN_HEALTH_PORT" envDefault:"8081"`
	DBPath        string        `env:"SOVEREIGN_DB_PATH" envDefault:"data/sovereign.db"`
	ChallengeTTL  time.Duration `env:"SOVEREIGN_CHALLENGE_TTL" envDefault:"2m"`
	QueueSize     int           `env:"SOVEREIGN_QUEUE_SIZE" envDefault:"256"`
	MaxAttempts   int           `env:"SOVEREIGN_MAX_ATTEMPTS" envDefault:"8"`
	RetryBackoff  time.Duration `env:"SOVEREIGN_RETRY_BACKOFF" envDefault:"50ms"`
	RetryMaxDelay time.Duration `env:"SOVEREIGN_RETRY_MAX_DELAY" envDefault:"5s"`
	SweepInterval time.Duration `env:"SOVEREIGN_SWEEP_INTERVAL" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The HTTP API listen address")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The ledger SQLite database path")
	fs.DurationVar(&cfg.ChallengeTTL, "challenge-ttl", cfg.ChallengeTTL, "Challenge lifetime before expiry")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Graph projection queue capacity")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum projection attempts per entry")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base projection retry delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum projection retry delay")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "Graph integrity sweep interval")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sovereign runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSovereign, func(context.Context) error {
		return server.Run(ctx, server.RuntimeConfig{
			HTTPAddr:      cfg.HTTPAddr,
			HealthPort:    cfg.HealthPort,
			DBPath:        cfg.DBPath,
			ChallengeTTL:  cfg.ChallengeTTL,
			QueueSize:     cfg.QueueSize,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
			SweepInterval: cfg.SweepInterval,
		})
	})
}
