package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Connectivity check timeout")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, ok := bootstrap(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	checked := 0
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool, err := ledger.NewPool(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("ledger health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error().Err(err).Msg("ledger health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		logger.Info().Dur("timeout", *timeout).Msg("ledger health check passed")
		fmt.Println("ok: ledger database ping successful")
		checked++
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		lease, err := store.NewRedisLeaseFromURL(ctx, cfg.RedisURL, leaseKey, cfg.LeaseTTL)
		if err != nil {
			logger.Error().Err(err).Msg("redis health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		_ = lease.Close()
		logger.Info().Dur("timeout", *timeout).Msg("redis health check passed")
		fmt.Println("ok: redis ping successful")
		checked++
	}

	if checked == 0 {
		fmt.Println("ok: no ledger database or redis configured")
	}
	return 0
}
