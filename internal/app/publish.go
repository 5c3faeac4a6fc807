package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
)

func runPublish(args []string) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Publish run timeout")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, ok := bootstrap(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("publish setup failed")
		fmt.Fprintf(os.Stderr, "Publish setup failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	res := rt.publisher().Run(ctx)
	return printRunSummary("publish", res.Report().Summary(), res.Failure)
}
