package app

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/scoring"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
)

func runScore(args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", time.Minute, "Collector refresh timeout")
	refresh := fs.Bool("refresh", false, "Poll collectors instead of reading the last snapshot")
	limit := fs.Int("limit", 20, "Maximum number of topics to print (0 for all)")
	asJSON := fs.Bool("json", false, "Print analyses as JSON")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 0")
		return 2
	}

	cfg, logger, ok := bootstrap(envLoader)
	if !ok {
		return 1
	}

	scorer, err := newScorer(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("score failed")
		fmt.Fprintf(os.Stderr, "Score failed: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		signals      []signal.Signal
		fromSnapshot = true
	)
	if *refresh {
		refreshed, err := newRefresher(cfg, logger).Refresh(ctx, globaltime.Now())
		if err != nil {
			logger.Error().Err(err).Msg("signal refresh failed")
			fmt.Fprintf(os.Stderr, "Signal refresh failed: %v\n", err)
			return 1
		}
		signals = refreshed.Signals
		fromSnapshot = refreshed.FromSnapshot
	} else {
		snap, err := signal.LoadSnapshot(cfg.SignalSnapshotFile)
		if err != nil {
			logger.Error().Err(err).Msg("load signal snapshot failed")
			fmt.Fprintf(os.Stderr, "Load signal snapshot failed: %v\n", err)
			return 1
		}
		signals = snap.Signals
	}

	analyses := scorer.Analyze(signals)
	shown := analyses
	if *limit > 0 && len(shown) > *limit {
		shown = shown[:*limit]
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(shown); err != nil {
			fmt.Fprintf(os.Stderr, "Encode analyses failed: %v\n", err)
			return 1
		}
	} else {
		for i, a := range shown {
			printAnalysis(i+1, a)
		}
	}

	logger.Info().
		Int("signals", len(signals)).
		Int("topics", len(analyses)).
		Bool("from_snapshot", fromSnapshot).
		Msg("score completed")
	fmt.Printf("score signals=%d topics=%d from_snapshot=%t\n", len(signals), len(analyses), fromSnapshot)
	return 0
}

func printAnalysis(rank int, a scoring.ControversyAnalysis) {
	fmt.Printf(
		"%3d  %6.2f  %-8s  %-13s  sources=%d signals=%d confidence=%.2f trend=%s  %s\n",
		rank,
		a.OverallScore,
		a.RiskLevel,
		a.Category,
		a.DistinctSources,
		len(a.Signals),
		a.Confidence,
		a.TrendPrediction,
		a.Topic,
	)
}
