package app

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publish"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	asJSON := fs.Bool("json", false, "Print the full snapshot as JSON")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, ok := bootstrap(envLoader)
	if !ok {
		return 1
	}

	sched, err := loadSchedulerConfig(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("load scheduler config failed")
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		return 1
	}

	snap, err := publish.Inspect(sched, cfg.QueueFile, cfg.StateFile, globaltime.Now())
	if err != nil {
		logger.Error().Err(err).Msg("inspect failed")
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			fmt.Fprintf(os.Stderr, "Encode status failed: %v\n", err)
			return 1
		}
		return 0
	}

	printSnapshot(snap)
	return 0
}

func printSnapshot(snap publish.Snapshot) {
	fmt.Printf("now:     %s (%s)\n", snap.Now.Format(time.RFC3339), snap.Timezone)
	switch {
	case snap.Active:
		fmt.Printf("regime:  day max_per_hour=%d interval=%d-%dm\n", snap.Regime.MaxPerHour, snap.Regime.MinIntervalMin, snap.Regime.MaxIntervalMin)
	case snap.Paused:
		fmt.Println("regime:  night paused")
	default:
		fmt.Printf("regime:  night throttle max_per_hour=%d interval=%d-%dm\n", snap.Regime.MaxPerHour, snap.Regime.MinIntervalMin, snap.Regime.MaxIntervalMin)
	}
	if snap.NextActiveStart != nil {
		fmt.Printf("active:  next window opens %s\n", snap.NextActiveStart.Format(time.RFC3339))
	}
	fmt.Printf("bucket:  %s released=%d cap=%d budget=%d\n", snap.Bucket, snap.ReleasedThisHour, snap.HourlyCap, snap.Budget)

	for _, entry := range snap.Queue {
		marker := " "
		switch {
		case entry.Anomaly != "":
			marker = "!"
		case entry.Due:
			marker = "*"
		}
		fmt.Printf("%s %-25s %-10s %-36s %s\n", marker, entry.PublishAt, entry.Category, entry.ContentRef, entry.Keyword)
		if entry.Anomaly != "" {
			fmt.Printf("    anomaly: %s\n", entry.Anomaly)
		}
	}

	fmt.Printf(
		"status queue=%d due=%d anomalies=%d bucket=%q released=%d cap=%d budget=%d paused=%t\n",
		snap.QueueLength,
		snap.Due,
		snap.Anomalies,
		snap.Bucket,
		snap.ReleasedThisHour,
		snap.HourlyCap,
		snap.Budget,
		snap.Paused,
	)
}
