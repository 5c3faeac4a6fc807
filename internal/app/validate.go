package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
	"github.com/Fzero1925/ai-discovery-sub000/internal/config"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publishstate"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schema"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
)

type validateResult struct {
	Checked int
	Valid   int
	Invalid int
	Missing int
}

type fileCheck struct {
	label string
	path  string
	check func(path string) error
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	strict := fs.Bool("strict", false, "Treat missing files as invalid")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, _, ok := bootstrap(envLoader)
	if !ok {
		return 1
	}

	result := validateFiles(durableFileChecks(cfg), *strict)
	fmt.Printf(
		"validate checked=%d valid=%d invalid=%d missing=%d strict=%t\n",
		result.Checked,
		result.Valid,
		result.Invalid,
		result.Missing,
		*strict,
	)
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

func durableFileChecks(cfg *config.Config) []fileCheck {
	checks := []fileCheck{
		{label: "signal snapshot", path: cfg.SignalSnapshotFile, check: func(path string) error {
			_, err := signal.LoadSnapshot(path)
			return err
		}},
		{label: "queue", path: cfg.QueueFile, check: validateSchemaFile(schema.Queue)},
		{label: "scheduler config", path: cfg.SchedulerConfigFile, check: func(path string) error {
			_, err := schedule.LoadConfig(path)
			return err
		}},
		{label: "publish state", path: cfg.StateFile, check: func(path string) error {
			_, err := publishstate.Load(path)
			return err
		}},
	}
	if lexicon := strings.TrimSpace(cfg.LexiconFile); lexicon != "" {
		checks = append(checks, fileCheck{label: "lexicon", path: lexicon, check: func(string) error {
			_, err := loadLexicon(cfg)
			return err
		}})
	}
	return checks
}

func validateSchemaFile(name string) func(path string) error {
	return func(path string) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		_, err = schema.Validate(name, raw)
		return err
	}
}

func validateFiles(checks []fileCheck, strict bool) validateResult {
	var result validateResult
	for _, c := range checks {
		result.Checked++
		if _, err := os.Stat(c.path); errors.Is(err, fs.ErrNotExist) {
			result.Missing++
			if strict {
				result.Invalid++
				fmt.Fprintf(os.Stderr, "INVALID %s %s: file does not exist\n", c.label, c.path)
			}
			continue
		}
		if err := c.check(c.path); err != nil {
			result.Invalid++
			fmt.Fprintf(os.Stderr, "INVALID %s %s: %v\n", c.label, c.path, err)
			continue
		}
		result.Valid++
	}
	return result
}
