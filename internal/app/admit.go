package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/admission"
	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/scoring"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
)

func runAdmit(args []string) int {
	fs := flag.NewFlagSet("admit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Admission run timeout")
	keyword := fs.String("keyword", "", "Admit only this topic, bypassing topic selection")

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
		logger.Error().Err(err).Msg("admit setup failed")
		fmt.Fprintf(os.Stderr, "Admit setup failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	pipeline, err := rt.admissionPipeline()
	if err != nil {
		logger.Error().Err(err).Msg("admit setup failed")
		fmt.Fprintf(os.Stderr, "Admit setup failed: %v\n", err)
		return 1
	}

	var res admission.Result
	if topic := strings.TrimSpace(*keyword); topic != "" {
		analysis, found, err := findTopic(ctx, rt, topic)
		if err != nil {
			logger.Error().Err(err).Msg("admit failed")
			fmt.Fprintf(os.Stderr, "Admit failed: %v\n", err)
			return 1
		}
		if !found {
			fmt.Fprintf(os.Stderr, "No signals for topic %q\n", topic)
			return 1
		}
		res = pipeline.Admit(ctx, analysis)
	} else {
		res = pipeline.Run(ctx)
	}

	return printRunSummary("admit", res.Report().Summary(), res.Failure)
}

// findTopic scores the current signals and returns the analysis for keyword.
func findTopic(ctx context.Context, rt *runtime, keyword string) (scoring.ControversyAnalysis, bool, error) {
	scorer, err := newScorer(rt.cfg)
	if err != nil {
		return scoring.ControversyAnalysis{}, false, err
	}
	refreshed, err := newRefresher(rt.cfg, rt.logger).Refresh(ctx, globaltime.Now())
	if err != nil {
		return scoring.ControversyAnalysis{}, false, err
	}
	want := signal.NormalizeKeyword(keyword)
	for _, a := range scorer.Analyze(refreshed.Signals) {
		if signal.NormalizeKeyword(a.Topic) == want {
			return a, true, nil
		}
	}
	return scoring.ControversyAnalysis{}, false, nil
}

func printRunSummary(command, summary string, failure error) int {
	fmt.Printf("%s %s\n", command, summary)
	if failure != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", strings.ToUpper(command[:1])+command[1:], failure)
		return 1
	}
	return 0
}
