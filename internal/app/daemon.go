package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
)

// cronLogger routes cron's internal messages into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

type daemonJob struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	admitTimeout := fs.Duration("admit-timeout", 15*time.Minute, "Timeout for one admission run")
	publishTimeout := fs.Duration("publish-timeout", 2*time.Minute, "Timeout for one publish run")
	runNow := fs.Bool("run-now", false, "Run admit and publish once before waiting for the schedule")

	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	cfg, logger, ok := bootstrap(envLoader)
	if !ok {
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	rt, err := newRuntime(setupCtx, cfg, logger)
	setupCancel()
	if err != nil {
		logger.Error().Err(err).Msg("daemon setup failed")
		fmt.Fprintf(os.Stderr, "Daemon setup failed: %v\n", err)
		return 1
	}
	defer rt.Close()

	if _, err := rt.admissionPipeline(); err != nil {
		logger.Error().Err(err).Msg("daemon setup failed")
		fmt.Fprintf(os.Stderr, "Daemon setup failed: %v\n", err)
		return 1
	}
	jobs := daemonJobs(rt, *admitTimeout, *publishTimeout)

	loc := rt.sched.Location()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(cron.Recover(cronLogger{logger: logger})),
	)
	scheduled, err := scheduleJobs(ctx, c, jobs, logger)
	if err != nil {
		logger.Error().Err(err).Msg("daemon setup failed")
		fmt.Fprintf(os.Stderr, "Daemon setup failed: %v\n", err)
		return 2
	}

	if *runNow {
		for _, job := range jobs {
			runJob(ctx, job, logger)
		}
	}

	c.Start()
	logger.Info().
		Int("jobs", scheduled).
		Str("timezone", loc.String()).
		Str("admit_cron", cfg.AdmitCron).
		Str("publish_cron", cfg.PublishCron).
		Msg("daemon started")

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	logger.Info().Msg("daemon stopped")
	fmt.Println("ok: daemon stopped")
	return 0
}

// daemonJobs builds the admit and publish jobs. Each run rereads the scheduler
// config and builds its pipeline or publisher from it, so edits apply on the
// next tick. The cron timezone is fixed at start.
func daemonJobs(rt *runtime, admitTimeout, publishTimeout time.Duration) []daemonJob {
	// Both jobs share one lease instance, so they must not overlap in-process.
	var runMu sync.Mutex
	return []daemonJob{
		{name: "admit", spec: rt.cfg.AdmitCron, run: func(ctx context.Context) error {
			runMu.Lock()
			defer runMu.Unlock()
			if err := rt.reloadSchedule(); err != nil {
				return fmt.Errorf("reload scheduler config: %w", err)
			}
			pipeline, err := rt.admissionPipeline()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, admitTimeout)
			defer cancel()
			return pipeline.Run(ctx).Failure
		}},
		{name: "publish", spec: rt.cfg.PublishCron, run: func(ctx context.Context) error {
			runMu.Lock()
			defer runMu.Unlock()
			if err := rt.reloadSchedule(); err != nil {
				return fmt.Errorf("reload scheduler config: %w", err)
			}
			ctx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			return rt.publisher().Run(ctx).Failure
		}},
	}
}

// scheduleJobs registers every job with a non-empty spec and returns how many
// were added. Overlapping ticks of one job are skipped.
func scheduleJobs(ctx context.Context, c *cron.Cron, jobs []daemonJob, logger zerolog.Logger) (int, error) {
	skip := cron.SkipIfStillRunning(cronLogger{logger: logger})
	added := 0
	for _, job := range jobs {
		job := job
		spec := strings.TrimSpace(job.spec)
		if spec == "" {
			logger.Info().Str("job", job.name).Msg("job disabled")
			continue
		}
		if _, err := c.AddJob(spec, skip(cron.FuncJob(func() { runJob(ctx, job, logger) }))); err != nil {
			return added, fmt.Errorf("schedule %s job %q: %w", job.name, spec, err)
		}
		added++
	}
	return added, nil
}

func runJob(ctx context.Context, job daemonJob, logger zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	err := job.run(ctx)
	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.Str("job", job.name).Dur("took", time.Since(started)).Msg("daemon job finished")
}
