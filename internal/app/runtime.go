package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/admission"
	"github.com/Fzero1925/ai-discovery-sub000/internal/cli"
	"github.com/Fzero1925/ai-discovery-sub000/internal/config"
	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
	"github.com/Fzero1925/ai-discovery-sub000/internal/generator"
	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/logging"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publish"
	"github.com/Fzero1925/ai-discovery-sub000/internal/quality"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
	"github.com/Fzero1925/ai-discovery-sub000/internal/scoring"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

const leaseKey = "pubgate:writer"

// parseFlags handles the shared -h and usage-error exit codes. ok is false
// when the caller should return code immediately.
func parseFlags(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// bootstrap loads the env file, config and logger shared by every command.
func bootstrap(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, bool) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), false
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), false
	}
	return cfg, logger, true
}

// loadSchedulerConfig reads the scheduler config and materializes the
// defaults on first run so operators have a file to edit.
func loadSchedulerConfig(cfg *config.Config, logger zerolog.Logger) (schedule.Config, error) {
	sched, err := schedule.LoadConfig(cfg.SchedulerConfigFile)
	if err != nil {
		return schedule.Config{}, err
	}
	if _, statErr := os.Stat(cfg.SchedulerConfigFile); errors.Is(statErr, fs.ErrNotExist) {
		if err := schedule.SaveConfig(cfg.SchedulerConfigFile, sched); err != nil {
			logger.Warn().Err(err).Str("path", cfg.SchedulerConfigFile).Msg("failed to write default scheduler config")
		} else {
			logger.Info().Str("path", cfg.SchedulerConfigFile).Msg("wrote default scheduler config")
		}
	}
	return sched, nil
}

func loadLexicon(cfg *config.Config) (*scoring.Lexicon, error) {
	if path := strings.TrimSpace(cfg.LexiconFile); path != "" {
		return scoring.LoadLexicon(path)
	}
	return scoring.DefaultLexicon()
}

func newScorer(cfg *config.Config) (*scoring.Scorer, error) {
	lex, err := loadLexicon(cfg)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	return scoring.NewScorer(lex, scoring.Options{
		ValidationThreshold: cfg.ValidationThreshold,
	}), nil
}

func newRefresher(cfg *config.Config, logger zerolog.Logger) *signal.Refresher {
	urls := cfg.CollectorURLList()
	collectors := make([]signal.Collector, 0, len(urls))
	for _, u := range urls {
		collectors = append(collectors, signal.NewHTTPCollector(u, cfg.CollectorTimeout))
	}
	return signal.NewRefresher(collectors, cfg.SignalSnapshotFile, logger)
}

func newGenerator(cfg *config.Config) generator.Generator {
	chain := generator.Chain{}
	if u := strings.TrimSpace(cfg.GeneratorURL); u != "" {
		chain = append(chain, generator.NewHTTPGenerator(u, cfg.GeneratorTimeout))
	}
	if dir := strings.TrimSpace(cfg.CandidatesDir); dir != "" {
		chain = append(chain, generator.NewDirectory(dir))
	}
	return chain
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = globaltime.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// runtime holds the collaborators of one command invocation.
type runtime struct {
	cfg     *config.Config
	logger  zerolog.Logger
	sched   schedule.Config
	content *content.Store
	lease   store.Lease
	ledger  ledger.Recorder
	reports *report.Emitter
	closers []func() error
}

func newRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		content: content.NewStore(cfg.ContentDir),
		ledger:  ledger.Nop{},
	}

	sched, err := loadSchedulerConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.sched = sched

	if redisURL := strings.TrimSpace(cfg.RedisURL); redisURL != "" {
		lease, err := store.NewRedisLeaseFromURL(ctx, redisURL, leaseKey, cfg.LeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("redis lease: %w", err)
		}
		rt.lease = lease
		rt.closers = append(rt.closers, lease.Close)
	} else {
		rt.lease = store.NewFileLease(cfg.LockFile, cfg.LockWait)
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pool, err := ledger.NewPool(ctx, cfg)
		if err != nil {
			// The ledger is an audit trail; runs proceed without it.
			logger.Warn().Err(err).Msg("ledger unavailable, continuing without it")
		} else {
			rt.ledger = ledger.NewStore(pool)
			rt.closers = append(rt.closers, pool.Close)
		}
	}

	sinks := []report.Sink{
		report.NewFileSink(cfg.ReportsDir),
		report.NewLogSink(logger),
	}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kafka, err := report.NewKafkaSink(brokers, cfg.KafkaTopic)
		if err != nil {
			logger.Warn().Err(err).Strs("brokers", brokers).Msg("kafka report sink unavailable")
		} else {
			sinks = append(sinks, kafka)
			rt.closers = append(rt.closers, kafka.Close)
		}
	}
	rt.reports = report.NewEmitter(logger, sinks...)
	return rt, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn().Err(err).Msg("close failed")
		}
	}
	rt.closers = nil
}

// reloadSchedule rereads the scheduler config so long-running processes pick
// up edits. On error the previous config stays in place.
func (rt *runtime) reloadSchedule() error {
	sched, err := loadSchedulerConfig(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	rt.sched = sched
	return nil
}

func (rt *runtime) admissionPipeline() (*admission.Pipeline, error) {
	scorer, err := newScorer(rt.cfg)
	if err != nil {
		return nil, err
	}
	cfg := rt.cfg
	return admission.New(admission.Deps{
		Signals:   newRefresher(cfg, rt.logger),
		Scorer:    scorer,
		Generator: newGenerator(cfg),
		Assessor: quality.NewAssessor(quality.Options{
			Gate:                cfg.QualityGate,
			ShortFormCategories: cfg.ShortFormCategoryList(),
			SiteHosts:           cfg.SiteHostList(),
			Language:            cfg.ContentLanguage,
		}),
		Content:   rt.content,
		Scheduler: schedule.New(rt.sched, newRand(cfg.RandomSeed)),
		Lease:     rt.lease,
		Ledger:    rt.ledger,
		Reports:   rt.reports,
		Logger:    rt.logger,
	}, admission.Options{
		QueueFile:         cfg.QueueFile,
		Target:            cfg.AdmissionTarget,
		TopN:              cfg.AdmissionTopN,
		MinTopicScore:     cfg.MinTopicScore,
		SimilarityCeiling: cfg.SimilarityCeiling,
		TopK:              cfg.SimilarityTopK,
		RefreshCorpus:     cfg.RefreshCorpus,
	}), nil
}

func (rt *runtime) publisher() *publish.Publisher {
	return publish.New(publish.Deps{
		Config:  rt.sched,
		Content: rt.content,
		Lease:   rt.lease,
		Ledger:  rt.ledger,
		Reports: rt.reports,
		Logger:  rt.logger,
	}, publish.Options{
		QueueFile: rt.cfg.QueueFile,
		StateFile: rt.cfg.StateFile,
	})
}
