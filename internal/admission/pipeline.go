// Package admission runs selected topics through generation, the similarity
// ceiling and the quality gate, and queues the survivors for release.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
	"github.com/Fzero1925/ai-discovery-sub000/internal/generator"
	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/logging"
	"github.com/Fzero1925/ai-discovery-sub000/internal/quality"
	"github.com/Fzero1925/ai-discovery-sub000/internal/queue"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
	"github.com/Fzero1925/ai-discovery-sub000/internal/scoring"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
	"github.com/Fzero1925/ai-discovery-sub000/internal/similarity"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

// ErrStorage marks failures of the durable queue or content store. They abort
// the whole run; every other failure is scoped to one candidate.
var ErrStorage = errors.New("durable storage failure")

// SignalSource yields the signals for one run.
type SignalSource interface {
	Refresh(ctx context.Context, now time.Time) (signal.RefreshResult, error)
}

type Deps struct {
	Signals   SignalSource
	Scorer    *scoring.Scorer
	Generator generator.Generator
	Assessor  *quality.Assessor
	Content   *content.Store
	Scheduler *schedule.Scheduler
	Lease     store.Lease
	Ledger    ledger.Recorder
	Reports   *report.Emitter
	Logger    zerolog.Logger
	// Now defaults to the global clock.
	Now func() time.Time
}

type Options struct {
	QueueFile string
	// Target is the number of admissions after which the run stops.
	Target        int
	TopN          int
	MinTopicScore float64
	// SimilarityCeiling is the highest similarity still admitted.
	SimilarityCeiling float64
	TopK              int
	// RefreshCorpus adds each admitted document to the similarity corpus before
	// the next candidate is checked.
	RefreshCorpus bool
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Now == nil {
		deps.Now = globaltime.Now
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Nop{}
	}
	if opts.Target < 1 {
		opts.Target = 6
	}
	if opts.TopN < 1 {
		opts.TopN = 10
	}
	if opts.SimilarityCeiling <= 0 {
		opts.SimilarityCeiling = 0.82
	}
	if opts.TopK < 1 {
		opts.TopK = similarity.DefaultTopK
	}
	return &Pipeline{deps: deps, opts: opts}
}

// SelectTopics keeps analyses at or above the minimum score, best first, at most TopN.
func (p *Pipeline) SelectTopics(analyses []scoring.ControversyAnalysis) []scoring.ControversyAnalysis {
	out := make([]scoring.ControversyAnalysis, 0, min(len(analyses), p.opts.TopN))
	for _, a := range analyses {
		if a.OverallScore < p.opts.MinTopicScore {
			continue
		}
		out = append(out, a)
		if len(out) == p.opts.TopN {
			break
		}
	}
	return out
}

// Run refreshes signals, scores them, and admits the best topics.
func (p *Pipeline) Run(ctx context.Context) Result {
	started := p.deps.Now()
	res := newResult(started)
	logger := logging.ForRun(p.deps.Logger, string(report.KindAdmission), res.RunID)

	refreshed, err := p.deps.Signals.Refresh(ctx, started)
	if err != nil {
		res.fail(fmt.Errorf("%w: %v", ErrStorage, err))
		return p.finish(ctx, logger, res)
	}
	res.Signals = len(refreshed.Signals)
	res.FromSnapshot = refreshed.FromSnapshot

	analyses := p.deps.Scorer.Analyze(refreshed.Signals)
	topics := p.SelectTopics(analyses)
	res.Topics = len(topics)
	logger.Info().
		Int("signals", res.Signals).
		Bool("from_snapshot", res.FromSnapshot).
		Int("analyses", len(analyses)).
		Int("topics", len(topics)).
		Msg("topics selected")

	p.admitTopics(ctx, logger, topics, &res)
	return p.finish(ctx, logger, res)
}

// Admit runs a single already-scored topic through the gates as its own run.
func (p *Pipeline) Admit(ctx context.Context, topic scoring.ControversyAnalysis) Result {
	res := newResult(p.deps.Now())
	res.Topics = 1
	logger := logging.ForRun(p.deps.Logger, string(report.KindAdmission), res.RunID)
	p.admitTopics(ctx, logger, []scoring.ControversyAnalysis{topic}, &res)
	return p.finish(ctx, logger, res)
}

func (p *Pipeline) admitTopics(ctx context.Context, logger zerolog.Logger, topics []scoring.ControversyAnalysis, res *Result) {
	if len(topics) == 0 {
		return
	}
	err := store.WithLease(ctx, p.deps.Lease, func() error {
		b, err := p.openBatch(res.StartedAt)
		if err != nil {
			return err
		}
		for i, topic := range topics {
			if res.Admitted >= p.opts.Target {
				res.Skipped = len(topics) - i
				logger.Info().Int("target", p.opts.Target).Int("skipped", res.Skipped).Msg("admission target reached")
				break
			}
			outcome, err := p.admit(ctx, logger, b, topic)
			res.record(outcome)
			if err != nil {
				b.rollback(p.deps.Content, logger)
				return err
			}
		}
		res.QueueLength = b.queue.Len()
		if len(b.written) == 0 {
			return nil
		}
		if err := b.queue.Save(p.opts.QueueFile); err != nil {
			b.rollback(p.deps.Content, logger)
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		res.fail(err)
	}
}

// batch is the in-memory view of the durable state during one locked run.
type batch struct {
	queue   *queue.Queue
	corpus  []similarity.Document
	cursor  *schedule.Cursor
	queued  time.Time
	written []string
}

func (p *Pipeline) openBatch(now time.Time) (*batch, error) {
	q, err := queue.Load(p.opts.QueueFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	entries, err := p.deps.Content.Corpus()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	corpus := make([]similarity.Document, 0, len(entries))
	for _, e := range entries {
		corpus = append(corpus, similarity.Document{ID: e.ID, Text: e.Text})
	}
	tail, _ := q.Tail()
	return &batch{
		queue:  q,
		corpus: corpus,
		cursor: p.deps.Scheduler.Start(now, tail),
		queued: now.Truncate(time.Second),
	}, nil
}

// rollback removes the content files written by an aborted run so that no
// draft exists without its queue entry.
func (b *batch) rollback(cs *content.Store, logger zerolog.Logger) {
	for _, path := range b.written {
		if err := cs.Remove(path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to remove content of aborted run")
		}
	}
	b.written = nil
}

// admit moves one topic through the state machine. The returned error is
// non-nil only for storage failures.
func (p *Pipeline) admit(ctx context.Context, logger zerolog.Logger, b *batch, topic scoring.ControversyAnalysis) (Outcome, error) {
	out := Outcome{
		Keyword:    topic.Topic,
		Category:   string(topic.Category),
		TopicScore: topic.OverallScore,
		Stage:      StageScored,
	}
	log := logger.With().Str("keyword", topic.Topic).Logger()

	candidate, err := p.deps.Generator.Generate(ctx, generator.Request{
		Keyword:  topic.Topic,
		Category: string(topic.Category),
		Context: generator.ScoreContext{
			OverallScore: topic.OverallScore,
			Confidence:   topic.Confidence,
			Category:     string(topic.Category),
			RiskLevel:    string(topic.RiskLevel),
			Trend:        topic.TrendPrediction,
			Sources:      topic.DistinctSources,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("generation failed")
		return out.reject(ReasonGenerator, err.Error()), nil
	}
	out.Stage = StageGenerated
	if candidate.Category != "" {
		out.Category = candidate.Category
	}

	sim := similarity.Assess(candidate.Text(), b.corpus, p.opts.TopK)
	out.Stage = StageSimilarityChecked
	out.MaxSimilarity = sim.MaxSimilarity
	if sim.MostSimilarItem != nil {
		out.MostSimilar = *sim.MostSimilarItem
	}
	if sim.MaxSimilarity > p.opts.SimilarityCeiling {
		log.Info().
			Float64("max_similarity", sim.MaxSimilarity).
			Str("most_similar", out.MostSimilar).
			Msg("rejected as near duplicate")
		return out.reject(ReasonDuplicate, fmt.Sprintf("similarity %.3f to %s", sim.MaxSimilarity, out.MostSimilar)), nil
	}

	profile := p.deps.Assessor.ProfileFor(candidate)
	assessed := p.deps.Assessor.Assess(candidate, profile)
	out.QualityScore = assessed.Score
	if !assessed.Passed {
		improved := quality.Improve(candidate)
		retried := p.deps.Assessor.Assess(improved, profile)
		out.Improved = true
		out.QualityBefore = assessed.Score
		out.QualityScore = retried.Score
		candidate, assessed = improved, retried
	}
	out.Stage = StageQualityChecked
	if !assessed.Passed {
		log.Info().
			Float64("score", assessed.Score).
			Float64("gate", p.deps.Assessor.Gate()).
			Strs("issues", assessed.Issues).
			Msg("rejected by quality gate")
		return out.reject(ReasonQuality, fmt.Sprintf("score %.2f below gate %.2f", assessed.Score, p.deps.Assessor.Gate())), nil
	}

	ref := uuid.NewString()
	path, err := p.deps.Content.Write(content.Draft{
		Ref:              ref,
		Keyword:          topic.Topic,
		Candidate:        candidate,
		QualityScore:     assessed.Score,
		QualityBreakdown: assessed.Breakdown,
		WordCount:        assessed.WordCount(),
		CreatedAt:        b.queued,
	})
	if err != nil {
		return out.reject(ReasonStorage, err.Error()), fmt.Errorf("%w: %v", ErrStorage, err)
	}
	b.written = append(b.written, path)

	step := b.cursor.Next(out.Category)
	item := queue.NewItem(ref, path, topic.Topic, out.Category, b.queued, step.PublishAt)
	if err := b.queue.Append(item); err != nil {
		return out.reject(ReasonStorage, err.Error()), fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if p.opts.RefreshCorpus {
		b.corpus = append(b.corpus, similarity.Document{ID: ref, Text: candidate.Text()})
	}

	out.Stage = StageAdmitted
	out.Accepted = true
	out.ContentRef = ref
	out.Path = path
	out.PublishAt = item.PublishAt
	out.Deferred = step.Deferred
	log.Info().
		Str("ref", ref).
		Str("path", path).
		Float64("score", assessed.Score).
		Str("publish_at", item.PublishAt).
		Bool("deferred", step.Deferred).
		Msg("candidate admitted")
	return out, nil
}

func (p *Pipeline) finish(ctx context.Context, logger zerolog.Logger, res Result) Result {
	res.FinishedAt = p.deps.Now()

	for _, o := range res.Outcomes {
		var publishAt time.Time
		if o.PublishAt != "" {
			publishAt, _ = time.Parse(time.RFC3339, o.PublishAt)
		}
		err := p.deps.Ledger.RecordAdmission(ctx, ledger.Admission{
			RunID:         res.RunID,
			ContentRef:    o.ContentRef,
			Keyword:       o.Keyword,
			Category:      o.Category,
			Outcome:       o.outcomeLabel(),
			Reason:        o.Detail,
			QualityScore:  o.QualityScore,
			MaxSimilarity: o.MaxSimilarity,
			PublishAt:     publishAt,
		})
		if err != nil {
			logger.Warn().Err(err).Str("keyword", o.Keyword).Msg("failed to record admission in ledger")
		}
	}
	rep := res.Report()
	if err := p.deps.Ledger.RecordRun(ctx, ledger.Run{
		RunID:      res.RunID,
		Kind:       string(rep.Kind),
		Status:     rep.Status,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Counts:     rep.Counts,
		Failure:    rep.Failure,
	}); err != nil {
		logger.Warn().Err(err).Msg("failed to record admission run in ledger")
	}
	_ = p.deps.Reports.Emit(ctx, rep)

	event := logger.Info()
	if res.Failure != nil {
		event = logger.Error().Err(res.Failure)
	}
	event.
		Int("admitted", res.Admitted).
		Int("rejected_similarity", res.RejectedSimilarity).
		Int("rejected_quality", res.RejectedQuality).
		Int("generator_failures", res.GeneratorFailures).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("admission run finished")
	return res
}

func newResult(started time.Time) Result {
	return Result{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Outcomes:  []Outcome{},
	}
}
