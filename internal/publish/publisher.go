// Package publish releases due queue items under the hourly cap. A run with
// nothing due is a no-op, and due items over the budget wait for the next run.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
	"github.com/Fzero1925/ai-discovery-sub000/internal/globaltime"
	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/logging"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publishstate"
	"github.com/Fzero1925/ai-discovery-sub000/internal/queue"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

var ErrStorage = errors.New("durable storage failure")

type Deps struct {
	Config  schedule.Config
	Content *content.Store
	Lease   store.Lease
	Ledger  ledger.Recorder
	Reports *report.Emitter
	Logger  zerolog.Logger
	Now     func() time.Time
}

type Options struct {
	QueueFile string
	StateFile string
}

type Publisher struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Publisher {
	if deps.Now == nil {
		deps.Now = globaltime.Now
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger.Nop{}
	}
	return &Publisher{deps: deps, opts: opts}
}

// Anomaly is a queue item that could not be considered for release. It stays
// queued for manual inspection.
type Anomaly struct {
	ContentRef string `json:"content_ref"`
	Field      string `json:"field"`
	Problem    string `json:"problem"`
}

type Release struct {
	ContentRef string `json:"content_ref"`
	Path       string `json:"path"`
	PublishAt  string `json:"publish_at"`
	ReleasedAt string `json:"released_at"`
}

type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Paused     bool
	Bucket     string
	HourlyCap  int
	// AlreadyReleased is the bucket count before this run.
	AlreadyReleased int
	Budget          int
	Due             int
	NotDue          int
	Deferred        int
	Remaining       int
	Releases        []Release
	Anomalies       []Anomaly
	Failure         error
}

// Run performs one release pass under the single-writer lease.
func (p *Publisher) Run(ctx context.Context) Result {
	now := p.deps.Now()
	res := Result{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Releases:  []Release{},
		Anomalies: []Anomaly{},
	}
	logger := logging.ForRun(p.deps.Logger, string(report.KindPublish), res.RunID)

	err := store.WithLease(ctx, p.deps.Lease, func() error {
		return p.release(logger, now, &res)
	})
	if err != nil {
		res.Failure = err
		res.Releases = []Release{}
	}
	return p.finish(ctx, logger, res)
}

// pending is one release applied in memory and on the content file, kept so
// it can be undone if the queue or state cannot be saved.
type pending struct {
	item     queue.Item
	original []byte
}

func (p *Publisher) release(logger zerolog.Logger, now time.Time, res *Result) error {
	cfg := p.deps.Config
	loc := cfg.Location()

	q, err := queue.Load(p.opts.QueueFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	state, err := publishstate.Load(p.opts.StateFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	res.Bucket = publishstate.Bucket(now, loc)
	res.HourlyCap = cfg.HourlyCap(now)
	res.AlreadyReleased = state.Released(res.Bucket)
	res.Budget = max(0, res.HourlyCap-res.AlreadyReleased)
	res.Paused = cfg.Paused(now)
	res.Remaining = q.Len()

	var due []queue.Item
	for _, item := range q.Items {
		publishAt, err := item.PublishTime()
		if err != nil {
			res.Anomalies = append(res.Anomalies, Anomaly{ContentRef: item.ContentRef, Field: "publish_at", Problem: err.Error()})
			logger.Warn().Err(err).Str("ref", item.ContentRef).Msg("queue item has malformed publish time")
			continue
		}
		if publishAt.After(now) {
			res.NotDue++
			continue
		}
		due = append(due, item)
	}
	res.Due = len(due)

	if res.Paused {
		res.Deferred = len(due)
		logger.Info().Int("due", len(due)).Msg("outside active hours, releases paused")
		return nil
	}

	var done []pending
	for _, item := range due {
		if len(done) >= res.Budget {
			res.Deferred++
			continue
		}
		if strings.TrimSpace(item.Path) == "" {
			res.Anomalies = append(res.Anomalies, Anomaly{ContentRef: item.ContentRef, Field: "path", Problem: "path is empty"})
			continue
		}
		original, err := os.ReadFile(item.Path)
		if errors.Is(err, fs.ErrNotExist) {
			res.Anomalies = append(res.Anomalies, Anomaly{ContentRef: item.ContentRef, Field: "path", Problem: "content file is missing"})
			logger.Warn().Str("ref", item.ContentRef).Str("path", item.Path).Msg("queued content file is missing")
			continue
		}
		if err != nil {
			p.rollback(logger, done)
			return fmt.Errorf("%w: read %s: %v", ErrStorage, item.Path, err)
		}
		if err := p.deps.Content.MarkPublished(item.Path, now.In(loc)); err != nil {
			if errors.Is(err, content.ErrNoFrontMatter) {
				res.Anomalies = append(res.Anomalies, Anomaly{ContentRef: item.ContentRef, Field: "path", Problem: err.Error()})
				continue
			}
			p.rollback(logger, done)
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		done = append(done, pending{item: item, original: original})
	}

	if len(done) == 0 {
		return nil
	}

	previous := append([]queue.Item(nil), q.Items...)
	for _, d := range done {
		q.Remove(d.item.ContentRef)
		state.Increment(res.Bucket)
	}
	if err := q.Save(p.opts.QueueFile); err != nil {
		p.rollback(logger, done)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := state.Save(p.opts.StateFile); err != nil {
		restored := &queue.Queue{Items: previous}
		if rerr := restored.Save(p.opts.QueueFile); rerr != nil {
			logger.Error().Err(rerr).Msg("failed to restore queue after state write failure")
		}
		p.rollback(logger, done)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	releasedAt := now.In(loc).Format(time.RFC3339)
	for _, d := range done {
		res.Releases = append(res.Releases, Release{
			ContentRef: d.item.ContentRef,
			Path:       d.item.Path,
			PublishAt:  d.item.PublishAt,
			ReleasedAt: releasedAt,
		})
		logger.Info().
			Str("ref", d.item.ContentRef).
			Str("path", d.item.Path).
			Str("publish_at", d.item.PublishAt).
			Msg("item released")
	}
	res.Remaining = q.Len()
	return nil
}

// rollback restores the content files flipped by an aborted run.
func (p *Publisher) rollback(logger zerolog.Logger, done []pending) {
	for _, d := range done {
		if err := store.WriteFile(d.item.Path, d.original); err != nil {
			logger.Error().Err(err).Str("path", d.item.Path).Msg("failed to restore content of aborted release")
		}
	}
}

func (p *Publisher) finish(ctx context.Context, logger zerolog.Logger, res Result) Result {
	res.FinishedAt = p.deps.Now()

	releasedAt := res.StartedAt
	for _, r := range res.Releases {
		if err := p.deps.Ledger.RecordRelease(ctx, ledger.Release{
			RunID:      res.RunID,
			ContentRef: r.ContentRef,
			Path:       r.Path,
			Bucket:     res.Bucket,
			ReleasedAt: releasedAt,
		}); err != nil {
			logger.Warn().Err(err).Str("ref", r.ContentRef).Msg("failed to record release in ledger")
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
		logger.Warn().Err(err).Msg("failed to record publish run in ledger")
	}
	_ = p.deps.Reports.Emit(ctx, rep)

	event := logger.Info()
	if res.Failure != nil {
		event = logger.Error().Err(res.Failure)
	}
	event.
		Int("released", len(res.Releases)).
		Int("deferred", res.Deferred).
		Int("remaining", res.Remaining).
		Int("anomalies", len(res.Anomalies)).
		Bool("paused", res.Paused).
		Msg("publish run finished")
	return res
}

type reportDetails struct {
	Bucket    string    `json:"bucket,omitempty"`
	Paused    bool      `json:"paused"`
	Releases  []Release `json:"releases"`
	Anomalies []Anomaly `json:"anomalies"`
}

func (r Result) Report() report.Report {
	rep := report.Report{
		Kind:       report.KindPublish,
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     report.StatusOK,
		Counts: map[string]int{
			"released":   len(r.Releases),
			"remaining":  r.Remaining,
			"due":        r.Due,
			"not_due":    r.NotDue,
			"deferred":   r.Deferred,
			"anomalies":  len(r.Anomalies),
			"hourly_cap": r.HourlyCap,
			"budget":     r.Budget,
		},
		Details: reportDetails{Bucket: r.Bucket, Paused: r.Paused, Releases: r.Releases, Anomalies: r.Anomalies},
	}
	if r.Failure != nil {
		rep.Status = report.StatusFailed
		rep.Failure = r.Failure.Error()
	}
	return rep
}
