// Package report builds run reports and fans them out to sinks. Sink delivery
// is best effort and never changes the outcome of a run.
package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

type Kind string

const (
	KindAdmission Kind = "admission"
	KindPublish   Kind = "publish"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ParseKind accepts the kind names used on the command line and the API.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindAdmission, "admit":
		return KindAdmission, nil
	case KindPublish, "release":
		return KindPublish, nil
	default:
		return "", fmt.Errorf("unknown report kind %q", raw)
	}
}

type Report struct {
	Kind       Kind           `json:"kind"`
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Status     string         `json:"status"`
	Failure    string         `json:"failure,omitempty"`
	Counts     map[string]int `json:"counts"`
	Details    any            `json:"details,omitempty"`
}

// Summary renders counts as sorted key=value pairs for notifiers and stdout.
func (r Report) Summary() string {
	keys := make([]string, 0, len(r.Counts))
	for key := range r.Counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+2)
	parts = append(parts, "status="+r.Status)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, r.Counts[key]))
	}
	if r.Failure != "" {
		parts = append(parts, fmt.Sprintf("failure=%q", r.Failure))
	}
	return strings.Join(parts, " ")
}

func (r Report) Failed() bool {
	return r.Status == StatusFailed
}

type Sink interface {
	Name() string
	Emit(ctx context.Context, r Report) error
}

// FileSink keeps every report plus a latest-<kind>.json copy.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Emit(_ context.Context, r Report) error {
	if strings.TrimSpace(s.dir) == "" {
		return fmt.Errorf("report dir is empty")
	}
	if err := store.WriteJSON(filepath.Join(s.dir, fileName(r)), r); err != nil {
		return err
	}
	return store.WriteJSON(latestPath(s.dir, r.Kind), r)
}

func fileName(r Report) string {
	id := r.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s-%s.json", r.Kind, r.StartedAt.UTC().Format("20060102T150405Z"), id)
}

func latestPath(dir string, kind Kind) string {
	return filepath.Join(dir, "latest-"+string(kind)+".json")
}

// LoadLatest reads the most recent report of kind. found is false when no run
// of that kind has been recorded yet.
func LoadLatest(dir string, kind Kind) (Report, bool, error) {
	var r Report
	found, err := store.ReadJSON(latestPath(dir, kind), &r)
	if err != nil {
		return Report{}, false, fmt.Errorf("load latest %s report: %w", kind, err)
	}
	return r, found, nil
}

type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(_ context.Context, r Report) error {
	event := s.logger.Info()
	if r.Failed() {
		event = s.logger.Error().Str("failure", r.Failure)
	}
	counts := zerolog.Dict()
	for key, value := range r.Counts {
		counts = counts.Int(key, value)
	}
	event.
		Str("kind", string(r.Kind)).
		Str("run_id", r.RunID).
		Str("status", r.Status).
		Dict("counts", counts).
		Dur("duration", r.FinishedAt.Sub(r.StartedAt)).
		Msg("run report")
	return nil
}

// Emitter delivers a report to every sink and logs the ones that fail.
type Emitter struct {
	sinks  []Sink
	logger zerolog.Logger
}

func NewEmitter(logger zerolog.Logger, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, r Report) error {
	if e == nil {
		return nil
	}
	var errs []error
	for _, sink := range e.sinks {
		if err := sink.Emit(ctx, r); err != nil {
			e.logger.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("run_id", r.RunID).
				Msg("report sink failed")
			errs = append(errs, fmt.Errorf("%s sink: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
