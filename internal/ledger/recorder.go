package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"
)

// Run summarizes one admission or release run.
type Run struct {
	RunID      string
	Kind       string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Counts     map[string]int
	Failure    string
}

type Admission struct {
	RunID         string
	ContentRef    string
	Keyword       string
	Category      string
	Outcome       string
	Reason        string
	QualityScore  float64
	MaxSimilarity float64
	PublishAt     time.Time
}

type Release struct {
	RunID      string
	ContentRef string
	Path       string
	Bucket     string
	ReleasedAt time.Time
}

// Recorder receives run outcomes. Failures are reported to the caller, which
// logs them; the ledger never decides whether a run succeeded.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
	RecordAdmission(ctx context.Context, a Admission) error
	RecordRelease(ctx context.Context, r Release) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordRun(context.Context, Run) error             { return nil }
func (Nop) RecordAdmission(context.Context, Admission) error { return nil }
func (Nop) RecordRelease(context.Context, Release) error     { return nil }

// Store writes to the pubgate schema through gorm.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if s == nil || s.pool.GORM() == nil {
		return fmt.Errorf("ledger store is not initialized")
	}
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("marshal run counts: %w", err)
	}
	record := RunRecord{
		RunID:      run.RunID,
		Kind:       run.Kind,
		Status:     run.Status,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		Counts:     counts,
		Failure:    optionalString(run.Failure),
	}
	if err := s.pool.GORM().WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *Store) RecordAdmission(ctx context.Context, a Admission) error {
	if s == nil || s.pool.GORM() == nil {
		return fmt.Errorf("ledger store is not initialized")
	}
	event := AdmissionEvent{
		RunID:         a.RunID,
		ContentRef:    a.ContentRef,
		Keyword:       a.Keyword,
		Category:      a.Category,
		Outcome:       a.Outcome,
		Reason:        optionalString(a.Reason),
		QualityScore:  a.QualityScore,
		MaxSimilarity: a.MaxSimilarity,
	}
	if !a.PublishAt.IsZero() {
		at := a.PublishAt.UTC()
		event.PublishAt = &at
	}
	if err := s.pool.GORM().WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("insert admission event %s: %w", a.ContentRef, err)
	}
	return nil
}

func (s *Store) RecordRelease(ctx context.Context, r Release) error {
	if s == nil || s.pool.GORM() == nil {
		return fmt.Errorf("ledger store is not initialized")
	}
	event := ReleaseEvent{
		RunID:      r.RunID,
		ContentRef: r.ContentRef,
		Path:       r.Path,
		Bucket:     r.Bucket,
		ReleasedAt: r.ReleasedAt.UTC(),
	}
	err := s.pool.GORM().WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "content_ref"}}, DoNothing: true}).
		Create(&event).Error
	if err != nil {
		return fmt.Errorf("insert release event %s: %w", r.ContentRef, err)
	}
	return nil
}

// RecentRuns returns the newest runs of kind, or of every kind when kind is empty.
func (s *Store) RecentRuns(ctx context.Context, kind string, limit int) ([]RunRecord, error) {
	if s == nil || s.pool.GORM() == nil {
		return nil, fmt.Errorf("ledger store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	query := s.pool.GORM().WithContext(ctx).Order("started_at DESC").Limit(limit)
	if kind = strings.TrimSpace(kind); kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var runs []RunRecord
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	return runs, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
