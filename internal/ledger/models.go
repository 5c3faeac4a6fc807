package ledger

import (
	"encoding/json"
	"time"
)

// RunRecord maps pubgate.runs.
type RunRecord struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string          `gorm:"column:run_id;type:uuid;not null;unique"`
	Kind       string          `gorm:"column:kind;type:text;not null;index"`
	Status     string          `gorm:"column:status;type:text;not null"`
	StartedAt  time.Time       `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt time.Time       `gorm:"column:finished_at;type:timestamptz;not null"`
	Counts     json.RawMessage `gorm:"column:counts;type:jsonb;not null"`
	Failure    *string         `gorm:"column:failure;type:text"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RunRecord) TableName() string { return "pubgate.runs" }

// AdmissionEvent maps pubgate.admission_events, one row per candidate decision.
type AdmissionEvent struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         string     `gorm:"column:run_id;type:uuid;not null;index"`
	ContentRef    string     `gorm:"column:content_ref;type:text;not null"`
	Keyword       string     `gorm:"column:keyword;type:text;not null"`
	Category      string     `gorm:"column:category;type:text;not null;default:''"`
	Outcome       string     `gorm:"column:outcome;type:text;not null"`
	Reason        *string    `gorm:"column:reason;type:text"`
	QualityScore  float64    `gorm:"column:quality_score;type:double precision;not null;default:0"`
	MaxSimilarity float64    `gorm:"column:max_similarity;type:double precision;not null;default:0"`
	PublishAt     *time.Time `gorm:"column:publish_at;type:timestamptz"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (AdmissionEvent) TableName() string { return "pubgate.admission_events" }

// ReleaseEvent maps pubgate.release_events.
type ReleaseEvent struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      string    `gorm:"column:run_id;type:uuid;not null;index"`
	ContentRef string    `gorm:"column:content_ref;type:text;not null;unique"`
	Path       string    `gorm:"column:path;type:text;not null"`
	Bucket     string    `gorm:"column:bucket;type:text;not null;index"`
	ReleasedAt time.Time `gorm:"column:released_at;type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ReleaseEvent) TableName() string { return "pubgate.release_events" }

func autoMigrateModels() []any {
	return []any{
		&RunRecord{},
		&AdmissionEvent{},
		&ReleaseEvent{},
	}
}
