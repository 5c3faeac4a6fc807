package admission

import (
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
)

// Stage is the last state a candidate reached.
type Stage string

const (
	StageScored            Stage = "scored"
	StageGenerated         Stage = "generated"
	StageSimilarityChecked Stage = "similarity_checked"
	StageQualityChecked    Stage = "quality_checked"
	StageAdmitted          Stage = "admitted"
	StageRejected          Stage = "rejected"
)

type Reason string

const (
	ReasonDuplicate Reason = "duplicate"
	ReasonQuality   Reason = "quality"
	ReasonGenerator Reason = "generator"
	ReasonStorage   Reason = "storage"
	// ReasonAborted marks candidates that passed every gate in a run that
	// later failed; nothing of theirs was kept.
	ReasonAborted Reason = "aborted"
)

// Outcome is the per-candidate admission result.
type Outcome struct {
	Keyword       string  `json:"keyword"`
	Category      string  `json:"category"`
	Stage         Stage   `json:"stage"`
	Accepted      bool    `json:"accepted"`
	ContentRef    string  `json:"content_ref,omitempty"`
	Path          string  `json:"path,omitempty"`
	PublishAt     string  `json:"publish_at,omitempty"`
	Deferred      bool    `json:"deferred,omitempty"`
	Reason        Reason  `json:"reason,omitempty"`
	RejectedAt    Stage   `json:"rejected_at,omitempty"`
	Detail        string  `json:"detail,omitempty"`
	TopicScore    float64 `json:"topic_score"`
	MaxSimilarity float64 `json:"max_similarity"`
	MostSimilar   string  `json:"most_similar,omitempty"`
	QualityScore  float64 `json:"quality_score"`
	QualityBefore float64 `json:"quality_before_improve,omitempty"`
	Improved      bool    `json:"improved,omitempty"`
}

func (o Outcome) reject(reason Reason, detail string) Outcome {
	o.RejectedAt = o.Stage
	o.Stage = StageRejected
	o.Accepted = false
	o.Reason = reason
	o.Detail = detail
	return o
}

func (o Outcome) outcomeLabel() string {
	if o.Accepted {
		return string(StageAdmitted)
	}
	return "rejected_" + string(o.Reason)
}

type Result struct {
	RunID              string
	StartedAt          time.Time
	FinishedAt         time.Time
	Signals            int
	FromSnapshot       bool
	Topics             int
	Admitted           int
	RejectedSimilarity int
	RejectedQuality    int
	GeneratorFailures  int
	Improved           int
	Skipped            int
	QueueLength        int
	Outcomes           []Outcome
	Failure            error
}

func (r *Result) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Improved {
		r.Improved++
	}
	if o.Accepted {
		r.Admitted++
		return
	}
	switch o.Reason {
	case ReasonDuplicate:
		r.RejectedSimilarity++
	case ReasonQuality:
		r.RejectedQuality++
	case ReasonGenerator:
		r.GeneratorFailures++
	}
}

// fail turns the run into a failure. Admissions of the run are void: their
// content files were removed and the queue was not written.
func (r *Result) fail(err error) {
	r.Failure = err
	r.Admitted = 0
	r.QueueLength = 0
	for i, o := range r.Outcomes {
		if o.Accepted {
			r.Outcomes[i] = o.reject(ReasonAborted, err.Error())
			r.Outcomes[i].ContentRef = ""
			r.Outcomes[i].Path = ""
			r.Outcomes[i].PublishAt = ""
		}
	}
}

type reportDetails struct {
	FromSnapshot bool      `json:"from_snapshot"`
	Outcomes     []Outcome `json:"outcomes"`
}

func (r Result) Report() report.Report {
	rep := report.Report{
		Kind:       report.KindAdmission,
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     report.StatusOK,
		Counts: map[string]int{
			"signals":             r.Signals,
			"topics":              r.Topics,
			"admitted":            r.Admitted,
			"rejected_similarity": r.RejectedSimilarity,
			"rejected_quality":    r.RejectedQuality,
			"generator_failures":  r.GeneratorFailures,
			"improved":            r.Improved,
			"skipped":             r.Skipped,
			"queue_length":        r.QueueLength,
		},
		Details: reportDetails{FromSnapshot: r.FromSnapshot, Outcomes: r.Outcomes},
	}
	if r.Failure != nil {
		rep.Status = report.StatusFailed
		rep.Failure = r.Failure.Error()
	}
	return rep
}
