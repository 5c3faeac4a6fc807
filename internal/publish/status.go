package publish

import (
	"fmt"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/publishstate"
	"github.com/Fzero1925/ai-discovery-sub000/internal/queue"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
)

// QueueEntry is a queued item annotated for display.
type QueueEntry struct {
	queue.Item
	Due     bool   `json:"due"`
	Anomaly string `json:"anomaly,omitempty"`
}

// Snapshot is a read-only view of the release state at one instant.
type Snapshot struct {
	Now              time.Time          `json:"now"`
	Timezone         string             `json:"timezone"`
	Active           bool               `json:"active"`
	Paused           bool               `json:"paused"`
	Regime           schedule.Regime    `json:"regime"`
	NextActiveStart  *time.Time         `json:"next_active_start,omitempty"`
	Bucket           string             `json:"bucket"`
	HourlyCap        int                `json:"hourly_cap"`
	ReleasedThisHour int                `json:"released_this_hour"`
	Budget           int                `json:"budget"`
	QueueLength      int                `json:"queue_length"`
	Due              int                `json:"due"`
	Anomalies        int                `json:"anomalies"`
	Queue            []QueueEntry       `json:"queue"`
	State            publishstate.State `json:"state"`
}

// Inspect reads the queue and publish state without taking the lease. The
// files are replaced atomically, so a concurrent run never exposes a torn read.
func Inspect(cfg schedule.Config, queueFile, stateFile string, now time.Time) (Snapshot, error) {
	q, err := queue.Load(queueFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	state, err := publishstate.Load(stateFile)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	loc := cfg.Location()
	snap := Snapshot{
		Now:         now.In(loc),
		Timezone:    loc.String(),
		Active:      cfg.IsActive(now),
		Paused:      cfg.Paused(now),
		Regime:      cfg.RegimeAt(now, ""),
		Bucket:      publishstate.Bucket(now, loc),
		HourlyCap:   cfg.HourlyCap(now),
		QueueLength: q.Len(),
		Queue:       make([]QueueEntry, 0, q.Len()),
		State:       state,
	}
	if !snap.Active {
		next := cfg.NextActiveStart(now)
		snap.NextActiveStart = &next
	}
	snap.ReleasedThisHour = state.Released(snap.Bucket)
	snap.Budget = max(0, snap.HourlyCap-snap.ReleasedThisHour)

	for _, item := range q.Items {
		entry := QueueEntry{Item: item}
		publishAt, err := item.PublishTime()
		switch {
		case err != nil:
			entry.Anomaly = err.Error()
			snap.Anomalies++
		case !publishAt.After(now):
			entry.Due = true
			snap.Due++
		}
		snap.Queue = append(snap.Queue, entry)
	}
	return snap, nil
}
