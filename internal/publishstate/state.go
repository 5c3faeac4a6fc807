// Package publishstate keeps the per-hour release counters the Publisher
// checks its hourly cap against.
package publishstate

import (
	"fmt"
	"sort"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

const bucketLayout = "2006-01-02 15"

// keepBuckets bounds how many hours of history survive a save.
const keepBuckets = 24 * 14

// State maps "YYYY-MM-DD HH" in the scheduler timezone to released count.
type State map[string]int

func Bucket(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(bucketLayout)
}

func Load(path string) (State, error) {
	state := State{}
	if _, err := store.ReadJSON(path, &state); err != nil {
		return nil, fmt.Errorf("load publish state: %w", err)
	}
	if state == nil {
		state = State{}
	}
	return state, nil
}

func (s State) Save(path string) error {
	if err := store.WriteJSON(path, s.pruned()); err != nil {
		return fmt.Errorf("save publish state: %w", err)
	}
	return nil
}

func (s State) Released(bucket string) int {
	return s[bucket]
}

func (s State) Increment(bucket string) int {
	s[bucket]++
	return s[bucket]
}

// pruned drops the oldest buckets; the layout sorts chronologically.
func (s State) pruned() State {
	if len(s) <= keepBuckets {
		return s
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(State, keepBuckets)
	for _, k := range keys[len(keys)-keepBuckets:] {
		out[k] = s[k]
	}
	return out
}
