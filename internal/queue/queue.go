// Package queue is the durable FIFO of admitted items waiting for release.
package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

var (
	ErrDuplicateRef = errors.New("content ref already queued")
	ErrNotFuture    = errors.New("publish_at must be after queued_at")
)

// Item timestamps stay as the raw strings found on disk so a hand-edited or
// corrupted value surfaces as an anomaly at release time instead of failing
// the whole load.
type Item struct {
	ContentRef string `json:"content_ref"`
	Path       string `json:"path"`
	Keyword    string `json:"keyword"`
	Category   string `json:"category"`
	QueuedAt   string `json:"queued_at"`
	PublishAt  string `json:"publish_at"`
}

func NewItem(ref, path, keyword, category string, queuedAt, publishAt time.Time) Item {
	return Item{
		ContentRef: ref,
		Path:       path,
		Keyword:    keyword,
		Category:   category,
		QueuedAt:   queuedAt.Format(time.RFC3339),
		PublishAt:  publishAt.Format(time.RFC3339),
	}
}

func (i Item) PublishTime() (time.Time, error) {
	return parseTimestamp("publish_at", i.PublishAt)
}

func (i Item) QueuedTime() (time.Time, error) {
	return parseTimestamp("queued_at", i.QueuedAt)
}

func parseTimestamp(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is empty", field)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s %q is not RFC3339: %w", field, raw, err)
	}
	return t, nil
}

type Queue struct {
	Items []Item
}

// Load reads the queue file; a missing file is an empty queue.
func Load(path string) (*Queue, error) {
	var items []Item
	if _, err := store.ReadJSON(path, &items); err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return &Queue{Items: items}, nil
}

func (q *Queue) Save(path string) error {
	items := q.Items
	if items == nil {
		items = []Item{}
	}
	if err := store.WriteJSON(path, items); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

func (q *Queue) Len() int {
	return len(q.Items)
}

func (q *Queue) Contains(ref string) bool {
	for _, item := range q.Items {
		if item.ContentRef == ref {
			return true
		}
	}
	return false
}

// Append adds item at the tail, refusing duplicate refs and non-future release times.
func (q *Queue) Append(item Item) error {
	if strings.TrimSpace(item.ContentRef) == "" {
		return fmt.Errorf("content_ref is required")
	}
	if q.Contains(item.ContentRef) {
		return fmt.Errorf("%w: %s", ErrDuplicateRef, item.ContentRef)
	}
	queuedAt, err := item.QueuedTime()
	if err != nil {
		return err
	}
	publishAt, err := item.PublishTime()
	if err != nil {
		return err
	}
	if !publishAt.After(queuedAt) {
		return fmt.Errorf("%w: %s <= %s", ErrNotFuture, item.PublishAt, item.QueuedAt)
	}
	q.Items = append(q.Items, item)
	return nil
}

// Remove drops the item with ref and reports whether it was present.
func (q *Queue) Remove(ref string) bool {
	for i, item := range q.Items {
		if item.ContentRef == ref {
			q.Items = append(q.Items[:i:i], q.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Tail is the latest parseable publish_at in the queue.
func (q *Queue) Tail() (time.Time, bool) {
	var tail time.Time
	found := false
	for _, item := range q.Items {
		t, err := item.PublishTime()
		if err != nil {
			continue
		}
		if !found || t.After(tail) {
			tail = t
			found = true
		}
	}
	return tail, found
}
