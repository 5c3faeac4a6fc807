package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publishstate"
	"github.com/Fzero1925/ai-discovery-sub000/internal/queue"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

type fixture struct {
	dir        string
	queueFile  string
	stateFile  string
	reportsDir string
	content    *content.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:        dir,
		queueFile:  filepath.Join(dir, "queue.json"),
		stateFile:  filepath.Join(dir, "state.json"),
		reportsDir: filepath.Join(dir, "reports"),
		content:    content.NewStore(filepath.Join(dir, "content")),
	}
}

func (f *fixture) publisher(cfg schedule.Config, now time.Time) *Publisher {
	return New(Deps{
		Config:  cfg,
		Content: f.content,
		Lease:   store.NewFileLease(filepath.Join(f.dir, ".lock"), 0),
		Reports: report.NewEmitter(zerolog.Nop(), report.NewFileSink(f.reportsDir)),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return now },
	}, Options{QueueFile: f.queueFile, StateFile: f.stateFile})
}

// seed writes n drafts whose release times are spread over the two hours before now.
func (f *fixture) seed(t *testing.T, now time.Time, n int) *queue.Queue {
	t.Helper()
	q := &queue.Queue{}
	queuedAt := now.Add(-3 * time.Hour)
	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("ref-%02d", i)
		path, err := f.content.Write(content.Draft{
			Ref:       ref,
			Keyword:   "topic",
			Candidate: content.Candidate{Title: fmt.Sprintf("Story %d", i), Body: "Body text."},
			CreatedAt: queuedAt,
		})
		if err != nil {
			t.Fatalf("write draft: %v", err)
		}
		publishAt := now.Add(-2 * time.Hour).Add(time.Duration(i) * 10 * time.Minute)
		if err := q.Append(queue.NewItem(ref, path, "topic", "news", queuedAt, publishAt)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := q.Save(f.queueFile); err != nil {
		t.Fatalf("save queue: %v", err)
	}
	return q
}

func (f *fixture) isDraft(t *testing.T, path string) bool {
	t.Helper()
	doc, err := f.content.Read(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return doc.Meta.Draft
}

var activeNow = time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

func TestReleasesExactlyTheRemainingBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seeded := f.seed(t, activeNow, 5)
	state := publishstate.State{"2026-06-01 10": 1}
	if err := state.Save(f.stateFile); err != nil {
		t.Fatalf("save state: %v", err)
	}

	res := f.publisher(schedule.DefaultConfig(), activeNow).Run(context.Background())
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	if res.Budget != 2 || len(res.Releases) != 2 || res.Deferred != 3 || res.Remaining != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	for i, r := range res.Releases {
		if r.ContentRef != seeded.Items[i].ContentRef {
			t.Fatalf("release %d out of queue order: %s", i, r.ContentRef)
		}
		if f.isDraft(t, r.Path) {
			t.Fatalf("released item %s still a draft", r.ContentRef)
		}
	}

	q, err := queue.Load(f.queueFile)
	if err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 items left, got %d", q.Len())
	}
	for i, item := range q.Items {
		want := seeded.Items[i+2]
		if item != want {
			t.Fatalf("remaining item changed: got %+v want %+v", item, want)
		}
		if !f.isDraft(t, item.Path) {
			t.Fatalf("deferred item %s must stay a draft", item.ContentRef)
		}
	}

	after, err := publishstate.Load(f.stateFile)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if after.Released("2026-06-01 10") != 3 {
		t.Fatalf("expected bucket count 3, got %d", after.Released("2026-06-01 10"))
	}
}

func TestRerunWithNothingDueIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, activeNow, 2)
	p := f.publisher(schedule.DefaultConfig(), activeNow)

	if res := p.Run(context.Background()); len(res.Releases) != 2 {
		t.Fatalf("expected first run to release 2, got %+v", res)
	}
	queueBefore, _ := os.ReadFile(f.queueFile)
	stateBefore, _ := os.ReadFile(f.stateFile)

	res := p.Run(context.Background())
	if res.Failure != nil || len(res.Releases) != 0 || res.Due != 0 {
		t.Fatalf("expected no-op rerun, got %+v", res)
	}
	queueAfter, _ := os.ReadFile(f.queueFile)
	stateAfter, _ := os.ReadFile(f.stateFile)
	if string(queueBefore) != string(queueAfter) || string(stateBefore) != string(stateAfter) {
		t.Fatalf("rerun must not touch durable files")
	}
}

func TestFutureItemsAreNotDue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, activeNow.Add(3*time.Hour), 2)

	res := f.publisher(schedule.DefaultConfig(), activeNow).Run(context.Background())
	if res.Due != 0 || res.NotDue != 2 || len(res.Releases) != 0 {
		t.Fatalf("expected nothing due, got %+v", res)
	}
}

func TestPausedWindowReleasesNothing(t *testing.T) {
	t.Parallel()

	night := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	f := newFixture(t)
	f.seed(t, night, 3)

	res := f.publisher(schedule.DefaultConfig(), night).Run(context.Background())
	if !res.Paused || len(res.Releases) != 0 || res.Deferred != 3 || res.Remaining != 3 {
		t.Fatalf("expected paused run, got %+v", res)
	}
	if _, err := os.Stat(f.stateFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("paused run must not write state")
	}
}

func TestThrottledNightUsesNightCap(t *testing.T) {
	t.Parallel()

	night := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	cfg := schedule.DefaultConfig()
	cfg.Night.Policy = schedule.PolicyThrottle
	f := newFixture(t)
	f.seed(t, night, 3)

	res := f.publisher(cfg, night).Run(context.Background())
	if res.Paused || res.HourlyCap != 1 || len(res.Releases) != 1 || res.Remaining != 2 {
		t.Fatalf("expected one throttled release, got %+v", res)
	}
}

func TestAnomaliesStayQueued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	q := f.seed(t, activeNow, 3)
	q.Items[0].PublishAt = "yesterday-ish"
	if err := os.Remove(q.Items[1].Path); err != nil {
		t.Fatalf("remove content: %v", err)
	}
	if err := q.Save(f.queueFile); err != nil {
		t.Fatalf("save queue: %v", err)
	}

	res := f.publisher(schedule.DefaultConfig(), activeNow).Run(context.Background())
	if res.Failure != nil {
		t.Fatalf("anomalies must not fail the run: %v", res.Failure)
	}
	if len(res.Anomalies) != 2 || len(res.Releases) != 1 || res.Releases[0].ContentRef != q.Items[2].ContentRef {
		t.Fatalf("unexpected result %+v", res)
	}

	after, err := queue.Load(f.queueFile)
	if err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if after.Len() != 2 || !after.Contains(q.Items[0].ContentRef) || !after.Contains(q.Items[1].ContentRef) {
		t.Fatalf("anomalous items must remain queued, got %+v", after.Items)
	}

	latest, found, err := report.LoadLatest(f.reportsDir, report.KindPublish)
	if err != nil || !found || latest.Counts["anomalies"] != 2 {
		t.Fatalf("expected report with 2 anomalies, got %+v found=%v err=%v", latest, found, err)
	}
}

func TestCorruptStateFailsWithoutReleasing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	q := f.seed(t, activeNow, 2)
	if err := os.WriteFile(f.stateFile, []byte("[1,2"), 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}

	res := f.publisher(schedule.DefaultConfig(), activeNow).Run(context.Background())
	if !errors.Is(res.Failure, ErrStorage) {
		t.Fatalf("expected storage failure, got %v", res.Failure)
	}
	if len(res.Releases) != 0 {
		t.Fatalf("failed run must release nothing")
	}
	for _, item := range q.Items {
		if !f.isDraft(t, item.Path) {
			t.Fatalf("%s must stay a draft", item.ContentRef)
		}
	}
	if rep := res.Report(); rep.Status != report.StatusFailed || rep.Counts["released"] != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
