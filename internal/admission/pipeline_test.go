package admission

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
	"github.com/Fzero1925/ai-discovery-sub000/internal/generator"
	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/quality"
	"github.com/Fzero1925/ai-discovery-sub000/internal/queue"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
	"github.com/Fzero1925/ai-discovery-sub000/internal/schedule"
	"github.com/Fzero1925/ai-discovery-sub000/internal/scoring"
	"github.com/Fzero1925/ai-discovery-sub000/internal/signal"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

var syllables = []string{"ka", "lo", "mi", "ren", "tas", "vo", "pel", "dri", "sun", "mar", "fi", "gol", "ne", "bra", "tu", "xis", "ol", "qua", "zen", "hap"}

func sentences(seed int64, n int) []string {
	rng := rand.New(rand.NewSource(seed))
	lengths := []int{12, 17, 9, 21, 14, 19}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words := make([]string, lengths[i%len(lengths)])
		for w := range words {
			var b strings.Builder
			for s := 0; s < 3; s++ {
				b.WriteString(syllables[rng.Intn(len(syllables))])
			}
			words[w] = b.String()
		}
		words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
		out = append(out, strings.Join(words, " ")+".")
	}
	return out
}

type candidateSpec struct {
	title     string
	sentences []string
	alt       bool
	link      bool
}

// shortCandidate renders a short-form news candidate with two sections and one image.
func shortCandidate(spec candidateSpec) content.Candidate {
	half := len(spec.sentences) / 2
	alt := ""
	if spec.alt {
		alt = "Status dashboard during the incident"
	}
	var b strings.Builder
	b.WriteString("## What happened\n\n")
	fmt.Fprintf(&b, "![%s](/images/status.png)\n\n", alt)
	b.WriteString(strings.Join(spec.sentences[:half], " "))
	b.WriteString("\n\n## What comes next\n\n")
	b.WriteString(strings.Join(spec.sentences[half:], " "))
	if spec.link {
		b.WriteString(" I wrote about [the previous incident](/posts/previous-incident/) too.")
	}
	b.WriteString("\n")
	return content.Candidate{
		Title:    spec.title,
		Body:     b.String(),
		Category: "news",
		Metadata: content.Metadata{
			Categories:  []string{"Reliability"},
			Tags:        []string{"outage"},
			Images:      []string{"/images/status.png"},
			Description: "A short recap of the incident.",
		},
	}
}

func goodCandidate(title string, seed int64) content.Candidate {
	return shortCandidate(candidateSpec{title: title, sentences: sentences(seed, 10), alt: true, link: true})
}

type stubGenerator struct {
	calls int
	fn    func(call int, req generator.Request) (content.Candidate, error)
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(_ context.Context, req generator.Request) (content.Candidate, error) {
	s.calls++
	return s.fn(s.calls, req)
}

type staticSignals struct {
	signals []signal.Signal
	err     error
}

func (s staticSignals) Refresh(context.Context, time.Time) (signal.RefreshResult, error) {
	return signal.RefreshResult{Signals: s.signals}, s.err
}

type recordingLedger struct {
	runs       []ledger.Run
	admissions []ledger.Admission
}

func (r *recordingLedger) RecordRun(_ context.Context, run ledger.Run) error {
	r.runs = append(r.runs, run)
	return nil
}

func (r *recordingLedger) RecordAdmission(_ context.Context, a ledger.Admission) error {
	r.admissions = append(r.admissions, a)
	return nil
}

func (r *recordingLedger) RecordRelease(context.Context, ledger.Release) error { return nil }

type fixture struct {
	dir        string
	queueFile  string
	contentDir string
	reportsDir string
	ledger     *recordingLedger
	gen        *stubGenerator
}

func newFixture(t *testing.T, gen func(call int, req generator.Request) (content.Candidate, error)) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:        dir,
		queueFile:  filepath.Join(dir, "data", "queue.json"),
		contentDir: filepath.Join(dir, "content"),
		reportsDir: filepath.Join(dir, "reports"),
		ledger:     &recordingLedger{},
		gen:        &stubGenerator{fn: gen},
	}
}

func (f *fixture) pipeline(t *testing.T, gate float64, opts Options, signals SignalSource) *Pipeline {
	t.Helper()
	lex, err := scoring.DefaultLexicon()
	if err != nil {
		t.Fatalf("default lexicon: %v", err)
	}
	now := func() time.Time { return testNow }
	opts.QueueFile = f.queueFile
	if signals == nil {
		signals = staticSignals{}
	}
	return New(Deps{
		Signals:   signals,
		Scorer:    scoring.NewScorer(lex, scoring.Options{Now: now, ValidationThreshold: 2}),
		Generator: f.gen,
		Assessor:  quality.NewAssessor(quality.Options{Gate: gate, ShortFormCategories: []string{"news"}}),
		Content:   content.NewStore(f.contentDir),
		Scheduler: schedule.New(schedule.DefaultConfig(), rand.New(rand.NewSource(11))),
		Lease:     store.NewFileLease(filepath.Join(f.dir, ".lock"), 0),
		Ledger:    f.ledger,
		Reports:   report.NewEmitter(zerolog.Nop(), report.NewFileSink(f.reportsDir)),
		Logger:    zerolog.Nop(),
		Now:       now,
	}, opts)
}

func (f *fixture) markdownFiles(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.contentDir, "*.md"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

func topic(keyword string, score float64) scoring.ControversyAnalysis {
	return scoring.ControversyAnalysis{
		Topic:        keyword,
		OverallScore: score,
		Confidence:   1,
		Category:     scoring.CategoryReliability,
		RiskLevel:    scoring.ClassifyRisk(score),
	}
}

func TestRunAdmitsScoredTopic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ int, req generator.Request) (content.Candidate, error) {
		if req.Context.Sources != 2 {
			return content.Candidate{}, fmt.Errorf("expected 2 corroborating sources, got %d", req.Context.Sources)
		}
		return goodCandidate("Serious outage at X", 1), nil
	})
	signals := staticSignals{signals: []signal.Signal{
		{Keyword: "X", Source: "A", RawText: "X has a serious outage", ObservedAt: testNow},
		{Keyword: "X", Source: "B", RawText: "X has a serious outage", ObservedAt: testNow},
	}}
	p := f.pipeline(t, 50, Options{Target: 5, MinTopicScore: 15, RefreshCorpus: true}, signals)

	res := p.Run(context.Background())
	if res.Failure != nil {
		t.Fatalf("unexpected failure: %v", res.Failure)
	}
	if res.Signals != 2 || res.Topics != 1 || res.Admitted != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}

	q, err := queue.Load(f.queueFile)
	if err != nil {
		t.Fatalf("load queue: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued item, got %d", q.Len())
	}
	item := q.Items[0]
	publishAt, _ := item.PublishTime()
	queuedAt, _ := item.QueuedTime()
	if !publishAt.After(queuedAt) {
		t.Fatalf("publish_at %s must follow queued_at %s", item.PublishAt, item.QueuedAt)
	}

	doc, err := content.NewStore(f.contentDir).Read(item.Path)
	if err != nil {
		t.Fatalf("read admitted content: %v", err)
	}
	if !doc.Meta.Draft || doc.Meta.Ref != item.ContentRef || doc.Meta.QualityScore < 50 {
		t.Fatalf("unexpected front matter %+v", doc.Meta)
	}

	latest, found, err := report.LoadLatest(f.reportsDir, report.KindAdmission)
	if err != nil || !found {
		t.Fatalf("expected admission report, found=%v err=%v", found, err)
	}
	if latest.Counts["admitted"] != 1 || latest.Status != report.StatusOK {
		t.Fatalf("unexpected report %+v", latest)
	}
	if len(f.ledger.runs) != 1 || len(f.ledger.admissions) != 1 || f.ledger.admissions[0].Outcome != "admitted" {
		t.Fatalf("unexpected ledger records %+v %+v", f.ledger.runs, f.ledger.admissions)
	}
}

func TestRunSkipsTopicsBelowMinimumScore(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(int, generator.Request) (content.Candidate, error) {
		return goodCandidate("unused", 1), nil
	})
	signals := staticSignals{signals: []signal.Signal{
		{Keyword: "weather", Source: "A", RawText: "a calm sunny afternoon", ObservedAt: testNow},
	}}
	res := f.pipeline(t, 50, Options{MinTopicScore: 15}, signals).Run(context.Background())
	if res.Failure != nil || res.Topics != 0 || f.gen.calls != 0 {
		t.Fatalf("expected no topics selected, got %+v calls=%d", res, f.gen.calls)
	}
}

func TestNearDuplicatesInOneBatch(t *testing.T) {
	t.Parallel()

	base := sentences(5, 20)
	variant := append([]string(nil), base...)
	variant[len(variant)-1] = "Completely different closing words appear here today."

	gen := func(call int, _ generator.Request) (content.Candidate, error) {
		if call == 1 {
			return shortCandidate(candidateSpec{title: "Outage recap", sentences: base, alt: true, link: true}), nil
		}
		return shortCandidate(candidateSpec{title: "Outage recap again", sentences: variant, alt: true, link: true}), nil
	}
	topics := []scoring.ControversyAnalysis{topic("outage one", 60), topic("outage two", 55)}

	t.Run("refreshed corpus rejects the second", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, gen)
		p := f.pipeline(t, 50, Options{Target: 5, RefreshCorpus: true}, nil)
		res := Result{RunID: "test", Outcomes: []Outcome{}}
		p.admitTopics(context.Background(), zerolog.Nop(), topics, &res)
		if res.Failure != nil {
			t.Fatalf("unexpected failure: %v", res.Failure)
		}
		if res.Admitted != 1 || res.RejectedSimilarity != 1 {
			t.Fatalf("expected 1 admitted and 1 duplicate, got %+v", res)
		}
		second := res.Outcomes[1]
		if second.Reason != ReasonDuplicate || second.RejectedAt != StageSimilarityChecked || second.MostSimilar != res.Outcomes[0].ContentRef {
			t.Fatalf("unexpected duplicate outcome %+v", second)
		}
	})

	t.Run("frozen corpus admits both", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, gen)
		p := f.pipeline(t, 50, Options{Target: 5, RefreshCorpus: false}, nil)
		res := Result{RunID: "test", Outcomes: []Outcome{}}
		p.admitTopics(context.Background(), zerolog.Nop(), topics, &res)
		if res.Failure != nil || res.Admitted != 2 {
			t.Fatalf("expected both admitted, got %+v", res)
		}
		if res.QueueLength != 2 {
			t.Fatalf("expected 2 queued items, got %d", res.QueueLength)
		}
	})
}

func TestExistingCorpusRejectsDuplicate(t *testing.T) {
	t.Parallel()

	candidate := goodCandidate("Known story", 9)
	f := newFixture(t, func(int, generator.Request) (content.Candidate, error) { return candidate, nil })
	if _, err := content.NewStore(f.contentDir).Write(content.Draft{Ref: "existing-ref", Keyword: "known", Candidate: candidate, CreatedAt: testNow}); err != nil {
		t.Fatalf("seed corpus: %v", err)
	}

	res := f.pipeline(t, 50, Options{}, nil).Admit(context.Background(), topic("known", 40))
	if res.Admitted != 0 || res.RejectedSimilarity != 1 {
		t.Fatalf("expected duplicate rejection, got %+v", res)
	}
	if got := res.Outcomes[0].MaxSimilarity; got < 0.99 {
		t.Fatalf("expected near-identical similarity, got %f", got)
	}
	if _, err := os.Stat(f.queueFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("queue must not be written when nothing was admitted")
	}
}

func TestSimilarityAtCeilingIsAdmitted(t *testing.T) {
	t.Parallel()

	base := sentences(5, 20)
	variant := append([]string(nil), base...)
	variant[len(variant)-1] = "Completely different closing words appear here today."
	seeded := shortCandidate(candidateSpec{title: "Outage recap", sentences: base, alt: true, link: true})
	candidate := shortCandidate(candidateSpec{title: "Outage recap again", sentences: variant, alt: true, link: true})

	admit := func(t *testing.T, ceiling float64) Result {
		t.Helper()
		f := newFixture(t, func(int, generator.Request) (content.Candidate, error) { return candidate, nil })
		if _, err := content.NewStore(f.contentDir).Write(content.Draft{Ref: "existing-ref", Keyword: "outage", Candidate: seeded, CreatedAt: testNow}); err != nil {
			t.Fatalf("seed corpus: %v", err)
		}
		return f.pipeline(t, 50, Options{SimilarityCeiling: ceiling}, nil).Admit(context.Background(), topic("outage again", 40))
	}

	observed := admit(t, 1)
	if observed.Admitted != 1 {
		t.Fatalf("expected admission under a ceiling of 1, got %+v", observed)
	}
	score := observed.Outcomes[0].MaxSimilarity
	if score <= 0 || score >= 1 {
		t.Fatalf("expected a partial match, got %f", score)
	}

	if res := admit(t, score); res.Admitted != 1 || res.RejectedSimilarity != 0 {
		t.Fatalf("similarity equal to the ceiling must pass, got %+v", res)
	}
	if res := admit(t, score-0.001); res.Admitted != 0 || res.RejectedSimilarity != 1 {
		t.Fatalf("similarity above the ceiling must be rejected, got %+v", res)
	}
}

func TestQualityFailureRunsImproveOnce(t *testing.T) {
	t.Parallel()

	thin := shortCandidate(candidateSpec{title: "Thin", sentences: sentences(3, 3), alt: true, link: true})
	f := newFixture(t, func(int, generator.Request) (content.Candidate, error) { return thin, nil })
	res := f.pipeline(t, 50, Options{}, nil).Admit(context.Background(), topic("thin", 40))
	if res.RejectedQuality != 1 || res.Admitted != 0 {
		t.Fatalf("expected quality rejection, got %+v", res)
	}
	o := res.Outcomes[0]
	if !o.Improved || o.Reason != ReasonQuality || o.RejectedAt != StageQualityChecked {
		t.Fatalf("unexpected outcome %+v", o)
	}
	if files := f.markdownFiles(t); len(files) != 0 {
		t.Fatalf("rejected candidate must not be written, found %v", files)
	}
}

func TestImproveRescuesCandidate(t *testing.T) {
	t.Parallel()

	rough := shortCandidate(candidateSpec{title: "Rough", sentences: sentences(4, 10), alt: false, link: false})
	assessor := quality.NewAssessor(quality.Options{ShortFormCategories: []string{"news"}})
	before := assessor.Assess(rough, quality.ShortForm()).Score
	after := assessor.Assess(quality.Improve(rough), quality.ShortForm()).Score
	if after <= before+1 {
		t.Fatalf("improve should add alt text and links: before=%.2f after=%.2f", before, after)
	}
	gate := (before + after) / 2

	f := newFixture(t, func(int, generator.Request) (content.Candidate, error) { return rough, nil })
	res := f.pipeline(t, gate, Options{}, nil).Admit(context.Background(), topic("rough", 40))
	if res.Admitted != 1 || res.Improved != 1 {
		t.Fatalf("expected improved admission, got %+v", res)
	}
	o := res.Outcomes[0]
	if o.QualityBefore != before || o.QualityScore != after {
		t.Fatalf("unexpected scores %+v (before %.2f after %.2f)", o, before, after)
	}
	doc, err := content.NewStore(f.contentDir).Read(o.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(doc.Body, "Related resources") {
		t.Fatalf("expected the improved body to be stored")
	}
}

func TestTargetStopsAdmission(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(call int, _ generator.Request) (content.Candidate, error) {
		return goodCandidate(fmt.Sprintf("Story %d", call), int64(100+call)), nil
	})
	topics := []scoring.ControversyAnalysis{topic("a", 70), topic("b", 60), topic("c", 50)}
	p := f.pipeline(t, 50, Options{Target: 2, RefreshCorpus: true}, nil)
	res := Result{Outcomes: []Outcome{}}
	p.admitTopics(context.Background(), zerolog.Nop(), topics, &res)
	if res.Admitted != 2 || res.Skipped != 1 || f.gen.calls != 2 {
		t.Fatalf("expected 2 admitted, 1 skipped, got %+v calls=%d", res, f.gen.calls)
	}

	q, err := queue.Load(f.queueFile)
	if err != nil {
		t.Fatalf("load queue: %v", err)
	}
	first, _ := q.Items[0].PublishTime()
	second, _ := q.Items[1].PublishTime()
	if !second.After(first) {
		t.Fatalf("release times must increase in admission order: %s then %s", first, second)
	}
}

func TestGeneratorFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(call int, _ generator.Request) (content.Candidate, error) {
		if call == 1 {
			return content.Candidate{}, errors.New("writer timed out")
		}
		return goodCandidate("Second story", 21), nil
	})
	p := f.pipeline(t, 50, Options{}, nil)
	res := Result{Outcomes: []Outcome{}}
	p.admitTopics(context.Background(), zerolog.Nop(), []scoring.ControversyAnalysis{topic("a", 70), topic("b", 60)}, &res)
	if res.Failure != nil || res.GeneratorFailures != 1 || res.Admitted != 1 {
		t.Fatalf("expected one generator failure and one admission, got %+v", res)
	}
}

func TestUnreadableQueueFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(int, generator.Request) (content.Candidate, error) {
		return goodCandidate("Never written", 1), nil
	})
	if err := os.MkdirAll(filepath.Dir(f.queueFile), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(f.queueFile, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt queue: %v", err)
	}

	res := f.pipeline(t, 50, Options{}, nil).Admit(context.Background(), topic("a", 70))
	if !errors.Is(res.Failure, ErrStorage) {
		t.Fatalf("expected storage failure, got %v", res.Failure)
	}
	if res.Admitted != 0 || f.gen.calls != 0 {
		t.Fatalf("nothing should run after a storage failure: %+v", res)
	}
	raw, _ := os.ReadFile(f.queueFile)
	if string(raw) != "{not json" {
		t.Fatalf("corrupt queue must be left untouched, got %q", raw)
	}
	latest, found, _ := report.LoadLatest(f.reportsDir, report.KindAdmission)
	if !found || latest.Status != report.StatusFailed || latest.Failure == "" {
		t.Fatalf("expected failed report, got %+v", latest)
	}
}

func TestQueueWriteFailureRollsBackContent(t *testing.T) {
	t.Parallel()

	var f *fixture
	f = newFixture(t, func(call int, _ generator.Request) (content.Candidate, error) {
		if call == 2 {
			// Block the queue directory so the final save fails.
			if err := os.WriteFile(filepath.Dir(f.queueFile), []byte("x"), 0o644); err != nil {
				return content.Candidate{}, err
			}
		}
		return goodCandidate(fmt.Sprintf("Story %d", call), int64(call)), nil
	})

	p := f.pipeline(t, 50, Options{Target: 5}, nil)
	res := Result{Outcomes: []Outcome{}}
	p.admitTopics(context.Background(), zerolog.Nop(), []scoring.ControversyAnalysis{topic("a", 70), topic("b", 60)}, &res)
	if !errors.Is(res.Failure, ErrStorage) {
		t.Fatalf("expected storage failure, got %v", res.Failure)
	}
	if res.Admitted != 0 {
		t.Fatalf("failed run must report zero admissions, got %d", res.Admitted)
	}
	for _, o := range res.Outcomes {
		if o.Accepted || o.Reason != ReasonAborted || o.Path != "" {
			t.Fatalf("expected aborted outcome, got %+v", o)
		}
	}
	if files := f.markdownFiles(t); len(files) != 0 {
		t.Fatalf("content of aborted run must be removed, found %v", files)
	}
}

func TestSignalSourceFailureFailsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(int, generator.Request) (content.Candidate, error) { return content.Candidate{}, nil })
	res := f.pipeline(t, 50, Options{}, staticSignals{err: errors.New("snapshot corrupt")}).Run(context.Background())
	if !errors.Is(res.Failure, ErrStorage) {
		t.Fatalf("expected storage failure, got %v", res.Failure)
	}
	if rep := res.Report(); rep.Status != report.StatusFailed || rep.Counts["admitted"] != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestSelectTopics(t *testing.T) {
	t.Parallel()

	p := New(Deps{}, Options{TopN: 2, MinTopicScore: 20})
	got := p.SelectTopics([]scoring.ControversyAnalysis{topic("a", 80), topic("b", 50), topic("c", 30), topic("d", 10)})
	if len(got) != 2 || got[0].Topic != "a" || got[1].Topic != "b" {
		t.Fatalf("unexpected selection %+v", got)
	}
}
