package schedule

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCursorStrictlyIncreasingWithinBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	s := New(cfg, rand.New(rand.NewSource(42)))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	cursor := s.Start(now, time.Time{})

	prev := now
	for i := 0; i < 200; i++ {
		before := cursor.At()
		regime := cfg.RegimeAt(before, "general")
		step := cursor.Next("general")
		if !step.PublishAt.After(prev) {
			t.Fatalf("step %d: %s not after %s", i, step.PublishAt, prev)
		}
		if !step.Deferred {
			gap := step.PublishAt.Sub(before)
			if gap < time.Duration(regime.MinIntervalMin)*time.Minute || gap > time.Duration(regime.MaxIntervalMin)*time.Minute {
				t.Fatalf("step %d: gap %s outside [%d,%d] min", i, gap, regime.MinIntervalMin, regime.MaxIntervalMin)
			}
		} else if !cfg.IsActive(step.PublishAt) {
			t.Fatalf("step %d: deferred release %s still outside active hours", i, step.PublishAt)
		}
		if cfg.Paused(step.PublishAt) {
			t.Fatalf("step %d: release scheduled in paused window at %s", i, step.PublishAt)
		}
		prev = step.PublishAt
	}
}

func TestCursorStartsAtQueueTail(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), rand.New(rand.NewSource(1)))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	tail := now.Add(2 * time.Hour)

	step := s.Start(now, tail).Next("general")
	if !step.PublishAt.After(tail) {
		t.Fatalf("expected release after queue tail %s, got %s", tail, step.PublishAt)
	}
}

func TestPauseDefersToNextActiveStart(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.JitterMaxMin = 0
	s := New(cfg, rand.New(rand.NewSource(3)))
	now := time.Date(2026, 6, 1, 22, 50, 0, 0, time.UTC)

	step := s.Start(now, time.Time{}).Next("general")
	want := time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)
	if !step.Deferred || !step.PublishAt.Equal(want) {
		t.Fatalf("expected deferral to %s, got %+v", want, step)
	}
}

func TestThrottleUsesNightRegime(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Night.Policy = PolicyThrottle
	s := New(cfg, rand.New(rand.NewSource(5)))
	now := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)

	step := s.Start(now, time.Time{}).Next("general")
	if step.Deferred {
		t.Fatalf("throttle should not defer")
	}
	if step.Gap < 60*time.Minute || step.Gap > 120*time.Minute {
		t.Fatalf("expected night gap within [60,120] min, got %s", step.Gap)
	}
	if cfg.HourlyCap(now) != 1 {
		t.Fatalf("expected night cap 1, got %d", cfg.HourlyCap(now))
	}
}

func TestCategoryOverride(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CategoryOverrides = map[string]Override{
		"news": {Day: &Spacing{MinIntervalMin: 5, MaxIntervalMin: 8}},
	}
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := cfg.RegimeAt(at, "News"); got.MinIntervalMin != 5 || got.MaxIntervalMin != 8 || got.MaxPerHour != cfg.Day.MaxPerHour {
		t.Fatalf("expected override spacing under the shared cap, got %+v", got)
	}
	if got := cfg.RegimeAt(at, "review"); got != cfg.Day {
		t.Fatalf("expected default day regime, got %+v", got)
	}
}

func TestIsActiveWrapsMidnight(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ActiveHours = ActiveHours{Start: 20, End: 4}
	cases := map[int]bool{19: false, 20: true, 23: true, 0: true, 3: true, 4: false, 12: false}
	for hour, want := range cases {
		at := time.Date(2026, 6, 1, hour, 30, 0, 0, time.UTC)
		if got := cfg.IsActive(at); got != want {
			t.Fatalf("IsActive(%02d:30) = %v, want %v", hour, got, want)
		}
	}
	next := cfg.NextActiveStart(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	if !next.Equal(time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next active start %s", next)
	}
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	missing, err := LoadConfig(filepath.Join(dir, "none.json"))
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if missing.Day.MaxPerHour != 3 || missing.Night.Policy != PolicyPause {
		t.Fatalf("expected defaults, got %+v", missing)
	}

	path := filepath.Join(dir, "scheduler.json")
	raw := `{"timezone":"Asia/Shanghai","day":{"max_per_hour":4},"night":{"policy":"throttle"}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Day.MaxPerHour != 4 || cfg.Day.MinIntervalMin != 15 || cfg.Night.Policy != PolicyThrottle {
		t.Fatalf("expected partial override over defaults, got %+v", cfg)
	}
	if cfg.Location().String() != "Asia/Shanghai" {
		t.Fatalf("expected resolved location, got %s", cfg.Location())
	}
}

func TestLoadConfigOverridesCarrySpacingOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.json")
	raw := `{"category_overrides":{"news":{"night":{"min_interval_min":20,"max_interval_min":30}}},"night":{"policy":"throttle"}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	night := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	got := cfg.RegimeAt(night, "news")
	if got.MinIntervalMin != 20 || got.MaxIntervalMin != 30 || got.MaxPerHour != cfg.HourlyCap(night) {
		t.Fatalf("expected news spacing with the night cap, got %+v (cap %d)", got, cfg.HourlyCap(night))
	}

	capped := filepath.Join(dir, "capped.json")
	raw = `{"category_overrides":{"news":{"day":{"max_per_hour":9,"min_interval_min":5,"max_interval_min":8}}}}`
	if err := os.WriteFile(capped, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(capped); err == nil {
		t.Fatalf("expected a per-category max_per_hour to be rejected")
	}
}

func TestLoadConfigRejectsInvertedIntervals(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scheduler.json")
	if err := os.WriteFile(path, []byte(`{"day":{"min_interval_min":30,"max_interval_min":10}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected inverted interval error")
	}
}
