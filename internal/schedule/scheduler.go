package schedule

import (
	"math/rand"
	"time"
)

// Scheduler staggers release times so publication does not arrive in bursts.
type Scheduler struct {
	cfg Config
	rng *rand.Rand
}

// New takes the random source explicitly so tests can seed it.
func New(cfg Config, rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{cfg: cfg, rng: rng}
}

func (s *Scheduler) Config() Config {
	return s.cfg
}

// Cursor hands out strictly increasing release times within one run.
type Cursor struct {
	s  *Scheduler
	at time.Time
}

// Start positions a cursor at the later of now and the current queue tail.
func (s *Scheduler) Start(now time.Time, tail time.Time) *Cursor {
	at := now
	if tail.After(at) {
		at = tail
	}
	return &Cursor{s: s, at: at.Truncate(time.Second)}
}

func (c *Cursor) At() time.Time {
	return c.at
}

// Step records how a release time was derived.
type Step struct {
	PublishAt time.Time
	Gap       time.Duration
	Regime    Regime
	Deferred  bool
}

// Next advances by a random gap from the regime in force at the cursor. If the
// result lands in a paused window it moves to the next active start plus jitter.
func (c *Cursor) Next(category string) Step {
	cfg := c.s.cfg
	regime := cfg.RegimeAt(c.at, category)
	gap := time.Duration(c.s.between(regime.MinIntervalMin, regime.MaxIntervalMin)) * time.Minute

	next := c.at.Add(gap)
	step := Step{Gap: gap, Regime: regime}
	if cfg.Paused(next) {
		jitter := time.Duration(c.s.between(0, cfg.JitterMaxMin)) * time.Minute
		next = cfg.NextActiveStart(next).Add(jitter)
		step.Deferred = true
	}
	c.at = next
	step.PublishAt = next
	return step
}

func (s *Scheduler) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Intn(hi-lo+1)
}
