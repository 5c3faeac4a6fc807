// Package schedule holds the scheduler config and computes release times for
// newly admitted items.
package schedule

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/schema"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

type Policy string

const (
	PolicyPause    Policy = "pause"
	PolicyThrottle Policy = "throttle"
)

// Regime is the release pace for one part of the day.
type Regime struct {
	MaxPerHour     int `json:"max_per_hour"`
	MinIntervalMin int `json:"min_interval_min"`
	MaxIntervalMin int `json:"max_interval_min"`
}

type NightRegime struct {
	Policy         Policy `json:"policy"`
	MaxPerHour     int    `json:"max_per_hour"`
	MinIntervalMin int    `json:"min_interval_min"`
	MaxIntervalMin int    `json:"max_interval_min"`
}

func (n NightRegime) Regime() Regime {
	return Regime{MaxPerHour: n.MaxPerHour, MinIntervalMin: n.MinIntervalMin, MaxIntervalMin: n.MaxIntervalMin}
}

// ActiveHours is a [Start, End) window of local hours; Start > End wraps past
// midnight and Start == End means always active.
type ActiveHours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Spacing is the interval part of a regime. Category overrides only carry
// spacing; the hourly cap is shared by every category.
type Spacing struct {
	MinIntervalMin int `json:"min_interval_min"`
	MaxIntervalMin int `json:"max_interval_min"`
}

type Override struct {
	Day   *Spacing `json:"day,omitempty"`
	Night *Spacing `json:"night,omitempty"`
}

type Config struct {
	Timezone          string              `json:"timezone"`
	ActiveHours       ActiveHours         `json:"active_hours"`
	Day               Regime              `json:"day"`
	Night             NightRegime         `json:"night"`
	JitterMaxMin      int                 `json:"jitter_max_min"`
	CategoryOverrides map[string]Override `json:"category_overrides,omitempty"`

	loc *time.Location
}

func DefaultConfig() Config {
	return Config{
		Timezone:    "UTC",
		ActiveHours: ActiveHours{Start: 8, End: 23},
		Day: Regime{
			MaxPerHour:     3,
			MinIntervalMin: 15,
			MaxIntervalMin: 45,
		},
		Night: NightRegime{
			Policy:         PolicyPause,
			MaxPerHour:     1,
			MinIntervalMin: 60,
			MaxIntervalMin: 120,
		},
		JitterMaxMin: 10,
		loc:          time.UTC,
	}
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read scheduler config: %w", err)
	}
	if err := schema.ValidateInto(schema.SchedulerConfig, raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("scheduler config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("scheduler config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg, typically to materialize the defaults on first run.
func SaveConfig(path string, cfg Config) error {
	return store.WriteJSON(path, cfg)
}

// Validate checks ranges and resolves the timezone.
func (c *Config) Validate() error {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	c.Timezone = tz
	c.loc = loc

	if c.ActiveHours.Start < 0 || c.ActiveHours.Start > 23 || c.ActiveHours.End < 0 || c.ActiveHours.End > 23 {
		return fmt.Errorf("active_hours must be within 0-23")
	}
	if err := c.Day.validate("day"); err != nil {
		return err
	}
	switch c.Night.Policy {
	case PolicyPause, PolicyThrottle:
	default:
		return fmt.Errorf("night.policy must be pause or throttle, got %q", c.Night.Policy)
	}
	if err := c.Night.Regime().validate("night"); err != nil {
		return err
	}
	if c.JitterMaxMin < 0 {
		return fmt.Errorf("jitter_max_min must be >= 0")
	}
	for category, o := range c.CategoryOverrides {
		if o.Day != nil {
			if err := o.Day.validate("category_overrides." + category + ".day"); err != nil {
				return err
			}
		}
		if o.Night != nil {
			if err := o.Night.validate("category_overrides." + category + ".night"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r Regime) validate(name string) error {
	if r.MaxPerHour < 0 {
		return fmt.Errorf("%s.max_per_hour must be >= 0", name)
	}
	return Spacing{MinIntervalMin: r.MinIntervalMin, MaxIntervalMin: r.MaxIntervalMin}.validate(name)
}

func (s Spacing) validate(name string) error {
	if s.MinIntervalMin < 1 {
		return fmt.Errorf("%s.min_interval_min must be >= 1", name)
	}
	if s.MaxIntervalMin < s.MinIntervalMin {
		return fmt.Errorf("%s.max_interval_min must be >= min_interval_min", name)
	}
	return nil
}

func (r Regime) withSpacing(s *Spacing) Regime {
	if s != nil {
		r.MinIntervalMin, r.MaxIntervalMin = s.MinIntervalMin, s.MaxIntervalMin
	}
	return r
}

func (c Config) Location() *time.Location {
	if c.loc == nil {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
		return time.UTC
	}
	return c.loc
}

// IsActive reports whether t falls inside the active-hours window.
func (c Config) IsActive(t time.Time) bool {
	start, end := c.ActiveHours.Start, c.ActiveHours.End
	if start == end {
		return true
	}
	h := t.In(c.Location()).Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// Paused reports whether releases are suspended at t.
func (c Config) Paused(t time.Time) bool {
	return !c.IsActive(t) && c.Night.Policy == PolicyPause
}

// RegimeAt is the pace at t for category, with the category's spacing
// override applied. While paused the day regime applies, since the item will
// be released in the next window.
func (c Config) RegimeAt(t time.Time, category string) Regime {
	day := c.IsActive(t) || c.Night.Policy == PolicyPause
	o := c.CategoryOverrides[strings.ToLower(strings.TrimSpace(category))]
	if day {
		return c.Day.withSpacing(o.Day)
	}
	return c.Night.Regime().withSpacing(o.Night)
}

// HourlyCap is the release ceiling for the hour containing t.
func (c Config) HourlyCap(t time.Time) int {
	if c.IsActive(t) {
		return c.Day.MaxPerHour
	}
	if c.Night.Policy == PolicyPause {
		return 0
	}
	return c.Night.MaxPerHour
}

// NextActiveStart is the first active-window start strictly after t.
func (c Config) NextActiveStart(t time.Time) time.Time {
	loc := c.Location()
	local := t.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), c.ActiveHours.Start, 0, 0, 0, loc)
	for !next.After(t) {
		next = next.AddDate(0, 0, 1)
		next = time.Date(next.Year(), next.Month(), next.Day(), c.ActiveHours.Start, 0, 0, 0, loc)
	}
	return next
}
