package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/schema"
	"github.com/Fzero1925/ai-discovery-sub000/internal/store"
)

const maxCollectorBody = 8 << 20

// Collector fetches raw records from one external source.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]Record, error)
}

// HTTPCollector GETs a JSON array of records, or an object wrapping one under
// "records", "signals" or "items".
type HTTPCollector struct {
	endpoint string
	client   *http.Client
}

func NewHTTPCollector(endpoint string, timeout time.Duration) *HTTPCollector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPCollector{
		endpoint: strings.TrimSpace(endpoint),
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCollector) Name() string {
	return c.endpoint
}

func (c *HTTPCollector) Collect(ctx context.Context) ([]Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build collector request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collector request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCollectorBody))
	if err != nil {
		return nil, fmt.Errorf("read collector response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("collector status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return decodeRecords(body)
}

func decodeRecords(body []byte) ([]Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode collector response: %w", err)
	}

	var list []any
	switch t := value.(type) {
	case []any:
		list = t
	case map[string]any:
		for _, key := range []string{"records", "signals", "items", "data"} {
			if inner, ok := t[key].([]any); ok {
				list = inner
				break
			}
		}
		if list == nil {
			return nil, fmt.Errorf("collector response object has no record list")
		}
	default:
		return nil, fmt.Errorf("collector response must be an array or object")
	}

	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out, nil
}

// Snapshot is the durable copy of the last successful refresh.
type Snapshot struct {
	FetchedAt time.Time `json:"fetched_at"`
	Sources   []string  `json:"sources,omitempty"`
	Signals   []Signal  `json:"signals"`
}

// RefreshResult says where the signals of a run came from.
type RefreshResult struct {
	Signals        []Signal
	FromSnapshot   bool
	CollectorsOK   int
	CollectorsFail int
	Dropped        int
	FetchedAt      time.Time
}

// Refresher polls every collector once per run and falls back to the last
// snapshot when none succeeds.
type Refresher struct {
	collectors   []Collector
	snapshotPath string
	logger       zerolog.Logger
}

func NewRefresher(collectors []Collector, snapshotPath string, logger zerolog.Logger) *Refresher {
	return &Refresher{
		collectors:   collectors,
		snapshotPath: snapshotPath,
		logger:       logger,
	}
}

func (r *Refresher) Refresh(ctx context.Context, now time.Time) (RefreshResult, error) {
	var (
		result  RefreshResult
		records []Record
		sources []string
	)
	for _, c := range r.collectors {
		got, err := c.Collect(ctx)
		if err != nil {
			result.CollectorsFail++
			r.logger.Warn().Err(err).Str("collector", c.Name()).Msg("collector refresh failed")
			continue
		}
		result.CollectorsOK++
		sources = append(sources, c.Name())
		records = append(records, got...)
	}

	if result.CollectorsOK == 0 {
		snap, err := LoadSnapshot(r.snapshotPath)
		if err != nil {
			return result, err
		}
		result.Signals = snap.Signals
		result.FromSnapshot = true
		result.FetchedAt = snap.FetchedAt
		r.logger.Info().
			Int("signals", len(snap.Signals)).
			Time("fetched_at", snap.FetchedAt).
			Msg("using signal snapshot")
		return result, nil
	}

	signals, errs := Normalize(records, now)
	for _, err := range errs {
		r.logger.Debug().Err(err).Msg("dropped collector record")
	}
	result.Signals = signals
	result.Dropped = len(errs)
	result.FetchedAt = now.UTC()

	snap := Snapshot{FetchedAt: now.UTC(), Sources: sources, Signals: signals}
	if err := SaveSnapshot(r.snapshotPath, snap); err != nil {
		// The fresh signals are still usable for this run.
		r.logger.Warn().Err(err).Str("path", r.snapshotPath).Msg("failed to persist signal snapshot")
	}
	return result, nil
}

// LoadSnapshot reads and schema-checks the snapshot; a missing file is empty.
func LoadSnapshot(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read signal snapshot: %w", err)
	}
	var snap Snapshot
	if err := schema.ValidateInto(schema.SignalSnapshot, raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("signal snapshot %s: %w", path, err)
	}
	return snap, nil
}

func SaveSnapshot(path string, snap Snapshot) error {
	if snap.Signals == nil {
		snap.Signals = []Signal{}
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode signal snapshot: %w", err)
	}
	if _, err := schema.Validate(schema.SignalSnapshot, raw); err != nil {
		return fmt.Errorf("signal snapshot: %w", err)
	}
	return store.WriteFile(path, append(raw, '\n'))
}
