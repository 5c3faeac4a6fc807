// Package signal turns heterogeneous collector records into uniform Signals.
package signal

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Signal is a single observation of a topic from one source.
type Signal struct {
	Keyword    string    `json:"keyword"`
	Source     string    `json:"source"`
	RawText    string    `json:"raw_text"`
	ObservedAt time.Time `json:"observed_at"`
}

// Record is one collector record as decoded from JSON.
type Record map[string]any

var (
	keywordFields  = []string{"keyword", "query", "term", "topic", "title"}
	sourceFields   = []string{"source", "platform", "origin", "site"}
	textFields     = []string{"raw_text", "rawText", "text", "content", "body", "snippet", "summary", "description"}
	observedFields = []string{"observed_at", "observedAt", "timestamp", "published_at", "created_at", "time", "date"}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// Normalize converts records into Signals. Records without a keyword are
// dropped and reported; a missing timestamp is read as observed at now and a
// missing source as "unknown".
func Normalize(records []Record, now time.Time) ([]Signal, []error) {
	out := make([]Signal, 0, len(records))
	var errs []error
	for i, rec := range records {
		sig, err := normalizeRecord(rec, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		out = append(out, sig)
	}
	return out, errs
}

func normalizeRecord(rec Record, now time.Time) (Signal, error) {
	keyword := collapseSpace(firstString(rec, keywordFields))
	if keyword == "" {
		return Signal{}, fmt.Errorf("missing keyword")
	}

	source := strings.ToLower(collapseSpace(firstString(rec, sourceFields)))
	if source == "" {
		source = "unknown"
	}

	observedAt := now
	if raw, ok := firstValue(rec, observedFields); ok {
		t, err := parseObservedAt(raw)
		if err != nil {
			return Signal{}, err
		}
		observedAt = t
	}
	if observedAt.After(now) {
		observedAt = now
	}

	return Signal{
		Keyword:    keyword,
		Source:     source,
		RawText:    strings.TrimSpace(firstString(rec, textFields)),
		ObservedAt: observedAt.UTC(),
	}, nil
}

// NormalizeKeyword is the grouping key for topics.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(collapseSpace(keyword))
}

func firstValue(rec Record, fields []string) (any, bool) {
	for _, field := range fields {
		if v, ok := rec[field]; ok && v != nil {
			if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
				continue
			}
			return v, true
		}
	}
	return nil, false
}

func firstString(rec Record, fields []string) string {
	v, ok := firstValue(rec, fields)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func parseObservedAt(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		raw := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return parsed, nil
			}
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return fromUnix(n), nil
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable timestamp %q", t.String())
		}
		return fromUnix(n), nil
	case float64:
		return fromUnix(t), nil
	case int64:
		return fromUnix(float64(t)), nil
	case int:
		return fromUnix(float64(t)), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// fromUnix accepts seconds or milliseconds since the epoch.
func fromUnix(n float64) time.Time {
	if n > 1e12 {
		n /= 1000
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
