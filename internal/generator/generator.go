// Package generator obtains candidate documents for selected topics from an
// external writer. Every failure is scoped to one candidate.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
)

// ErrNoCandidate means the generator had nothing for the topic.
var ErrNoCandidate = errors.New("no candidate available")

// Generator produces a candidate for one topic.
type Generator interface {
	Generate(ctx context.Context, req Request) (content.Candidate, error)
	Name() string
}

// Request carries the topic and the scoring context that selected it.
type Request struct {
	Keyword  string       `json:"keyword"`
	Category string       `json:"category"`
	Context  ScoreContext `json:"scoring_context"`
}

type ScoreContext struct {
	OverallScore float64 `json:"overall_score"`
	Confidence   float64 `json:"confidence"`
	Category     string  `json:"category"`
	RiskLevel    string  `json:"risk_level"`
	Trend        string  `json:"trend"`
	Sources      int     `json:"sources"`
}

// Chain tries each generator in order and returns the first candidate.
// ErrNoCandidate moves on to the next generator; other errors are collected.
type Chain []Generator

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, g := range c {
		names = append(names, g.Name())
	}
	return strings.Join(names, ",")
}

func (c Chain) Generate(ctx context.Context, req Request) (content.Candidate, error) {
	if len(c) == 0 {
		return content.Candidate{}, fmt.Errorf("no generators configured")
	}
	var errs []error
	for _, g := range c {
		candidate, err := g.Generate(ctx, req)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, ErrNoCandidate) {
			errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
		}
	}
	if len(errs) == 0 {
		return content.Candidate{}, fmt.Errorf("%w for %q", ErrNoCandidate, req.Keyword)
	}
	return content.Candidate{}, errors.Join(errs...)
}

func validate(c content.Candidate, req Request) (content.Candidate, error) {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return content.Candidate{}, fmt.Errorf("candidate for %q has no title", req.Keyword)
	}
	if strings.TrimSpace(c.Body) == "" {
		return content.Candidate{}, fmt.Errorf("candidate for %q has an empty body", req.Keyword)
	}
	if strings.TrimSpace(c.Category) == "" {
		c.Category = req.Category
	}
	return c, nil
}
