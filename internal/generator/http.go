package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Fzero1925/ai-discovery-sub000/internal/content"
)

// HTTPGenerator posts the request as JSON and expects a candidate back.
// 404 and 204 responses mean the writer declined the topic.
type HTTPGenerator struct {
	endpointURL string
	client      *http.Client
}

func NewHTTPGenerator(endpoint string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HTTPGenerator{
		endpointURL: strings.TrimSpace(endpoint),
		client:      &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGenerator) Name() string {
	return "http"
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (content.Candidate, error) {
	if g == nil || g.endpointURL == "" {
		return content.Candidate{}, fmt.Errorf("generator endpoint is not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return content.Candidate{}, fmt.Errorf("marshal generator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpointURL, bytes.NewReader(body))
	if err != nil {
		return content.Candidate{}, fmt.Errorf("build generator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return content.Candidate{}, fmt.Errorf("send generator request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return content.Candidate{}, fmt.Errorf("read generator response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return content.Candidate{}, fmt.Errorf("%w for %q", ErrNoCandidate, req.Keyword)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return content.Candidate{}, fmt.Errorf("generator status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var candidate content.Candidate
	if err := json.Unmarshal(respBody, &candidate); err != nil {
		return content.Candidate{}, fmt.Errorf("decode generator response: %w", err)
	}
	return validate(candidate, req)
}
