// Package screening consumes the external sanctions-list API and normalizes its
// answer into a domain.ScreeningVerdict. Screening never fails the caller: any
// provider problem yields the neutral verdict with Failed set.
package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/txscreen/internal/domain"
)

// Screener checks a single name against sanctions data.
type Screener interface {
	ScreenName(ctx context.Context, name string) domain.ScreeningVerdict
}

// DefaultSources are the sanctions lists queried on every call.
var DefaultSources = []string{"sdn", "nonsdn", "un", "ofsi", "eu", "dpl", "sema", "bfs", "mxsat", "lfiu"}

const (
	defaultMinScore = 95
	defaultTimeout  = 5 * time.Second
	maxResponseSize = 1 << 20
)

// Options configures the HTTP screening client.
type Options struct {
	URL      string
	APIKey   string
	MinScore int
	Sources  []string
	Timeout  time.Duration
}

// ErrMissingURL indicates the screening endpoint is not configured.
var ErrMissingURL = errors.New("screening API URL is required")

// Client calls the sanctions screening API over HTTP.
type Client struct {
	opts   Options
	http   *http.Client
	logger *slog.Logger
	newID  func() string
}

// NewClient validates opts and builds a Client. A nil httpClient uses a default
// client; the per-call deadline comes from opts.Timeout either way.
func NewClient(opts Options, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if opts.URL == "" {
		return nil, ErrMissingURL
	}
	if opts.MinScore <= 0 {
		opts.MinScore = defaultMinScore
	}
	if len(opts.Sources) == 0 {
		opts.Sources = DefaultSources
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		opts:   opts,
		http:   httpClient,
		logger: logger.With("component", "screening"),
		newID:  uuid.NewString,
	}, nil
}

type screenCase struct {
	Name       string `json:"name"`
	ExternalID string `json:"externalId"`
}

type screenRequest struct {
	APIKey   string       `json:"apiKey"`
	MinScore int          `json:"minScore"`
	Sources  []string     `json:"sources"`
	Cases    []screenCase `json:"cases"`
}

type matchField struct {
	Similarity string `json:"similarity"`
	FieldName  string `json:"fieldName"`
}

type match struct {
	Score        *float64 `json:"score"`
	MatchSummary struct {
		MatchFields []matchField `json:"matchFields"`
	} `json:"matchSummary"`
}

type caseResult struct {
	Name       string  `json:"name"`
	MatchCount *int    `json:"matchCount"`
	Matches    []match `json:"matches"`
}

type screenResponse struct {
	Error   bool         `json:"error"`
	Results []caseResult `json:"results"`
}

// ScreenName screens name and returns the normalized verdict.
func (c *Client) ScreenName(ctx context.Context, name string) domain.ScreeningVerdict {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	verdict, err := c.screen(ctx, name)
	if err != nil {
		c.logger.Warn("sanctions screening failed, using neutral verdict", "error", err)
		failed := domain.NeutralVerdict()
		failed.Failed = true
		return failed
	}
	return verdict
}

func (c *Client) screen(ctx context.Context, name string) (domain.ScreeningVerdict, error) {
	body, err := json.Marshal(screenRequest{
		APIKey:   c.opts.APIKey,
		MinScore: c.opts.MinScore,
		Sources:  c.opts.Sources,
		Cases:    []screenCase{{Name: name, ExternalID: c.newID()}},
	})
	if err != nil {
		return domain.ScreeningVerdict{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(body))
	if err != nil {
		return domain.ScreeningVerdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ScreeningVerdict{}, fmt.Errorf("post screening request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return domain.ScreeningVerdict{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload screenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&payload); err != nil {
		return domain.ScreeningVerdict{}, fmt.Errorf("decode response: %w", err)
	}
	if payload.Error {
		return domain.ScreeningVerdict{}, errors.New("provider reported an error")
	}

	return interpret(payload), nil
}

// interpret reads only the first result and, within it, the first match and its
// first match field. Missing pieces keep the neutral defaults.
func interpret(payload screenResponse) domain.ScreeningVerdict {
	verdict := domain.NeutralVerdict()
	if len(payload.Results) == 0 {
		return verdict
	}

	first := payload.Results[0]
	if first.MatchCount != nil && *first.MatchCount > 0 {
		verdict.MatchCount = *first.MatchCount
	}
	if len(first.Matches) == 0 {
		return verdict
	}

	top := first.Matches[0]
	if top.Score != nil {
		verdict.Score = clampScore(*top.Score)
	}
	if fields := top.MatchSummary.MatchFields; len(fields) > 0 {
		verdict.Similarity = domain.ParseSimilarity(fields[0].Similarity)
	}
	return verdict
}

func clampScore(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
