// Package intel provides a client for the partner-discovery and
// market-intelligence API.
package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.partnerintel.io/v1"

// Client performs discovery queries against the market-intelligence API.
type Client interface {
	// SearchOrganizations finds fresh candidate organizations near a location
	// matching the requested industries.
	SearchOrganizations(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest describes a discovery search.
type SearchRequest struct {
	Location   string   `json:"location"`
	Industries []string `json:"industries"`
	Limit      int      `json:"limit"`
}

// SearchResponse is the parsed search response.
type SearchResponse struct {
	Organizations []Organization `json:"organizations"`
}

// Organization is a discovered organization with best-effort
// market-intelligence fields. Missing fields stay zero-valued.
type Organization struct {
	Name          string   `json:"name"`
	Sector        string   `json:"sector"`
	SizeClass     string   `json:"size_class"`
	Location      string   `json:"location"`
	Website       string   `json:"website"`
	InferredNeeds []string `json:"inferred_needs"`
	OpenPositions int      `json:"open_positions"`
	JobSignals    []string `json:"job_signals"`
	Technologies  []string `json:"technologies"`
	FundingStage  string   `json:"funding_stage"`
}

// StatusError reports a non-2xx API response. RetryAfter carries the
// Retry-After header value when the API returned one.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return "intel: unexpected status " + strconv.Itoa(e.StatusCode)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (2 req/s).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates an intel API client. Requests are throttled to 2 req/s by
// default to respect the provider's rate limit.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(2, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchOrganizations(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "intel: rate limit")
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "intel: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/organizations:search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "intel: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "intel: search organizations")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "intel: read response")
	}

	if resp.StatusCode != http.StatusOK {
		se := &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, parseErr := strconv.Atoi(ra); parseErr == nil {
				se.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, eris.Wrap(se, "intel: search organizations")
	}

	var out SearchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "intel: decode response")
	}
	return &out, nil
}
