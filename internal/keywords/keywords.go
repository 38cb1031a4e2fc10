// Package keywords looks up market data for search terms from an external
// keyword metrics service.
package keywords

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/linkscope/internal/config"
)

// Metrics is the market data for one keyword.
type Metrics struct {
	Keyword    string `json:"keyword"`
	Volume     int    `json:"volume"`
	Difficulty int    `json:"difficulty"`
	Intent     string `json:"intent"`
}

// Client calls the keyword metrics endpoint.
type Client struct {
	endpoint string
	apiKey   string
	limiter  *rate.Limiter
	client   *http.Client
}

// New returns a client, or nil when lookups are disabled or no credentials
// are available. A nil client is a valid "not configured" value.
func New(cfg config.Keywords) *Client {
	if !cfg.Enabled || strings.TrimSpace(cfg.Endpoint) == "" {
		return nil
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil
	}
	return NewClient(cfg.Endpoint, key, cfg.RateLimitRPS)
}

// NewClient creates a client for endpoint. rps <= 0 disables rate limiting.
func NewClient(endpoint, apiKey string, rps float64) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// Configured reports whether lookups can be made.
func (c *Client) Configured() bool {
	return c != nil
}

// Lookup fetches metrics for a single term.
func (c *Client) Lookup(ctx context.Context, term string) (Metrics, error) {
	if c == nil {
		return Metrics{}, fmt.Errorf("keyword metrics not configured")
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return Metrics{}, fmt.Errorf("empty keyword")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Metrics{}, err
		}
	}

	data, err := json.Marshal(map[string]string{"keyword": term})
	if err != nil {
		return Metrics{}, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return Metrics{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Metrics{}, fmt.Errorf("keyword lookup %q: %w", term, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Metrics{}, fmt.Errorf("keyword API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var m Metrics
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return Metrics{}, fmt.Errorf("decoding keyword metrics: %w", err)
	}
	if m.Keyword == "" {
		m.Keyword = term
	}
	return m, nil
}
