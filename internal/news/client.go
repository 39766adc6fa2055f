// Package news is a read-through to the configured news upstream
package news

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"virtual_market/internal/core"
)

// Article is one news item
type Article struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Feed is the payload served on /news
type Feed struct {
	Articles []Article `json:"articles"`
}

// fallbackFeed is served whenever no upstream is configured or the
// upstream is unavailable.
var fallbackFeed = Feed{
	Articles: []Article{
		{Title: "Markets open mixed as simulated trading resumes", URL: "https://example.com/markets-open"},
		{Title: "Tech stocks lead early gains in virtual session", URL: "https://example.com/tech-gains"},
		{Title: "Analysts split on direction of simulated indices", URL: "https://example.com/analysts-split"},
	},
}

// Client fetches the upstream feed with retries and a circuit breaker.
// It never fails: any error degrades to the fallback fixture set.
type Client struct {
	upstreamURL string
	client      *http.Client
	pipeline    failsafe.Executor[*http.Response]
	logger      core.ILogger
}

// NewClient creates a news client. An empty upstreamURL serves fixtures only.
func NewClient(upstreamURL string, timeout time.Duration, logger core.ILogger) *Client {
	retryPolicy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500 || resp.StatusCode == 429
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(2).
		Build()

	breaker := circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		Build()

	return &Client{
		upstreamURL: upstreamURL,
		client:      &http.Client{Timeout: timeout},
		pipeline:    failsafe.With[*http.Response](retryPolicy, breaker),
		logger:      logger.WithField("component", "news_client"),
	}
}

// Fetch returns the current feed. Always succeeds; failures degrade to fixtures.
func (c *Client) Fetch(ctx context.Context) Feed {
	if c.upstreamURL == "" {
		return fallbackFeed
	}

	resp, err := c.pipeline.GetWithExecution(func(_ failsafe.Execution[*http.Response]) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.upstreamURL, nil)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	})
	if err != nil {
		c.logger.Warn("News upstream unavailable, serving fixtures", "error", err)
		return fallbackFeed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("News upstream returned non-200, serving fixtures", "status", resp.StatusCode)
		return fallbackFeed
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Warn("Failed to read news body, serving fixtures", "error", err)
		return fallbackFeed
	}

	var feed Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		c.logger.Warn("Failed to parse news feed, serving fixtures", "error", err)
		return fallbackFeed
	}
	if feed.Articles == nil {
		feed.Articles = []Article{}
	}
	return feed
}
