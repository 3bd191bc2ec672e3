package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shopsync/internal/retry"

	"go.uber.org/zap"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB max response

// Client fetches paginated resource collections from the upstream commerce
// API. Fetching is strictly sequential per resource: the upstream enforces a
// shared rate limit, so requests are serialized with inserted delays rather
// than coordinated through a concurrent limiter.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	pageSize       int
	strategy       retry.Strategy
	rateLimitDelay time.Duration
	pageDelay      time.Duration
	logger         *zap.Logger
}

// Options contains client configuration
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// PageSize is the upstream page-size ceiling (max 250).
	PageSize int
	// Strategy bounds per-page retries.
	Strategy retry.Strategy
	// RateLimitDelay is the wait applied to a 429 without a Retry-After hint.
	RateLimitDelay time.Duration
	// PageDelay is the cooperative wait before every fetch beyond the first.
	PageDelay time.Duration
}

// NewClient creates a new upstream API client
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if opts.PageSize <= 0 || opts.PageSize > 250 {
		return nil, fmt.Errorf("page size must be between 1 and 250")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Strategy.MaxAttempts <= 0 {
		opts.Strategy = retry.Generic
	}
	if opts.RateLimitDelay <= 0 {
		opts.RateLimitDelay = 10 * time.Second
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}

	return &Client{
		baseURL:        opts.BaseURL,
		token:          opts.Token,
		httpClient:     &http.Client{Timeout: opts.Timeout},
		pageSize:       opts.PageSize,
		strategy:       opts.Strategy,
		rateLimitDelay: opts.RateLimitDelay,
		pageDelay:      opts.PageDelay,
		logger:         logger,
	}, nil
}

// StreamPages fetches the resource collection page by page, sending each
// page on the returned channel in upstream order. The channel is bounded so
// at most one page is buffered regardless of collection size; the consumer
// flushes each page before the next is fetched. The stats channel receives
// exactly one value after the page channel closes.
//
// Pagination stops on a short page, on a full page without a continuation
// token (logged as an anomaly), or once retries for a page are exhausted.
// An exhausted page never aborts the stream: everything accumulated so far
// has already been delivered, and the shortfall is flagged in Stats.Errors.
func (c *Client) StreamPages(ctx context.Context, res Resource) (<-chan Page, <-chan Stats) {
	pages := make(chan Page, 1)
	statsCh := make(chan Stats, 1)

	go func() {
		defer close(pages)
		defer close(statsCh)

		var stats Stats
		pageInfo := ""

		for pageNum := 1; ; pageNum++ {
			if pageNum > 1 && c.pageDelay > 0 {
				if err := retry.Sleep(ctx, c.pageDelay); err != nil {
					break
				}
			}

			records, next, err := c.fetchPageWithRetry(ctx, res, pageInfo, pageNum)
			if err != nil {
				stats.Errors++
				c.logger.Error("Abandoning pagination after exhausting retries",
					zap.String("resource", res.Name),
					zap.Int("page", pageNum),
					zap.Int("records_so_far", stats.Records),
					zap.Error(err),
				)
				break
			}

			stats.Pages++
			stats.Records += len(records)

			if len(records) > 0 {
				select {
				case pages <- Page{Number: pageNum, Records: records}:
				case <-ctx.Done():
					statsCh <- stats
					return
				}
			}

			if len(records) < c.pageSize {
				break
			}
			if next == "" {
				// Full page with no continuation token; treat as end of
				// data rather than retrying indefinitely.
				c.logger.Warn("Full page without continuation token",
					zap.String("resource", res.Name),
					zap.Int("page", pageNum),
				)
				break
			}
			pageInfo = next
		}

		statsCh <- stats
	}()

	return pages, statsCh
}

// FetchAll accumulates the full collection in memory. Callers syncing large
// collections should prefer StreamPages.
func (c *Client) FetchAll(ctx context.Context, res Resource) ([]Record, Stats) {
	pages, statsCh := c.StreamPages(ctx, res)

	var records []Record
	for page := range pages {
		records = append(records, page.Records...)
	}
	return records, <-statsCh
}

func (c *Client) fetchPageWithRetry(ctx context.Context, res Resource, pageInfo string, pageNum int) ([]Record, string, error) {
	var (
		records []Record
		next    string
	)

	err := retry.Do(ctx, c.strategy, func(ctx context.Context) error {
		var fetchErr error
		records, next, fetchErr = c.fetchPage(ctx, res, pageInfo)
		if fetchErr != nil {
			c.logger.Warn("Page fetch attempt failed",
				zap.String("resource", res.Name),
				zap.Int("page", pageNum),
				zap.Error(fetchErr),
			)
		}
		return fetchErr
	})

	return records, next, err
}

func (c *Client) fetchPage(ctx context.Context, res Resource, pageInfo string) ([]Record, string, error) {
	u, err := url.Parse(c.baseURL + res.Path)
	if err != nil {
		return nil, "", fmt.Errorf("invalid upstream URL: %w", err)
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(c.pageSize))
	if !res.UpdatedSince.IsZero() {
		q.Set("updated_at_min", res.UpdatedSince.UTC().Format(time.RFC3339))
	}
	if pageInfo != "" {
		q.Set("page_info", pageInfo)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Access-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", &RateLimitError{Delay: c.retryAfter(resp)}
	}
	if resp.StatusCode >= 400 {
		return nil, "", &APIError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, "", fmt.Errorf("failed to parse response: %w", err)
	}

	var records []Record
	if raw, ok := envelope[res.ListKey]; ok {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, "", fmt.Errorf("failed to parse %s list: %w", res.ListKey, err)
		}
	}

	var next string
	if raw, ok := envelope["next_page_info"]; ok {
		_ = json.Unmarshal(raw, &next)
	}

	return records, next, nil
}

func (c *Client) retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return c.rateLimitDelay
}
