// Package cftc downloads and parses CFTC Commitments of Traders history files.
package cftc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"positioning-lab/internal/breakers"
	"positioning-lab/internal/domain"
	"positioning-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://www.cftc.gov/files/dea/history"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultBackoffMult = 2.0
)

// StatusError is a non-retryable HTTP response, e.g. 404 for a year not yet published.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cftc: unexpected status %d for %s", e.StatusCode, e.URL)
}

// YearReport is one parsed yearly file plus its raw text for archiving.
type YearReport struct {
	Year int
	Rows []domain.RawPositionRow
	Raw  []byte
}

// Client fetches yearly disaggregated futures+options reports.
type Client struct {
	baseURL        string
	client         *http.Client
	maxRetries     int
	retryDelay     time.Duration
	maxDelay       time.Duration
	backoffMult    float64
	categoryPrefix string
	breaker        *breakers.Breaker
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithCategoryPrefix selects the trader category columns.
func WithCategoryPrefix(prefix string) ClientOption {
	return func(c *Client) {
		if prefix != "" {
			c.categoryPrefix = prefix
		}
	}
}

// WithBreaker routes downloads through a circuit breaker.
func WithBreaker(b *breakers.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

// NewClient creates a CFTC client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         &http.Client{Timeout: DefaultTimeout},
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		maxDelay:       DefaultMaxDelay,
		backoffMult:    DefaultBackoffMult,
		categoryPrefix: DefaultCategoryPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ArchiveURL returns the yearly archive location.
func (c *Client) ArchiveURL(year int) string {
	return fmt.Sprintf("%s/com_disagg_txt_%d.zip", c.baseURL, year)
}

// FetchYear downloads, unzips and parses one year.
func (c *Client) FetchYear(ctx context.Context, year int) (*YearReport, error) {
	start := time.Now()
	archive, err := c.download(ctx, c.ArchiveURL(year))
	observability.RecordExternalCall("cftc", "download", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("download %d: %w", year, err)
	}

	raw, err := UnzipReport(archive)
	if err != nil {
		return nil, fmt.Errorf("unzip %d: %w", year, err)
	}
	rows, err := ParseReport(bytes.NewReader(raw), c.categoryPrefix)
	if err != nil {
		return nil, fmt.Errorf("parse %d: %w", year, err)
	}
	return &YearReport{Year: year, Rows: rows, Raw: raw}, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	if c.breaker == nil {
		return c.get(ctx, url)
	}
	return breakers.Do(c.breaker, func() ([]byte, error) {
		data, err := c.get(ctx, url)
		if IsNotPublished(err) {
			return nil, breakers.ClientError(err)
		}
		return data, err
	})
}

// IsNotPublished reports whether err is a 404 for a yearly file that does not exist yet.
func IsNotPublished(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// get performs a GET with retries and exponential backoff.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		default:
			// Client errors are not retried
			return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
