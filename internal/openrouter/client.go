// Package openrouter is a small client for OpenRouter's OpenAI-compatible chat completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"positioning-lab/internal/breakers"
	"positioning-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 90 * time.Second
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("openrouter: api key not configured")

// ErrEmptyResponse is returned when the API answers without choices.
var ErrEmptyResponse = errors.New("openrouter: empty response")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Code       any
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openrouter: status %d", e.StatusCode)
	}
	return fmt.Sprintf("openrouter: status %d: %s", e.StatusCode, e.Message)
}

// Client calls the chat completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	referer string
	title   string
	client  *http.Client
	breaker *breakers.Breaker
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAppHeaders sets the HTTP-Referer and X-Title attribution headers.
func WithAppHeaders(referer, title string) ClientOption {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

// WithBreaker routes calls through a circuit breaker.
func WithBreaker(b *breakers.Breaker) ClientOption {
	return func(c *Client) {
		c.breaker = b
	}
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// ChatCompletion sends one request and returns the parsed response.
func (c *Client) ChatCompletion(ctx context.Context, req Request) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNoAPIKey
	}
	start := time.Now()
	defer func() { observability.RecordExternalCall("openrouter", "chat_completions", time.Since(start)) }()

	if c.breaker == nil {
		return c.do(ctx, req)
	}
	return breakers.Do(c.breaker, func() (*Response, error) {
		resp, err := c.do(ctx, req)
		if IsClientError(err) {
			return nil, breakers.ClientError(err)
		}
		return resp, err
	})
}

// IsClientError reports whether err is a 4xx answer other than 429, i.e. a problem
// with the request (bad model, unsupported input) rather than with the service.
func IsClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
}

// Complete is ChatCompletion returning the first choice's text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text()
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out Response
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, &out) == nil && out.Error != nil {
			apiErr.Code = out.Error.Code
			apiErr.Message = out.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, apiErr
	}

	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	// OpenRouter can report upstream provider failures in a 200 body
	if out.Error != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: out.Error.Code, Message: out.Error.Message}
	}
	return &out, nil
}
