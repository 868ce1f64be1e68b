// Package httpclient provides a retrying HTTP client for operator-facing
// registry traffic (push, pull, catalog listing from the CLI). The engine's
// own calls go through a plain http.Client: workflow execution never retries.
package httpclient

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Client wraps an http.Client with status-based retries. Transport-level
// errors are returned immediately; only retryable statuses (429, 502, 503,
// 504) are re-attempted, with exponential backoff or the server-provided
// Retry-After, whichever is present.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	retryable  func(status int) bool
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// WithRetryableStatus replaces the default status predicate.
func WithRetryableStatus(fn func(status int) bool) Option {
	return func(c *Client) { c.retryable = fn }
}

func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		retryable:  defaultRetryable,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Do performs the request, retrying retryable statuses up to maxRetries
// times. Requests with a body must set GetBody (http.NewRequest does this
// for common body types) or the first failure is final.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if req.GetBody == nil && req.Body != nil {
				return lastResp, &RetryExhaustedError{
					StatusCode: statusOf(lastResp),
					Attempts:   attempt,
					Err:        fmt.Errorf("request body is not replayable"),
				}
			}
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return lastResp, fmt.Errorf("recreating request body for retry: %w", err)
				}
				req.Body = body
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if !c.retryable(resp.StatusCode) {
			return resp, nil
		}

		if attempt >= c.maxRetries {
			return resp, &RetryExhaustedError{
				StatusCode: resp.StatusCode,
				Attempts:   attempt + 1,
				Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			}
		}

		delay := c.delayFor(resp, attempt)
		drainAndClose(resp)
		lastResp = resp

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// delayFor prefers the server's Retry-After over exponential backoff.
func (c *Client) delayFor(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.baseDelay << uint(attempt)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func drainAndClose(resp *http.Response) {
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
}
