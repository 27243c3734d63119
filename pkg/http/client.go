package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the read timeout for a single API request.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxRetries is the connection retry budget per request.
	DefaultMaxRetries = 10
)

// TimeoutError reports that the remote side did not answer within the
// configured read timeout. Timeouts are terminal: the request is not retried.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("read timeout after %s", e.Timeout)
}

// RetriesExceededError reports that every connection attempt failed and the
// retry budget is spent.
type RetriesExceededError struct {
	Retries int
	Last    error
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("max retries exceeded [%d]: %v", e.Retries, e.Last)
}

func (e *RetriesExceededError) Unwrap() error { return e.Last }

// Client is an HTTP client that retries connection-level failures with
// exponential backoff. HTTP status codes are never interpreted here; the
// response body is returned to the caller regardless of status.
type Client struct {
	httpClient *http.Client
	maxRetries int
	logger     *zap.Logger
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

func NewClient() *Client {
	logger, _ := zap.NewProduction()
	return NewClientWith(DefaultTimeout, DefaultMaxRetries, logger)
}

// NewClientWithLogger creates a new HTTP client with a custom logger and
// default timeout and retry budget.
func NewClientWithLogger(logger *zap.Logger) *Client {
	return NewClientWith(DefaultTimeout, DefaultMaxRetries, logger)
}

// NewClientWith creates a new HTTP client with an explicit read timeout and
// connection retry budget.
func NewClientWith(timeout time.Duration, maxRetries int, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// MaxRetries returns the connection retry budget.
func (c *Client) MaxRetries() int { return c.maxRetries }

// Timeout returns the read timeout for a single request.
func (c *Client) Timeout() time.Duration { return c.httpClient.Timeout }

// PostForm sends a form-urlencoded POST and returns the raw response.
// Connection failures are retried up to the budget; read timeouts are
// surfaced immediately as *TimeoutError, exhausted budgets as
// *RetriesExceededError.
func (c *Client) PostForm(ctx context.Context, url string, body string) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.Reset()

	operation := func() (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")

		c.logger.Debug("Making HTTP request", zap.String("url", url))

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) {
				return nil, backoff.Permanent(&TimeoutError{Timeout: c.httpClient.Timeout})
			}
			if errors.Is(err, context.Canceled) {
				return nil, backoff.Permanent(err)
			}
			// Connection-level failure, retryable.
			c.logger.Warn("HTTP request failed, will retry",
				zap.Error(err),
				zap.String("url", url))
			return nil, err
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			if isTimeout(err) {
				return nil, backoff.Permanent(&TimeoutError{Timeout: c.httpClient.Timeout})
			}
			return nil, backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}

		c.logger.Debug("HTTP request completed",
			zap.Int("status_code", httpResp.StatusCode),
			zap.String("url", url))

		return &Response{
			StatusCode: httpResp.StatusCode,
			Headers:    httpResp.Header,
			Body:       respBody,
		}, nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.maxRetries)))
	if err != nil {
		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			return nil, timeoutErr
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		c.logger.Error("HTTP request failed after retries",
			zap.Error(err),
			zap.Int("retries", c.maxRetries),
			zap.String("url", url))
		return nil, &RetriesExceededError{Retries: c.maxRetries, Last: err}
	}

	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
