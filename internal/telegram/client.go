// Package telegram is a small Bot API client covering the calls the posters need.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"

	maxRetryAfter = time.Minute
)

var (
	// ErrNoToken is returned by New when no bot token is configured.
	ErrNoToken = errors.New("telegram bot token is required")

	// ErrMaybeDelivered wraps a failed send that may still have reached
	// Telegram. Such sends are not retried, so a timeout cannot post twice.
	ErrMaybeDelivered = errors.New("request may have reached telegram")
)

// idempotent lists the methods that are safe to repeat after any
// transport error.
var idempotent = map[string]bool{
	"getMe":   true,
	"getChat": true,
}

// Client talks to the Bot API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	retry      retrypolicy.RetryPolicy[*apiResponse]
	logger     *slog.Logger
}

// Config holds configuration for the client.
type Config struct {
	Token   string
	BaseURL string // default: DefaultBaseURL

	// Interval is the minimum spacing between requests. Zero disables limiting.
	Interval time.Duration

	MaxRetries int
	BaseDelay  time.Duration // default: 500ms
	MaxDelay   time.Duration // default: 10s

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool               `json:"ok"`
	Result      json.RawMessage    `json:"result"`
	ErrorCode   int                `json:"error_code"`
	Description string             `json:"description"`
	Parameters  responseParameters `json:"parameters"`

	status int
}

func (r *apiResponse) retryable() bool {
	code := r.ErrorCode
	if code == 0 {
		code = r.status
	}
	return code == http.StatusTooManyRequests || code >= 500
}

// New creates a Bot API client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(10*time.Second, cfg.BaseDelay)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retry := retrypolicy.NewBuilder[*apiResponse]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *apiResponse, err error) bool {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			var invalid *requestError
			if errors.As(err, &invalid) || errors.Is(err, ErrMaybeDelivered) {
				return false
			}
			if err != nil {
				return true
			}
			return resp != nil && !resp.OK && resp.retryable()
		}).
		Build()

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		limiter:    rate.NewLimiter(limit, 1),
		retry:      retry,
		logger:     logger,
	}, nil
}

// requestFunc builds a fresh request body for each attempt.
type requestFunc func() (body io.Reader, contentType string, err error)

func jsonRequest(payload any) requestFunc {
	return func() (io.Reader, string, error) {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// call performs method with retries and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, build requestFunc, out any) error {
	var last *apiResponse
	var wait time.Duration

	_, err := failsafe.With[*apiResponse](c.retry).WithContext(ctx).Get(func() (*apiResponse, error) {
		if wait > 0 {
			c.logger.Warn("telegram asked to slow down", "method", method, "retry_after", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		last = nil
		resp, err := c.do(ctx, method, build)
		if err != nil {
			if !idempotent[method] && !neverSent(err) {
				return nil, fmt.Errorf("%w: %w", ErrMaybeDelivered, err)
			}
			return nil, err
		}
		last = resp
		if !resp.OK && resp.Parameters.RetryAfter > 0 {
			wait = min(time.Duration(resp.Parameters.RetryAfter)*time.Second, maxRetryAfter)
		}
		return resp, nil
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("telegram %s: %w", method, ctxErr)
	}
	if last == nil {
		if err == nil {
			err = errors.New("no response")
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !last.OK {
		code := last.ErrorCode
		if code == 0 {
			code = last.status
		}
		return &APIError{
			Method:      method,
			Code:        code,
			Description: last.Description,
			RetryAfter:  time.Duration(last.Parameters.RetryAfter) * time.Second,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(last.Result, out); err != nil {
		return fmt.Errorf("telegram %s: parse result: %w", method, err)
	}
	return nil
}

// do sends one attempt of method.
func (c *Client) do(ctx context.Context, method string, build requestFunc) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, contentType, err := build()
	if err != nil {
		return nil, &requestError{err: err}
	}

	url := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err, token: c.token}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &apiResponse{
				status:      resp.StatusCode,
				Description: strings.TrimSpace(string(respBody)),
			}, nil
		}
		return nil, fmt.Errorf("parse response: %w", err)
	}
	envelope.status = resp.StatusCode

	c.logger.Debug("telegram request",
		"method", method,
		"status", resp.StatusCode,
		"ok", envelope.OK,
	)

	return &envelope, nil
}

// requestError is a failure to build a request. Repeating it cannot help.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// transportError is a failed HTTP round trip. Its message hides the token.
type transportError struct {
	err   error
	token string
}

func (e *transportError) Error() string { return "send request: " + redact(e.err.Error(), e.token) }
func (e *transportError) Unwrap() error { return e.err }

// neverSent reports whether err happened before the request could reach the
// server: DNS failures and refused or unreachable dials.
func neverSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// redact keeps the bot token out of error messages that embed the URL.
func redact(s, token string) string {
	return strings.ReplaceAll(s, token, "<token>")
}
