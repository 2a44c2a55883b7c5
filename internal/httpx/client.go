package httpx

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

	clierr "github.com/ggonzalez94/tokenmetrics-cli/internal/errors"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/version"
)

const (
	DefaultAttemptTimeout = 10 * time.Second
	DefaultMaxRetries     = 3
	maxErrorBody          = 512
)

// Policy holds the per-failure-class backoff steps.
type Policy struct {
	RateLimitStep   time.Duration
	ServerErrorStep time.Duration
	TransportBase   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		RateLimitStep:   2000 * time.Millisecond,
		ServerErrorStep: 1000 * time.Millisecond,
		TransportBase:   1000 * time.Millisecond,
	}
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

type Client struct {
	httpClient     *http.Client
	maxAttempts    int
	attemptTimeout time.Duration
	policy         Policy
	userAgent      string
	logger         *slog.Logger
	sleep          func(ctx context.Context, d time.Duration) error
}

// New builds a client that makes at most maxRetries attempts per request, each bounded by
// attemptTimeout.
func New(attemptTimeout time.Duration, maxRetries int, logger *slog.Logger) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient:     &http.Client{},
		maxAttempts:    maxRetries,
		attemptTimeout: attemptTimeout,
		policy:         DefaultPolicy(),
		userAgent:      version.CLIName + "/" + version.CLIVersion,
		logger:         logger,
		sleep:          sleepContext,
	}
}

// WithPolicy returns a copy of the client using p for backoff.
func (c *Client) WithPolicy(p Policy) *Client {
	clone := *c
	clone.policy = p
	return &clone
}

func (c *Client) MaxAttempts() int { return c.maxAttempts }

// Do performs req with retries. 401/403 and non-retryable statuses fail on the attempt that
// observed them; 429, 5xx and transport failures are retried until the attempt budget is spent.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, req)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, clierr.Wrap(clierr.CodeTransport, "request cancelled", ctx.Err())
			}
			lastErr = err
			wait = c.policy.TransportBase * time.Duration(1<<uint(attempt-1))
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, clierr.Upstream(clierr.CodeAuth, resp.StatusCode, bodyText(resp.Body), "invalid TokenMetrics API credentials")
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = clierr.Upstream(clierr.CodeRateLimited, resp.StatusCode, bodyText(resp.Body), "provider rate limited request")
			wait = c.policy.RateLimitStep * time.Duration(attempt)
		case resp.StatusCode >= 500 && resp.StatusCode < 600:
			lastErr = clierr.Upstream(clierr.CodeUnavailable, resp.StatusCode, bodyText(resp.Body), fmt.Sprintf("provider unavailable (status %d)", resp.StatusCode))
			wait = c.policy.ServerErrorStep * time.Duration(attempt)
		default:
			body := bodyText(resp.Body)
			return nil, clierr.Upstream(clierr.CodeUpstream, resp.StatusCode, body, fmt.Sprintf("API error %d: %s", resp.StatusCode, body))
		}

		if attempt == c.maxAttempts {
			break
		}
		c.logger.Debug("retrying request",
			slog.String("url", redactURL(req)),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", lastErr))
		if err := c.sleep(ctx, wait); err != nil {
			return nil, clierr.Wrap(clierr.CodeTransport, "request cancelled", err)
		}
	}

	c.logger.Warn("request failed after retries",
		slog.String("url", redactURL(req)),
		slog.Int("attempts", c.maxAttempts),
		slog.Any("error", lastErr))
	return nil, clierr.Wrap(clierr.CodeExhausted, fmt.Sprintf("retries exhausted after %d attempts", c.maxAttempts), lastErr)
}

// DoJSON performs req and decodes the response body into out.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return resp.Header, nil
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return resp.Header, clierr.New(clierr.CodeUpstream, "provider returned empty response")
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return resp.Header, clierr.Wrap(clierr.CodeUpstream, "decode provider JSON", err)
	}
	return resp.Header, nil
}

// Get issues a GET to url with headers through c.
func Get(ctx context.Context, c *Client, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.Do(ctx, req)
}

func (c *Client) attempt(ctx context.Context, req *http.Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	cloneReq := req.Clone(attemptCtx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
		}
		cloneReq.Body = body
	}

	resp, err := c.httpClient.Do(cloneReq)
	if err != nil {
		return nil, mapNetError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapNetError(err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: buf}, nil
}

func mapNetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return clierr.Wrap(clierr.CodeTransport, "provider timeout", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeTransport, "provider timeout", err)
	}
	return clierr.Wrap(clierr.CodeTransport, "provider request failed", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func bodyText(buf []byte) string {
	text := strings.TrimSpace(string(buf))
	if len(text) > maxErrorBody {
		return text[:maxErrorBody] + "..."
	}
	return text
}

func redactURL(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
}
