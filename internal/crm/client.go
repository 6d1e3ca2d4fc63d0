// Package crm is the read-only client for the CRM's two REST API
// generations. It owns the request policy (timeout, retry with backoff,
// rate-limit awareness) and the tolerant decoding of search results.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crmscan/internal/platform/metrics"
)

// Config carries the connection settings and request policy for one CRM
// account.
type Config struct {
	Token  string
	BaseV1 string
	BaseV2 string

	RequestTimeout time.Duration // per-attempt cap
	MaxRetries     int           // additional attempts after the first; 0 means the default, negative disables retries
	RetryBaseDelay time.Duration // backoff start, doubled per attempt
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 800 * time.Millisecond
	}
	return c
}

// Client issues authenticated GET requests against the CRM.
type Client struct {
	cfg     Config
	http    *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	// sleep is replaceable in tests so backoff schedules can be observed
	// without waiting them out.
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New constructs a Client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:   cfg.withDefaults(),
		sleep: sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// V1 issues a GET against the legacy API generation and decodes the JSON
// body into out.
func (c *Client) V1(ctx context.Context, path string, out any) error {
	return c.get(ctx, c.cfg.BaseV1, path, out)
}

// V2 issues a GET against the current API generation and decodes the JSON
// body into out.
func (c *Client) V2(ctx context.Context, path string, out any) error {
	return c.get(ctx, c.cfg.BaseV2, path, out)
}

// get runs the retry loop. 429 responses honor Retry-After when present and
// otherwise back off exponentially; per-attempt timeouts use the same
// schedule. 401, transport failures, and other non-2xx statuses fail
// immediately.
func (c *Client) get(ctx context.Context, base, path string, out any) error {
	if c.cfg.Token == "" {
		return ErrUnauthenticated
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	reqURL := base + path + sep + "api_token=" + url.QueryEscape(c.cfg.Token)

	for attempt := 0; ; attempt++ {
		body, retryAfter, err := c.attempt(ctx, reqURL)
		if err == nil {
			if jerr := json.Unmarshal(body, out); jerr != nil {
				return fmt.Errorf("%w: %v", ErrDecode, jerr)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var delay time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			if attempt >= c.cfg.MaxRetries {
				return err
			}
			delay = retryAfter
			if delay <= 0 {
				delay = c.cfg.RetryBaseDelay << attempt
			}
		case errors.Is(err, ErrTimeout):
			if attempt >= c.cfg.MaxRetries {
				return err
			}
			delay = c.cfg.RetryBaseDelay << attempt
		default:
			return err
		}

		if c.metrics != nil {
			c.metrics.RequestRetries.Inc()
		}
		c.logger.Debug("retrying crm request",
			"path", path,
			"attempt", attempt+1,
			"delay", delay,
			"cause", err,
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// attempt performs a single GET. On 429 it additionally reports the parsed
// Retry-After delay.
func (c *Client) attempt(ctx context.Context, reqURL string) ([]byte, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, ErrTimeout
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, 0, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, 0, &StatusError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, ErrTimeout
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return body, 0, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
