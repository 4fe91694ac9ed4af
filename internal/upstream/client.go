package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/coastal-conditions/internal/metrics"
)

var (
	// ErrUnavailable covers network failures, timeouts, non-2xx responses
	// and an open circuit breaker.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrMalformedPayload is returned when a response does not have the expected shape.
	ErrMalformedPayload = errors.New("malformed upstream payload")

	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used when a Config leaves Backoff empty.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// Config bundles HTTP client and resilience settings for one upstream.
type Config struct {
	Client  *http.Client
	Backoff BackoffConfig
	// RateLimit is the steady request rate per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Metrics   *metrics.Metrics
}

// Client performs outbound requests to a single upstream with retries,
// exponential backoff, rate limiting and a circuit breaker.
type Client struct {
	name    string
	http    *http.Client
	backoff BackoffConfig
	limiter *rate.Limiter
	circuit *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

// NewClient creates a Client for the upstream called name.
func NewClient(name string, cfg Config) *Client {
	backoff := cfg.Backoff
	if backoff == (BackoffConfig{}) {
		backoff = DefaultBackoff
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		name:    name,
		http:    cfg.Client,
		backoff: backoff,
		limiter: limiter,
		circuit: cb,
		metrics: cfg.Metrics,
	}
}

// Name returns the upstream name used in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// GetJSON issues a GET for url and decodes the JSON body into out.
// Transport failures wrap ErrUnavailable, decode failures wrap ErrMalformedPayload.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	resp, err := c.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.Upstream(c.name, "malformed")
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, c.name, err)
	}
	return nil
}

// Do executes the request produced by buildRequest with retries, exponential
// backoff and the circuit breaker. Every returned error wraps ErrUnavailable.
func (c *Client) Do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	resp, err := c.do(ctx, buildRequest)
	if err != nil {
		c.metrics.Upstream(c.name, "error")
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}
	c.metrics.Upstream(c.name, "ok")
	return resp, nil
}

func (c *Client) do(ctx context.Context, buildRequest func() (*http.Request, error)) (*http.Response, error) {
	if c.http == nil {
		return nil, errNoHTTPClient
	}
	if c.backoff.MaxRetries < 0 || c.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := c.circuit.Execute(func() (interface{}, error) {
			resp, execErr := c.http.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				drain(resp)
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				drain(resp)
				return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				drain(resp)
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker open: %w", err)
		}

		lastErr = err
		if attempt >= c.backoff.MaxRetries {
			return nil, lastErr
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.backoff.MaxInterval && c.backoff.MaxInterval > 0 {
			delay = c.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
