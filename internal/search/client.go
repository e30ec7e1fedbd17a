package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 4 << 20

// Headers sent with every upstream request. Providers behind anti-bot
// protection reject the default Go user agent.
var browserHeaders = http.Header{
	"User-Agent":      {"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36"},
	"Accept":          {"application/json, text/plain, */*"},
	"Accept-Language": {"en-IN,en;q=0.9,hi;q=0.8,te;q=0.7"},
	"Accept-Encoding": {"identity"},
	"Connection":      {"keep-alive"},
	"Cache-Control":   {"no-cache"},
}

// ErrUnexpectedStatus is wrapped by StatusError.
var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d from %s", ErrUnexpectedStatus, e.Code, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// HTTPClient is the HTTP transport shared by all connectors.
type HTTPClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay []time.Duration
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit paces outgoing requests across all connectors.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithRetryDelays sets the backoff used when an upstream answers 429.
func WithRetryDelays(delays ...time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = delays
	}
}

// NewHTTPClient creates the shared client. Without options it is unthrottled.
func NewHTTPClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		retryDelay: []time.Duration{300 * time.Millisecond, 900 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL with params appended and returns the body of a 2xx
// response. extra headers are added on top of the browser header set.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, params url.Values, extra http.Header) ([]byte, error) {
	reqURL := rawURL
	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing url: %w", err)
		}
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.retryDelay); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay[attempt-1]):
			}
		}

		body, err := c.do(ctx, reqURL, extra)
		if err == nil {
			return body, nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (c *HTTPClient) do(ctx context.Context, reqURL string, extra http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range browserHeaders {
		req.Header[k] = vs
	}
	for k, vs := range extra {
		req.Header[http.CanonicalHeaderKey(k)] = vs
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(reqURL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// redact strips credentials from URLs that end up in logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("client_id") {
		q.Set("client_id", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
