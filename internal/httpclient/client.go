// Package httpclient provides the instrumented HTTP client used to talk to the back-office REST API
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "bo-console/1.0"

	// RequestIDHeader carries a per-request correlation id
	RequestIDHeader = "X-Request-ID"
)

// Request describes one call against the backend
type Request struct {
	Method      string
	URL         string
	Body        io.Reader
	ContentType string
	Header      http.Header
}

// Response is a fully read 2xx response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is an interface for HTTP operations
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client
type Client interface {
	// Do performs the request and returns the response body of a 2xx answer.
	// Non-2xx answers are returned as *HTTPError.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithBearerToken sends an Authorization header on every request. The token is passed through unchanged.
func WithBearerToken(token string) Option {
	return func(c *DefaultClient) {
		c.token = token
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(c *DefaultClient) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTransport replaces the base round tripper. It is still wrapped by otelhttp.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.transport = rt
	}
}

// WithUserAgent overrides UserAgent
func WithUserAgent(ua string) Option {
	return func(c *DefaultClient) {
		c.userAgent = ua
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client    *http.Client
	transport http.RoundTripper
	timeout   time.Duration
	userAgent string
	token     string
	limiter   *rate.Limiter
}

// NewDefaultClient creates a new default HTTP client with the specified timeout
// If timeout is 0, uses DefaultTimeout
func NewDefaultClient(timeout time.Duration, opts ...Option) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		timeout:   timeout,
		userAgent: UserAgent,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(c.transport),
	}
	return c
}

// Do performs an HTTP request
func (c *DefaultClient) Do(ctx context.Context, r *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes (%.2f MB)",
			resp.ContentLength, MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	// +1 to detect if limit exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes (%.2f MB)",
			MaxResponseSize, float64(MaxResponseSize)/(1024*1024))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPErrorFromBody(resp.StatusCode, r.URL, body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
