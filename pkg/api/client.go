// Package api provides the HTTP client of the remote collection service.
// It implements the model ports with bearer authentication, outbound rate
// limiting and error classification. It never retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chargee-energy/chargee-developer-playground/pkg/ratelimit"
)

// Prometheus metrics for remote service calls.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetstat_api_requests_total",
		Help: "Total remote service requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetstat_api_request_duration_seconds",
		Help:    "Remote service request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetstat_api_errors_total",
		Help: "Total remote service errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is the remote collection service client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *ratelimit.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the remote service, e.g. https://api.example.com/v1.
	BaseURL string

	// Token is sent as a bearer token. Optional.
	Token string

	// UserAgent header.
	UserAgent string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Rate limiting
	RateLimit float64 // Requests per second, 0 disables the token bucket
	Burst     int

	// Redis shares the upstream cooldown between processes. Optional.
	Redis *redis.Client
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:   baseURL,
		Token:     token,
		UserAgent: "fleetstat/1.0",
		Timeout:   30 * time.Second,
		RateLimit: ratelimit.DefaultRequestsPerSecond,
		Burst:     ratelimit.DefaultBurst,
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "api-client").Logger()

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.Burst,
		Redis:             cfg.Redis,
	}, logger)

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Limiter returns the outbound rate limiter.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// request describes one call.
type request struct {
	endpoint string // metrics label
	method   string
	path     string
	query    url.Values
	body     any
}

// do performs a request and returns the response body of a 2xx response.
// Any other outcome is an *APIError.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(r.endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		apiRequestsTotal.WithLabelValues(r.endpoint, "rate_limited").Inc()
		class := ErrorClassRateLimit
		if !errors.Is(err, ratelimit.ErrBlocked) {
			class = ErrorClassNetwork
		}
		return nil, &APIError{Endpoint: r.endpoint, Class: class, Err: err}
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", r.endpoint).
		Str("method", r.method).
		Str("path", req.URL.Path).
		Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues(r.endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", r.endpoint).Msg("HTTP request failed")
		return nil, &APIError{Endpoint: r.endpoint, Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(r.endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.limiter.Observe(ctx, resp); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record upstream cooldown")
	}

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		apiErrorsTotal.WithLabelValues(string(class)).Inc()

		c.logger.Warn().
			Str("endpoint", r.endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")

		return nil, &APIError{
			Endpoint:   r.endpoint,
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    upstreamMessage(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{Endpoint: r.endpoint, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Err: err}
	}
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	u := *c.baseURL
	rawPath := c.baseURL.EscapedPath() + r.path
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("build %s path: %w", r.endpoint, err)
	}
	u.Path, u.RawPath = path, rawPath
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", r.endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getJSON performs a GET and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	body, err := c.do(ctx, request{endpoint: endpoint, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &APIError{Endpoint: endpoint, StatusCode: http.StatusOK, Class: ErrorClassDecode, Err: err}
	}
	return nil
}

// getList performs a GET of a list endpoint.
func getList[T any](ctx context.Context, c *Client, endpoint, path string, query url.Values) ([]T, int, error) {
	body, err := c.do(ctx, request{endpoint: endpoint, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return nil, 0, err
	}
	items, total, err := decodeList[T](body)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, 0, &APIError{Endpoint: endpoint, StatusCode: http.StatusOK, Class: ErrorClassDecode, Err: err}
	}
	return items, total, nil
}
