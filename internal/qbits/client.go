package qbits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"plant-console/internal/observability/metrics"
)

// DefaultBaseURL is the production monitoring API.
const DefaultBaseURL = "https://qbits.quickestimate.co/api/v1"

var (
	// ErrUnauthorized is returned when upstream rejects the bearer token.
	ErrUnauthorized = errors.New("qbits: unauthorized")
	// ErrNoToken is returned by calls that need a bearer token when none is given.
	ErrNoToken = errors.New("qbits: missing bearer token")
)

// APIError is a non-2xx upstream response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("qbits: http %d", e.Status)
	}
	return fmt.Sprintf("qbits: http %d: %s", e.Status, e.Message)
}

// Unwrap maps 401 onto ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the monitoring REST API. Bearer tokens are passed per call.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRateLimit caps outgoing requests per second. perSecond <= 0 disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	normalized := NormalizeBaseURL(baseURL)
	if normalized == "" {
		return nil, errors.New("qbits: empty base url")
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("qbits: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("qbits: base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL: parsed,
		client:  &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeBaseURL strips the query string, a trailing /client/index or
// /client, and trailing slashes.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/client/index")
	base = strings.TrimSuffix(base, "/client")
	return strings.TrimRight(base, "/")
}

// BaseURL returns the normalised API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpointURL(path string, query url.Values) string {
	u := c.BaseURL() + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// sameHost reports whether next points at the API host; pagination links to
// other hosts are not followed.
func (c *Client) sameHost(next string) bool {
	u, err := url.Parse(next)
	if err != nil {
		return false
	}
	return u.Host == "" || strings.EqualFold(u.Host, c.baseURL.Host)
}

type request struct {
	endpoint string
	method   string
	url      string
	token    string
	body     any
}

func (c *Client) get(ctx context.Context, endpoint, token, path string, query url.Values) (any, error) {
	return c.do(ctx, request{endpoint: endpoint, method: http.MethodGet, url: c.endpointURL(path, query), token: token})
}

func (c *Client) post(ctx context.Context, endpoint, token, path string, body any) (any, error) {
	return c.do(ctx, request{endpoint: endpoint, method: http.MethodPost, url: c.endpointURL(path, nil), token: token, body: body})
}

// do issues the request and decodes the JSON payload with numbers preserved.
func (c *Client) do(ctx context.Context, r request) (payload any, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveUpstream(r.endpoint, result, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("qbits: %s: %w", r.endpoint, err)
		}
	}

	var body io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("qbits: encode %s: %w", r.endpoint, err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qbits: %s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("qbits: read %s: %w", r.endpoint, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
		c.logger.Debug("upstream error",
			zap.String("endpoint", r.endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("qbits: decode %s: %w", r.endpoint, err)
	}
	return payload, nil
}

// errorMessage pulls message or error from a JSON error body, else the trimmed text.
func errorMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"message", "error"} {
			if msg, ok := body[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
