// Package httpclient is the single configured request sender for the back-office REST API.
// It injects the bearer credential, speaks the JSON envelope and normalizes every failure
// into an *apierror.Error. It never retries.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/hrygo/backoffice/internal/apierror"
	"github.com/hrygo/backoffice/internal/observability"
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 16 << 20

// Config holds the HTTP client configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://example.org/api
	BaseURL string
	// Timeout is the HTTP timeout for one exchange
	Timeout time.Duration
	// UserAgent is sent with every request
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   "http://localhost:8090/api",
		Timeout:   30 * time.Second,
		UserAgent: "backoffice-client",
	}
}

// ConfigFromEnv creates client config from environment variables.
func ConfigFromEnv() *Config {
	config := DefaultConfig()

	if baseURL := os.Getenv("BACKOFFICE_API_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}
	if timeout := os.Getenv("BACKOFFICE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Timeout = d
		}
	}
	return config
}

// UnauthorizedHandler is notified of 401 responses. Logout or redirect lives there,
// outside the client.
type UnauthorizedHandler func(ctx context.Context, err *apierror.Error)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for per-request lines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics records every exchange into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUnauthorizedHandler installs the auth collaborator hook.
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

// Client sends requests to the back-office API.
type Client struct {
	config         *Config
	baseURL        *url.URL
	httpClient     *http.Client
	tokens         oauth2.TokenSource
	logger         *slog.Logger
	metrics        *observability.Metrics
	onUnauthorized UnauthorizedHandler
}

// NewClient creates a new API client. tokens may be nil for anonymous access.
func NewClient(config *Config, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	baseURL, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %s", config.BaseURL)
	}
	if !baseURL.IsAbs() {
		return nil, errors.Errorf("base url must be absolute, got %q", config.BaseURL)
	}

	c := &Client{
		config:     config,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StaticToken returns a token source for a fixed bearer credential, or nil when token is empty.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// Request describes one API exchange.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON encoded when non-nil.
	Body any
	// Out receives the decoded "data" member of the response envelope.
	Out any

	// Entity and Operation only label log lines and metrics.
	Entity    string
	Operation string
}

// envelope is the success body shape of the API. Bodies without a "data" member are
// decoded as-is.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Do performs exactly one HTTP exchange.
func (c *Client) Do(ctx context.Context, r *Request) error {
	var body io.Reader
	contentType := ""
	if r.Body != nil {
		raw, err := json.Marshal(r.Body)
		if err != nil {
			return apierror.Internal("failed to encode request body", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.send(ctx, r, body, contentType)
}

func (c *Client) send(ctx context.Context, r *Request, body io.Reader, contentType string) error {
	rc, ok := observability.FromContext(ctx)
	if !ok {
		rc = observability.NewRequestContext(c.logger, r.Entity, r.Operation)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.resolve(r.Path, r.Query), body)
	if err != nil {
		return apierror.Internal("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", rc.RequestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			apiErr := &apierror.Error{Code: apierror.ErrCodeUnauthorized, Message: "no usable credential", Cause: err}
			c.notifyUnauthorized(ctx, apiErr)
			return apiErr
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := apierror.Transport(err)
		c.record(rc, r, 0, apiErr)
		return apiErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		apiErr := apierror.Transport(errors.Wrap(err, "failed to read response"))
		c.record(rc, r, resp.StatusCode, apiErr)
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apierror.FromResponse(resp.StatusCode, raw)
		c.record(rc, r, resp.StatusCode, apiErr)
		if apiErr.Code == apierror.ErrCodeUnauthorized {
			c.notifyUnauthorized(ctx, apiErr)
		}
		return apiErr
	}

	c.record(rc, r, resp.StatusCode, nil)
	if r.Out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return decode(raw, r.Out)
}

func decode(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierror.Internal("failed to decode response", err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) string {
	// path is already escaped.
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) record(rc *observability.RequestContext, r *Request, status int, apiErr *apierror.Error) {
	if c.metrics != nil {
		c.metrics.RecordRequest(r.Entity, rc.Duration(), apiErr != nil)
	}
	attrs := []slog.Attr{
		slog.String(observability.LogFieldMethod, r.Method),
		slog.String(observability.LogFieldPath, r.Path),
		slog.Int(observability.LogFieldStatus, status),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
	}
	if apiErr != nil {
		attrs = append(attrs, slog.String(observability.LogFieldErrorCode, string(apiErr.Code)))
		rc.Warn("api request failed", append(attrs, slog.String("error", apiErr.Message))...)
		return
	}
	rc.Debug("api request", attrs...)
}

func (c *Client) notifyUnauthorized(ctx context.Context, err *apierror.Error) {
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx, err)
	}
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query, Out: out})
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body, Out: out})
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body, Out: out})
}

// Delete issues a DELETE, with a JSON body when body is non-nil.
func (c *Client) Delete(ctx context.Context, path string, body any) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path, Body: body})
}
