package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ddi-assistant/internal/domain"
	"ddi-assistant/internal/logging"
)

// RetryPolicy bounds how often a request is retried after a transport
// failure. HTTP status errors are never retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is three attempts with 2s..10s exponential waits.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 2 * time.Second,
	MaxInterval:     10 * time.Second,
}

// WAPIClient talks to an InfoBlox WAPI endpoint.
// It implements domain.WAPIClient.
type WAPIClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	logger     *zap.Logger
	audit      *logging.AuditLogger
	metrics    *Metrics

	host          string
	user          string
	authenticated atomic.Bool
}

// Option customizes a WAPIClient.
type Option func(*WAPIClient)

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *WAPIClient) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *WAPIClient) { c.retry = p }
}

// WithLogger sets the application logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *WAPIClient) { c.logger = l.Named("wapi") }
}

// WithAudit sets the security audit logger.
func WithAudit(a *logging.AuditLogger) Option {
	return func(c *WAPIClient) { c.audit = a }
}

// WithUser names the account in authentication audit records.
func WithUser(user string) Option {
	return func(c *WAPIClient) { c.user = user }
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *WAPIClient) { c.metrics = m }
}

// NewWAPIClient creates a client for baseURL (https://<host>/wapi/<version>).
// httpClient should already carry authentication, see domain.NewAuthenticatedClient.
func NewWAPIClient(baseURL string, httpClient *http.Client, opts ...Option) *WAPIClient {
	c := &WAPIClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(3), 1),
		retry:      DefaultRetryPolicy,
		logger:     zap.NewNop(),
		audit:      logging.NewAuditLogger(nil),
	}
	if u, err := url.Parse(c.baseURL); err == nil {
		c.host = u.Host
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWAPIClientFromSettings wires authentication, TLS, timeout, rate limit
// and retry attempts from the settings.
func NewWAPIClientFromSettings(s *domain.Settings, opts ...Option) (*WAPIClient, error) {
	httpClient, err := domain.NewAuthenticatedClient(s)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticated client: %w", err)
	}
	policy := DefaultRetryPolicy
	policy.MaxAttempts = s.Infoblox.MaxRetries
	base := []Option{WithRateLimit(s.Infoblox.RateLimit), WithRetryPolicy(policy), WithUser(s.Infoblox.Username)}
	return NewWAPIClient(s.BaseURL(), httpClient, append(base, opts...)...), nil
}

// BaseURL returns the WAPI root URL.
func (c *WAPIClient) BaseURL() string {
	return c.baseURL
}

// Get reads an object type (collection) or a single object reference.
func (c *WAPIClient) Get(ctx context.Context, path string, query url.Values) (any, error) {
	return c.do(ctx, http.MethodGet, path, EncodeQuery(query), nil)
}

// Post creates an object.
func (c *WAPIClient) Post(ctx context.Context, path string, body any) (any, error) {
	return c.do(ctx, http.MethodPost, path, "", body)
}

// Put updates the object at ref.
func (c *WAPIClient) Put(ctx context.Context, path string, body any) (any, error) {
	return c.do(ctx, http.MethodPut, path, "", body)
}

// Delete removes the object at ref.
func (c *WAPIClient) Delete(ctx context.Context, path string) (any, error) {
	return c.do(ctx, http.MethodDelete, path, "", nil)
}

// ObjectSchema fetches the schema of one object type.
func (c *WAPIClient) ObjectSchema(ctx context.Context, objectType string) (map[string]any, error) {
	result, err := c.do(ctx, http.MethodGet, objectType, "_schema", nil)
	if err != nil {
		return nil, err
	}
	schema, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected schema response for %s: %T", objectType, result)
	}
	return schema, nil
}

// ObjectExists reports whether the appliance serves objectType.
func (c *WAPIClient) ObjectExists(ctx context.Context, objectType string) bool {
	_, err := c.do(ctx, http.MethodGet, objectType, "_max_results=1", nil)
	return err == nil
}

// SupportedObjects lists the object types the appliance advertises in its
// root schema.
func (c *WAPIClient) SupportedObjects(ctx context.Context) ([]string, error) {
	result, err := c.do(ctx, http.MethodGet, "", "_schema", nil)
	if err != nil {
		return nil, err
	}
	root, _ := result.(map[string]any)
	raw, _ := root["supported_objects"].([]any)
	objects := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			objects = append(objects, s)
		}
	}
	return objects, nil
}

// URL returns the absolute URL for path and an encoded query.
func (c *WAPIClient) URL(path, rawQuery string) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}

// do executes one logical request: rate limited, retried on transport
// failures, decoded on success.
func (c *WAPIClient) do(ctx context.Context, method, path, rawQuery string, body any) (any, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	endpoint := c.URL(path, rawQuery)
	c.logger.Debug("request", zap.String("method", method), zap.String("path", path), zap.String("query", rawQuery))

	var result any
	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.roundTrip(ctx, method, endpoint, payload)
		if err != nil {
			if isRetryable(ctx, err) {
				c.logger.Warn("transport error, will retry",
					zap.String("method", method), zap.String("path", path),
					zap.Int("attempt", attempt), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	maxRetries := c.retry.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		status := 0
		var httpErr domain.HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.StatusCode
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			c.authenticated.Store(false)
			c.audit.Authentication(c.host, c.user, err)
		}
		c.audit.APIError(method+" "+path, status, err)
		c.logger.Error("request failed", zap.String("method", method), zap.String("path", path), zap.Int("status", status), zap.Error(err))
		return nil, err
	}

	if c.authenticated.CompareAndSwap(false, true) {
		c.audit.Authentication(c.host, c.user, nil)
	}
	c.logger.Info("request succeeded", zap.String("method", method), zap.String("path", path))
	return result, nil
}

func (c *WAPIClient) roundTrip(ctx context.Context, method, endpoint string, payload []byte) (any, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeRequest(method, 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()
	c.metrics.observeRequest(method, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), wapiErrorText(data))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{"success": true, "message": "Operation completed"}, nil
	}

	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

// wapiErrorText extracts the "text" of a WAPI error body, falling back to
// the raw body.
func wapiErrorText(body []byte) string {
	var wapiErr struct {
		Error string `json:"Error"`
		Text  string `json:"text"`
	}
	if json.Unmarshal(body, &wapiErr) == nil && wapiErr.Text != "" {
		return wapiErr.Text
	}
	return strings.TrimSpace(string(body))
}

// isRetryable reports whether err is a connection failure or timeout. A
// cancelled caller context is never retried.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var httpErr domain.HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// EncodeQuery encodes values in key order. Keys with a single empty value
// are written bare (_schema rather than _schema=), the form WAPI documents
// for flag parameters.
func EncodeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			if v != "" {
				sb.WriteByte('=')
				sb.WriteString(url.QueryEscape(v))
			}
		}
	}
	return sb.String()
}
