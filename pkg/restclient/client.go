package restclient

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

	"github.com/hashicorp/go-cleanhttp"

	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
)

const (
	defaultTimeout             = 10 * time.Second
	responseBodyReadLimit int64 = 2048

	// IdempotencyHeader carries the per-attempt key on mutating calls.
	IdempotencyHeader = "Idempotency-Key"
)

// Client is the JSON-over-HTTP plumbing shared by the external system clients.
type Client struct {
	subsystem  string
	baseURL    string
	httpClient *http.Client
	headers    http.Header
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the pooled default client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(value) != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New builds a client for the named sub-system rooted at baseURL.
func New(subsystem, baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%s base url is required", subsystem)
	}
	client := &Client{
		subsystem:  subsystem,
		baseURL:    trimmed,
		httpClient: cleanhttp.DefaultPooledClient(),
		headers:    http.Header{},
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Subsystem names the remote system, used in error messages.
func (c *Client) Subsystem() string {
	return c.subsystem
}

// Request describes one call.
type Request struct {
	Method         string
	Path           string
	Query          url.Values
	Body           any
	IdempotencyKey string
}

// RemoteError is returned when the remote system answers with a non-2xx status.
type RemoteError struct {
	Subsystem string
	Status    int
	Body      string
}

func (e *RemoteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Subsystem, e.Status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Subsystem, e.Status, e.Body)
}

// Retryable reports whether repeating the call may succeed.
func (e *RemoteError) Retryable() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// StatusOf returns the remote status carried by err, or 0.
func StatusOf(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status
	}
	return 0
}

// IsNotFound reports whether the remote system answered 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// Do executes req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "rest client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encode %s request", c.subsystem))
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req.Path, req.Query), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("build %s request", c.subsystem))
	}
	for key, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s request failed", c.subsystem))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		remote := &RemoteError{
			Subsystem: c.subsystem,
			Status:    resp.StatusCode,
			Body:      strings.TrimSpace(string(msg)),
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, remote, fmt.Sprintf("%s %s %s", c.subsystem, req.Method, req.Path))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", c.subsystem))
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// PathEscape joins escaped segments into a request path.
func PathEscape(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return strings.Join(escaped, "/")
}
