// Package api is the HTTP client for the materials backend.
package api

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
	"strings"
	"time"

	"github.com/Veraticus/matflow/internal/common"
	"golang.org/x/oauth2"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the materials REST backend.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	retry          common.RetryOptions
	requestTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseTransport sets the transport the bearer transport wraps.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if t, ok := c.httpClient.Transport.(*oauth2.Transport); ok {
			t.Base = rt
		}
	}
}

// WithRequestTimeout bounds JSON requests. Uploads are never bounded.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithRetryOptions configures retries for idempotent reads.
func WithRetryOptions(opts common.RetryOptions) Option {
	return func(c *Client) {
		c.retry = opts
	}
}

// StaticToken returns a token source for a persisted bearer token.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})
}

// NewClient creates a client for baseURL that authenticates every request
// with a bearer token from tokens.
func NewClient(baseURL string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, common.ErrNoToken
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base URL %q", common.ErrInvalidConfig, baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-level timeout: uploads may legitimately run for a long
		// time, everything else is bounded per request through the context.
		httpClient: &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, tokens),
				Base: &http.Transport{
					Proxy:               http.ProxyFromEnvironment,
					MaxIdleConns:        20,
					MaxIdleConnsPerHost: 4,
					IdleConnTimeout:     90 * time.Second,
				},
			},
		},
		retry:          common.DefaultRetryOptions(),
		requestTimeout: defaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// getJSON performs an idempotent GET with retries.
func (c *Client) getJSON(ctx context.Context, operation, path string, query url.Values, out any) error {
	return common.WithRetry(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint(path, query), nil)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Accept", "application/json")

		return c.do(req, operation, out)
	}, c.retry)
}

// postJSON performs a non-idempotent POST without retries.
func (c *Client) postJSON(ctx context.Context, operation, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, operation, out)
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

// wrapTransportError marks network-level failures as retryable. Context
// cancellation is passed through untouched.
func wrapTransportError(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	wrapped := fmt.Errorf("%s request: %w", operation, err)

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &common.RetryableError{Err: wrapped, Retryable: true}
	}
	return wrapped
}
