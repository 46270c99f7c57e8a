package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/blueberrycongee/thunderchat/internal/httputil"
	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

// Client performs single provider calls. It holds no per-call state and is
// safe for concurrent use.
type Client struct {
	adapter    Adapter
	httpClient *http.Client
	maxBody    int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxResponseBytes caps how much of a response body is read.
func WithMaxResponseBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBody = n
	}
}

// NewClient wraps an adapter.
func NewClient(adapter Adapter, opts ...ClientOption) *Client {
	c := &Client{
		adapter:    adapter,
		httpClient: http.DefaultClient,
		maxBody:    httputil.DefaultMaxResponseBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the adapter name.
func (c *Client) Name() string { return c.adapter.Name() }

// Models returns the adapter's ordered model list.
func (c *Client) Models() []string { return c.adapter.Models() }

// Send issues one call with a hard timeout and returns the reply text or a
// *errors.ProviderError. The timeout is owned by the caller and replaces any
// provider default; when it fires the request is aborted and its connection
// released.
func (c *Client) Send(ctx context.Context, model, text string, timeout time.Duration) (string, error) {
	name := c.adapter.Name()
	if ok, reason := c.adapter.Configured(); !ok {
		return "", llmerrors.NewNotConfiguredError(name, model, reason)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := c.adapter.BuildRequest(ctx, model, text)
	if err != nil {
		return "", llmerrors.NewNotConfiguredError(name, model, fmt.Sprintf("build request: %v", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, name, model, err)
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadLimitedBody(resp.Body, c.maxBody)
	if err != nil {
		if errors.Is(err, httputil.ErrResponseBodyTooLarge) {
			return "", llmerrors.NewBadResponseError(name, model, err.Error())
		}
		return "", classifyTransport(ctx, name, model, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.adapter.MapError(model, resp.StatusCode, body)
	}

	return c.parse(model, resp.Header.Get("Content-Type"), body)
}

func (c *Client) parse(model, contentType string, body []byte) (string, error) {
	name := c.adapter.Name()
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", llmerrors.NewBadResponseError(name, model, "empty response body")
	}

	if !gjson.Valid(trimmed) {
		if c.adapter.AcceptsPlainText() && !strings.Contains(contentType, "json") {
			return trimmed, nil
		}
		return "", llmerrors.NewBadResponseError(name, model, "response body is not valid JSON")
	}

	reply, ok := Extract([]byte(trimmed), c.adapter.Rules())
	if !ok || strings.TrimSpace(reply) == "" {
		return "", llmerrors.NewBadResponseError(name, model, "response contained no reply text")
	}
	return strings.TrimSpace(reply), nil
}

func classifyTransport(ctx context.Context, name, model string, err error) *llmerrors.ProviderError {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.NewTimeoutError(name, model, "request aborted: "+errorCause(err))
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return llmerrors.NewTimeoutError(name, model, errorCause(err))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return llmerrors.NewNetworkError(name, model, "connection closed mid-response")
	}
	return llmerrors.NewNetworkError(name, model, errorCause(err))
}

// errorCause strips the request URL from *url.Error so query-string
// credentials never reach logs.
func errorCause(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
