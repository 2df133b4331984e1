// Package client invokes the remote bootstrap over HTTP and decodes its
// response.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/splax/swapdeploy/pkg/deployerr"
	"github.com/splax/swapdeploy/pkg/remotelog"
)

// TokenHeader carries the run token to the bootstrap.
const TokenHeader = "X-Swapdeploy-Token"

const (
	defaultConnectTimeout = 60 * time.Second
	defaultTimeout        = 120 * time.Second
	defaultMaxAttempts    = 3
)

// Client performs the single GET that starts a remote deployment.
type Client struct {
	httpClient    *http.Client
	maxAttempts   int
	retryInterval time.Duration
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithMaxAttempts sets how often a transport failure is retried in total.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryInterval sets the pause between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryInterval = d
		}
	}
}

// WithTimeouts sets the connect and the total request timeout.
func WithTimeouts(connect, total time.Duration) Option {
	return func(c *Client) {
		c.httpClient = newHTTPClient(connect, total)
	}
}

func newHTTPClient(connect, total time.Duration) *http.Client {
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	if total <= 0 {
		total = defaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	return &http.Client{Transport: transport, Timeout: total}
}

// New constructs a Client with a 60s connect timeout, a 120s total timeout
// and three attempts.
func New(opts ...Option) *Client {
	cli := &Client{
		httpClient:    newHTTPClient(defaultConnectTimeout, defaultTimeout),
		maxAttempts:   defaultMaxAttempts,
		retryInterval: time.Second,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Invoke GETs url and returns the raw body. Any HTTP response counts as
// delivered, whatever its status; only transport failures are retried.
func (c *Client) Invoke(ctx context.Context, url, token string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var (
		body     []byte
		failures []string
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		if strings.TrimSpace(token) != "" {
			req.Header.Set(TokenHeader, strings.TrimSpace(token))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			failures = append(failures, err.Error())
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			failures = append(failures, err.Error())
			return err
		}
		body = data
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), uint64(c.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		if len(failures) == 0 {
			return nil, err
		}
		return nil, deployerr.Network("Error invoking deploy script: " + strings.Join(failures, " / "))
	}
	return body, nil
}

// ErrorPayload is the error part of a failed bootstrap response.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Response is the decoded bootstrap response.
type Response struct {
	Success bool              `json:"success"`
	Result  map[string]string `json:"result"`
	Error   *ErrorPayload     `json:"error,omitempty"`
	Log     []remotelog.Entry `json:"log"`
}

// ParseResponse decodes a bootstrap response. The returned Response holds
// whatever log could be decoded even when the error is non-nil, so callers
// can replay it before reporting the failure. A body that is not a JSON
// object or lacks a truthy success flag yields a DeploymentError carrying
// the raw body.
//
// Decoding is lenient the way loosely typed hosts encode: success may be
// any truthy value, non-string result values keep their JSON text, an
// empty context may arrive as [] and log entries that are not objects are
// skipped.
func ParseResponse(body []byte) (Response, error) {
	failed := deployerr.Deployment("Deployment failed: " + string(body))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return Response{}, failed
	}
	resp := Response{
		Success: truthy(fields["success"]),
		Result:  decodeResult(fields["result"]),
		Error:   decodeError(fields["error"]),
		Log:     decodeLog(fields["log"]),
	}
	if !resp.Success {
		return resp, failed
	}
	return resp, nil
}

func truthy(raw json.RawMessage) bool {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != "" && x != "0"
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return false
}

// text returns a JSON string as is and any other value as its JSON text.
func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func number(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	if f, err := strconv.ParseFloat(text(raw), 64); err == nil {
		return f
	}
	return 0
}

func decodeResult(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out
	}
	for k, v := range fields {
		out[k] = text(v)
	}
	return out
}

func decodeError(raw json.RawMessage) *ErrorPayload {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &ErrorPayload{Message: text(raw)}
	}
	return &ErrorPayload{Type: text(fields["type"]), Message: text(fields["message"])}
}

func decodeLog(raw json.RawMessage) []remotelog.Entry {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	entries := make([]remotelog.Entry, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		logContext := map[string]any{}
		if err := json.Unmarshal(fields["context"], &logContext); err != nil || logContext == nil {
			logContext = map[string]any{}
		}
		entries = append(entries, remotelog.Entry{
			Level:     text(fields["level"]),
			Timestamp: number(fields["timestamp"]),
			Message:   text(fields["message"]),
			Context:   logContext,
		})
	}
	return entries
}
