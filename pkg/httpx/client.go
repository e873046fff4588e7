package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PrimaryDeadline bounds outbound calls on the primary coordination path
// (e.g. certificate authority asking the ledger adapter to anchor a
// proof). FanoutDeadline bounds best-effort fan-out calls whose failure
// must never block or poison the caller's state.
const (
	PrimaryDeadline = 5 * time.Second
	FanoutDeadline  = 3 * time.Second
)

// Client wraps http.Client with the service-token header every outbound
// inter-service call must carry, and JSON request/response helpers.
type Client struct {
	HTTP         *http.Client
	ServiceToken string
}

// NewClient returns a Client with no per-call timeout set on the
// underlying http.Client; callers bound each call via context instead,
// since different calls use different deadlines.
func NewClient(serviceToken string) *Client {
	return &Client{HTTP: &http.Client{}, ServiceToken: serviceToken}
}

// Result captures the outcome of a JSON call: whether it reached the
// collaborator, its status code, and the raw response body for the
// caller to decode.
type Result struct {
	StatusCode int
	Body       []byte
	Unreachable bool
	Err        error
}

// PostJSON issues a POST with the given deadline and returns the raw
// response body, if any, in Result.Body for decoding with DecodeInto.
func (c *Client) PostJSON(ctx context.Context, deadline time.Duration, url string, payload interface{}, extraHeaders map[string]string) Result {
	return c.doJSON(ctx, deadline, http.MethodPost, url, payload, extraHeaders)
}

// GetJSON issues a GET with the given deadline.
func (c *Client) GetJSON(ctx context.Context, deadline time.Duration, url string, extraHeaders map[string]string) Result {
	return c.doJSON(ctx, deadline, http.MethodGet, url, nil, extraHeaders)
}

func (c *Client) doJSON(ctx context.Context, deadline time.Duration, method, url string, payload interface{}, extraHeaders map[string]string) Result {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Result{Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(cctx, method, url, body)
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ServiceToken != "" {
		req.Header.Set("x-service-token", c.ServiceToken)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{Unreachable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Err: err}
	}
	return Result{StatusCode: resp.StatusCode, Body: raw}
}

// DecodeInto unmarshals a successful Result's body into dst.
func (r Result) DecodeInto(dst interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, dst)
}

// OK reports whether the call reached the collaborator and received a
// 2xx status.
func (r Result) OK() bool {
	return r.Err == nil && !r.Unreachable && r.StatusCode >= 200 && r.StatusCode < 300
}
