// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package client talks to the task HTTP API: it starts generation tasks and
// fetches their status.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/internal/pool"
)

// maxBodySize bounds the response bodies read from the server.
const maxBodySize = 1 << 20

// Client is an HTTP client for the task API.
type Client struct {
	baseURL string
	opts    *options
	invoke  Invoker
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &ValidationError{Field: "baseURL", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "baseURL", Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ValidationError{Field: "baseURL", Message: "base URL has no host"}
	}

	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		opts:    o,
	}
	chain := []Interceptor{
		UserAgentInterceptor(o.userAgent),
		BearerTokenInterceptor(o.token),
		HeaderInterceptor(o.headers),
		RequestIDInterceptor(),
		LoggingInterceptor(o.logger),
	}
	c.invoke = chainInterceptors(append(chain, o.interceptors...), c.send)

	return c, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartTask asks the server to generate content for req.
//
// Every call is sent with a fresh Idempotency-Key. Any non-2xx answer fails
// with a [taskwatch.KindStartFailed] error.
func (c *Client) StartTask(ctx context.Context, req taskwatch.GenerateRequest) (*taskwatch.TaskHandle, error) {
	ctx, span := c.opts.tracer.Start(ctx, "taskwatch.client.StartTask",
		trace.WithAttributes(attribute.String("taskwatch.topic", req.Topic)))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, endSpan(span, taskwatch.NewErrorWithCause(taskwatch.KindStartFailed, "invalid request", err))
	}

	buf := pool.Bytes.Get()
	defer pool.PutBuffer(buf)
	if err := json.MarshalWrite(buf, req); err != nil {
		return nil, endSpan(span, fmt.Errorf("encode generate request: %w", err))
	}

	key := uuid.NewString()
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Idempotency-Key", key)
	header.Set("Prefer", "respond-async")

	resp, err := c.do(ctx, http.MethodPost, "/tasks:generate", buf, header)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, endSpan(span, taskwatch.FromContext(ctxErr))
		}
		return nil, endSpan(span, taskwatch.NewErrorWithCause(taskwatch.KindStartFailed, "send generate request", err))
	}
	if !resp.ok() {
		c.opts.logger.WarnContext(ctx, "generate request rejected", "status", resp.status)
		return nil, endSpan(span, statusError(taskwatch.KindStartFailed, "generate request rejected", resp))
	}

	var h taskwatch.TaskHandle
	if err := json.Unmarshal(resp.body, &h); err != nil {
		return nil, endSpan(span, taskwatch.NewErrorWithCause(taskwatch.KindDecode, "malformed generate response", err))
	}
	if h.TaskID == "" {
		return nil, endSpan(span, taskwatch.NewError(taskwatch.KindDecode, "generate response has no taskId"))
	}
	h.IdempotencyKey = key

	span.SetAttributes(attribute.String("taskwatch.task_id", h.TaskID))
	c.opts.logger.InfoContext(ctx, "task started", "task_id", h.TaskID)

	return &h, nil
}

// GetTask fetches the current status of taskID.
//
// Failures are classified by HTTP status: 429 is rate limited, 5xx and
// network errors are transient, 401 and 403 are unauthorized and every other
// non-2xx is fatal.
func (c *Client) GetTask(ctx context.Context, taskID string) (taskwatch.TaskEvent, error) {
	ctx, span := c.opts.tracer.Start(ctx, "taskwatch.client.GetTask",
		trace.WithAttributes(attribute.String("taskwatch.task_id", taskID)))
	defer span.End()

	header := http.Header{}
	header.Set("Accept", "application/json")

	resp, err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, header)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return taskwatch.TaskEvent{}, endSpan(span, taskwatch.FromContext(ctxErr))
		}
		return taskwatch.TaskEvent{}, endSpan(span, taskwatch.NewErrorWithCause(taskwatch.KindTransientServer, "fetch task status", err))
	}
	if !resp.ok() {
		return taskwatch.TaskEvent{}, endSpan(span, statusError(taskwatch.KindForStatus(resp.status), "fetch task status", resp))
	}

	ev, err := taskwatch.DecodeEvent(resp.body)
	if err != nil {
		return taskwatch.TaskEvent{}, endSpan(span, err)
	}
	span.SetAttributes(attribute.String("taskwatch.state", ev.State.String()))

	return ev, nil
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status <= 299
}

// do sends one request through the interceptor chain and reads the whole body.
func (c *Client) do(ctx context.Context, method, path string, body *bytes.Buffer, header http.Header) (*response, error) {
	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}

	var r io.Reader
	if body != nil {
		r = body
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := pool.Bytes.Get()
	defer pool.PutBuffer(buf)
	if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxBodySize)); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &response{
		status: resp.StatusCode,
		header: resp.Header,
		body:   bytes.Clone(buf.Bytes()),
	}, nil
}

func (c *Client) send(_ context.Context, req *http.Request) (*http.Response, error) {
	return c.opts.httpClient.Do(req)
}

// statusError builds the error for a non-2xx response, attaching the problem
// details body and the Retry-After hint when present.
func statusError(kind taskwatch.Kind, op string, r *response) *taskwatch.Error {
	e := &taskwatch.Error{
		Kind:       kind,
		Message:    op,
		StatusCode: r.status,
	}
	if p := taskwatch.DecodeProblem(r.body); p != nil {
		e.Problem = p
		e.Message = op + ": " + p.Message()
	}
	if r.status == http.StatusTooManyRequests {
		e.RetryAfter = parseRetryAfter(r.header.Get("Retry-After"), time.Now())
	}
	return e
}

// parseRetryAfter reads a Retry-After value given either in seconds or as an
// HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
