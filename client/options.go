// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/lyoapp/taskwatch/internal/telemetry"
)

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "taskwatch/1.0"

// Option configures a Client.
type Option func(*options) error

// options holds all configuration for a Client.
type options struct {
	httpClient   *http.Client
	timeout      time.Duration
	userAgent    string
	token        string
	headers      http.Header
	interceptors []Interceptor
	logger       *slog.Logger
	tracer       trace.Tracer
}

// defaultOptions returns default client options.
func defaultOptions() *options {
	return &options{
		httpClient: http.DefaultClient,
		timeout:    30 * time.Second,
		userAgent:  DefaultUserAgent,
		headers:    make(http.Header),
		logger:     slog.Default(),
		tracer:     otel.GetTracerProvider().Tracer(telemetry.ScopeName),
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) error {
		if client == nil {
			return &ValidationError{Field: "httpClient", Message: "HTTP client cannot be nil"}
		}
		o.httpClient = client
		return nil
	}
}

// WithTimeout bounds every request. Zero disables the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout < 0 {
			return &ValidationError{Field: "timeout", Message: "timeout cannot be negative"}
		}
		o.timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return &ValidationError{Field: "userAgent", Message: "user agent cannot be empty"}
		}
		o.userAgent = ua
		return nil
	}
}

// WithBearerToken attaches token to every request.
func WithBearerToken(token string) Option {
	return func(o *options) error {
		o.token = token
		return nil
	}
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(o *options) error {
		if key == "" {
			return &ValidationError{Field: "header", Message: "header name cannot be empty"}
		}
		o.headers.Add(key, value)
		return nil
	}
}

// WithInterceptors appends interceptors to the request chain. They run in
// the order given, after the built-in ones.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(o *options) error {
		for _, i := range interceptors {
			if i == nil {
				return &ValidationError{Field: "interceptors", Message: "interceptor cannot be nil"}
			}
		}
		o.interceptors = append(o.interceptors, interceptors...)
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return &ValidationError{Field: "logger", Message: "logger cannot be nil"}
		}
		o.logger = logger
		return nil
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return &ValidationError{Field: "tracer", Message: "tracer cannot be nil"}
		}
		o.tracer = tracer
		return nil
	}
}
