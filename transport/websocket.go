// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lyoapp/taskwatch"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
	pingPayload             = "taskwatch"
)

// WebSocket is a [Transport] backed by gorilla/websocket.
type WebSocket struct {
	base             *url.URL
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	header           http.Header
	logger           *slog.Logger
}

var _ Transport = (*WebSocket)(nil)

// Option configures a WebSocket.
type Option func(*WebSocket)

// WithDialer sets the dialer used to open channels.
func WithDialer(d *websocket.Dialer) Option {
	return func(w *WebSocket) {
		if d != nil {
			w.dialer = d
		}
	}
}

// WithHandshakeTimeout bounds the opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(w *WebSocket) {
		if d > 0 {
			w.handshakeTimeout = d
		}
	}
}

// WithBearerToken sends token in the Authorization header of the handshake.
func WithBearerToken(token string) Option {
	return func(w *WebSocket) {
		if token != "" {
			w.header.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader adds a header to the handshake request.
func WithHeader(key, value string) Option {
	return func(w *WebSocket) {
		w.header.Add(key, value)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *WebSocket) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWebSocket returns a WebSocket transport for the server at baseURL.
//
// baseURL may use the http, https, ws or wss scheme. HTTP schemes are mapped
// onto their WebSocket counterparts.
func NewWebSocket(baseURL string, opts ...Option) (*WebSocket, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse channel base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported channel URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("channel base URL %q has no host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""

	w := &WebSocket{
		base:             u,
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: defaultHandshakeTimeout,
		header:           make(http.Header),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// EndpointForTask returns the channel URL of taskID.
func (w *WebSocket) EndpointForTask(taskID string) string {
	u := *w.base
	u.Path = w.base.Path + "/ws/tasks/" + url.PathEscape(taskID)
	return u.String()
}

// Open implements [Transport].
func (w *WebSocket) Open(ctx context.Context, taskID string) (Conn, error) {
	endpoint := w.EndpointForTask(taskID)

	ctx, cancel := context.WithTimeout(ctx, w.handshakeTimeout)
	defer cancel()

	conn, resp, err := w.dialer.DialContext(ctx, endpoint, w.header.Clone())
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		w.logger.DebugContext(ctx, "channel handshake failed", "task_id", taskID, "error", err)
		e := taskwatch.NewErrorWithCause(taskwatch.KindConnectFailed, "open channel "+endpoint, err)
		if resp != nil {
			e.StatusCode = resp.StatusCode
		}
		return nil, e
	}

	w.logger.DebugContext(ctx, "channel open", "task_id", taskID)
	return newWSConn(conn, w.logger.With("task_id", taskID)), nil
}

// wsConn is a [Conn] over one WebSocket connection.
type wsConn struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	pong    chan struct{}
	done    chan struct{}
	started atomic.Bool

	mu      sync.Mutex
	err     error
	stopped bool
}

var _ Conn = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn, logger *slog.Logger) *wsConn {
	c := &wsConn{
		conn:   conn,
		logger: logger,
		pong:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		select {
		case c.pong <- struct{}{}:
		default:
		}
		return nil
	})
	return c
}

// OnMessage implements [Conn].
func (c *wsConn) OnMessage(h MessageHandler) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.readLoop(h)
}

func (c *wsConn) readLoop(h MessageHandler) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("channel read failed", "error", err)
			}
			c.stop(err)
			return
		}
		h(data)
	}
}

// Probe implements [Conn]. Pongs are only observed while frames are being
// read, so Probe requires a prior call to OnMessage.
func (c *wsConn) Probe(ctx context.Context) bool {
	// drop a pong left over from an earlier probe
	select {
	case <-c.pong:
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	if err := c.conn.WriteControl(websocket.PingMessage, []byte(pingPayload), deadline); err != nil {
		c.logger.Debug("channel ping failed", "error", err)
		return false
	}

	select {
	case <-c.pong:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Done implements [Conn].
func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

// Err implements [Conn].
func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close implements [Conn].
func (c *wsConn) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.done)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	return c.conn.Close()
}

// stop records err as the reason the peer went away, unless the connection
// was already closed locally.
func (c *wsConn) stop(err error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.err = err
	close(c.done)
	c.mu.Unlock()

	c.conn.Close()
}
