// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package transporttest provides an in-memory [transport.Transport] for
// tests.
package transporttest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lyoapp/taskwatch"
	"github.com/lyoapp/taskwatch/transport"
)

// ErrDropped is reported by a Conn dropped with Drop(nil).
var ErrDropped = errors.New("transporttest: connection dropped")

// Transport hands out scripted Conns.
type Transport struct {
	// OpenErr, when set, makes every Open fail with a connect error.
	OpenErr error
	// OpenDelay delays Open, honoring ctx.
	OpenDelay time.Duration
	// ProbeOK is what Probe reports on the Conns handed out.
	ProbeOK bool

	opens atomic.Int32
	mu    sync.Mutex
	conns []*Conn
	ready chan *Conn
}

var _ transport.Transport = (*Transport)(nil)

// New returns a Transport whose Conns answer probes.
func New() *Transport {
	return &Transport{
		ProbeOK: true,
		ready:   make(chan *Conn, 16),
	}
}

// Open implements [transport.Transport].
func (t *Transport) Open(ctx context.Context, taskID string) (transport.Conn, error) {
	t.opens.Add(1)
	if t.OpenDelay > 0 {
		select {
		case <-time.After(t.OpenDelay):
		case <-ctx.Done():
			return nil, taskwatch.NewErrorWithCause(taskwatch.KindConnectFailed, "open channel", ctx.Err())
		}
	}
	if t.OpenErr != nil {
		return nil, taskwatch.NewErrorWithCause(taskwatch.KindConnectFailed, "open channel", t.OpenErr)
	}

	c := &Conn{
		TaskID:     taskID,
		probeOK:    t.ProbeOK,
		registered: make(chan struct{}),
		done:       make(chan struct{}),
	}
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	t.ready <- c

	return c, nil
}

// Opens returns how many times Open was called.
func (t *Transport) Opens() int {
	return int(t.opens.Load())
}

// Conns returns every Conn handed out so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// Next waits for the next Conn to be opened and for its handler to be
// registered.
func (t *Transport) Next(ctx context.Context) (*Conn, error) {
	select {
	case c := <-t.ready:
		select {
		case <-c.registered:
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Conn is an in-memory [transport.Conn].
type Conn struct {
	TaskID string

	probeOK    bool
	registered chan struct{}
	done       chan struct{}
	closes     atomic.Int32

	mu      sync.Mutex
	handler transport.MessageHandler
	err     error
	stopped bool
}

var _ transport.Conn = (*Conn)(nil)

// OnMessage implements [transport.Conn].
func (c *Conn) OnMessage(h transport.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return
	}
	c.handler = h
	close(c.registered)
}

// Send delivers one frame to the registered handler. It reports false when
// the Conn is already stopped.
func (c *Conn) Send(frame string) bool {
	<-c.registered
	c.mu.Lock()
	stopped := c.stopped
	h := c.handler
	c.mu.Unlock()
	if stopped {
		return false
	}
	h([]byte(frame))
	return true
}

// Probe implements [transport.Conn].
func (c *Conn) Probe(ctx context.Context) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	if c.probeOK {
		return true
	}
	<-ctx.Done()
	return false
}

// Done implements [transport.Conn].
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err implements [transport.Conn].
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close implements [transport.Conn].
func (c *Conn) Close() error {
	c.closes.Add(1)
	c.stop(nil)
	return nil
}

// Drop simulates the peer going away with err.
func (c *Conn) Drop(err error) {
	if err == nil {
		err = ErrDropped
	}
	c.stop(err)
}

// Closed reports whether Close was called at least once.
func (c *Conn) Closed() bool {
	return c.closes.Load() > 0
}

func (c *Conn) stop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.err = err
	close(c.done)
}
