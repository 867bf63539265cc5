// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the real-time channel over which a task server
// pushes progress frames.
//
// The package opens, reads and closes channels. It never retries; recovery is
// the caller's business.
package transport

import (
	"context"
)

// MessageHandler receives the raw payload of one frame.
type MessageHandler func(data []byte)

// Transport opens channels scoped to a single task.
type Transport interface {
	// Open connects to the channel of taskID. It fails with a
	// [taskwatch.KindConnectFailed] error when the handshake does not complete.
	Open(ctx context.Context, taskID string) (Conn, error)
}

// Conn is an open channel.
type Conn interface {
	// OnMessage registers h and starts delivering frames to it in arrival
	// order. Only the first call has any effect.
	OnMessage(h MessageHandler)

	// Probe checks that the peer is still responsive. It reports false when
	// the peer does not answer before ctx is done.
	Probe(ctx context.Context) bool

	// Done is closed when the channel stops delivering frames, whether
	// because of Close or because the peer went away.
	Done() <-chan struct{}

	// Err returns the reason the channel stopped, or nil when it is still
	// open or was closed locally.
	Err() error

	// Close closes the channel. It is safe to call more than once.
	Close() error
}
