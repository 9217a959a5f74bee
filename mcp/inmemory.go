// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"io"
	"sync"
)

// NewInMemoryTransports returns a connected pair of in-process transports,
// useful for tests and for embedding a client and server in the same
// process without going through a real network or pipe.
func NewInMemoryTransports() (Transport, Transport) {
	ab := make(chan JSONRPCMessage, 10)
	ba := make(chan JSONRPCMessage, 10)
	closed := make(chan struct{})
	var once sync.Once
	closeFn := func() { once.Do(func() { close(closed) }) }

	connA := &inMemoryConn{in: ba, out: ab, closed: closed, close: closeFn}
	connB := &inMemoryConn{in: ab, out: ba, closed: closed, close: closeFn}
	return &inMemoryTransport{conn: connA}, &inMemoryTransport{conn: connB}
}

// inMemoryTransport hands back an already-established inMemoryConn; Connect
// is trivial since there's no real dial step.
type inMemoryTransport struct {
	conn *inMemoryConn
}

func (t *inMemoryTransport) Connect(ctx context.Context) (Connection, error) {
	return t.conn, nil
}

// inMemoryConn implements Connection over a pair of channels. Closing
// either end of a pair closes both, since there's no independent notion of
// a half-closed in-memory pipe.
type inMemoryConn struct {
	in     <-chan JSONRPCMessage
	out    chan<- JSONRPCMessage
	closed chan struct{}
	close  func()
}

func (c *inMemoryConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *inMemoryConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *inMemoryConn) Close() error {
	c.close()
	return nil
}
