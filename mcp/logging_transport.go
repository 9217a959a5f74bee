// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
)

// LoggingTransport wraps another Transport, writing every message read from
// or written to the underlying connection to Writer as a line of the form
// "read: <json>" or "write: <json>". It is meant for development use, such as
// wrapping [NewStdioTransport] to log traffic to stderr, since stdout is
// reserved for the protocol itself.
type LoggingTransport struct {
	Transport Transport
	Writer    io.Writer
}

func (t *LoggingTransport) Connect(ctx context.Context) (Connection, error) {
	conn, err := t.Transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, w: t.Writer}, nil
}

type loggingConn struct {
	conn Connection
	w    io.Writer
	mu   sync.Mutex
}

func (c *loggingConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	msg, err := c.conn.Read(ctx)
	if err == nil {
		c.log("read", msg)
	}
	return msg, err
}

func (c *loggingConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.log("write", msg)
	return c.conn.Write(ctx, msg)
}

func (c *loggingConn) Close() error {
	return c.conn.Close()
}

func (c *loggingConn) log(direction string, msg JSONRPCMessage) {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s: %s\n", direction, data)
}
