// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
)

// Connection is a bidirectional, framed message stream obtained from a
// Transport. Read and Write may be called concurrently by the owning Client
// or Server, but each is called from only one goroutine at a time.
type Connection interface {
	// Read decodes and returns the next inbound message, blocking until one
	// arrives or ctx is done.
	Read(ctx context.Context) (JSONRPCMessage, error)
	// Write encodes and sends msg.
	Write(ctx context.Context, msg JSONRPCMessage) error
	// Close releases the underlying transport. Read unblocks with an error
	// after Close returns.
	Close() error
}

// Transport connects a Client or Server to a peer: stdio pipes, an HTTP
// request/response pair, or a WebSocket. Connect is called once per logical
// session and returns the stream used for the lifetime of that session.
type Transport interface {
	Connect(ctx context.Context) (Connection, error)
}
