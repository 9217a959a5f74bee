// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
)

// Request is the common interface seen by receiving [Middleware]: it exposes
// the session a method arrived on and the method name, without requiring the
// middleware to know the concrete, per-method params type that
// [ServerSession.dispatch] will later decode. Logging, auth, and rate-limit
// middleware only ever need this much; anything that needs typed params
// belongs in a method handler registered the usual way (AddTool, AddPrompt,
// etc.), not in a Middleware.
type Request interface {
	// GetSession returns the session the request arrived on.
	GetSession() *ServerSession
	// GetMethod returns the JSON-RPC method name, e.g. "tools/call".
	GetMethod() string
}

// MethodHandler processes one inbound request or notification method and
// returns the value to marshal into the response (or an error, which is
// reported as a JSON-RPC error response for requests and logged for
// notifications).
type MethodHandler func(ctx context.Context, req Request) (any, error)

// Middleware wraps a MethodHandler to add cross-cutting behavior -
// logging, metrics, authorization - around every inbound method. Middleware
// added via [Server.AddReceivingMiddleware] runs in the order added, with
// the first-added middleware outermost.
type Middleware func(MethodHandler) MethodHandler

// rawServerRequest adapts one raw inbound method/params pair, as read off
// the wire before any per-method decoding, to the Request interface that a
// receiving Middleware chain operates on.
type rawServerRequest struct {
	session *ServerSession
	method  string
	params  json.RawMessage
}

func (r *rawServerRequest) GetSession() *ServerSession { return r.session }
func (r *rawServerRequest) GetMethod() string          { return r.method }

// chainMiddleware composes mw around base, with mw[0] outermost.
func chainMiddleware(base MethodHandler, mw []Middleware) MethodHandler {
	h := base
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
