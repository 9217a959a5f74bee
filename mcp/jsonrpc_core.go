// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
)

// Meta holds protocol-reserved metadata attached to params and results via
// the wire "_meta" field. It is embedded anonymously by every params/result
// type so that GetMeta/SetMeta promote onto the concrete type.
type Meta map[string]any

// GetMeta returns the metadata map, which may be nil.
func (m Meta) GetMeta() Meta { return m }

// SetMeta replaces the metadata map.
func (m *Meta) SetMeta(v Meta) { *m = v }

// progressTokenKey is the well-known _meta key carrying a progress token.
const progressTokenKey = "progressToken"

// metaHolder is satisfied by every concrete params/result type through the
// embedded Meta field.
type metaHolder interface {
	GetMeta() Meta
	SetMeta(Meta)
}

func getProgressToken(x metaHolder) any {
	m := x.GetMeta()
	if m == nil {
		return nil
	}
	return m[progressTokenKey]
}

func setProgressToken(x metaHolder, t any) {
	m := x.GetMeta()
	if m == nil {
		m = Meta{}
	}
	m[progressTokenKey] = t
	x.SetMeta(m)
}

// Params is implemented by every request/notification parameter type.
// isParams is a marker that prevents external packages from defining new
// variants of the tagged union; GetProgressToken/SetProgressToken access the
// out-of-band progress token carried in _meta.
type Params interface {
	isParams()
	GetProgressToken() any
	SetProgressToken(any)
	GetMeta() Meta
	SetMeta(Meta)
}

// Result is implemented by every request result type. isResult is a marker
// that prevents external packages from defining new variants of the tagged
// union.
type Result interface {
	isResult()
}

// JSONRPCID is a JSON-RPC 2.0 request identifier: either a 64-bit integer or
// a string.
type JSONRPCID = jsonrpc2.ID

// JSONRPCMessage is any one of Request, Notification, Response, or batch
// envelope recognized on the wire.
type JSONRPCMessage = jsonrpc2.Message

// JSONRPCRequest is a request envelope carrying an id awaiting a response.
type JSONRPCRequest = jsonrpc2.Request

// JSONRPCNotification is a request envelope with no id; no response is
// expected.
type JSONRPCNotification = jsonrpc2.Notification

// JSONRPCResponse is a successful response envelope.
type JSONRPCResponse = jsonrpc2.Response

// JSONRPCErrorMsg is an error response envelope.
type JSONRPCErrorMsg = jsonrpc2.ErrorMessage

// ServerRequest wraps the session and decoded params for a request arriving
// at a Server: a client-to-server request, or a response/notification the
// server is handling on behalf of a client-issued call.
type ServerRequest[P Params] struct {
	// Session is the connection the request arrived on.
	Session *ServerSession
	// Params holds the request's decoded parameters.
	Params P
}

// ClientRequest wraps the session and decoded params for a request arriving
// at a Client: a server-to-client request, such as sampling/createMessage or
// roots/list.
type ClientRequest[P Params] struct {
	// Session is the connection the request arrived on.
	Session *ClientSession
	// Params holds the request's decoded parameters.
	Params P
}
