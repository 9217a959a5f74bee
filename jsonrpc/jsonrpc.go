// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc exposes the public JSON-RPC 2.0 wire vocabulary used by
// handlers and tests: the envelope types, the standard error codes, and the
// Error type returned by method handlers that need to report a specific
// JSON-RPC error rather than a generic internal error.
package jsonrpc

import (
	"io"

	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
)

// Error is the {code,message,data} object carried by a JSON-RPC error
// response. Handlers may return a *Error directly to control the code and
// message sent to the peer.
type Error = jsonrpc2.WireError

// Message is any JSON-RPC 2.0 envelope: Request, Notification, Response, or
// Error.
type Message = jsonrpc2.Message

// Messages is an ordered batch of envelopes sharing one framing unit.
type Messages []Message

// Request is a method call awaiting a Response.
type Request = jsonrpc2.Request

// Notification is a method call with no id.
type Notification = jsonrpc2.Notification

// Response is a successful reply.
type Response = jsonrpc2.Response

// Standard and MCP-specific JSON-RPC error codes.
const (
	CodeParseError          = jsonrpc2.CodeParseError
	CodeInvalidRequest      = jsonrpc2.CodeInvalidRequest
	CodeMethodNotFound      = jsonrpc2.CodeMethodNotFound
	CodeInvalidParams       = jsonrpc2.CodeInvalidParams
	CodeInternalError       = jsonrpc2.CodeInternalError
	CodeRequestTimeout      = jsonrpc2.CodeRequestTimeout
	CodeIncompatibleVersion = jsonrpc2.CodeIncompatibleVersion
	CodeCapabilityRequired  = jsonrpc2.CodeCapabilityRequired
)

// DecodeMessage decodes a single JSON-RPC 2.0 envelope.
func DecodeMessage(data []byte) (Message, error) {
	return jsonrpc2.DecodeMessage(data)
}

// EncodeMessage encodes msg as a single JSON-RPC 2.0 envelope.
func EncodeMessage(msg Message) ([]byte, error) {
	return jsonrpc2.EncodeMessage(msg)
}

// EncodeMessageTo writes the encoded envelope for msg to w, without a
// trailing newline.
func EncodeMessageTo(w io.Writer, msg Message) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
