// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc2 implements the JSON-RPC 2.0 wire envelopes and a
// bidirectional multiplexer (Conn) that correlates outbound requests with
// inbound responses by id, enforces per-call timeouts, and routes unsolicited
// messages to a Handler.
package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version this package accepts.
const Version = "2.0"

// ID is a JSON-RPC request identifier: either a 64-bit signed integer or a
// string. The zero ID is not valid; use IsValid to check.
type ID struct {
	value any // nil, int64, or string
}

// Int64 returns an ID holding the given integer.
func Int64(v int64) ID { return ID{value: v} }

// Int is a convenience wrapper around Int64 for small integer ids.
func Int(v int) ID { return Int64(int64(v)) }

// NewString returns an ID holding the given string.
func NewString(v string) ID { return ID{value: v} }

// IsValid reports whether the ID was set to a concrete value.
func (id ID) IsValid() bool { return id.value != nil }

// Raw returns the underlying int64 or string value, or nil.
func (id ID) Raw() any { return id.value }

func (id ID) String() string {
	switch v := id.value.(type) {
	case int64:
		return fmt.Sprintf("%d", v)
	case string:
		return v
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch v := id.value.(type) {
	case int64:
		return json.Marshal(v)
	case string:
		return json.Marshal(v)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*id = ID{value: i}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{value: s}
		return nil
	}
	return fmt.Errorf("jsonrpc2: invalid id %s", data)
}

// Message is implemented by every wire envelope shape: Request,
// Notification, Response, and ErrorMessage.
type Message interface {
	isJSONRPC2Message()
}

// Request is an envelope carrying a method call that expects a Response.
type Request struct {
	ID     ID              `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Request) isJSONRPC2Message() {}

// Notification is an envelope carrying a method call with no id; no
// response is expected.
type Notification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Notification) isJSONRPC2Message() {}

// Response is a successful reply to a Request.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result"`
}

func (*Response) isJSONRPC2Message() {}

// ErrorMessage is an error reply to a Request.
type ErrorMessage struct {
	ID    ID         `json:"id"`
	Error *WireError `json:"error"`
}

func (*ErrorMessage) isJSONRPC2Message() {}

// WireError is the {code,message,data} error object carried by an
// ErrorMessage.
type WireError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *WireError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Is allows errors.Is(err, ErrMethodNotFound) and friends to match by code.
func (e *WireError) Is(target error) bool {
	t, ok := target.(*WireError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Standard JSON-RPC 2.0 error codes, plus the MCP-specific extensions named
// in the protocol's error taxonomy.
const (
	CodeParseError           = -32700
	CodeInvalidRequest       = -32600
	CodeMethodNotFound       = -32601
	CodeInvalidParams        = -32602
	CodeInternalError        = -32603
	CodeRequestTimeout       = -32001
	CodeIncompatibleVersion  = -32002
	CodeCapabilityRequired   = -32003
	CodeInvalidOrExpiredAuth = -32004
)

// Sentinel wire errors, wrapped with fmt.Errorf("%w: ...", ...) at call
// sites throughout the mcp package.
var (
	ErrParse          = &WireError{Code: CodeParseError, Message: "Parse error"}
	ErrInvalidRequest = &WireError{Code: CodeInvalidRequest, Message: "Invalid Request"}
	ErrMethodNotFound = &WireError{Code: CodeMethodNotFound, Message: "Method not found"}
	ErrInvalidParams  = &WireError{Code: CodeInvalidParams, Message: "Invalid params"}
	ErrInternal       = &WireError{Code: CodeInternalError, Message: "Internal error"}
)

// wireEnvelope is the permissive shape used to sniff and decode an arbitrary
// incoming message.
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// DecodeMessage decodes a single JSON-RPC 2.0 envelope, dispatching to the
// concrete Message type by shape: a message with a method is a Request (if
// it carries an id) or a Notification (otherwise); a message with no method
// is a Response or ErrorMessage depending on the presence of "error".
func DecodeMessage(data []byte) (Message, error) {
	var env wireEnvelope
	if err := StrictUnmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if env.JSONRPC != Version {
		return nil, fmt.Errorf("%w: jsonrpc version must be %q, got %q", ErrInvalidRequest, Version, env.JSONRPC)
	}
	switch {
	case env.Method != "" && env.ID != nil:
		return &Request{ID: *env.ID, Method: env.Method, Params: env.Params}, nil
	case env.Method != "":
		return &Notification{Method: env.Method, Params: env.Params}, nil
	case env.Error != nil:
		id := ID{}
		if env.ID != nil {
			id = *env.ID
		}
		return &ErrorMessage{ID: id, Error: env.Error}, nil
	case env.ID != nil:
		return &Response{ID: *env.ID, Result: env.Result}, nil
	default:
		return nil, fmt.Errorf("%w: message has neither method, result, nor error", ErrInvalidRequest)
	}
}

// EncodeMessage encodes msg as a single JSON-RPC 2.0 envelope.
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      ID              `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
		}{Version, m.ID, m.Method, m.Params})
	case *Notification:
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
		}{Version, m.Method, m.Params})
	case *Response:
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      ID              `json:"id"`
			Result  json.RawMessage `json:"result"`
		}{Version, m.ID, m.Result})
	case *ErrorMessage:
		return json.Marshal(struct {
			JSONRPC string     `json:"jsonrpc"`
			ID      ID         `json:"id"`
			Error   *WireError `json:"error"`
		}{Version, m.ID, m.Error})
	default:
		return nil, fmt.Errorf("jsonrpc2: unknown message type %T", msg)
	}
}

// EncodeIndent is EncodeMessage followed by json.Indent, for debug logging.
func EncodeIndent(msg Message, prefix, indent string) ([]byte, error) {
	data, err := EncodeMessage(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, prefix, indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewCall builds a Request envelope for an outbound call, marshaling params.
func NewCall(id ID, method string, params any) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc2: marshaling params: %w", err)
		}
		raw = data
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a Notification envelope, marshaling params.
func NewNotification(method string, params any) (*Notification, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc2: marshaling params: %w", err)
		}
		raw = data
	}
	return &Notification{Method: method, Params: raw}, nil
}
