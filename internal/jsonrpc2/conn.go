// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package jsonrpc2

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

func marshalResult(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// Reader is the minimal read side of a transport: one call returns one
// decoded message, or an error (typically io.EOF) when the peer is gone.
type Reader interface {
	Read(ctx context.Context) (Message, error)
}

// Writer is the minimal write side of a transport.
type Writer interface {
	Write(ctx context.Context, msg Message) error
}

// Handler processes inbound requests and notifications that the Conn could
// not correlate to a pending outbound call.
type Handler interface {
	Handle(ctx context.Context, req *Request) (any, error)
	HandleNotification(ctx context.Context, note *Notification) error
	HandleError(ctx context.Context, errMsg *ErrorMessage)
}

// pendingCall is the Conn's bookkeeping for one outbound request awaiting a
// response.
type pendingCall struct {
	response chan *callResult
}

type callResult struct {
	result json.RawMessage
	err    *WireError
}

// Conn multiplexes one bidirectional JSON-RPC connection: it owns the write
// half of the transport and the pending-requests map, assigns fresh request
// ids, and races each outbound call against its deadline and the
// connection's shared cancellation.
//
// Every exit path for a pending call (success, timeout, cancellation) removes
// its own entry from the pending map; complete also removes the entry when it
// hands a response to the waiting call.
type Conn struct {
	writer  Writer
	handler Handler
	logger  *slog.Logger
	limiter *rate.Limiter

	seq int64 // atomic

	pendingMu sync.Mutex
	pending   map[ID]*pendingCall

	writeMu sync.Mutex // serializes writer.Write

	shutdownOnce sync.Once
	done         chan struct{}
	isShutDown   atomic.Bool
}

// ConnOptions configures a Conn.
type ConnOptions struct {
	// Logger receives warnings about orphaned responses and dropped
	// messages. Defaults to slog.Default().
	Logger *slog.Logger
	// Limiter, if non-nil, rate-limits outbound Call/Notify writes.
	Limiter *rate.Limiter
}

// NewConn creates a Conn that writes through w and delivers unsolicited
// inbound messages to h.
func NewConn(w Writer, h Handler, opts *ConnOptions) *Conn {
	c := &Conn{
		writer:  w,
		handler: h,
		pending: make(map[ID]*pendingCall),
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}
	if opts != nil {
		if opts.Logger != nil {
			c.logger = opts.Logger
		}
		c.limiter = opts.Limiter
	}
	return c
}

// nextID allocates a fresh, monotone request id for this Conn.
func (c *Conn) nextID() ID {
	return Int64(atomic.AddInt64(&c.seq, 1))
}

// Call issues an outbound request and blocks until a response arrives, the
// deadline elapses, or ctx is cancelled. On any exit path the pending map
// entry for this call's id is removed before Call returns.
func (c *Conn) Call(ctx context.Context, method string, params any, deadline time.Duration) (json.RawMessage, error) {
	if c.isShutDown.Load() {
		return nil, fmt.Errorf("jsonrpc2: connection is shut down")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	id := c.nextID()
	req, err := NewCall(id, method, params)
	if err != nil {
		return nil, err
	}

	pc := &pendingCall{response: make(chan *callResult, 1)}
	c.pendingMu.Lock()
	c.pending[id] = pc
	c.pendingMu.Unlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	c.writeMu.Lock()
	writeErr := c.writer.Write(ctx, req)
	c.writeMu.Unlock()
	if writeErr != nil {
		cleanup()
		return nil, fmt.Errorf("jsonrpc2: writing request: %w", writeErr)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		callCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	select {
	case res := <-pc.response:
		cleanup()
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-callCtx.Done():
		cleanup()
		if deadline > 0 && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no response within %s", ErrRequestTimeout, deadline)
		}
		return nil, callCtx.Err()
	case <-c.done:
		cleanup()
		return nil, fmt.Errorf("jsonrpc2: connection shut down while awaiting response")
	}
}

// Notify sends a one-way notification; no response is awaited.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	if c.isShutDown.Load() {
		return fmt.Errorf("jsonrpc2: connection is shut down")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	note, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.Write(ctx, note)
}

// Deliver hands one inbound message, as surfaced by a transport's reader
// loop, to the Conn for routing: responses/errors complete a pending call's
// waiter, everything else is dispatched to the Handler (requests are
// replied to by writing their result/error back through the Conn).
func (c *Conn) Deliver(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case *Response:
		if !c.complete(m.ID, &callResult{result: m.Result}) {
			c.logger.Warn("jsonrpc2: dropping response with unknown id", "id", m.ID.String())
		}
	case *ErrorMessage:
		if !c.complete(m.ID, &callResult{err: m.Error}) {
			// Orphan error: not correlated to any pending call.
			if c.handler != nil {
				c.handler.HandleError(ctx, m)
			} else {
				c.logger.Warn("jsonrpc2: orphan error response", "id", m.ID.String())
			}
		}
	case *Request:
		go c.dispatchRequest(ctx, m)
	case *Notification:
		go func() {
			if c.handler == nil {
				return
			}
			if err := c.handler.HandleNotification(ctx, m); err != nil {
				c.logger.Warn("jsonrpc2: notification handler error", "method", m.Method, "error", err)
			}
		}()
	default:
		c.logger.Warn("jsonrpc2: dropping message of unrecognized shape", "type", fmt.Sprintf("%T", msg))
	}
}

func (c *Conn) complete(id ID, res *callResult) bool {
	c.pendingMu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case pc.response <- res:
	default:
	}
	return true
}

func (c *Conn) dispatchRequest(ctx context.Context, req *Request) {
	result, err := c.handler.Handle(ctx, req)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err != nil {
		var werr *WireError
		if we, ok := err.(*WireError); ok {
			werr = we
		} else {
			werr = &WireError{Code: CodeInternalError, Message: err.Error()}
		}
		_ = c.writer.Write(ctx, &ErrorMessage{ID: req.ID, Error: werr})
		return
	}
	data, merr := marshalResult(result)
	if merr != nil {
		_ = c.writer.Write(ctx, &ErrorMessage{ID: req.ID, Error: &WireError{Code: CodeInternalError, Message: merr.Error()}})
		return
	}
	_ = c.writer.Write(ctx, &Response{ID: req.ID, Result: data})
}

// Shutdown flips the shared cancellation flag, releasing every pending
// waiter with a cancellation error. It is safe to call more than once.
func (c *Conn) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.isShutDown.Store(true)
		close(c.done)
	})
}

// ErrRequestTimeout is returned by Call when a response does not arrive
// within the requested deadline.
var ErrRequestTimeout = &WireError{Code: CodeRequestTimeout, Message: "Request timed out"}
