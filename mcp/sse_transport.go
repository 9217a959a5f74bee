// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mcp-go-core/sdk/internal/idgen"
	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
)

var sseSessionIDs = idgen.NewFastStreamID()

func newSSESessionID() string {
	id, _ := sseSessionIDs.Next()
	return id
}

// serverCallMethods are the methods this server answers synchronously, as
// opposed to fire-and-forget notifications; a POSTed message naming one of
// these without an id is malformed.
var serverCallMethods = map[string]bool{
	methodInitialize:             true,
	methodPing:                   true,
	methodListTools:              true,
	methodCallTool:               true,
	methodListResources:          true,
	methodReadResource:           true,
	methodListResourceTemplates:  true,
	methodListPrompts:            true,
	methodGetPrompt:              true,
	methodComplete:               true,
	methodSetLevel:               true,
	methodSubscribe:              true,
	methodUnsubscribe:            true,
	methodGetTask:                true,
	methodListTasks:              true,
	methodCancelTask:             true,
	methodTaskResult:             true,
}

// classifyMethod reports whether method is recognized by this server's
// dispatch table, and if so, whether it is a call that expects a response
// (and therefore requires an id) as opposed to a notification.
func classifyMethod(method string) (known, requiresID bool) {
	if serverCallMethods[method] {
		return true, true
	}
	if strings.HasPrefix(method, "notifications/") {
		return true, false
	}
	return false, false
}

// SSEHandlerOptions configures a SSEHandler.
type SSEHandlerOptions struct{}

// sseHandler implements the original HTTP+SSE MCP transport: a GET request
// opens a long-lived SSE stream, whose first event carries the URL the
// client must POST subsequent JSON-RPC messages to. This predates the
// streamable HTTP transport ([StreamableHTTPHandler]) and is kept for
// clients that only speak the older protocol version.
type sseHandler struct {
	getServer func(*http.Request) *Server
	sessions  *MemoryServerSessionStore[*SSEServerTransport]

	// onConnection, if set, is called with each server session as it is
	// established. Used by tests to observe sessions from outside the
	// request goroutine.
	onConnection func(*ServerSession)
}

// NewSSEHandler returns an http.Handler implementing the HTTP+SSE
// transport. getServer is called for each new connection to select the
// Server that will handle it.
func NewSSEHandler(getServer func(*http.Request) *Server, opts *SSEHandlerOptions) *sseHandler {
	return &sseHandler{
		getServer: getServer,
		sessions:  NewMemoryServerSessionStore[*SSEServerTransport](),
	}
}

func (h *sseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveSSE(w, r)
	case http.MethodPost:
		h.serveMessage(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *sseHandler) serveSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionID := newSSESessionID()
	endpoint := r.URL.Path + "?sessionId=" + url.QueryEscape(sessionID)
	transport := newSSEServerTransport(endpoint, w)
	h.sessions.Set(sessionID, transport)
	defer h.sessions.Delete(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if _, err := writeEvent(w, event{name: "endpoint", data: []byte(endpoint)}); err != nil {
		return
	}

	server := h.getServer(r)
	ss, err := server.Connect(r.Context(), transport)
	if err != nil {
		return
	}
	if h.onConnection != nil {
		h.onConnection(ss)
	}
	ss.Wait()
}

func (h *sseHandler) serveMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	transport, err := h.sessions.Get(sessionID)
	if err != nil || transport == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}
	msgs, _, err := readBatch(body)
	if err != nil {
		http.Error(w, "decoding message: "+err.Error(), http.StatusBadRequest)
		return
	}

	for _, msg := range msgs {
		method, hasID := "", false
		switch m := msg.(type) {
		case *jsonrpc2.Request:
			method, hasID = m.Method, true
		case *jsonrpc2.Notification:
			method, hasID = m.Method, false
		default:
			http.Error(w, "message is not handled: expected a request or notification", http.StatusBadRequest)
			return
		}
		known, requiresID := classifyMethod(method)
		if !known {
			http.Error(w, fmt.Sprintf("method %q not handled", method), http.StatusBadRequest)
			return
		}
		if requiresID && !hasID {
			http.Error(w, fmt.Sprintf("request for method %q missing id", method), http.StatusBadRequest)
			return
		}
	}

	for _, msg := range msgs {
		if err := transport.deliver(msg); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusAccepted)
}

// SSEServerTransport is the per-session Transport/Connection for one SSE
// client: messages POSTed to its message endpoint are delivered via Read,
// and outbound messages are written as SSE frames on the stream held open
// by serveSSE.
type SSEServerTransport struct {
	endpoint string
	w        http.ResponseWriter

	mu     sync.Mutex
	closed bool
	incoming chan JSONRPCMessage
	done     chan struct{}
}

func newSSEServerTransport(endpoint string, w http.ResponseWriter) *SSEServerTransport {
	return &SSEServerTransport{
		endpoint: endpoint,
		w:        w,
		incoming: make(chan JSONRPCMessage, 16),
		done:     make(chan struct{}),
	}
}

func (t *SSEServerTransport) Connect(ctx context.Context) (Connection, error) {
	return t, nil
}

func (t *SSEServerTransport) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg, ok := <-t.incoming:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *SSEServerTransport) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	_, err = writeEvent(t.w, event{name: "message", data: data})
	return err
}

func (t *SSEServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// deliver feeds an inbound POSTed message to Read. It is called from the
// serveMessage handler goroutine, not Read's caller.
func (t *SSEServerTransport) deliver(msg JSONRPCMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	select {
	case t.incoming <- msg:
		return nil
	default:
		return fmt.Errorf("message queue full")
	}
}

// SSEClientTransportOptions configures a SSEClientTransport.
type SSEClientTransportOptions struct {
	// HTTPClient is used to make requests; nil means http.DefaultClient.
	HTTPClient *http.Client
	// ModifyRequest, if set, is called on every outgoing request (the
	// initial SSE GET and every subsequent message POST) before it is
	// sent, to attach auth headers or similar.
	ModifyRequest func(*http.Request)
}

// SSEClientTransport is a [Transport] that speaks the client side of the
// HTTP+SSE protocol: it opens a GET request for the event stream, learns
// the message-posting endpoint from the stream's first "endpoint" event,
// and POSTs outgoing messages there.
type SSEClientTransport struct {
	Endpoint      string
	HTTPClient    *http.Client
	ModifyRequest func(*http.Request)
}

// NewSSEClientTransport returns a SSEClientTransport connecting to endpoint.
func NewSSEClientTransport(endpoint string, opts *SSEClientTransportOptions) *SSEClientTransport {
	t := &SSEClientTransport{Endpoint: endpoint}
	if opts != nil {
		t.HTTPClient = opts.HTTPClient
		t.ModifyRequest = opts.ModifyRequest
	}
	return t
}

func (t *SSEClientTransport) Connect(ctx context.Context) (Connection, error) {
	client := t.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if t.ModifyRequest != nil {
		t.ModifyRequest(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", t.Endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("connecting to %s: %s: %s", t.Endpoint, resp.Status, bytes.TrimSpace(body))
	}

	next, stop := iter.Pull2(scanEvents(resp.Body))
	evt, err, ok := next()
	if !ok || err != nil {
		stop()
		resp.Body.Close()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading endpoint event: %w", err)
	}
	if evt.name != "endpoint" {
		stop()
		resp.Body.Close()
		return nil, fmt.Errorf("expected an endpoint event, got %q", evt.name)
	}

	base, err := url.Parse(t.Endpoint)
	if err != nil {
		stop()
		resp.Body.Close()
		return nil, err
	}
	ref, err := url.Parse(string(evt.data))
	if err != nil {
		stop()
		resp.Body.Close()
		return nil, fmt.Errorf("parsing endpoint event %q: %w", evt.data, err)
	}

	conn := &sseClientConn{
		client:        client,
		modifyRequest: t.ModifyRequest,
		msgEndpoint:   base.ResolveReference(ref),
		body:          resp.Body,
		next:          next,
		stop:          stop,
		incoming:      make(chan JSONRPCMessage, 16),
		done:          make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

type sseClientConn struct {
	client        *http.Client
	modifyRequest func(*http.Request)
	msgEndpoint   *url.URL
	body          io.ReadCloser

	next func() (event, error, bool)
	stop func()

	incoming  chan JSONRPCMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (c *sseClientConn) readLoop() {
	defer close(c.done)
	for {
		evt, err, ok := c.next()
		if !ok || err != nil {
			return
		}
		if evt.name == "endpoint" {
			continue
		}
		msg, err := jsonrpc2.DecodeMessage(evt.data)
		if err != nil {
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *sseClientConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-c.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *sseClientConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.msgEndpoint.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.modifyRequest != nil {
		c.modifyRequest(req)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("posting message: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return nil
}

func (c *sseClientConn) Close() error {
	c.closeOnce.Do(func() {
		c.stop()
		c.body.Close()
	})
	return nil
}
