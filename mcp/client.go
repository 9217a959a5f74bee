// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
	"github.com/mcp-go-core/sdk/jsonrpc"
	"golang.org/x/time/rate"
)

// defaultCallTimeout bounds how long an outbound request waits for a
// response before returning jsonrpc2.ErrRequestTimeout. tasks/result and
// other intentionally long-lived calls pass their own, longer deadline.
const defaultCallTimeout = 30 * time.Second

// ClientOptions configures a Client.
type ClientOptions struct {
	// Logger receives diagnostic messages. Defaults to slog.Default().
	Logger *slog.Logger
	// Roots are advertised to the server and returned from roots/list.
	Roots []*Root
	// CreateMessageHandler serves sampling/createMessage requests from the
	// server. If nil, the client does not advertise sampling support.
	CreateMessageHandler func(context.Context, *CreateMessageRequest) (*CreateMessageResult, error)
	// ElicitHandler serves elicitation/create requests from the server. If
	// nil, the client does not advertise elicitation support.
	ElicitHandler func(context.Context, *ElicitRequest) (*ElicitResult, error)
	// LoggingMessageHandler receives notifications/message notifications.
	LoggingMessageHandler func(context.Context, *LoggingMessageRequest)
	// ProgressHandler receives notifications/progress notifications.
	ProgressHandler func(context.Context, *ProgressNotificationClientRequest)
	// ToolListChangedHandler receives notifications/tools/list_changed.
	ToolListChangedHandler func(context.Context, *ToolListChangedRequest)
	// CallTimeout bounds ordinary outbound requests. Defaults to 30s; 0
	// means use the default, negative means no timeout.
	CallTimeout time.Duration
	// RateLimiter, if non-nil, throttles outbound requests/notifications
	// this client sends to the server. A nil limiter disables throttling.
	RateLimiter *rate.Limiter
}

func (o *ClientOptions) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *ClientOptions) callTimeout() time.Duration {
	if o == nil || o.CallTimeout == 0 {
		return defaultCallTimeout
	}
	if o.CallTimeout < 0 {
		return 0
	}
	return o.CallTimeout
}

// Client is a Model Context Protocol client: it connects to one Server at a
// time per session and issues outbound requests on the client's behalf.
type Client struct {
	impl *Implementation
	opts ClientOptions
}

// NewClient creates a Client that identifies itself to servers as impl.
func NewClient(impl *Implementation, opts *ClientOptions) *Client {
	c := &Client{impl: impl}
	if opts != nil {
		c.opts = *opts
	}
	return c
}

func (c *Client) capabilities() *ClientCapabilities {
	caps := &ClientCapabilities{}
	if len(c.opts.Roots) > 0 {
		caps.Roots.ListChanged = true
		caps.RootsV2 = &RootCapabilities{ListChanged: true}
	}
	if c.opts.CreateMessageHandler != nil {
		caps.Sampling = &SamplingCapabilities{}
	}
	if c.opts.ElicitHandler != nil {
		caps.Elicitation = &ElicitationCapabilities{}
	}
	return caps
}

// ClientSession is one live connection between a Client and a single server.
type ClientSession struct {
	client     *Client
	conn       *jsonrpc2.Conn
	mcpConn    Connection
	done       chan struct{}
	opts       *ClientOptions

	mu                 sync.Mutex
	initializeResult   *InitializeResult
	serverCapabilities *ServerCapabilities
}

// Wait blocks until the session's connection has closed, either because the
// server disconnected or because Close was called.
func (cs *ClientSession) Wait() {
	<-cs.done
}

// InitializeResult returns the result of this session's initialize
// handshake, or nil before it has completed.
func (cs *ClientSession) InitializeResult() *InitializeResult {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.initializeResult
}

// Close terminates the session's connection.
func (cs *ClientSession) Close() error {
	cs.conn.Shutdown()
	return cs.mcpConn.Close()
}

func (cs *ClientSession) call(ctx context.Context, method string, params, result any) error {
	raw, err := cs.conn.Call(ctx, method, params, cs.opts.callTimeout())
	if err != nil {
		return err
	}
	if result == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, result)
}

// ClientConnectOptions configures one call to [Client.Connect]. It is
// reserved for future per-connection overrides; none are defined yet, so a
// nil or zero-value options struct behaves identically to omitting it.
type ClientConnectOptions struct{}

// Connect establishes a session with a server over t, performing the
// initialize/initialized handshake before returning. opts is accepted for
// forward compatibility and may be omitted or nil.
func (c *Client) Connect(ctx context.Context, t Transport, opts ...*ClientConnectOptions) (*ClientSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting transport: %w", err)
	}
	cs := &ClientSession{client: c, opts: &c.opts, mcpConn: conn, done: make(chan struct{})}
	h := &clientHandler{session: cs}
	cs.conn = jsonrpc2.NewConn(&connWriter{conn}, h, &jsonrpc2.ConnOptions{
		Logger:  c.opts.logger(),
		Limiter: c.opts.RateLimiter,
	})
	go c.readLoop(ctx, conn, cs)

	initParams := &InitializeParams{
		Capabilities:    c.capabilities(),
		ClientInfo:      c.impl,
		ProtocolVersion: protocolVersion,
	}
	var initResult InitializeResult
	if err := cs.call(ctx, methodInitialize, initParams, &initResult); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	cs.mu.Lock()
	cs.initializeResult = &initResult
	cs.serverCapabilities = initResult.Capabilities
	cs.mu.Unlock()

	if err := cs.conn.Notify(ctx, notificationInitialized, &InitializedParams{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("notifications/initialized: %w", err)
	}
	return cs, nil
}

func (c *Client) readLoop(ctx context.Context, conn Connection, cs *ClientSession) {
	defer close(cs.done)
	defer conn.Close()
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		cs.conn.Deliver(ctx, msg)
	}
}

// clientHandler adapts a ClientSession's inbound request dispatch to
// jsonrpc2.Handler.
type clientHandler struct {
	session *ClientSession
}

func (h *clientHandler) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	return h.session.dispatch(ctx, req.Method, req.Params)
}

func (h *clientHandler) HandleNotification(ctx context.Context, note *jsonrpc2.Notification) error {
	h.session.dispatchNotification(ctx, note.Method, note.Params)
	return nil
}

func (h *clientHandler) HandleError(ctx context.Context, errMsg *jsonrpc2.ErrorMessage) {
	h.session.opts.logger().Warn("mcp: unsolicited error from server", "code", errMsg.Error.Code, "message", errMsg.Error.Message)
}

func (cs *ClientSession) dispatch(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	opts := cs.opts
	switch method {
	case methodPing:
		return &emptyResult{}, nil

	case methodListRoots:
		roots := opts.Roots
		if roots == nil {
			roots = []*Root{}
		}
		return &ListRootsResult{Roots: roots}, nil

	case methodCreateMessage:
		if opts.CreateMessageHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		p := &CreateMessageParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return opts.CreateMessageHandler(ctx, &ClientRequest[*CreateMessageParams]{Session: cs, Params: p})

	case methodElicit:
		if opts.ElicitHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		p := &ElicitParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return opts.ElicitHandler(ctx, &ClientRequest[*ElicitParams]{Session: cs, Params: p})

	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

func (cs *ClientSession) dispatchNotification(ctx context.Context, method string, raw json.RawMessage) {
	opts := cs.opts
	switch method {
	case notificationLoggingMessage:
		if opts.LoggingMessageHandler == nil {
			return
		}
		p := &LoggingMessageParams{}
		if err := bindParams(raw, p); err != nil {
			return
		}
		opts.LoggingMessageHandler(ctx, &ClientRequest[*LoggingMessageParams]{Session: cs, Params: p})

	case notificationProgress:
		if opts.ProgressHandler == nil {
			return
		}
		p := &ProgressNotificationParams{}
		if err := bindParams(raw, p); err != nil {
			return
		}
		opts.ProgressHandler(ctx, &ClientRequest[*ProgressNotificationParams]{Session: cs, Params: p})

	case notificationToolListChanged:
		if opts.ToolListChangedHandler == nil {
			return
		}
		p := &ToolListChangedParams{}
		_ = bindParams(raw, p)
		opts.ToolListChangedHandler(ctx, &ClientRequest[*ToolListChangedParams]{Session: cs, Params: p})

	case notificationTaskStatus:
		// Surfaced only through explicit polling (see tasks_client.go); there
		// is nothing to do with an unsolicited status push here.
	}
}

// CallTool invokes a tool on the connected server.
func (cs *ClientSession) CallTool(ctx context.Context, params *CallToolParams) (*CallToolResult, error) {
	var res CallToolResult
	if err := cs.call(ctx, methodCallTool, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTools lists the tools the server currently exposes.
func (cs *ClientSession) ListTools(ctx context.Context, params *ListToolsParams) (*ListToolsResult, error) {
	if params == nil {
		params = &ListToolsParams{}
	}
	var res ListToolsResult
	if err := cs.call(ctx, methodListTools, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResources lists the resources the server currently exposes.
func (cs *ClientSession) ListResources(ctx context.Context, params *ListResourcesParams) (*ListResourcesResult, error) {
	if params == nil {
		params = &ListResourcesParams{}
	}
	var res ListResourcesResult
	if err := cs.call(ctx, methodListResources, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ReadResource reads the contents of a resource.
func (cs *ClientSession) ReadResource(ctx context.Context, params *ReadResourceParams) (*ReadResourceResult, error) {
	var res ReadResourceResult
	if err := cs.call(ctx, methodReadResource, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListPrompts lists the prompts the server currently exposes.
func (cs *ClientSession) ListPrompts(ctx context.Context, params *ListPromptsParams) (*ListPromptsResult, error) {
	if params == nil {
		params = &ListPromptsParams{}
	}
	var res ListPromptsResult
	if err := cs.call(ctx, methodListPrompts, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPrompt renders a prompt.
func (cs *ClientSession) GetPrompt(ctx context.Context, params *GetPromptParams) (*GetPromptResult, error) {
	var res GetPromptResult
	if err := cs.call(ctx, methodGetPrompt, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SetLoggingLevel changes the minimum severity of log messages the server
// sends to this session.
func (cs *ClientSession) SetLoggingLevel(ctx context.Context, level LoggingLevel) error {
	return cs.call(ctx, methodSetLevel, &SetLoggingLevelParams{Level: level}, nil)
}

// Ping issues a ping request and waits for the server's reply.
func (cs *ClientSession) Ping(ctx context.Context) error {
	return cs.call(ctx, methodPing, &PingParams{}, nil)
}
