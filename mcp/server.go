// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mcp-go-core/sdk/internal/idgen"
	"github.com/mcp-go-core/sdk/internal/jsonrpc2"
	"github.com/mcp-go-core/sdk/jsonrpc"
	"golang.org/x/time/rate"
)

const protocolVersion = "2025-06-18"
const defaultPageSize = 50

// sessionIDGen assigns session ids. Snowflake ids are time-sortable, which
// makes session lifetimes easy to eyeball in logs and session stores
// ordered by creation. The machine id is fixed at 0 for every Server in the
// process; no option sets a per-instance id.
var sessionIDGen idgen.Generator[int64] = idgen.NewSnowflakeGenerator(0)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Instructions are returned to the client during initialize, describing
	// how to use the server's features.
	Instructions string
	// PageSize bounds the number of tasks returned by a single tasks/list
	// call. Defaults to 50. tools/list, resources/list and prompts/list are
	// not paginated and return every item.
	PageSize int
	// Logger receives diagnostic messages. Defaults to slog.Default().
	Logger *slog.Logger
	// Tasks, if non-nil, advertises task-augmentation support and governs
	// which request methods accept a "task" block. A nil value disables task
	// augmentation entirely.
	Tasks *TaskCapabilities
	// CompletionHandler serves completion/complete requests. If nil, the
	// server does not advertise completion support.
	CompletionHandler func(context.Context, *CompleteRequest) (*CompleteResult, error)
	// InitializedHandler is called once a client has sent notifications/initialized.
	InitializedHandler func(context.Context, *ServerSession, *InitializedParams)
	// RateLimiter, if non-nil, is shared across every session connected to
	// this server and governs the rate of outbound requests/notifications
	// the server sends to clients (calls such as sampling/createMessage or
	// roots/list). A nil limiter disables throttling, matching the rest of
	// the package's "nil means unbounded" convention.
	RateLimiter *rate.Limiter
}

func (o *ServerOptions) pageSize() int {
	if o == nil || o.PageSize <= 0 {
		return defaultPageSize
	}
	return o.PageSize
}

func (o *ServerOptions) logger() *slog.Logger {
	if o == nil || o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// toolSet is a concurrency-safe registry of server tools.
type toolSet struct {
	mu    sync.Mutex
	order []string
	byName map[string]*serverTool
}

func newToolSet() *toolSet {
	return &toolSet{byName: make(map[string]*serverTool)}
}

func (ts *toolSet) add(st *serverTool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.byName[st.tool.Name]; !ok {
		ts.order = append(ts.order, st.tool.Name)
	}
	ts.byName[st.tool.Name] = st
}

func (ts *toolSet) get(name string) (*serverTool, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	st, ok := ts.byName[name]
	return st, ok
}

func (ts *toolSet) remove(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.byName, name)
	for i, n := range ts.order {
		if n == name {
			ts.order = append(ts.order[:i], ts.order[i+1:]...)
			break
		}
	}
}

func (ts *toolSet) list() []*Tool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]*Tool, 0, len(ts.order))
	for _, n := range ts.order {
		out = append(out, ts.byName[n].tool)
	}
	return out
}

// resourceSet is a concurrency-safe registry of static resources, keyed by
// URI.
type resourceSet struct {
	mu    sync.Mutex
	order []string
	byURI map[string]*serverResource
}

type serverResource struct {
	resource *Resource
	handler  func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error)
}

func newResourceSet() *resourceSet {
	return &resourceSet{byURI: make(map[string]*serverResource)}
}

func (rs *resourceSet) add(sr *serverResource) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.byURI[sr.resource.URI]; !ok {
		rs.order = append(rs.order, sr.resource.URI)
	}
	rs.byURI[sr.resource.URI] = sr
}

func (rs *resourceSet) get(uri string) (*serverResource, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	sr, ok := rs.byURI[uri]
	return sr, ok
}

func (rs *resourceSet) list() []*Resource {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*Resource, 0, len(rs.order))
	for _, u := range rs.order {
		out = append(out, rs.byURI[u].resource)
	}
	return out
}

// promptSet is a concurrency-safe registry of prompts.
type promptSet struct {
	mu    sync.Mutex
	order []string
	byName map[string]*serverPrompt
}

type serverPrompt struct {
	prompt  *Prompt
	handler func(context.Context, *GetPromptRequest) (*GetPromptResult, error)
}

func newPromptSet() *promptSet {
	return &promptSet{byName: make(map[string]*serverPrompt)}
}

func (ps *promptSet) add(sp *serverPrompt) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if _, ok := ps.byName[sp.prompt.Name]; !ok {
		ps.order = append(ps.order, sp.prompt.Name)
	}
	ps.byName[sp.prompt.Name] = sp
}

func (ps *promptSet) get(name string) (*serverPrompt, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	sp, ok := ps.byName[name]
	return sp, ok
}

func (ps *promptSet) list() []*Prompt {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]*Prompt, 0, len(ps.order))
	for _, n := range ps.order {
		out = append(out, ps.byName[n].prompt)
	}
	return out
}

// Server is a Model Context Protocol server: a registry of tools, resources
// and prompts, bound to zero or more live sessions through Connect/Run.
//
// A Server's registries may be mutated after sessions are connected; list
// operations always observe the current registry.
type Server struct {
	impl *Implementation
	opts ServerOptions

	mu    sync.Mutex
	tools *toolSet
	resources *resourceSet
	prompts   *promptSet
	tasks     *serverTasks

	sessionsMu sync.Mutex
	sessions   map[string]*ServerSession

	middlewareMu sync.Mutex
	middleware   []Middleware
}

// AddReceivingMiddleware wraps the server's inbound method dispatch with mw.
// Middleware added earlier runs outermost; each mw added here sees every
// request and notification the server receives, across every session,
// before the built-in per-method handler runs.
func (s *Server) AddReceivingMiddleware(mw Middleware) {
	s.middlewareMu.Lock()
	defer s.middlewareMu.Unlock()
	s.middleware = append(s.middleware, mw)
}

func (s *Server) receivingMiddleware() []Middleware {
	s.middlewareMu.Lock()
	defer s.middlewareMu.Unlock()
	return s.middleware
}

// NewServer creates a Server that identifies itself to clients as impl.
func NewServer(impl *Implementation, opts *ServerOptions) *Server {
	s := &Server{
		impl:      impl,
		tools:     newToolSet(),
		resources: newResourceSet(),
		prompts:   newPromptSet(),
		tasks:     newServerTasks(),
		sessions:  make(map[string]*ServerSession),
	}
	if opts != nil {
		s.opts = *opts
	}
	return s
}

// capabilities reports the server's current capability set, computed from
// the live registries so that capability negotiation always reflects the
// registrations in effect when a session was established.
func (s *Server) capabilities() *ServerCapabilities {
	caps := &ServerCapabilities{}
	if len(s.tools.list()) > 0 {
		caps.Tools = &ToolCapabilities{ListChanged: true}
	}
	if len(s.resources.list()) > 0 {
		caps.Resources = &ResourceCapabilities{ListChanged: true}
	}
	if len(s.prompts.list()) > 0 {
		caps.Prompts = &PromptCapabilities{ListChanged: true}
	}
	if s.opts.CompletionHandler != nil {
		caps.Completions = &CompletionCapabilities{}
	}
	caps.Logging = &LoggingCapabilities{}
	caps.Tasks = s.opts.Tasks
	return caps
}

// AddTool registers a tool with an untyped handler. Use AddTypedTool for
// handlers with typed, schema-validated arguments.
func AddTool(s *Server, t *Tool, h ToolHandler) error {
	st, err := newServerTool(t, h)
	if err != nil {
		return fmt.Errorf("adding tool %q: %w", t.Name, err)
	}
	s.tools.add(st)
	return nil
}

// AddTypedTool registers a tool whose input (and optionally output) schema
// is inferred from the In/Out type parameters.
func AddTypedTool[In, Out any](s *Server, t *Tool, h TypedToolHandler[In, Out]) error {
	st, err := newTypedServerTool(t, h)
	if err != nil {
		return fmt.Errorf("adding tool %q: %w", t.Name, err)
	}
	s.tools.add(st)
	return nil
}

// RemoveTool removes a previously registered tool, if present.
func (s *Server) RemoveTool(name string) {
	s.tools.remove(name)
}

// AddResource registers a static resource and the handler that serves its
// contents.
func (s *Server) AddResource(r *Resource, h func(context.Context, *ReadResourceRequest) (*ReadResourceResult, error)) {
	s.resources.add(&serverResource{resource: r, handler: h})
}

// AddPrompt registers a prompt and the handler that renders it.
func (s *Server) AddPrompt(p *Prompt, h func(context.Context, *GetPromptRequest) (*GetPromptResult, error)) {
	s.prompts.add(&serverPrompt{prompt: p, handler: h})
}

// ServerSession is one live connection between a Server and a single client.
type ServerSession struct {
	server    *Server
	id        string
	conn      *jsonrpc2.Conn
	connection Connection
	done       chan struct{}

	mu                 sync.Mutex
	initializeParams   *InitializeParams
	clientCapabilities *ClientCapabilities
	logLevel           LoggingLevel
	initialized        bool
}

// Wait blocks until the session's connection has closed, either because the
// peer disconnected or because Close was called.
func (ss *ServerSession) Wait() {
	<-ss.done
}

// ID returns the session's unique identifier, assigned by the Server at
// connect time.
func (ss *ServerSession) ID() string { return ss.id }

// InitializeParams returns the params the client sent to initialize this
// session, or nil before initialize has completed.
func (ss *ServerSession) InitializeParams() *InitializeParams {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.initializeParams
}

// NotifyProgress sends a notifications/progress notification to the client.
func (ss *ServerSession) NotifyProgress(ctx context.Context, params *ProgressNotificationParams) error {
	return ss.conn.Notify(ctx, notificationProgress, params)
}

// NotifyLoggingMessage sends a notifications/message notification, if the
// session's current log level admits it.
func (ss *ServerSession) NotifyLoggingMessage(ctx context.Context, params *LoggingMessageParams) error {
	rank := map[LoggingLevel]int{
		LoggingLevelDebug: 1, LoggingLevelInfo: 2, LoggingLevelNotice: 3, LoggingLevelWarning: 4,
		LoggingLevelError: 5, LoggingLevelCritical: 6, LoggingLevelAlert: 7, LoggingLevelEmergency: 8,
	}
	ss.mu.Lock()
	threshold := rank[ss.logLevel]
	ss.mu.Unlock()
	if lvl := rank[params.Level]; lvl != 0 && lvl < threshold {
		return nil
	}
	return ss.conn.Notify(ctx, notificationLoggingMessage, params)
}

// NotifyToolListChanged sends notifications/tools/list_changed.
func (ss *ServerSession) NotifyToolListChanged(ctx context.Context) error {
	return ss.conn.Notify(ctx, notificationToolListChanged, &ToolListChangedParams{})
}

// Close terminates the session's connection.
func (ss *ServerSession) Close() error {
	ss.conn.Shutdown()
	err := ss.connection.Close()
	ss.server.sessionsMu.Lock()
	delete(ss.server.sessions, ss.id)
	ss.server.sessionsMu.Unlock()
	return err
}

// ServerConnectOptions configures one call to [Server.Connect]. It is
// reserved for future per-connection overrides (e.g. a session-specific
// logger); none are defined yet, so a nil or zero-value options struct
// behaves identically to omitting it.
type ServerConnectOptions struct{}

// Connect establishes a new session over t and serves requests from it in a
// background goroutine until the connection closes or ctx is done. It returns
// once the session is set up; use [ServerSession.Wait] to block until the
// session ends. opts is accepted for forward compatibility and may be omitted
// or nil.
func (s *Server) Connect(ctx context.Context, t Transport, opts ...*ServerConnectOptions) (*ServerSession, error) {
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting transport: %w", err)
	}
	sid, err := sessionIDGen.Next()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	id := strconv.FormatInt(sid, 36)
	ss := &ServerSession{server: s, id: id, logLevel: LoggingLevelInfo, connection: conn, done: make(chan struct{})}
	h := &serverHandler{session: ss}
	ss.conn = jsonrpc2.NewConn(&connWriter{conn}, h, &jsonrpc2.ConnOptions{
		Logger:  s.opts.logger(),
		Limiter: s.opts.RateLimiter,
	})

	s.sessionsMu.Lock()
	s.sessions[id] = ss
	s.sessionsMu.Unlock()

	go s.readLoop(ctx, conn, ss)
	return ss, nil
}

// Run connects to t and blocks until the session ends or ctx is done. If ctx
// is done first, Run closes the session and returns the error from closing
// it; if the connection closes first, Run returns nil.
func (s *Server) Run(ctx context.Context, t Transport) error {
	ss, err := s.Connect(ctx, t)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ss.Close()
	case <-ss.done:
		return nil
	}
}

func (s *Server) readLoop(ctx context.Context, conn Connection, ss *ServerSession) {
	defer close(ss.done)
	defer conn.Close()
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, ss.id)
		s.sessionsMu.Unlock()
	}()
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		ss.conn.Deliver(ctx, msg)
	}
}

// connWriter adapts a Connection's Write method to the jsonrpc2.Writer
// interface (they already match; this exists so Connection needn't import
// the internal package).
type connWriter struct{ c Connection }

func (w *connWriter) Write(ctx context.Context, msg jsonrpc2.Message) error {
	return w.c.Write(ctx, msg)
}

// serverHandler adapts a ServerSession's request dispatch to jsonrpc2.Handler.
type serverHandler struct {
	session *ServerSession
}

func (h *serverHandler) Handle(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	base := func(ctx context.Context, r Request) (any, error) {
		rr := r.(*rawServerRequest)
		return h.session.dispatch(ctx, rr.method, rr.params)
	}
	mh := chainMiddleware(base, h.session.server.receivingMiddleware())
	return mh(ctx, &rawServerRequest{session: h.session, method: req.Method, params: req.Params})
}

func (h *serverHandler) HandleNotification(ctx context.Context, note *jsonrpc2.Notification) error {
	base := func(ctx context.Context, r Request) (any, error) {
		rr := r.(*rawServerRequest)
		return h.session.dispatchNotification(ctx, rr.method, rr.params)
	}
	mh := chainMiddleware(base, h.session.server.receivingMiddleware())
	_, err := mh(ctx, &rawServerRequest{session: h.session, method: note.Method, params: note.Params})
	return err
}

func (h *serverHandler) HandleError(ctx context.Context, errMsg *jsonrpc2.ErrorMessage) {
	h.session.server.opts.logger().Warn("mcp: unsolicited error from client", "code", errMsg.Error.Code, "message", errMsg.Error.Message)
}

func bindParams[P Params](raw json.RawMessage, into P) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}

// dispatch handles one inbound request method, returning the Result to
// marshal into the Response (or a *jsonrpc.Error to report instead).
func (ss *ServerSession) dispatch(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	s := ss.server
	switch method {
	case methodInitialize:
		p := &InitializeParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		ss.mu.Lock()
		ss.initializeParams = p
		ss.clientCapabilities = p.Capabilities
		ss.mu.Unlock()
		return &InitializeResult{
			Capabilities:    s.capabilities(),
			Instructions:    s.opts.Instructions,
			ProtocolVersion: protocolVersion,
			ServerInfo:      s.impl,
		}, nil

	case methodPing:
		return &emptyResult{}, nil

	case methodListTools:
		p := &ListToolsParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		tools := s.tools.list()
		return &ListToolsResult{Tools: tools}, nil

	case methodCallTool:
		p := &CallToolParamsRaw{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		req := newServerRequest(ss, p)
		return s.callToolAny(ctx, req)

	case methodListResources:
		return &ListResourcesResult{Resources: s.resources.list()}, nil

	case methodReadResource:
		p := &ReadResourceParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		sr, ok := s.resources.get(p.URI)
		if !ok {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown resource %q", p.URI)}
		}
		return sr.handler(ctx, newServerRequest(ss, p))

	case methodListResourceTemplates:
		return &ListResourceTemplatesResult{}, nil

	case methodListPrompts:
		return &ListPromptsResult{Prompts: s.prompts.list()}, nil

	case methodGetPrompt:
		p := &GetPromptParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		sp, ok := s.prompts.get(p.Name)
		if !ok {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown prompt %q", p.Name)}
		}
		return sp.handler(ctx, newServerRequest(ss, p))

	case methodComplete:
		if s.opts.CompletionHandler == nil {
			return nil, jsonrpc2.ErrMethodNotFound
		}
		p := &CompleteParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return s.opts.CompletionHandler(ctx, newServerRequest(ss, p))

	case methodSetLevel:
		p := &SetLoggingLevelParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		ss.mu.Lock()
		ss.logLevel = p.Level
		ss.mu.Unlock()
		return &emptyResult{}, nil

	case methodGetTask:
		p := &GetTaskParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return s.getTask(ctx, newServerRequest(ss, p))

	case methodListTasks:
		p := &ListTasksParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return s.listTasks(ctx, newServerRequest(ss, p))

	case methodCancelTask:
		p := &CancelTaskParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return s.cancelTask(ctx, newServerRequest(ss, p))

	case methodTaskResult:
		p := &TaskResultParams{}
		if err := bindParams(raw, p); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return s.taskResult(ctx, newServerRequest(ss, p))

	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}

func (ss *ServerSession) dispatchNotification(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	s := ss.server
	switch method {
	case notificationInitialized:
		p := &InitializedParams{}
		_ = bindParams(raw, p)
		ss.mu.Lock()
		ss.initialized = true
		ss.mu.Unlock()
		if s.opts.InitializedHandler != nil {
			s.opts.InitializedHandler(ctx, ss, p)
		}
		return nil, nil
	case notificationCancelled:
		return nil, nil
	default:
		return nil, nil
	}
}

// emptyResult is returned by requests whose result is the empty JSON object,
// such as ping and logging/setLevel.
type emptyResult struct{}

func (*emptyResult) isResult() {}

// newServerRequest wraps session and params into the generic request value
// passed to server-side handlers.
func newServerRequest[P Params](session *ServerSession, params P) *ServerRequest[P] {
	return &ServerRequest[P]{Session: session, Params: params}
}

// handleNotify sends a best-effort notification derived from a server
// request's session and params; it is a no-op if the session is nil (e.g. in
// tests that exercise task bookkeeping without a live connection).
func handleNotify[P Params](ctx context.Context, method string, req *ServerRequest[P]) error {
	if req == nil || req.Session == nil {
		return nil
	}
	return req.Session.conn.Notify(ctx, method, req.Params)
}
