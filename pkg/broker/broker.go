// Package broker mediates tool invocation between the node executors
// and remotely-hosted tool servers speaking the MCP protocol. It owns
// the server registry, caches each server's tool catalogue at
// registration, and correlates every invocation with its reply.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/systaxiecuador/hive/internal/logging"
	"github.com/systaxiecuador/hive/pkg/domain"
)

// DefaultCallTimeout bounds a single tool invocation.
const DefaultCallTimeout = 30 * time.Second

// Conn abstracts the MCP client so tests can register in-process
// servers. *mcpclient.Client satisfies it.
type Conn interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type serverConn struct {
	name string
	cfg  ServerConfig

	client Conn

	// callMu serializes invocations on stdio transports; HTTP runs
	// invocations concurrently with per-call correlation.
	serialize bool
	callMu    sync.Mutex

	tools []domain.Tool
}

type catalogueEntry struct {
	server *serverConn
	tool   domain.Tool
}

// Broker is the shared tool-server registry. Registration and
// unregistration are guarded by a mutex; invocation is read-mostly.
type Broker struct {
	mu        sync.Mutex
	servers   map[string]*serverConn
	catalogue map[string]*catalogueEntry

	pendingMu sync.Mutex
	pending   map[string]bool

	logger      *slog.Logger
	problem     func(domain.Problem)
	callTimeout time.Duration
	dial        func(ctx context.Context, cfg ServerConfig) (Conn, error)
}

// BrokerOption configures the broker.
type BrokerOption func(*Broker)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithProblemSink routes broker anomalies (e.g. tool name collisions)
// into the trace.
func WithProblemSink(fn func(domain.Problem)) BrokerOption {
	return func(b *Broker) { b.problem = fn }
}

// WithCallTimeout overrides the per-invocation deadline.
func WithCallTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.callTimeout = d
		}
	}
}

// New creates an empty broker.
func New(opts ...BrokerOption) *Broker {
	b := &Broker{
		servers:     make(map[string]*serverConn),
		catalogue:   make(map[string]*catalogueEntry),
		pending:     make(map[string]bool),
		logger:      logging.NewNop(),
		callTimeout: DefaultCallTimeout,
		dial:        dial,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register opens the transport for a server descriptor, performs the
// handshake, requests the tool catalogue and caches it. Connection
// failure is fatal for registration.
func (b *Broker) Register(ctx context.Context, cfg ServerConfig) ([]domain.Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := b.dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tool server %q: %w", cfg.Name, err)
	}
	return b.attach(ctx, cfg, conn, cfg.Transport == TransportStdio)
}

// RegisterClient attaches an already-constructed MCP client under the
// given name. Used by tests (in-process servers) and embedded hosts.
func (b *Broker) RegisterClient(ctx context.Context, name string, c Conn, serialize bool) ([]domain.Tool, error) {
	return b.attach(ctx, ServerConfig{Name: name}, c, serialize)
}

func (b *Broker) attach(ctx context.Context, cfg ServerConfig, c Conn, serialize bool) ([]domain.Tool, error) {
	if err := handshake(ctx, c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("handshake with tool server %q failed: %w", cfg.Name, err)
	}

	tools, err := fetchCatalogue(ctx, c, cfg.Name)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("catalogue discovery for %q failed: %w", cfg.Name, err)
	}

	conn := &serverConn{name: cfg.Name, cfg: cfg, client: c, serialize: serialize, tools: tools}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.servers[cfg.Name]; exists {
		_ = c.Close()
		return nil, fmt.Errorf("tool server %q already registered", cfg.Name)
	}
	b.servers[cfg.Name] = conn

	for _, t := range tools {
		if existing, collides := b.catalogue[t.Name]; collides {
			// First-registered wins; flag the shadowed tool.
			b.report(domain.Problem{
				Severity: domain.SeverityWarning,
				Message: fmt.Sprintf("tool %q from server %q collides with server %q; first registration wins",
					t.Name, cfg.Name, existing.server.name),
				Remedy: "rename the tool on one of the servers",
			})
			continue
		}
		b.catalogue[t.Name] = &catalogueEntry{server: conn, tool: t}
	}

	b.logger.Info("tool server registered", "server", cfg.Name, "tools", len(tools))
	return tools, nil
}

// Unregister closes the server's transport and drops its catalogue
// entries.
func (b *Broker) Unregister(name string) error {
	b.mu.Lock()
	conn, ok := b.servers[name]
	if ok {
		delete(b.servers, name)
		for toolName, entry := range b.catalogue {
			if entry.server == conn {
				delete(b.catalogue, toolName)
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("tool server %q is not registered", name)
	}
	b.logger.Info("tool server unregistered", "server", name)
	return conn.client.Close()
}

// Close unregisters every server.
func (b *Broker) Close() error {
	b.mu.Lock()
	names := make([]string, 0, len(b.servers))
	for name := range b.servers {
		names = append(names, name)
	}
	b.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := b.Unregister(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Tools returns the cached catalogue, optionally filtered to one
// server ("" = all).
func (b *Broker) Tools(server string) []domain.Tool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Tool
	for _, entry := range b.catalogue {
		if server == "" || entry.server.name == server {
			out = append(out, entry.tool)
		}
	}
	return out
}

// Servers returns the names of the registered servers.
func (b *Broker) Servers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.servers))
	for name := range b.servers {
		out = append(out, name)
	}
	return out
}

// Invoke dispatches one tool call to the server owning the tool and
// blocks until the reply with the matching correlation id arrives or
// the per-call deadline expires.
//
// A tool-level error comes back as a structured result the LLM can
// observe. Transport loss fails the call with tool-transport-lost
// after one reconnect attempt; deadline expiry fails it with timeout.
func (b *Broker) Invoke(ctx context.Context, call domain.ToolCall) (domain.ToolResult, error) {
	b.mu.Lock()
	entry, ok := b.catalogue[call.Name]
	b.mu.Unlock()
	if !ok {
		// Unknown tool is an observable error, not a node failure.
		return domain.ToolResult{
			ID:      call.ID,
			IsError: true,
			Error:   fmt.Sprintf("no registered server owns tool %q", call.Name),
		}, nil
	}

	if err := validateArgs(entry.tool, call.Args); err != nil {
		return domain.ToolResult{
			ID:      call.ID,
			IsError: true,
			Error:   fmt.Sprintf("arguments rejected by tool schema: %v", err),
		}, nil
	}

	b.pendingMu.Lock()
	b.pending[call.ID] = true
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, call.ID)
		b.pendingMu.Unlock()
	}()

	res, err := b.callOnce(ctx, entry.server, call)
	if err != nil && isTransportErr(err) {
		b.logger.Warn("tool transport lost, attempting reconnect", "server", entry.server.name, "err", err)
		if rerr := b.reconnect(ctx, entry.server); rerr == nil {
			res, err = b.callOnce(ctx, entry.server, call)
		}
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.ToolResult{}, domain.NewFailure(domain.FailTimeout, "",
				"tool %q deadline expired", call.Name)
		}
		if errors.Is(err, context.Canceled) {
			return domain.ToolResult{}, domain.NewFailure(domain.FailCancelled, "",
				"tool %q call abandoned", call.Name)
		}
		return domain.ToolResult{}, domain.NewFailure(domain.FailToolTransport, "",
			"tool %q: %v", call.Name, err)
	}

	// An abandoned call's late reply is discarded on lookup miss.
	b.pendingMu.Lock()
	live := b.pending[call.ID]
	b.pendingMu.Unlock()
	if !live {
		return domain.ToolResult{}, domain.NewFailure(domain.FailCancelled, "",
			"tool %q reply discarded: correlation id no longer pending", call.Name)
	}

	res.ID = call.ID
	return res, nil
}

// Abandon drops a pending correlation id so its eventual reply is
// discarded. Nothing in the runtime calls it; run cancellation does
// not abandon in-flight tool calls.
func (b *Broker) Abandon(correlationID string) {
	b.pendingMu.Lock()
	delete(b.pending, correlationID)
	b.pendingMu.Unlock()
}

func (b *Broker) callOnce(ctx context.Context, conn *serverConn, call domain.ToolCall) (domain.ToolResult, error) {
	if conn.serialize {
		conn.callMu.Lock()
		defer conn.callMu.Unlock()
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Name
	req.Params.Arguments = call.Args

	res, err := conn.client.CallTool(callCtx, req)
	if err != nil {
		return domain.ToolResult{}, err
	}
	return decodeResult(call.ID, res), nil
}

// reconnect replaces a dead transport with a fresh connection to the
// same descriptor. Clients registered without a descriptor (in-process)
// cannot reconnect.
func (b *Broker) reconnect(ctx context.Context, conn *serverConn) error {
	if conn.cfg.Transport == "" {
		return fmt.Errorf("server %q has no redialable transport", conn.name)
	}
	fresh, err := b.dial(ctx, conn.cfg)
	if err != nil {
		return err
	}
	if err := handshake(ctx, fresh); err != nil {
		_ = fresh.Close()
		return err
	}
	_ = conn.client.Close()
	conn.client = fresh
	return nil
}

func (b *Broker) report(p domain.Problem) {
	if b.problem != nil {
		b.problem(p)
	}
	b.logger.Warn("broker problem", "msg", p.Message)
}

func handshake(ctx context.Context, c Conn) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "hive", Version: "1"}
	_, err := c.Initialize(ctx, req)
	return err
}

func fetchCatalogue(ctx context.Context, c Conn, server string) ([]domain.Tool, error) {
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}

	tools := make([]domain.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		params := map[string]any{}
		if data, err := json.Marshal(t.InputSchema); err == nil {
			_ = json.Unmarshal(data, &params)
		}
		tools = append(tools, domain.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
			Server:      server,
		})
	}
	return tools, nil
}

// decodeResult flattens MCP content into our structured tool result.
// Text content that parses as JSON comes back structured.
func decodeResult(correlationID string, res *mcp.CallToolResult) domain.ToolResult {
	var text strings.Builder
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	body := text.String()

	if res.IsError {
		return domain.ToolResult{ID: correlationID, IsError: true, Error: body}
	}

	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var structured any
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil {
			return domain.ToolResult{ID: correlationID, Result: structured}
		}
	}
	return domain.ToolResult{ID: correlationID, Result: body}
}

// validateArgs checks call arguments against the server-published
// parameter schema. Unparseable schemas are skipped rather than
// blocking the call.
func validateArgs(tool domain.Tool, args map[string]any) error {
	if len(tool.Parameters) == 0 {
		return nil
	}
	data, err := json.Marshal(tool.Parameters)
	if err != nil {
		return nil
	}
	var sch openapi3.Schema
	if err := sch.UnmarshalJSON(data); err != nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return sch.VisitJSON(map[string]any(args), openapi3.MultiErrors())
}

func isTransportErr(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "closed")
}

var _ Conn = (*mcpclient.Client)(nil)
