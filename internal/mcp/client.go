package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const protocolVersion = "2024-11-05"

// Client owns one MCP server connection: the handshake, its cached
// tools/resources/prompts, and request/notification plumbing. One Client
// per ServerConfig; Manager holds the set of Clients for a runtime.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu        sync.RWMutex
	tools     []*MCPTool
	resources []*MCPResource
	prompts   []*MCPPrompt

	serverInfo ServerInfo

	requestsOnce       sync.Once
	handlersMu         sync.RWMutex
	samplingHandler    SamplingHandler
	elicitationHandler ElicitationHandler
}

// NewClient builds a Client for cfg. Connect must be called before any
// other method does useful work.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect performs the transport connect, the initialize handshake, and an
// initial capability refresh.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("mcp: transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": true},
		},
		"clientInfo": ClientInfo{Name: "agentcore", Version: "1.0.0"},
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("mcp: initialize: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		c.transport.Close()
		return fmt.Errorf("mcp: parse initialize result: %w", err)
	}
	c.serverInfo = initResult.ServerInfo
	c.logger.Info("connected to MCP server", "name", c.serverInfo.Name, "version", c.serverInfo.Version, "protocol", initResult.ProtocolVersion)

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("failed to send initialized notification", "error", err)
	}
	if err := c.RefreshCapabilities(ctx); err != nil {
		c.logger.Warn("failed to refresh capabilities", "error", err)
	}
	return nil
}

// Close closes the underlying transport.
func (c *Client) Close() error { return c.transport.Close() }

// Config returns the server configuration this client was built from.
func (c *Client) Config() *ServerConfig { return c.config }

// ServerInfo returns the connected server's identity.
func (c *Client) ServerInfo() ServerInfo { return c.serverInfo }

// Connected reports whether the transport is still live.
func (c *Client) Connected() bool { return c.transport.Connected() }

// RefreshCapabilities re-lists tools, resources, and prompts, following
// cursor pagination until each list is exhausted.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	tools, err := c.listAllTools(ctx)
	if err == nil {
		c.mu.Lock()
		c.tools = tools
		c.mu.Unlock()
		c.logger.Debug("refreshed tools", "count", len(tools))
	}

	resources, err := c.listAllResources(ctx)
	if err == nil {
		c.mu.Lock()
		c.resources = resources
		c.mu.Unlock()
		c.logger.Debug("refreshed resources", "count", len(resources))
	}

	prompts, err := c.listAllPrompts(ctx)
	if err == nil {
		c.mu.Lock()
		c.prompts = prompts
		c.mu.Unlock()
		c.logger.Debug("refreshed prompts", "count", len(prompts))
	}
	return nil
}

func (c *Client) listAllTools(ctx context.Context) ([]*MCPTool, error) {
	var all []*MCPTool
	cursor := ""
	for {
		raw, err := c.transport.Call(ctx, "tools/list", listParamsOrNil(cursor))
		if err != nil {
			return nil, err
		}
		var page ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Tools...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) listAllResources(ctx context.Context) ([]*MCPResource, error) {
	var all []*MCPResource
	cursor := ""
	for {
		raw, err := c.transport.Call(ctx, "resources/list", listParamsOrNil(cursor))
		if err != nil {
			return nil, err
		}
		var page ListResourcesResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Resources...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) listAllPrompts(ctx context.Context) ([]*MCPPrompt, error) {
	var all []*MCPPrompt
	cursor := ""
	for {
		raw, err := c.transport.Call(ctx, "prompts/list", listParamsOrNil(cursor))
		if err != nil {
			return nil, err
		}
		var page ListPromptsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Prompts...)
		if page.NextCursor == "" {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func listParamsOrNil(cursor string) any {
	if cursor == "" {
		return nil
	}
	return ListParams{Cursor: cursor}
}

// Tools returns the cached tool list from the last RefreshCapabilities.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// Resources returns the cached resource list.
func (c *Client) Resources() []*MCPResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resources
}

// Prompts returns the cached prompt list.
func (c *Client) Prompts() []*MCPPrompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prompts
}

// CallTool invokes tools/call against the connected server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		raw, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("mcp: marshal arguments: %w", err)
		}
		params.Arguments = raw
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("mcp: parse tool call result: %w", err)
	}
	return &callResult, nil
}

// ReadResource invokes resources/read.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContent, error) {
	result, err := c.transport.Call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var readResult ReadResourceResult
	if err := json.Unmarshal(result, &readResult); err != nil {
		return nil, fmt.Errorf("mcp: parse resource read result: %w", err)
	}
	return readResult.Contents, nil
}

// GetPrompt invokes prompts/get.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	result, err := c.transport.Call(ctx, "prompts/get", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}
	var promptResult GetPromptResult
	if err := json.Unmarshal(result, &promptResult); err != nil {
		return nil, fmt.Errorf("mcp: parse prompt result: %w", err)
	}
	return &promptResult, nil
}

// Events exposes the server's notification stream.
func (c *Client) Events() <-chan *JSONRPCNotification { return c.transport.Events() }

// SamplingHandler answers a server-initiated sampling/createMessage
// request on the embedding host's behalf.
type SamplingHandler func(ctx context.Context, req *SamplingRequest) (*SamplingResponse, error)

// ElicitationHandler answers a server-initiated elicitation/request on the
// embedding host's behalf: accepted reports whether the user supplied the
// requested input, data carries it when accepted, and reason explains a
// decline.
type ElicitationHandler func(ctx context.Context, req *ElicitationRequest) (accepted bool, data any, reason string, err error)

// HandleSampling registers handler for server-initiated
// sampling/createMessage requests and starts the shared request-dispatch
// loop if it isn't already running. A nil handler is a no-op.
func (c *Client) HandleSampling(handler SamplingHandler) {
	if handler == nil {
		return
	}
	c.handlersMu.Lock()
	c.samplingHandler = handler
	c.handlersMu.Unlock()
	c.startRequestDispatch()
}

// HandleElicitation registers handler for server-initiated
// elicitation/request requests and starts the shared request-dispatch loop
// if it isn't already running. A nil handler is a no-op.
func (c *Client) HandleElicitation(handler ElicitationHandler) {
	if handler == nil {
		return
	}
	c.handlersMu.Lock()
	c.elicitationHandler = handler
	c.handlersMu.Unlock()
	c.startRequestDispatch()
}

// startRequestDispatch drains the transport's server-initiated-request
// channel exactly once per Client, fanning each request out to whichever
// handler (sampling or elicitation) is registered for its method. Both
// Handle* registrations share this single loop since Requests() has one
// reader.
func (c *Client) startRequestDispatch() {
	c.requestsOnce.Do(func() {
		go func() {
			for req := range c.transport.Requests() {
				if req == nil {
					continue
				}
				switch req.Method {
				case "sampling/createMessage":
					c.handlersMu.RLock()
					handler := c.samplingHandler
					c.handlersMu.RUnlock()
					if handler != nil {
						go c.handleSamplingRequest(req, handler)
					}
				case "elicitation/request":
					c.handlersMu.RLock()
					handler := c.elicitationHandler
					c.handlersMu.RUnlock()
					if handler != nil {
						go c.handleElicitationRequest(req, handler)
					}
				}
			}
		}()
	})
}

func (c *Client) handleSamplingRequest(req *JSONRPCRequest, handler SamplingHandler) {
	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var params SamplingRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeInvalidParams, Message: "invalid sampling params"})
			return
		}
	}

	response, err := handler(ctx, &params)
	if err != nil {
		_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeInternalError, Message: err.Error()})
		return
	}
	if response == nil {
		_ = c.transport.Respond(ctx, req.ID, nil, &JSONRPCError{Code: ErrCodeInternalError, Message: "sampling handler returned nil response"})
		return
	}
	if err := c.transport.Respond(ctx, req.ID, response, nil); err != nil {
		c.logger.Warn("failed to respond to sampling request", "error", err)
	}
}

// handleElicitationRequest answers one elicitation/request with an
// elicitation/response notification, per spec §4.L: `{requestId, accepted,
// data?, reason?}`. A host exception or malformed params replies
// accepted:false rather than a JSON-RPC error, since elicitation/response
// is a notification, not a correlated reply the server can fault on.
func (c *Client) handleElicitationRequest(req *JSONRPCRequest, handler ElicitationHandler) {
	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var params ElicitationRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			c.respondElicitation(ctx, req.ID, false, nil, "invalid elicitation params")
			return
		}
	}

	accepted, data, reason, err := handler(ctx, &params)
	if err != nil {
		c.respondElicitation(ctx, req.ID, false, nil, err.Error())
		return
	}
	c.respondElicitation(ctx, req.ID, accepted, data, reason)
}

func (c *Client) respondElicitation(ctx context.Context, requestID any, accepted bool, data any, reason string) {
	params := ElicitationResponseParams{RequestID: requestID, Accepted: accepted, Data: data, Reason: reason}
	if err := c.transport.Notify(ctx, "elicitation/response", params); err != nil {
		c.logger.Warn("failed to send elicitation response", "error", err)
	}
}
