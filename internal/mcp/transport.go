package mcp

import (
	"context"
	"encoding/json"
)

// Transport is the wire-level contract an MCP Client drives: request/
// response calls, fire-and-forget notifications, and the two inbound
// channels a server can push through (notifications and server-initiated
// requests, namely sampling/createMessage and elicitation/request).
type Transport interface {
	Connect(ctx context.Context) error
	Close() error

	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error

	Events() <-chan *JSONRPCNotification
	Requests() <-chan *JSONRPCRequest
	Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error

	Connected() bool
}

// NewTransport builds the Transport implied by cfg.Transport.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	case TransportSSE:
		return NewSSETransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
