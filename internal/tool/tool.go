// Package tool implements the in-process Tool Registry: the mapping from
// tool name to Definition that the Agent Loop consults when building a
// request and when dispatching parked tool calls. Grounded on
// internal/agent/tool_registry.go's ToolRegistry (RWMutex-guarded map,
// Register/Unregister/Get/AsLLMTools), generalized with the atomic version
// counter spec.md §2 calls for.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relaykit/agentcore/pkg/wire"
)

// Location indicates where a tool's handler executes.
type Location string

const (
	LocationClient Location = "client"
	LocationServer Location = "server"
)

// AIResponseMode controls how much of a tool's result the model sees back.
type AIResponseMode string

const (
	AIResponseNone  AIResponseMode = "none"
	AIResponseBrief AIResponseMode = "brief"
	AIResponseFull  AIResponseMode = "full"
)

// Context carries per-invocation state into a tool Handler: the originating
// tool-call id and any transport-level metadata the host wants handlers to
// see. Cancellation arrives through the Handler's ctx argument.
type Context struct {
	ToolCallID string
	Headers    map[string]string
	Request    any // host-defined, opaque to the runtime
}

// Handler executes a tool call with its (already schema-validated)
// parameters and returns a normalized ToolResponse. Handlers must respect
// ctx.Done() promptly (§5 cancellation contract).
type Handler func(ctx context.Context, params json.RawMessage, tc Context) (wire.ToolResponse, error)

// NeedsApprovalFunc evaluates whether a specific call requires approval;
// static policies are expressed as a func ignoring params.
type NeedsApprovalFunc func(params json.RawMessage) bool

// ApprovalMessageFunc derives the human-facing approval prompt for a call.
type ApprovalMessageFunc func(params json.RawMessage) string

// Always is a NeedsApprovalFunc that always requires approval.
func Always(json.RawMessage) bool { return true }

// Never is a NeedsApprovalFunc that never requires approval.
func Never(json.RawMessage) bool { return false }

// Definition is the full local description of a tool: the wire-visible
// fields (name, description, inputSchema) plus the handler and approval
// policy that never leave the process. Only Location == LocationClient
// definitions are sent to the runtime endpoint as available tools (§3).
type Definition struct {
	Name            string
	Description     string
	Location        Location
	InputSchema     json.RawMessage
	Handler         Handler
	NeedsApproval   NeedsApprovalFunc // nil means Never
	ApprovalMessage ApprovalMessageFunc
	AIResponseMode  AIResponseMode // default AIResponseFull
	AIContext       string
	Available       func() bool // nil means always available
}

// ResolvedNeedsApproval evaluates the tool's approval predicate for params,
// defaulting to false when none is set.
func (d Definition) ResolvedNeedsApproval(params json.RawMessage) bool {
	if d.NeedsApproval == nil {
		return false
	}
	return d.NeedsApproval(params)
}

// ResolvedApprovalMessage derives the approval prompt for params, falling
// back to a generic message when no template is configured.
func (d Definition) ResolvedApprovalMessage(params json.RawMessage) string {
	if d.ApprovalMessage != nil {
		return d.ApprovalMessage(params)
	}
	return fmt.Sprintf("Allow tool %q to run?", d.Name)
}

// IsAvailable reports whether the tool should currently be offered,
// defaulting to true when no Available func is set.
func (d Definition) IsAvailable() bool {
	if d.Available == nil {
		return true
	}
	return d.Available()
}

// ResponseMode returns the tool's AIResponseMode, defaulting to full.
func (d Definition) ResponseMode() AIResponseMode {
	if d.AIResponseMode == "" {
		return AIResponseFull
	}
	return d.AIResponseMode
}

// Registry is a thread-safe, in-process mapping from tool name to
// Definition, with an atomic version counter bumped on every mutation so
// callers (e.g. a cached request builder) can cheaply detect staleness.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Definition
	version atomic.Uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
	r.version.Add(1)
}

// Unregister removes a tool by name. No-op if it was never registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	r.version.Add(1)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Version returns the current version counter, bumped on every
// Register/Unregister. Snapshot consumers can compare this across calls to
// detect that the registry changed underneath them.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}

// Snapshot returns every currently registered Definition. The returned
// slice is safe for the caller to retain; it does not alias registry state.
func (r *Registry) Snapshot() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		out = append(out, def)
	}
	return out
}

// AsToolSpecs returns the wire.ToolSpec list for every available,
// client-located tool: exactly what spec.md §4.I.2 says travels in a
// request's `tools` field.
func (r *Registry) AsToolSpecs() []wire.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]wire.ToolSpec, 0, len(r.tools))
	for _, def := range r.tools {
		if def.Location != LocationClient || !def.IsAvailable() {
			continue
		}
		specs = append(specs, wire.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return specs
}
