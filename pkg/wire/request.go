package wire

import "encoding/json"

// ToolSpec is the wire-shape of a client-located tool sent to the runtime
// endpoint: only name, description, and inputSchema travel — handlers,
// approval policy, and rendering hints are local-only (see
// internal/tool.Definition).
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ActionSpec is a legacy action definition (spec §4.I.2).
type ActionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// KnowledgeBaseConfig configures optional upstream retrieval.
type KnowledgeBaseConfig struct {
	ProjectUID string `json:"projectUid"`
	Token      string `json:"token"`
	AppID      string `json:"appId,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// RuntimeConfig carries provider-specific overrides (e.g. apiKey) through to
// the runtime endpoint without the Agent Loop needing to understand them.
type RuntimeConfig struct {
	APIKey string         `json:"apiKey,omitempty"`
	Extra  map[string]any `json:"-"`
}

// MarshalJSON flattens Extra alongside APIKey so provider-specific fields
// round-trip without a fixed schema.
func (c RuntimeConfig) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.APIKey != "" {
		out["apiKey"] = c.APIKey
	}
	return json.Marshal(out)
}

// RunRequest is the body POSTed to the runtime HTTP endpoint (spec §6.1).
type RunRequest struct {
	Messages      []Message            `json:"messages"`
	ThreadID      string               `json:"threadId,omitempty"`
	SystemPrompt  string               `json:"systemPrompt,omitempty"`
	Actions       []ActionSpec         `json:"actions,omitempty"`
	Tools         []ToolSpec           `json:"tools,omitempty"`
	Streaming     *bool                `json:"streaming,omitempty"`
	KnowledgeBase *KnowledgeBaseConfig `json:"knowledgeBase,omitempty"`
	Config        *RuntimeConfig       `json:"config,omitempty"`
	BotID         string               `json:"botId,omitempty"`
}

// NonStreamingReply is the single-JSON-document reply shape used when the
// runtime responds with Content-Type: application/json instead of SSE.
type NonStreamingReply struct {
	Content        *string        `json:"content,omitempty"`
	ToolCalls      []ToolCallInfo `json:"toolCalls,omitempty"`
	RequiresAction bool           `json:"requiresAction,omitempty"`
	Messages       []Message      `json:"messages,omitempty"`
	Error          *ErrorEvent    `json:"error,omitempty"`
}

// SynthesizeEvents converts a NonStreamingReply into the equivalent ordered
// event sequence a streaming reply would have produced, per spec §4.I.1:
// a message:delta when the reply has content, then action:start and
// action:args for each tool call, tool_calls, and done (in that order).
// A reply carrying an error yields only that error event.
func (r NonStreamingReply) SynthesizeEvents() []StreamEvent {
	var events []StreamEvent
	if r.Error != nil {
		events = append(events, *r.Error)
		return events
	}
	if r.Content != nil && *r.Content != "" {
		events = append(events, MessageDeltaEvent{Content: *r.Content})
	}
	for _, tc := range r.ToolCalls {
		events = append(events, ActionStartEvent{ID: tc.ID, Name: tc.Name})
		events = append(events, ActionArgsEvent{ID: tc.ID, Args: string(tc.Args)})
	}
	if len(r.ToolCalls) > 0 {
		events = append(events, ToolCallsEvent{
			ToolCalls:        r.ToolCalls,
			AssistantMessage: assistantMessageFromToolCalls(r.ToolCalls, r.Content),
		})
	}
	events = append(events, DoneEvent{RequiresAction: r.RequiresAction, Messages: r.Messages})
	return events
}

func assistantMessageFromToolCalls(calls []ToolCallInfo, content *string) Message {
	toolCalls := make([]ToolCall, len(calls))
	for i, c := range calls {
		toolCalls[i] = NewToolCall(c.ID, c.Name, string(c.Args))
	}
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}
}
