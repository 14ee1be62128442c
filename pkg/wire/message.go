// Package wire defines the OpenAI Chat-Completions-shaped message model and
// the tagged-union Stream Event protocol exchanged with the runtime HTTP
// endpoint, plus the small set of value types (Source, ToolExecution,
// ToolPermission, Attachment) that travel between the Agent Loop, the Thread
// Store, and the Tool Execution Pipeline.
package wire

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCallFunction is the `function` member of an OpenAI tool call.
type ToolCallFunction struct {
	Name string `json:"name"`
	// Arguments is a JSON-encoded object, not a nested json.RawMessage:
	// the wire format requires a string here, matching OpenAI's shape.
	Arguments string `json:"arguments"`
}

// ToolCall is an entry in an assistant message's `tool_calls` array.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // always "function"
	Function ToolCallFunction `json:"function"`
}

// NewToolCall builds a ToolCall with Type defaulted to "function".
func NewToolCall(id, name string, argumentsJSON string) ToolCall {
	return ToolCall{
		ID:   id,
		Type: "function",
		Function: ToolCallFunction{
			Name:      name,
			Arguments: argumentsJSON,
		},
	}
}

// Attachment is a file or inline media payload carried on a user message or
// surfaced by a tool result.
type Attachment struct {
	Type     string `json:"type"` // image, audio, video, document
	Data     string `json:"data,omitempty"` // base64, when inline
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Usage carries token accounting reported by the upstream LLM runtime.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Metadata is the open container attached to a Message per spec §3: thinking
// text, retrieved sources, attachments, model/usage bookkeeping, and the
// ToolExecution snapshots belonging to this message's tool_calls.
type Metadata struct {
	Thinking       string          `json:"thinking,omitempty"`
	Sources        []Source        `json:"sources,omitempty"`
	Attachments    []Attachment    `json:"attachments,omitempty"`
	Model          string          `json:"model,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
	ToolExecutions []ToolExecution `json:"toolExecutions,omitempty"`
}

// Message is one OpenAI Chat-Completions-shaped record in a Thread.
//
// Content is a pointer so that nil is distinguishable from "": per spec §3
// invariant 3, content is null iff role=assistant, tool_calls is present,
// and no text was streamed.
type Message struct {
	ID         string     `json:"id"`
	ThreadID   string     `json:"thread_id,omitempty"`
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StrPtr is a small helper for building Content pointers inline.
func StrPtr(s string) *string { return &s }

// AppendContent appends delta to the message's content, treating a nil
// Content as empty. Used by the message:delta reducer action.
func (m *Message) AppendContent(delta string) {
	if m.Content == nil {
		m.Content = StrPtr(delta)
		return
	}
	*m.Content = *m.Content + delta
}

// Source is a retrieval result referenced by a source:add event.
type Source struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content,omitempty"`
	URL      string         `json:"url,omitempty"`
	Score    float64        `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExecutionStatus is the lifecycle state of a ToolExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionExecuting ExecutionStatus = "executing"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionError     ExecutionStatus = "error"
)

// ApprovalStatus is the approval-gate state of a ToolExecution.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalRequired ApprovalStatus = "required"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ToolExecution is a runtime record of one tool invocation. It is never
// serialized to the wire directly; snapshots of it are embedded in
// Message.Metadata.ToolExecutions once a turn completes.
type ToolExecution struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Args           json.RawMessage `json:"args,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ApprovalStatus ApprovalStatus  `json:"approvalStatus"`
	ApprovalMessage string         `json:"approvalMessage,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Duration       time.Duration   `json:"duration,omitempty"`
}

// PermissionLevel is the persisted approval policy for a tool.
type PermissionLevel string

const (
	PermissionAsk         PermissionLevel = "ask"
	PermissionAllowAlways PermissionLevel = "allow_always"
	PermissionDenyAlways  PermissionLevel = "deny_always"
	PermissionSession     PermissionLevel = "session"
)

// ToolPermission is a per-tool persisted (or session-scoped) approval
// policy record.
type ToolPermission struct {
	ToolName   string          `json:"toolName"`
	Level      PermissionLevel `json:"level"`
	CreatedAt  time.Time       `json:"createdAt"`
	LastUsedAt *time.Time      `json:"lastUsedAt,omitempty"`
}

// RunStats summarizes one turn for observability. The Agent Loop returns it
// with each turn result; the loop:complete event does not carry it.
type RunStats struct {
	Iterations int           `json:"iterations"`
	ToolCalls  int           `json:"toolCalls"`
	Duration   time.Duration `json:"duration"`
}

// ToolResponse is the normalized outcome of a tool invocation, encoded as
// the content of the resulting `tool` message.
//
// Kind distinguishes the ordinary result shape from the "add as user
// message" marker used by flows like screenshot capture: rather than a
// side-channel boolean, it is an explicit variant.
type ToolResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	Kind       string      `json:"kind,omitempty"` // "" or "attachment-as-user"
	Caption    string      `json:"caption,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	AckMessage string      `json:"ackMessage,omitempty"`
}

// IsAttachmentAsUser reports whether this response carries the
// attachment-as-user-message marker.
func (r ToolResponse) IsAttachmentAsUser() bool {
	return r.Kind == "attachment-as-user" && r.Attachment != nil
}
