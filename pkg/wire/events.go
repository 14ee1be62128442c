package wire

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates a Stream Event's JSON shape.
type EventType string

const (
	EventMessageStart   EventType = "message:start"
	EventMessageDelta   EventType = "message:delta"
	EventMessageEnd     EventType = "message:end"
	EventThinkingStart  EventType = "thinking:start"
	EventThinkingDelta  EventType = "thinking:delta"
	EventThinkingEnd    EventType = "thinking:end"
	EventSourceAdd      EventType = "source:add"
	EventActionStart    EventType = "action:start"
	EventActionArgs     EventType = "action:args"
	EventActionEnd      EventType = "action:end"
	EventToolCalls      EventType = "tool_calls"
	EventToolStatus     EventType = "tool:status"
	EventToolResult     EventType = "tool:result"
	EventLoopIteration  EventType = "loop:iteration"
	EventLoopComplete   EventType = "loop:complete"
	EventError          EventType = "error"
	EventDone           EventType = "done"
)

// StreamEvent is implemented by every concrete event variant. The EventType
// method lets a dispatcher re-derive the discriminator without a type
// switch at every call site.
type StreamEvent interface {
	EventType() EventType
}

type MessageStartEvent struct{ ID string `json:"id"` }
type MessageDeltaEvent struct{ Content string `json:"content"` }
type MessageEndEvent struct{}
type ThinkingStartEvent struct{}
type ThinkingDeltaEvent struct{ Content string `json:"content"` }
type ThinkingEndEvent struct{}
type SourceAddEvent struct{ Source Source `json:"source"` }

type ActionStartEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ActionArgsEvent struct {
	ID   string `json:"id"`
	Args string `json:"args"` // partial JSON allowed
}

type ActionEndEvent struct {
	ID     string          `json:"id"`
	Name   string          `json:"name,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ToolCallInfo is one entry of a tool_calls event's toolCalls array.
type ToolCallInfo struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type ToolCallsEvent struct {
	ToolCalls        []ToolCallInfo `json:"toolCalls"`
	AssistantMessage Message        `json:"assistantMessage"`
}

type ToolStatusEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ToolResultEvent struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result"`
}

type LoopIterationEvent struct {
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"maxIterations"`
}

type LoopCompleteEvent struct {
	Iterations           int  `json:"iterations"`
	Aborted              bool `json:"aborted,omitempty"`
	MaxIterationsReached bool `json:"maxIterationsReached,omitempty"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type DoneEvent struct {
	RequiresAction bool      `json:"requiresAction,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
}

func (MessageStartEvent) EventType() EventType  { return EventMessageStart }
func (MessageDeltaEvent) EventType() EventType  { return EventMessageDelta }
func (MessageEndEvent) EventType() EventType    { return EventMessageEnd }
func (ThinkingStartEvent) EventType() EventType { return EventThinkingStart }
func (ThinkingDeltaEvent) EventType() EventType { return EventThinkingDelta }
func (ThinkingEndEvent) EventType() EventType    { return EventThinkingEnd }
func (SourceAddEvent) EventType() EventType      { return EventSourceAdd }
func (ActionStartEvent) EventType() EventType    { return EventActionStart }
func (ActionArgsEvent) EventType() EventType     { return EventActionArgs }
func (ActionEndEvent) EventType() EventType      { return EventActionEnd }
func (ToolCallsEvent) EventType() EventType       { return EventToolCalls }
func (ToolStatusEvent) EventType() EventType      { return EventToolStatus }
func (ToolResultEvent) EventType() EventType      { return EventToolResult }
func (LoopIterationEvent) EventType() EventType   { return EventLoopIteration }
func (LoopCompleteEvent) EventType() EventType    { return EventLoopComplete }
func (ErrorEvent) EventType() EventType           { return EventError }
func (DoneEvent) EventType() EventType            { return EventDone }

type envelope struct {
	Type EventType       `json:"type"`
	Rest json.RawMessage `json:"-"`
}

// ParseEvent decodes one SSE data-frame payload into its concrete
// StreamEvent. An unrecognized Type returns (nil, nil): per spec §4.H,
// unknown event types must be silently ignored for forward compatibility.
// Malformed JSON returns a non-nil error; callers should skip the frame and
// continue per §4.I.6.
func ParseEvent(raw []byte) (StreamEvent, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("wire: malformed event frame: %w", err)
	}
	switch head.Type {
	case EventMessageStart:
		var e MessageStartEvent
		return decodeInto(raw, &e)
	case EventMessageDelta:
		var e MessageDeltaEvent
		return decodeInto(raw, &e)
	case EventMessageEnd:
		return MessageEndEvent{}, nil
	case EventThinkingStart:
		return ThinkingStartEvent{}, nil
	case EventThinkingDelta:
		var e ThinkingDeltaEvent
		return decodeInto(raw, &e)
	case EventThinkingEnd:
		return ThinkingEndEvent{}, nil
	case EventSourceAdd:
		var e SourceAddEvent
		return decodeInto(raw, &e)
	case EventActionStart:
		var e ActionStartEvent
		return decodeInto(raw, &e)
	case EventActionArgs:
		var e ActionArgsEvent
		return decodeInto(raw, &e)
	case EventActionEnd:
		var e ActionEndEvent
		return decodeInto(raw, &e)
	case EventToolCalls:
		var e ToolCallsEvent
		return decodeInto(raw, &e)
	case EventToolStatus:
		var e ToolStatusEvent
		return decodeInto(raw, &e)
	case EventToolResult:
		var e ToolResultEvent
		return decodeInto(raw, &e)
	case EventLoopIteration:
		var e LoopIterationEvent
		return decodeInto(raw, &e)
	case EventLoopComplete:
		var e LoopCompleteEvent
		return decodeInto(raw, &e)
	case EventError:
		var e ErrorEvent
		return decodeInto(raw, &e)
	case EventDone:
		var e DoneEvent
		return decodeInto(raw, &e)
	default:
		return nil, nil
	}
}

func decodeInto[T StreamEvent](raw []byte, e *T) (StreamEvent, error) {
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("wire: malformed %T: %w", *e, err)
	}
	return *e, nil
}

// EncodeEvent marshals a StreamEvent back into its `{"type":..., ...}` wire
// shape. Used by tests constructing fixture SSE bodies.
func EncodeEvent(ev StreamEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	typeJSON, err := json.Marshal(ev.EventType())
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON
	return json.Marshal(fields)
}
