package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/relaykit/agentcore/internal/contexttree"
	"github.com/relaykit/agentcore/internal/permission"
	"github.com/relaykit/agentcore/internal/thread"
	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/internal/toolschema"
	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

// fakeStream replays a fixed, pre-scripted slice of events — the test
// double standing in for a real HTTP/SSE round trip.
type fakeStream struct {
	events []wire.StreamEvent
	pos    int
}

func (s *fakeStream) Next() (wire.StreamEvent, error) {
	if s.pos >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }

// scriptedTransport returns one scripted reply per call to Submit, in
// order, and records each submitted request for assertions that need to
// see what buildRequest produced. Additional Submit calls beyond the
// script fail the test via a sentinel error event.
type scriptedTransport struct {
	t       *testing.T
	scripts [][]wire.StreamEvent
	calls   int
	seen    []wire.RunRequest
}

func (s *scriptedTransport) Submit(ctx context.Context, req wire.RunRequest) (EventStream, error) {
	if s.calls >= len(s.scripts) {
		s.t.Fatalf("transport.Submit called more times than scripted (%d)", s.calls+1)
	}
	s.seen = append(s.seen, req)
	events := s.scripts[s.calls]
	s.calls++
	return &fakeStream{events: events}, nil
}

func newTestRunner(t *testing.T, transport Transport, cfg RunnerConfig) *Runner {
	t.Helper()
	registry := tool.NewRegistry()
	checker := permission.NewChecker(permission.NewMemoryStore(), nil)
	schema := toolschema.New()
	store, err := thread.New(thread.NoopPersister{}, thread.WithClock(ids.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatalf("thread.New: %v", err)
	}
	return NewRunner(transport, registry, checker, schema, store, contexttree.New(), nil, nil, ids.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), cfg)
}

// Scenario: plain Q&A, streamed deltas then done with no messages.
func TestRunner_PlainStreamingReply(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{
			wire.MessageStartEvent{ID: "msg_1"},
			wire.MessageDeltaEvent{Content: "Hello"},
			wire.MessageDeltaEvent{Content: ", world"},
			wire.MessageEndEvent{},
			wire.DoneEvent{},
		},
	}}
	r := newTestRunner(t, transport, RunnerConfig{SystemPrompt: "be helpful"})

	result := r.Send(context.Background(), "hi", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}

	th, ok := r.ActiveThread()
	if !ok {
		t.Fatal("expected active thread")
	}
	if len(th.Messages) != 2 {
		t.Fatalf("expected 2 messages (user+assistant), got %d", len(th.Messages))
	}
	assistant := th.Messages[1]
	if assistant.Content == nil || *assistant.Content != "Hello, world" {
		t.Fatalf("expected assembled content %q, got %+v", "Hello, world", assistant.Content)
	}
}

// Scenario: a single auto-approved client tool call, executed without
// suspending, then a second iteration completes the turn.
func TestRunner_AutoApprovedToolCall(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{
			wire.MessageStartEvent{ID: "msg_1"},
			wire.ToolCallsEvent{ToolCalls: []wire.ToolCallInfo{
				{ID: "call_1", Name: "get_time", Args: json.RawMessage(`{}`)},
			}},
			wire.DoneEvent{RequiresAction: true},
		},
		{
			wire.MessageStartEvent{ID: "msg_2"},
			wire.MessageDeltaEvent{Content: "It is noon."},
			wire.DoneEvent{},
		},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})
	r.registry.Register(tool.Definition{
		Name:     "get_time",
		Location: tool.LocationClient,
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			return wire.ToolResponse{Success: true, Data: "12:00"}, nil
		},
	})

	result := r.Send(context.Background(), "what time is it?", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}
	if transport.calls != 2 {
		t.Fatalf("expected 2 transport submissions, got %d", transport.calls)
	}

	th, _ := r.ActiveThread()
	var sawToolResult bool
	for _, m := range th.Messages {
		if m.Role == wire.RoleTool && m.ToolCallID == "call_1" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatal("expected a tool result message for call_1")
	}
}

// Scenario: approval required, then rejected; the decision is recorded as
// deny_always and a subsequent call to the same tool is auto-denied
// without asking again.
func TestRunner_ApprovalRequiredThenRejected(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{
			wire.MessageStartEvent{ID: "msg_1"},
			wire.ToolCallsEvent{ToolCalls: []wire.ToolCallInfo{
				{ID: "call_1", Name: "delete_file", Args: json.RawMessage(`{"path":"/tmp/x"}`)},
			}},
			wire.DoneEvent{RequiresAction: true},
		},
		{
			wire.MessageStartEvent{ID: "msg_2"},
			wire.MessageDeltaEvent{Content: "Okay, not deleting."},
			wire.DoneEvent{},
		},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})
	r.registry.Register(tool.Definition{
		Name:          "delete_file",
		Location:      tool.LocationClient,
		NeedsApproval: tool.Always,
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			t.Fatal("handler must not run for a rejected call")
			return wire.ToolResponse{}, nil
		},
	})

	result := r.Send(context.Background(), "delete /tmp/x", nil)
	if result.Status != StatusAwaitingApproval {
		t.Fatalf("expected StatusAwaitingApproval, got %v (err=%v)", result.Status, result.Err)
	}
	if len(result.Pending) != 1 || result.Pending[0].ToolCallID != "call_1" {
		t.Fatalf("unexpected pending set: %+v", result.Pending)
	}

	denyAlways := wire.PermissionDenyAlways
	result = r.Reject("call_1", "no", &denyAlways)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete after rejection, got %v (err=%v)", result.Status, result.Err)
	}

	decision, err := r.checker.Resolve("delete_file", true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if decision != permission.DecisionDenied {
		t.Fatalf("expected the deny_always policy to persist, got %v", decision)
	}

	th, _ := r.ActiveThread()
	var toolMsg *wire.Message
	for i := range th.Messages {
		if th.Messages[i].Role == wire.RoleTool && th.Messages[i].ToolCallID == "call_1" {
			toolMsg = &th.Messages[i]
		}
	}
	if toolMsg == nil || toolMsg.Content == nil {
		t.Fatal("expected a tool result message for call_1")
	}
	if want := `{"success":false,"error":"no"}`; *toolMsg.Content != want {
		t.Fatalf("expected tool message content %q, got %q", want, *toolMsg.Content)
	}
}

// Scenario: the server signals completion via done.messages, replacing the
// streaming placeholder with its own authoritative message set (P4).
func TestRunner_DoneMessagesReplacesPlaceholder(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{
			wire.MessageStartEvent{ID: "msg_1"},
			wire.MessageDeltaEvent{Content: "partial..."},
			wire.DoneEvent{Messages: []wire.Message{
				{Role: wire.RoleAssistant, Content: wire.StrPtr("final answer from server")},
			}},
		},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})

	result := r.Send(context.Background(), "question", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}

	th, _ := r.ActiveThread()
	last := th.Messages[len(th.Messages)-1]
	if last.Content == nil || *last.Content != "final answer from server" {
		t.Fatalf("expected server-authoritative content, got %+v", last.Content)
	}
}

// Scenario: every reply parks another tool call, so the loop hits P6's
// iteration ceiling, and the turn still resolves (with an error) rather
// than hanging.
func TestRunner_MaxIterationsReached(t *testing.T) {
	scripts := make([][]wire.StreamEvent, 3)
	for i := range scripts {
		scripts[i] = []wire.StreamEvent{
			wire.MessageStartEvent{ID: ids.NewMessageID()},
			wire.ToolCallsEvent{ToolCalls: []wire.ToolCallInfo{
				{ID: ids.NewToolCallID(), Name: "loop_tool", Args: json.RawMessage(`{}`)},
			}},
			wire.DoneEvent{RequiresAction: true},
		}
	}
	transport := &scriptedTransport{t: t, scripts: scripts}
	r := newTestRunner(t, transport, RunnerConfig{MaxIterations: 3})
	r.registry.Register(tool.Definition{
		Name:     "loop_tool",
		Location: tool.LocationClient,
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			return wire.ToolResponse{Success: true}, nil
		},
	})

	result := r.Send(context.Background(), "keep going forever", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete (terminated, not hung), got %v", result.Status)
	}
	if result.Err == nil {
		t.Fatal("expected a max-iterations error")
	}
	var agentErr *Error
	if !errors.As(result.Err, &agentErr) || agentErr.Kind != KindMaxIterations {
		t.Fatalf("expected KindMaxIterations, got %v", result.Err)
	}
}

// Scenario: a screenshot-style tool response staged as attachment-as-user
// is materialized as a fresh user message rather than folded into the
// tool result.
func TestRunner_AttachmentAsUserMessage(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{
			wire.MessageStartEvent{ID: "msg_1"},
			wire.ToolCallsEvent{ToolCalls: []wire.ToolCallInfo{
				{ID: "call_1", Name: "capture_screenshot", Args: json.RawMessage(`{}`)},
			}},
			wire.DoneEvent{RequiresAction: true},
		},
		{
			wire.MessageStartEvent{ID: "msg_2"},
			wire.MessageDeltaEvent{Content: "I see a login page."},
			wire.DoneEvent{},
		},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})
	r.registry.Register(tool.Definition{
		Name:     "capture_screenshot",
		Location: tool.LocationClient,
		Handler: func(ctx context.Context, params json.RawMessage, tc tool.Context) (wire.ToolResponse, error) {
			return wire.ToolResponse{
				Success:    true,
				Kind:       "attachment-as-user",
				Caption:    "screenshot captured",
				Attachment: &wire.Attachment{Type: "image", Data: "base64...", MimeType: "image/png"},
				AckMessage: "Screenshot attached.",
			}, nil
		},
	})

	result := r.Send(context.Background(), "take a screenshot", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}

	th, _ := r.ActiveThread()
	var sawAttachmentUser bool
	for _, m := range th.Messages {
		if m.Role == wire.RoleUser && len(m.Metadata.Attachments) > 0 {
			sawAttachmentUser = true
		}
	}
	if !sawAttachmentUser {
		t.Fatal("expected a user message carrying the staged attachment")
	}
}

// Cancelling the context passed to Send aborts the turn, and the loop
// unwinds instead of hanging.
func TestRunner_CancelledContextAbortsTurn(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{wire.MessageStartEvent{ID: "msg_1"}, wire.MessageDeltaEvent{Content: "..."}, wire.DoneEvent{}},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := r.Send(ctx, "hello", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected an aborted turn to still resolve as complete, got %v", result.Status)
	}
}

// Regenerate truncates the active thread at the last assistant message and
// re-drives a turn without appending a new user message, leaving the
// thread with the same user message plus a freshly generated reply.
func TestRunner_Regenerate(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{wire.MessageStartEvent{ID: "msg_1"}, wire.MessageDeltaEvent{Content: "first answer"}, wire.DoneEvent{}},
		{wire.MessageStartEvent{ID: "msg_2"}, wire.MessageDeltaEvent{Content: "second answer"}, wire.DoneEvent{}},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})

	result := r.Send(context.Background(), "question", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}
	th, _ := r.ActiveThread()
	if len(th.Messages) != 2 {
		t.Fatalf("expected 2 messages (user+assistant), got %d", len(th.Messages))
	}

	result = r.Regenerate(context.Background(), "")
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete after regenerate, got %v (err=%v)", result.Status, result.Err)
	}

	th, _ = r.ActiveThread()
	if len(th.Messages) != 2 {
		t.Fatalf("expected 2 messages after regenerate (user + fresh assistant), got %d", len(th.Messages))
	}
	if th.Messages[0].Role != wire.RoleUser {
		t.Fatalf("expected the original user message to survive regenerate, got role %v", th.Messages[0].Role)
	}
	assistant := th.Messages[1]
	if assistant.Content == nil || *assistant.Content != "second answer" {
		t.Fatalf("expected regenerated content %q, got %+v", "second answer", assistant.Content)
	}
}

// Regenerate with no active turn and no assistant message to target fails
// instead of hanging or fabricating a turn.
func TestRunner_RegenerateWithNoAssistantMessage(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: nil}
	r := newTestRunner(t, transport, RunnerConfig{})

	result := r.Regenerate(context.Background(), "")
	if result.Status != StatusError {
		t.Fatalf("expected StatusError, got %v", result.Status)
	}
}

// RegisterAction/UnregisterAction feed the legacy action registry that
// buildRequest snapshots into RunRequest.Actions on every iteration.
func TestRunner_RegisterActionPopulatesRequest(t *testing.T) {
	transport := &scriptedTransport{t: t, scripts: [][]wire.StreamEvent{
		{wire.MessageStartEvent{ID: "msg_1"}, wire.MessageDeltaEvent{Content: "ok"}, wire.DoneEvent{}},
		{wire.MessageStartEvent{ID: "msg_2"}, wire.MessageDeltaEvent{Content: "ok again"}, wire.DoneEvent{}},
	}}
	r := newTestRunner(t, transport, RunnerConfig{})
	r.RegisterAction(wire.ActionSpec{Name: "highlight", Description: "Highlight text in the document"})

	result := r.Send(context.Background(), "hi", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}
	if len(transport.seen) != 1 || len(transport.seen[0].Actions) != 1 || transport.seen[0].Actions[0].Name != "highlight" {
		t.Fatalf("expected the registered action in the submitted request, got %+v", transport.seen)
	}

	r.UnregisterAction("highlight")
	result = r.Send(context.Background(), "hi again", nil)
	if result.Status != StatusComplete {
		t.Fatalf("expected StatusComplete, got %v (err=%v)", result.Status, result.Err)
	}
	if len(transport.seen) != 2 || len(transport.seen[1].Actions) != 0 {
		t.Fatalf("expected no actions after UnregisterAction, got %+v", transport.seen[1].Actions)
	}
}
