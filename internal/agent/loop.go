// Package agent implements the Agent Loop and Tool Execution Pipeline: the
// state machine that drives one conversational turn from a submitted user
// message through streaming reconciliation, tool approval, and resubmission
// back to Idle. Grounded on the teacher's AgenticLoop.Run (internal/agent/loop.go)
// and ToolRegistry/ToolBridge machinery, generalized to the wire protocol and
// approval model of spec.md §4.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/relaykit/agentcore/internal/contexttree"
	"github.com/relaykit/agentcore/internal/observability"
	"github.com/relaykit/agentcore/internal/permission"
	"github.com/relaykit/agentcore/internal/thread"
	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/internal/toolschema"
	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

// defaultMaxIterations is P6's ceiling when RunnerConfig.MaxIterations is
// left at zero.
const defaultMaxIterations = 20

// RunnerConfig is the Runner's static, host-supplied configuration.
type RunnerConfig struct {
	SystemPrompt  string
	MaxIterations int
	BotID         string
	Streaming     bool
	KnowledgeBase *wire.KnowledgeBaseConfig
	RuntimeConfig *wire.RuntimeConfig
}

func (c RunnerConfig) maxIterations() int {
	if c.MaxIterations > 0 {
		return c.MaxIterations
	}
	return defaultMaxIterations
}

// Runner is the host-facing entry point implementing spec §6.5's API
// surface: Send/Stop/Approve/Reject plus thread management delegated
// straight to the Thread Store. Exactly one turn may be in flight at a
// time (P2): Send rejects a second call while the prior turn hasn't
// reached Idle.
type Runner struct {
	transport Transport
	registry  *tool.Registry
	checker   *permission.Checker
	schema    *toolschema.Bridge
	threads   *thread.Store
	ctxTree   *contexttree.Tree
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	clock     ids.Clock
	cfg       RunnerConfig

	mu      sync.Mutex
	current *turnState

	actionsMu sync.Mutex
	actions   map[string]wire.ActionSpec
}

// NewRunner wires together a Runner from its collaborators. A nil clock
// defaults to ids.SystemClock.
func NewRunner(transport Transport, registry *tool.Registry, checker *permission.Checker, schema *toolschema.Bridge, threads *thread.Store, ctxTree *contexttree.Tree, metrics *observability.Metrics, tracer *observability.Tracer, clock ids.Clock, cfg RunnerConfig) *Runner {
	if clock == nil {
		clock = ids.SystemClock{}
	}
	return &Runner{
		transport: transport,
		registry:  registry,
		checker:   checker,
		schema:    schema,
		threads:   threads,
		ctxTree:   ctxTree,
		metrics:   metrics,
		tracer:    tracer,
		clock:     clock,
		cfg:       cfg,
		actions:   make(map[string]wire.ActionSpec),
	}
}

// RegisterAction adds or replaces a legacy action definition (§4.I.2's
// `actions` request field; §6.5's registerAction). Every subsequent request
// this Runner sends includes it.
func (r *Runner) RegisterAction(spec wire.ActionSpec) {
	r.actionsMu.Lock()
	defer r.actionsMu.Unlock()
	r.actions[spec.Name] = spec
}

// UnregisterAction removes a previously registered action by name (§6.5's
// unregisterAction). No-op if it was never registered.
func (r *Runner) UnregisterAction(name string) {
	r.actionsMu.Lock()
	defer r.actionsMu.Unlock()
	delete(r.actions, name)
}

func (r *Runner) actionsSnapshot() []wire.ActionSpec {
	r.actionsMu.Lock()
	defer r.actionsMu.Unlock()
	out := make([]wire.ActionSpec, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	return out
}

// TurnStatus reports where a turn landed: fully resolved, suspended
// waiting on host approval, or failed.
type TurnStatus string

const (
	StatusComplete         TurnStatus = "complete"
	StatusAwaitingApproval TurnStatus = "awaiting_approval"
	StatusError            TurnStatus = "error"
)

// PendingApproval describes one tool call parked in the Approving phase,
// for the host to render and resolve via Approve/Reject.
type PendingApproval struct {
	ToolCallID      string
	ToolName        string
	Arguments       string
	ApprovalMessage string
}

// TurnResult is returned by Send and by every Approve/Reject call that
// advances the turn.
type TurnResult struct {
	Status   TurnStatus
	ThreadID string
	RunID    string
	Pending  []PendingApproval
	Stats    wire.RunStats
	Err      error
}

// turnState is the transient, in-memory state of one in-flight turn. None
// of it is persisted directly; reconcile.go folds the durable parts into
// the Thread Store as events arrive, and finishTurn snapshots executions
// onto the owning assistant message before the turn relinquishes current.
type turnState struct {
	runID    string
	threadID string
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time

	iteration int

	placeholderID string

	mu         sync.Mutex
	executions map[string]wire.ToolExecution

	parkedCalls []wire.ToolCall
	classified  []classifiedCall

	serverIteration            int
	serverMaxIterationsReached bool
	aborted                    bool
	requiresAction             bool
	receivedDone               bool
	streamErr                  *Error
}

// Send submits content as a new user message on the active thread and
// drives the turn forward to completion or the first approval suspension.
// Implements the Idle->Submitting transition of §4.I.1.
func (r *Runner) Send(ctx context.Context, content string, attachments []wire.Attachment) TurnResult {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return TurnResult{Status: StatusError, Err: fmt.Errorf("agent: a turn is already in progress")}
	}
	threadID := r.threads.ActiveThreadID()
	r.mu.Unlock()

	userMsg := wire.Message{
		Role:      wire.RoleUser,
		Content:   wire.StrPtr(content),
		CreatedAt: r.clock.Now(),
	}
	if len(attachments) > 0 {
		userMsg.Metadata.Attachments = attachments
	}
	if err := r.threads.AddMessage(threadID, userMsg); err != nil {
		return TurnResult{Status: StatusError, Err: err}
	}

	turnCtx, cancel := context.WithCancel(ctx)
	ts := &turnState{
		runID:      ids.NewRunID(),
		threadID:   threadID,
		ctx:        turnCtx,
		cancel:     cancel,
		started:    r.clock.Now(),
		executions: make(map[string]wire.ToolExecution),
	}

	r.mu.Lock()
	r.current = ts
	r.mu.Unlock()

	return r.drive(ts)
}

// Regenerate re-submits the active thread after discarding a prior
// assistant response, implementing §6.5's regenerate(messageId?). With
// messageID empty, the most recent assistant message is discarded;
// otherwise messageID and everything after it is discarded. The turn then
// drives forward exactly as Send's does, without appending a new user
// message.
func (r *Runner) Regenerate(ctx context.Context, messageID string) TurnResult {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return TurnResult{Status: StatusError, Err: fmt.Errorf("agent: a turn is already in progress")}
	}
	threadID := r.threads.ActiveThreadID()
	r.mu.Unlock()

	t, ok := r.threads.GetThread(threadID)
	if !ok {
		return TurnResult{Status: StatusError, Err: fmt.Errorf("agent: no active thread")}
	}
	target := messageID
	if target == "" {
		target = lastAssistantMessageID(t.Messages)
	}
	if target == "" {
		return TurnResult{Status: StatusError, Err: fmt.Errorf("agent: no assistant message to regenerate")}
	}
	if err := r.threads.TruncateFrom(threadID, target); err != nil {
		return TurnResult{Status: StatusError, Err: err}
	}

	turnCtx, cancel := context.WithCancel(ctx)
	ts := &turnState{
		runID:      ids.NewRunID(),
		threadID:   threadID,
		ctx:        turnCtx,
		cancel:     cancel,
		started:    r.clock.Now(),
		executions: make(map[string]wire.ToolExecution),
	}

	r.mu.Lock()
	r.current = ts
	r.mu.Unlock()

	return r.drive(ts)
}

func lastAssistantMessageID(messages []wire.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == wire.RoleAssistant {
			return messages[i].ID
		}
	}
	return ""
}

// Stop cancels the in-flight turn (P7). The loop observes ctx.Done() at
// its next suspension point and unwinds to Idle; the turn resolves as
// StatusComplete and its completion is recorded with reason "aborted".
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.cancel()
	}
}

// Clear clears the active thread's messages, refusing while a turn is in
// flight so a clear never races with in-progress reconciliation.
func (r *Runner) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return fmt.Errorf("agent: cannot clear while a turn is in progress")
	}
	return r.threads.ClearThread(r.threads.ActiveThreadID())
}

// drive runs iterations until the turn completes, needs approval, hits
// P6's iteration ceiling, or fails, per the Receiving->(Approving?)->
// Executing->Resubmitting cycle of §4.I.
func (r *Runner) drive(ts *turnState) TurnResult {
	for {
		select {
		case <-ts.ctx.Done():
			return r.finishAborted(ts)
		default:
		}

		if ts.iteration >= r.cfg.maxIterations() {
			return r.finishMaxIterations(ts)
		}
		ts.iteration++

		if err := r.receiveOneIteration(ts); err != nil {
			return r.finishError(ts, err)
		}
		if ts.streamErr != nil {
			return r.finishError(ts, ts.streamErr)
		}

		if len(ts.parkedCalls) == 0 {
			return r.finishComplete(ts)
		}

		classified, err := classify(r.registry, r.checker, r.schema, ts.parkedCalls)
		if err != nil {
			return r.finishError(ts, err)
		}
		ts.classified = classified

		pending := pendingApprovals(classified)
		if len(pending) > 0 {
			return TurnResult{Status: StatusAwaitingApproval, ThreadID: ts.threadID, RunID: ts.runID, Pending: pending}
		}

		if err := r.executeAndResubmit(ts); err != nil {
			return r.finishError(ts, err)
		}
		ts.parkedCalls = nil
	}
}

func pendingApprovals(classified []classifiedCall) []PendingApproval {
	var out []PendingApproval
	for _, cc := range classified {
		if cc.Decision != permission.DecisionRequired {
			continue
		}
		out = append(out, PendingApproval{
			ToolCallID:      cc.Call.ID,
			ToolName:        cc.Call.Function.Name,
			Arguments:       cc.Call.Function.Arguments,
			ApprovalMessage: cc.Def.ResolvedApprovalMessage([]byte(cc.Call.Function.Arguments)),
		})
	}
	return out
}

// receiveOneIteration submits the current thread history and reconciles
// every event of the reply, returning once the stream ends.
func (r *Runner) receiveOneIteration(ts *turnState) error {
	t, ok := r.threads.GetThread(ts.threadID)
	if !ok {
		return newErr(KindConfiguration, "submitting", ts.iteration, fmt.Errorf("thread %q vanished mid-turn", ts.threadID))
	}

	ctx, span := r.tracer.StartLoopSpan(ts.ctx, "receiving", ts.runID)
	defer span.End()

	req := buildRequest(r.cfg, r.registry, r.ctxTree, ts.threadID, t.Messages, r.actionsSnapshot())
	stream, err := r.transport.Submit(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	ts.placeholderID = ""
	for {
		select {
		case <-ts.ctx.Done():
			return nil
		default:
		}
		ev, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return newErr(KindTransport, "receiving", ts.iteration, err)
		}
		if ev == nil {
			continue
		}
		if err := r.reconcile(ts, ev); err != nil {
			return err
		}
		if ts.receivedDone {
			return nil
		}
	}
}

// Approve resolves one parked call as approved, recording level (if
// non-nil) for future calls, then continues driving the turn.
func (r *Runner) Approve(toolCallID string, level *wire.PermissionLevel) TurnResult {
	return r.resolveApproval(toolCallID, permission.DecisionApproved, "", level)
}

// Reject resolves one parked call as denied, optionally recording level for
// future calls, then continues driving the turn. reason becomes the
// executed tool message's error text (§6.5's reject(executionId, reason?,
// persistAs?); §4.J pass 2 step 1) — an empty reason becomes "denied by
// user"; the canonical auto-deny text is used only when the denial
// actually originates from a saved deny_always preference, not from this
// explicit call.
func (r *Runner) Reject(toolCallID, reason string, level *wire.PermissionLevel) TurnResult {
	return r.resolveApproval(toolCallID, permission.DecisionDenied, reason, level)
}

func (r *Runner) resolveApproval(toolCallID string, decision permission.Decision, reason string, level *wire.PermissionLevel) TurnResult {
	r.mu.Lock()
	ts := r.current
	r.mu.Unlock()
	if ts == nil {
		return TurnResult{Status: StatusError, Err: fmt.Errorf("agent: no turn is awaiting approval")}
	}

	found := false
	for i, cc := range ts.classified {
		if cc.Call.ID != toolCallID {
			continue
		}
		found = true
		if cc.Decision != permission.DecisionRequired {
			break
		}
		toolName := cc.Call.Function.Name
		if level != nil {
			if err := r.checker.Record(toolName, *level); err != nil {
				return TurnResult{Status: StatusError, Err: err}
			}
		}
		if r.metrics != nil {
			r.metrics.ApprovalDecisionsTotal.WithLabelValues(string(decision)).Inc()
		}
		ts.classified[i].Decision = decision
		if decision == permission.DecisionDenied {
			if reason == "" {
				reason = "denied by user"
			}
			ts.classified[i].DeniedReason = reason
		}
		break
	}
	if !found {
		return TurnResult{Status: StatusError, Err: fmt.Errorf("agent: no pending call %q", toolCallID)}
	}

	if len(pendingApprovals(ts.classified)) > 0 {
		return TurnResult{Status: StatusAwaitingApproval, ThreadID: ts.threadID, RunID: ts.runID, Pending: pendingApprovals(ts.classified)}
	}

	if err := r.executeAndResubmit(ts); err != nil {
		return r.finishError(ts, err)
	}
	ts.parkedCalls = nil
	return r.drive(ts)
}

// executeAndResubmit runs pass 2 and pass 3 of the Tool Execution Pipeline
// (§4.J): execute every classified call in order, materialize the
// resulting tool/user messages, snapshot ToolExecutions onto the owning
// assistant message, and leave the thread ready for the next Submitting
// iteration.
func (r *Runner) executeAndResubmit(ts *turnState) error {
	now := r.clock.Now()
	for _, cc := range ts.classified {
		start := r.clock.Now()
		ctx, span := r.tracer.StartToolSpan(ts.ctx, cc.Call.Function.Name, cc.Call.ID)
		resp := execute(ctx, cc, tool.Context{ToolCallID: cc.Call.ID})
		span.End()
		end := r.clock.Now()

		status := wire.ExecutionCompleted
		outcome := "success"
		if resp.Error != "" {
			status = wire.ExecutionError
			outcome = "error"
		}
		if r.metrics != nil {
			r.metrics.ToolExecutionsTotal.WithLabelValues(cc.Call.Function.Name, outcome).Inc()
			r.metrics.ToolExecutionDuration.WithLabelValues(cc.Call.Function.Name).Observe(end.Sub(start).Seconds())
		}

		ts.mu.Lock()
		ts.executions[cc.Call.ID] = executionFromClassified(cc, status, resp, start, end)
		ts.mu.Unlock()

		if resp.Success && cc.Decision != permission.DecisionDenied && cc.SchemaErr == nil {
			if err := r.checker.Touch(cc.Call.Function.Name); err != nil {
				return err
			}
		}

		mode := cc.Def.ResponseMode()
		if err := r.threads.AddMessage(ts.threadID, toolResultMessage(cc.Call, mode, resp, now)); err != nil {
			return err
		}
		if resp.IsAttachmentAsUser() {
			if err := r.threads.AddMessage(ts.threadID, attachmentUserMessage(resp, now)); err != nil {
				return err
			}
		}
	}

	if ts.placeholderID != "" {
		ts.mu.Lock()
		execs := make([]wire.ToolExecution, 0, len(ts.executions))
		for _, e := range ts.executions {
			execs = append(execs, e)
		}
		ts.mu.Unlock()
		if err := r.threads.SetToolExecutionsOnMessage(ts.threadID, ts.placeholderID, execs); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) finishComplete(ts *turnState) TurnResult {
	r.snapshotExecutions(ts)
	r.recordCompletion(ts, "done")
	r.release(ts)
	return TurnResult{Status: StatusComplete, ThreadID: ts.threadID, RunID: ts.runID, Stats: r.stats(ts)}
}

func (r *Runner) finishAborted(ts *turnState) TurnResult {
	r.snapshotExecutions(ts)
	r.recordCompletion(ts, "aborted")
	r.release(ts)
	return TurnResult{Status: StatusComplete, ThreadID: ts.threadID, RunID: ts.runID, Stats: r.stats(ts)}
}

func (r *Runner) finishMaxIterations(ts *turnState) TurnResult {
	r.snapshotExecutions(ts)
	r.recordCompletion(ts, "max_iterations")
	r.release(ts)
	return TurnResult{
		Status:   StatusComplete,
		ThreadID: ts.threadID,
		RunID:    ts.runID,
		Stats:    r.stats(ts),
		Err:      newErr(KindMaxIterations, "resubmitting", ts.iteration, fmt.Errorf("reached max iterations (%d)", r.cfg.maxIterations())),
	}
}

func (r *Runner) finishError(ts *turnState, err error) TurnResult {
	r.snapshotExecutions(ts)
	r.recordCompletion(ts, "error")
	r.release(ts)
	return TurnResult{Status: StatusError, ThreadID: ts.threadID, RunID: ts.runID, Stats: r.stats(ts), Err: err}
}

func (r *Runner) snapshotExecutions(ts *turnState) {
	if ts.placeholderID == "" {
		return
	}
	ts.mu.Lock()
	execs := make([]wire.ToolExecution, 0, len(ts.executions))
	for _, e := range ts.executions {
		execs = append(execs, e)
	}
	ts.mu.Unlock()
	if len(execs) == 0 {
		return
	}
	_ = r.threads.SetToolExecutionsOnMessage(ts.threadID, ts.placeholderID, execs)
}

func (r *Runner) recordCompletion(ts *turnState, reason string) {
	if r.metrics == nil {
		return
	}
	r.metrics.LoopCompletedTotal.WithLabelValues(reason).Inc()
	r.metrics.LoopRunDuration.Observe(r.clock.Now().Sub(ts.started).Seconds())
}

func (r *Runner) stats(ts *turnState) wire.RunStats {
	return wire.RunStats{
		Iterations: ts.iteration,
		ToolCalls:  len(ts.executions),
		Duration:   r.clock.Now().Sub(ts.started),
	}
}

func (r *Runner) release(ts *turnState) {
	r.mu.Lock()
	if r.current == ts {
		r.current = nil
	}
	r.mu.Unlock()
}

// Thread management delegated straight to the Thread Store (§6.5).

func (r *Runner) CreateThread(title string) (string, error) { return r.threads.CreateThread(title) }
func (r *Runner) SwitchThread(id string) error               { return r.threads.SwitchThread(id) }
func (r *Runner) DeleteThread(id string) error               { return r.threads.DeleteThread(id) }
func (r *Runner) ListThreads() []wire.Thread                 { return r.threads.ListThreads() }
func (r *Runner) ActiveThread() (wire.Thread, bool)          { return r.threads.ActiveThread() }
