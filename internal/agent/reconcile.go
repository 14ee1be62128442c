package agent

import (
	"encoding/json"

	"github.com/relaykit/agentcore/pkg/ids"
	"github.com/relaykit/agentcore/pkg/wire"
)

// reconcile applies one Stream Event to the Thread Store and to ts's
// transient turn state, per the reducer table of spec §4.I.4. It is the
// only place that translates wire events into store mutations; pipeline.go
// and loop.go never touch the store directly while a turn is receiving.
func (r *Runner) reconcile(ts *turnState, ev wire.StreamEvent) error {
	switch e := ev.(type) {
	case wire.MessageStartEvent:
		return r.ensurePlaceholder(ts, e.ID)

	case wire.MessageDeltaEvent:
		if err := r.ensurePlaceholder(ts, ""); err != nil {
			return err
		}
		return r.threads.UpdateMessage(ts.threadID, ts.placeholderID, e.Content)

	case wire.MessageEndEvent:
		return nil

	case wire.ThinkingStartEvent:
		return r.ensurePlaceholder(ts, "")

	case wire.ThinkingDeltaEvent:
		if err := r.ensurePlaceholder(ts, ""); err != nil {
			return err
		}
		return r.threads.UpdateThinking(ts.threadID, ts.placeholderID, e.Content)

	case wire.ThinkingEndEvent:
		return nil

	case wire.SourceAddEvent:
		if err := r.ensurePlaceholder(ts, ""); err != nil {
			return err
		}
		return r.threads.AddSource(ts.threadID, ts.placeholderID, e.Source)

	case wire.ActionStartEvent:
		ts.mu.Lock()
		if _, exists := ts.executions[e.ID]; !exists {
			ts.executions[e.ID] = wire.ToolExecution{
				ID:        e.ID,
				Name:      e.Name,
				Status:    wire.ExecutionPending,
				Timestamp: r.clock.Now(),
			}
		}
		ts.mu.Unlock()
		return nil

	case wire.ActionArgsEvent:
		ts.mu.Lock()
		exec, exists := ts.executions[e.ID]
		if !exists {
			exec = wire.ToolExecution{ID: e.ID, Timestamp: r.clock.Now()}
		}
		exec.Args = json.RawMessage(e.Args)
		ts.executions[e.ID] = exec
		ts.mu.Unlock()
		return nil

	case wire.ActionEndEvent:
		ts.mu.Lock()
		exec, exists := ts.executions[e.ID]
		if !exists {
			exec = wire.ToolExecution{ID: e.ID, Timestamp: r.clock.Now()}
		}
		if e.Name != "" {
			exec.Name = e.Name
		}
		if e.Error != "" {
			exec.Status = wire.ExecutionError
			exec.Error = e.Error
		} else {
			exec.Status = wire.ExecutionCompleted
			exec.Result = e.Result
		}
		ts.executions[e.ID] = exec
		ts.mu.Unlock()
		return nil

	case wire.ToolCallsEvent:
		if err := r.ensurePlaceholder(ts, ""); err != nil {
			return err
		}
		calls := toolCallsFromInfo(e.ToolCalls)
		if err := r.threads.SetToolCalls(ts.threadID, ts.placeholderID, calls); err != nil {
			return err
		}
		ts.mu.Lock()
		ts.parkedCalls = calls
		for _, c := range calls {
			if _, exists := ts.executions[c.ID]; !exists {
				ts.executions[c.ID] = wire.ToolExecution{
					ID:        c.ID,
					Name:      c.Function.Name,
					Args:      json.RawMessage(c.Function.Arguments),
					Status:    wire.ExecutionPending,
					Timestamp: r.clock.Now(),
				}
			}
		}
		ts.mu.Unlock()
		return nil

	case wire.ToolStatusEvent:
		ts.mu.Lock()
		if exec, exists := ts.executions[e.ID]; exists {
			exec.Status = wire.ExecutionStatus(e.Status)
			ts.executions[e.ID] = exec
		}
		ts.mu.Unlock()
		return nil

	case wire.ToolResultEvent:
		ts.mu.Lock()
		exec, exists := ts.executions[e.ID]
		if !exists {
			exec = wire.ToolExecution{ID: e.ID, Name: e.Name, Timestamp: r.clock.Now()}
		}
		exec.Status = wire.ExecutionCompleted
		exec.Result = e.Result
		ts.executions[e.ID] = exec
		ts.mu.Unlock()
		return nil

	case wire.LoopIterationEvent:
		ts.serverIteration = e.Iteration
		if r.metrics != nil {
			r.metrics.LoopIterationsTotal.Inc()
		}
		return nil

	case wire.LoopCompleteEvent:
		ts.aborted = e.Aborted
		ts.serverMaxIterationsReached = e.MaxIterationsReached
		return nil

	case wire.ErrorEvent:
		ts.streamErr = newErr(KindProtocol, "receiving", ts.iteration, streamError(e))
		return nil

	case wire.DoneEvent:
		if len(e.Messages) > 0 {
			if err := r.threads.ReplaceStreamingWithMessages(ts.threadID, ts.placeholderID, e.Messages); err != nil {
				return err
			}
		}
		ts.requiresAction = e.RequiresAction
		ts.receivedDone = true
		return nil

	default:
		return nil
	}
}

// ensurePlaceholder lazily creates the streaming assistant placeholder
// message the first time content, thinking, sources, or tool calls need
// somewhere to land, in case the backend never sent an explicit
// message:start event. id, when non-empty, is the server-assigned id from
// a message:start event.
func (r *Runner) ensurePlaceholder(ts *turnState, id string) error {
	if ts.placeholderID != "" {
		return nil
	}
	if id == "" {
		id = ids.NewMessageID()
	}
	ts.placeholderID = id
	return r.threads.AddMessage(ts.threadID, wire.Message{ID: id, Role: wire.RoleAssistant, Content: nil})
}

type streamError wire.ErrorEvent

func (e streamError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
