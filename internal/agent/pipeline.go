package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relaykit/agentcore/internal/permission"
	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/internal/toolschema"
	"github.com/relaykit/agentcore/pkg/wire"
)

// classifiedCall is pass 1's output for one parked tool call (spec §4.J):
// the resolved Definition (if any), the approval Decision governing
// whether pass 2 may run it unattended, and any schema/lookup failure that
// overrides approval entirely.
type classifiedCall struct {
	Call         wire.ToolCall
	Def          tool.Definition
	Found        bool
	Decision     permission.Decision
	SchemaErr    error
	DeniedReason string // host-supplied reject() reason; empty for an auto-deny
}

const deniedBySavedPreference = "Automatically denied based on saved preference"

// classify runs pass 1: resolve each call's Definition, validate its
// arguments against the tool's input schema, and resolve the approval
// Decision. A call whose tool is unknown or whose arguments fail schema
// validation is always treated as denied — it never reaches a handler,
// regardless of the tool's approval policy.
func classify(reg *tool.Registry, checker *permission.Checker, schema *toolschema.Bridge, calls []wire.ToolCall) ([]classifiedCall, error) {
	out := make([]classifiedCall, 0, len(calls))
	for _, call := range calls {
		def, found := reg.Get(call.Function.Name)
		cc := classifiedCall{Call: call, Def: def, Found: found}
		if !found {
			cc.Decision = permission.DecisionDenied
			cc.SchemaErr = fmt.Errorf("tool %q is not registered", call.Function.Name)
			out = append(out, cc)
			continue
		}
		args := json.RawMessage(call.Function.Arguments)
		if err := schema.Validate(def.InputSchema, args); err != nil {
			cc.Decision = permission.DecisionDenied
			cc.SchemaErr = err
			out = append(out, cc)
			continue
		}
		decision, err := checker.Resolve(call.Function.Name, def.ResolvedNeedsApproval(args))
		if err != nil {
			return nil, newErr(KindConfiguration, "classify", 0, err)
		}
		cc.Decision = decision
		out = append(out, cc)
	}
	return out, nil
}

// execute runs pass 2 for one call already past approval (Approved,
// Denied, or schema-invalid): it never invokes a handler for a denied or
// unregistered call, synthesizing the canonical denial/error response
// instead. A call denied by explicit reject(reason) carries that reason
// through as the tool message's error; a call auto-denied by a saved
// deny_always preference gets the canonical text instead (§4.J pass 1 vs
// pass 2 step 1).
func execute(ctx context.Context, cc classifiedCall, tc tool.Context) wire.ToolResponse {
	if cc.SchemaErr != nil {
		return wire.ToolResponse{Success: false, Error: cc.SchemaErr.Error()}
	}
	if cc.Decision == permission.DecisionDenied {
		if cc.DeniedReason != "" {
			return wire.ToolResponse{Success: false, Error: cc.DeniedReason}
		}
		return wire.ToolResponse{Success: false, Error: deniedBySavedPreference}
	}
	if cc.Def.Handler == nil {
		return wire.ToolResponse{Success: false, Error: fmt.Sprintf("tool %q has no handler", cc.Call.Function.Name)}
	}
	resp, err := cc.Def.Handler(ctx, json.RawMessage(cc.Call.Function.Arguments), tc)
	if err != nil {
		return wire.ToolResponse{Success: false, Error: err.Error()}
	}
	return resp
}

// resultContent renders a ToolResponse into the resulting tool message's
// content, honoring the tool's AIResponseMode.
func resultContent(mode tool.AIResponseMode, resp wire.ToolResponse) string {
	switch mode {
	case tool.AIResponseNone:
		return "{}"
	case tool.AIResponseBrief:
		brief := wire.ToolResponse{Success: resp.Success, Error: resp.Error}
		b, _ := json.Marshal(brief)
		return string(b)
	default:
		b, _ := json.Marshal(resp)
		return string(b)
	}
}

// toolResultMessage builds the `tool` role message materializing one
// call's outcome, per §4.I.3's resubmit composition.
func toolResultMessage(call wire.ToolCall, mode tool.AIResponseMode, resp wire.ToolResponse, now time.Time) wire.Message {
	return wire.Message{
		Role:       wire.RoleTool,
		Content:    wire.StrPtr(resultContent(mode, resp)),
		ToolCallID: call.ID,
		CreatedAt:  now,
	}
}

// attachmentUserMessage stages the "attachment-as-user-message" variant a
// tool response can request (design note, SPEC_FULL.md §9): the image (or
// other attachment) is appended as a fresh user turn rather than folded
// into the tool result, so the model sees it the way it would see a
// user-supplied screenshot.
func attachmentUserMessage(resp wire.ToolResponse, now time.Time) wire.Message {
	content := resp.Caption
	return wire.Message{
		Role:      wire.RoleUser,
		Content:   wire.StrPtr(content),
		Metadata:  wire.Metadata{Attachments: []wire.Attachment{*resp.Attachment}},
		CreatedAt: now,
	}
}

// executionFromClassified derives the ToolExecution record snapshotted
// into Message.Metadata.ToolExecutions once a call resolves.
func executionFromClassified(cc classifiedCall, status wire.ExecutionStatus, resp wire.ToolResponse, start, end time.Time) wire.ToolExecution {
	approval := wire.ApprovalNone
	switch cc.Decision {
	case permission.DecisionRequired:
		approval = wire.ApprovalRequired
	case permission.DecisionApproved:
		approval = wire.ApprovalApproved
	case permission.DecisionDenied:
		approval = wire.ApprovalRejected
	}
	exec := wire.ToolExecution{
		ID:             cc.Call.ID,
		Name:           cc.Call.Function.Name,
		Args:           json.RawMessage(cc.Call.Function.Arguments),
		Status:         status,
		ApprovalStatus: approval,
		Timestamp:      start,
		Duration:       end.Sub(start),
	}
	if resp.Error != "" {
		exec.Error = resp.Error
	}
	if resp.Success && resp.Data != nil {
		if b, err := json.Marshal(resp.Data); err == nil {
			exec.Result = b
		}
	}
	if cc.Found {
		exec.ApprovalMessage = cc.Def.ResolvedApprovalMessage(json.RawMessage(cc.Call.Function.Arguments))
	}
	return exec
}
