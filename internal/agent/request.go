package agent

import (
	"strings"

	"github.com/relaykit/agentcore/internal/contexttree"
	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/pkg/wire"
)

// buildRequest composes one RunRequest from the Runner's static
// configuration plus the thread's current message history, per spec
// §4.I.2. The system prompt is the host-configured base prompt with the
// Context Tree's depth-first rendering appended — the tree is re-rendered
// on every request so a host mutating it mid-turn is reflected on the very
// next iteration.
func buildRequest(cfg RunnerConfig, reg *tool.Registry, tree *contexttree.Tree, threadID string, messages []wire.Message, actions []wire.ActionSpec) wire.RunRequest {
	prompt := cfg.SystemPrompt
	if tree != nil {
		if rendered := tree.Render(); rendered != "" {
			if prompt != "" {
				prompt = strings.TrimRight(prompt, "\n") + "\n\n" + rendered
			} else {
				prompt = rendered
			}
		}
	}
	streaming := cfg.Streaming
	return wire.RunRequest{
		Messages:      messages,
		ThreadID:      threadID,
		SystemPrompt:  prompt,
		Actions:       actions,
		Tools:         reg.AsToolSpecs(),
		Streaming:     &streaming,
		KnowledgeBase: cfg.KnowledgeBase,
		Config:        cfg.RuntimeConfig,
		BotID:         cfg.BotID,
	}
}

func toolCallsFromInfo(infos []wire.ToolCallInfo) []wire.ToolCall {
	calls := make([]wire.ToolCall, len(infos))
	for i, info := range infos {
		calls[i] = wire.NewToolCall(info.ID, info.Name, string(info.Args))
	}
	return calls
}
