package main

import (
	"context"
	"fmt"
	"time"

	"github.com/relaykit/agentcore/internal/builtin"
	"github.com/relaykit/agentcore/pkg/wire"
)

// stubInspector backs the three builtin client-located tools with
// placeholder data, since this CLI host has no real browser/DOM to
// inspect. It exists so RegisterTools has something to call end-to-end
// rather than leaving the builtin tools unreachable from this binary.
type stubInspector struct{}

func (stubInspector) Screenshot(ctx context.Context) (wire.Attachment, error) {
	return wire.Attachment{
		Type:     "image",
		Data:     "",
		Filename: "stub-screenshot.png",
		MimeType: "image/png",
	}, nil
}

func (stubInspector) ConsoleLogs(ctx context.Context, limit int) ([]builtin.ConsoleLogEntry, error) {
	return []builtin.ConsoleLogEntry{
		{Level: "info", Message: "agentcore-demo has no attached browser; this is placeholder output", Timestamp: time.Now()},
	}, nil
}

func (stubInspector) NetworkRequests(ctx context.Context, limit int) ([]builtin.NetworkRequestEntry, error) {
	return nil, fmt.Errorf("no network requests recorded: agentcore-demo runs headless")
}
