package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaykit/agentcore/internal/agent"
	"github.com/relaykit/agentcore/internal/builtin"
	"github.com/relaykit/agentcore/internal/config"
	"github.com/relaykit/agentcore/internal/contexttree"
	"github.com/relaykit/agentcore/internal/mcp"
	"github.com/relaykit/agentcore/internal/observability"
	"github.com/relaykit/agentcore/internal/permission"
	"github.com/relaykit/agentcore/internal/thread"
	"github.com/relaykit/agentcore/internal/tool"
	"github.com/relaykit/agentcore/internal/toolschema"
)

// host bundles every collaborator buildRootCmd's subcommands need, built
// once per invocation from the loaded Config. Grounded on the teacher's
// pattern of small per-command "load X manager from config" helpers
// (cmd/nexus/config.go's loadMCPManager), generalized into a single
// constructor since this runtime's Runner has more collaborators than
// any one teacher helper wires.
type host struct {
	runner *agent.Runner
	mcpMgr *mcp.Manager
}

func newHost(ctx context.Context, configPath string) (*host, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logOpts := &slog.HandlerOptions{Level: slog.Level(config.LevelFromString(cfg.Logging.Level))}
	var logHandler slog.Handler = slog.NewJSONHandler(os.Stderr, logOpts)
	if cfg.Logging.Format == "text" {
		logHandler = slog.NewTextHandler(os.Stderr, logOpts)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	permStore, err := buildPermissionStore(cfg.Permission)
	if err != nil {
		return nil, nil, err
	}
	checker := permission.NewChecker(permStore, nil)

	threadStore, err := thread.New(thread.NoopPersister{})
	if err != nil {
		return nil, nil, fmt.Errorf("init thread store: %w", err)
	}

	registry := tool.NewRegistry()
	builtin.RegisterAll(registry, stubInspector{})

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName: "agentcore-demo",
		Version:     version,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init tracer: %w", err)
	}

	mcpMgr := mcp.NewManager(&cfg.MCP, logger)
	if cfg.MCP.Enabled {
		if err := mcpMgr.Start(ctx); err != nil {
			logger.Warn("mcp startup had failures", "error", err)
		}
		registered := mcp.RegisterTools(registry, mcpMgr, toolschema.New())
		logger.Info("registered MCP tools", "count", len(registered))
	}

	transport := agent.NewHTTPTransport(cfg.Runtime.URL, cfg.Runtime.APIKey)
	transport.UseXAPIKey = cfg.Runtime.UseXAPIKey
	transport.Metrics = metrics

	runner := agent.NewRunner(
		transport,
		registry,
		checker,
		toolschema.New(),
		threadStore,
		contexttree.New(),
		metrics,
		tracer,
		nil,
		agent.RunnerConfig{
			SystemPrompt:  cfg.Loop.SystemPrompt,
			MaxIterations: cfg.Loop.MaxIterations,
			BotID:         cfg.Loop.BotID,
			Streaming:     cfg.Loop.Streaming,
		},
	)

	cleanup := func() {
		mcpMgr.Stop()
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}

	return &host{runner: runner, mcpMgr: mcpMgr}, cleanup, nil
}

func buildPermissionStore(cfg config.PermissionConfig) (permission.Store, error) {
	switch cfg.Backend {
	case "file":
		return permission.NewFileStore(cfg.Path), nil
	case "noop":
		return permission.NoopStore{}, nil
	case "memory", "":
		return permission.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown permission backend %q", cfg.Backend)
	}
}
