// Package config loads the YAML configuration consumed by cmd/agentcore-demo:
// the runtime endpoint to talk to, loop defaults, the permission store
// backend, and the MCP servers to connect on startup. Grounded on the
// teacher's internal/config.Load (env-var expansion, KnownFields strict
// decoding, post-decode defaults and validation) but scoped to the handful
// of settings this runtime's CLI host actually needs.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relaykit/agentcore/internal/mcp"
)

// RuntimeConfig points the CLI host at the agent runtime HTTP endpoint.
type RuntimeConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	UseXAPIKey bool   `yaml:"use_x_api_key"`
}

// LoopConfig mirrors agent.RunnerConfig's YAML-settable fields.
type LoopConfig struct {
	SystemPrompt  string `yaml:"system_prompt"`
	MaxIterations int    `yaml:"max_iterations"`
	BotID         string `yaml:"bot_id"`
	Streaming     bool   `yaml:"streaming"`
}

// PermissionConfig selects the Permission Store backend (spec §4.E).
type PermissionConfig struct {
	// Backend is one of "memory", "file", or "noop". Defaults to "memory".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls the slog handler cmd/agentcore-demo installs.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Config is the root of an agentcore-demo YAML config file.
type Config struct {
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Loop       LoopConfig       `yaml:"loop"`
	Permission PermissionConfig `yaml:"permission"`
	Logging    LoggingConfig    `yaml:"logging"`
	MCP        mcp.Config       `yaml:"mcp"`
}

// Load reads path, expands environment variables, strictly decodes it
// into a Config, applies env-var overrides and defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: %s must contain a single YAML document", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_RUNTIME_URL")); value != "" {
		cfg.Runtime.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_API_KEY")); value != "" {
		cfg.Runtime.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_MAX_ITERATIONS")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Loop.MaxIterations = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Permission.Backend == "" {
		cfg.Permission.Backend = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Loop.MaxIterations == 0 {
		cfg.Loop.MaxIterations = 20
	}
}

func validate(cfg *Config) error {
	var issues []string
	if strings.TrimSpace(cfg.Runtime.URL) == "" {
		issues = append(issues, "runtime.url is required")
	}
	switch cfg.Permission.Backend {
	case "memory", "noop":
	case "file":
		if strings.TrimSpace(cfg.Permission.Path) == "" {
			issues = append(issues, "permission.path is required when permission.backend is \"file\"")
		}
	default:
		issues = append(issues, fmt.Sprintf("permission.backend %q is not one of memory, file, noop", cfg.Permission.Backend))
	}
	for _, server := range cfg.MCP.Servers {
		if err := server.Validate(); err != nil {
			issues = append(issues, err.Error())
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidationError reports every config problem found, not just the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config: invalid configuration:\n- " + strings.Join(e.Issues, "\n- ")
}

// LevelFromString maps a config-file log level name to a slog.Level,
// defaulting to Info on an unrecognized value.
func LevelFromString(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return -4
	case "warn", "warning":
		return 4
	case "error":
		return 8
	default:
		return 0 // slog.LevelInfo
	}
}
