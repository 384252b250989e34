// Package config loads prodagent configuration: defaults, an optional YAML
// file, then environment overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the engine looks for its config file relative to the
// working directory.
const DefaultPath = ".prodagent/config.yaml"

// Config holds all prodagent configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generation configures the LLM backend.
	Generation GenerationConfig `yaml:"generation"`

	// Controller configures run execution.
	Controller ControllerConfig `yaml:"controller"`

	// Workspace configures run persistence.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Logging configures category log files.
	Logging LoggingConfig `yaml:"logging"`
}

// GenerationConfig configures the structured-generation client.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
	// MaxRepairAttempts bounds JSON repair retries on malformed output.
	MaxRepairAttempts int `yaml:"max_repair_attempts"`
}

// ControllerConfig configures graph execution.
type ControllerConfig struct {
	// MaxParallel caps concurrently running sibling nodes.
	MaxParallel int `yaml:"max_parallel"`
	// StepTimeout bounds a single node's execution.
	StepTimeout string `yaml:"step_timeout"`
	// RunTimeout bounds a whole run.
	RunTimeout string `yaml:"run_timeout"`
}

// WorkspaceConfig configures run persistence.
type WorkspaceConfig struct {
	// Root is the directory holding per-run workspaces.
	Root string `yaml:"root"`
	// EventDB enables the SQLite event log inside each run workspace.
	EventDB bool `yaml:"event_db"`
	// KeepCompleted preserves workspaces after successful runs.
	KeepCompleted bool `yaml:"keep_completed"`
}

// LoggingConfig configures category log files.
type LoggingConfig struct {
	// DebugMode enables category log files; when false nothing is written.
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"` // debug, info, warn, error
	Dir       string `yaml:"dir"`
	// Categories toggles individual log categories; unlisted ones are enabled.
	Categories map[string]bool `yaml:"categories,omitempty"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "prodagent",
		Version: "2.0.0",

		Generation: GenerationConfig{
			Provider:          "gemini",
			Model:             "gemini-2.5-flash",
			Temperature:       0.4,
			MaxTokens:         8192,
			Timeout:           "120s",
			MaxRepairAttempts: 2,
		},

		Controller: ControllerConfig{
			MaxParallel: 4,
			StepTimeout: "180s",
			RunTimeout:  "15m",
		},

		Workspace: WorkspaceConfig{
			Root:          ".prodagent/runs",
			EventDB:       true,
			KeepCompleted: true,
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".prodagent/logs",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variables over file values.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Generation.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}

	if model := os.Getenv("PRODAGENT_MODEL"); model != "" {
		c.Generation.Model = model
	}
	if root := os.Getenv("PRODAGENT_WORKSPACE"); root != "" {
		c.Workspace.Root = root
	}
	if level := os.Getenv("PRODAGENT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if raw := os.Getenv("PRODAGENT_MAX_PARALLEL"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.Controller.MaxParallel = n
		}
	}
}

// Validate checks for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model must not be empty")
	}
	if c.Controller.MaxParallel < 1 {
		return fmt.Errorf("controller.max_parallel must be at least 1, got %d", c.Controller.MaxParallel)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root must not be empty")
	}
	for _, tc := range []struct {
		name  string
		value string
	}{
		{"generation.timeout", c.Generation.Timeout},
		{"controller.step_timeout", c.Controller.StepTimeout},
		{"controller.run_timeout", c.Controller.RunTimeout},
	} {
		if tc.value == "" {
			continue
		}
		if _, err := time.ParseDuration(tc.value); err != nil {
			return fmt.Errorf("%s: %w", tc.name, err)
		}
	}
	return nil
}

// GenerationTimeout returns the parsed generation timeout, defaulting to two
// minutes on missing or malformed values.
func (c *Config) GenerationTimeout() time.Duration {
	return parseDurationOr(c.Generation.Timeout, 2*time.Minute)
}

// StepTimeout returns the parsed per-node timeout.
func (c *Config) StepTimeout() time.Duration {
	return parseDurationOr(c.Controller.StepTimeout, 3*time.Minute)
}

// RunTimeout returns the parsed whole-run timeout.
func (c *Config) RunTimeout() time.Duration {
	return parseDurationOr(c.Controller.RunTimeout, 15*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
