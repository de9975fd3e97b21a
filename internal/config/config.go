package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the runtime configuration from .agently/config.yaml.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Execution ExecutionConfig `yaml:"execution"`
	Planner   PlannerConfig   `yaml:"planner"`
	Agent     AgentConfig     `yaml:"agent"`
	History   HistoryConfig   `yaml:"history"`
	Memory    MemoryConfig    `yaml:"memory"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Inspector InspectorConfig `yaml:"inspector"`
}

// SnapshotConfig bounds accessibility snapshot builds.
type SnapshotConfig struct {
	MaxDepth                int  `yaml:"max_depth"`
	MaxElements             int  `yaml:"max_elements"`
	TimeoutSeconds          int  `yaml:"timeout_seconds"`
	SkipLargeContainers     bool `yaml:"skip_large_containers"`
	LargeContainerThreshold int  `yaml:"large_container_threshold"`
	ContainerChildCap       int  `yaml:"container_child_cap"`
	PruneDepth              int  `yaml:"prune_depth"`
}

// ExecutionConfig tunes intent execution.
type ExecutionConfig struct {
	ActivateApplications bool   `yaml:"activate_applications"`
	ActivationSettleMs   int    `yaml:"activation_settle_ms"`
	TypeDelayMs          int    `yaml:"type_delay_ms"`
	ScreenshotDir        string `yaml:"screenshot_dir"`
}

// PlannerConfig locates the external reasoning process.
type PlannerConfig struct {
	Command         string   `yaml:"command"`
	Args            []string `yaml:"args"`
	Workdir         string   `yaml:"workdir"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	UseFileExchange bool     `yaml:"use_file_exchange"`
	ExchangeDir     string   `yaml:"exchange_dir"`
}

// AgentConfig tunes the orchestration controller.
type AgentConfig struct {
	MaxConsecutiveFailures int  `yaml:"max_consecutive_failures"`
	SettleDelayMs          int  `yaml:"settle_delay_ms"`
	PersistSnapshots       bool `yaml:"persist_snapshots"`
}

// HistoryConfig locates the run history store.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MemoryConfig controls the episodic memory store.
type MemoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SandboxConfig restricts which applications may be automated.
type SandboxConfig struct {
	AllowedApps []string `yaml:"allowed_apps"`
	DeniedApps  []string `yaml:"denied_apps"`
}

// InspectorConfig defines inspector server settings.
type InspectorConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Snapshot: SnapshotConfig{
			MaxDepth:                12,
			MaxElements:             2000,
			TimeoutSeconds:          10,
			SkipLargeContainers:     true,
			LargeContainerThreshold: 50,
			ContainerChildCap:       25,
			PruneDepth:              3,
		},
		Execution: ExecutionConfig{
			ActivateApplications: true,
			ActivationSettleMs:   300,
			TypeDelayMs:          20,
		},
		Planner: PlannerConfig{
			Command:        "python3",
			Args:           []string{"-m", "planner.main"},
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			MaxConsecutiveFailures: 3,
			SettleDelayMs:          500,
			PersistSnapshots:       true,
		},
		History: HistoryConfig{
			Path: ".agently/history.db",
		},
		Memory: MemoryConfig{
			Enabled: false,
			Path:    ".agently/memory.db",
		},
		Inspector: InspectorConfig{
			Enabled: false,
			Port:    4200,
		},
	}
}

// LoadConfig reads the YAML config at path, layering it over defaults.
// A missing file is not an error; the defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SnapshotTimeout returns the snapshot budget as a duration.
func (c Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Snapshot.TimeoutSeconds) * time.Second
}

// PlannerTimeout returns the planner budget as a duration.
func (c Config) PlannerTimeout() time.Duration {
	return time.Duration(c.Planner.TimeoutSeconds) * time.Second
}

// SettleDelay returns the post-action settle pause.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Agent.SettleDelayMs) * time.Millisecond
}

// ActivationSettle returns the post-activation pause.
func (c Config) ActivationSettle() time.Duration {
	return time.Duration(c.Execution.ActivationSettleMs) * time.Millisecond
}

// TypeDelay returns the inter-character typing pause.
func (c Config) TypeDelay() time.Duration {
	return time.Duration(c.Execution.TypeDelayMs) * time.Millisecond
}
