// Package config defines the runtime configuration surface and loads it
// from a YAML file with environment-variable overlay and hot reload,
// adapted from the teacher's internal/config (JSONC+env-template loader,
// atomic-swap Reloader) to a YAML file (gopkg.in/yaml.v3) matching
// SPEC_FULL.md's ambient stack.
package config

import "time"

// Config is the root configuration for ozchestrator.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	Subprocess SubprocessConfig `yaml:"subprocess"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	TaskQueue  TaskQueueConfig  `yaml:"task_queue"`
	Update     UpdateConfig     `yaml:"update"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	VCS        VCSConfig        `yaml:"vcs"`
	Log        LogConfig        `yaml:"log"`
}

// GatewayConfig holds the HTTP server settings.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SubprocessConfig configures the code-generation subprocess gateway (4.C).
type SubprocessConfig struct {
	BinaryPath     string   `yaml:"binary_path,omitempty"`
	Timeout        Duration `yaml:"timeout,omitempty"`
	PermissionMode string   `yaml:"permission_mode,omitempty"`
	AllowedTools   []string `yaml:"allowed_tools,omitempty"`
}

// WorkspaceConfig configures the session workspace manager (4.B).
type WorkspaceConfig struct {
	Subdir          string   `yaml:"subdir,omitempty"`
	CleanupAfter    Duration `yaml:"cleanup_after,omitempty"`
	CleanupInterval Duration `yaml:"cleanup_interval,omitempty"`
}

// BreakerConfig configures the circuit breaker (4.A).
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold,omitempty"`
	SuccessThreshold int      `yaml:"success_threshold,omitempty"`
	TimeoutDuration  Duration `yaml:"timeout_duration,omitempty"`
	FailureWindow    Duration `yaml:"failure_window,omitempty"`
}

// TaskQueueConfig configures the task queue & orchestrator (4.E).
type TaskQueueConfig struct {
	MaxQueueSize    int      `yaml:"max_queue_size,omitempty"`
	PollInterval    Duration `yaml:"poll_interval,omitempty"`
	CleanupInterval Duration `yaml:"cleanup_interval,omitempty"`
	RetentionWindow Duration `yaml:"retention_window,omitempty"`
}

// UpdateConfig configures the bounded update queue (4.G).
type UpdateConfig struct {
	MaxQueueSize   int `yaml:"max_queue_size,omitempty"`
	MaxConcurrent  int `yaml:"max_concurrent,omitempty"`
	MaxContentSize int `yaml:"max_content_size,omitempty"`
}

// PipelineConfig configures the validation pipeline (4.J).
type PipelineConfig struct {
	MaxIterations      int `yaml:"max_iterations,omitempty"`
	MaxRetriesPerCheck int `yaml:"max_retries_per_check,omitempty"`
}

// VCSConfig configures the version-control adapter (4.F).
type VCSConfig struct {
	RepoDir string `yaml:"repo_dir,omitempty"`
	Branch  string `yaml:"branch,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"` // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format,omitempty"` // "text" | "json"
}

// Duration wraps time.Duration for YAML (un)marshaling the way the teacher
// wraps it for JSON.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
