package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a YAML config file, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := expandEnvTemplates(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with each component's defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18420
	}

	if cfg.Subprocess.PermissionMode == "" {
		cfg.Subprocess.PermissionMode = "default"
	}
	if cfg.Subprocess.Timeout == 0 {
		cfg.Subprocess.Timeout = Duration(120 * time.Second)
	}

	if cfg.Workspace.Subdir == "" {
		cfg.Workspace.Subdir = "ozchestrator"
	}
	if cfg.Workspace.CleanupAfter == 0 {
		cfg.Workspace.CleanupAfter = Duration(24 * time.Hour)
	}
	if cfg.Workspace.CleanupInterval == 0 {
		cfg.Workspace.CleanupInterval = Duration(time.Hour)
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}
	if cfg.Breaker.TimeoutDuration == 0 {
		cfg.Breaker.TimeoutDuration = Duration(60 * time.Second)
	}
	if cfg.Breaker.FailureWindow == 0 {
		cfg.Breaker.FailureWindow = Duration(300 * time.Second)
	}

	if cfg.TaskQueue.MaxQueueSize == 0 {
		cfg.TaskQueue.MaxQueueSize = 1000
	}
	if cfg.TaskQueue.PollInterval == 0 {
		cfg.TaskQueue.PollInterval = Duration(200 * time.Millisecond)
	}
	if cfg.TaskQueue.CleanupInterval == 0 {
		cfg.TaskQueue.CleanupInterval = Duration(time.Hour)
	}
	if cfg.TaskQueue.RetentionWindow == 0 {
		cfg.TaskQueue.RetentionWindow = Duration(24 * time.Hour)
	}

	if cfg.Update.MaxQueueSize == 0 {
		cfg.Update.MaxQueueSize = 50
	}
	if cfg.Update.MaxConcurrent == 0 {
		cfg.Update.MaxConcurrent = 3
	}
	if cfg.Update.MaxContentSize == 0 {
		cfg.Update.MaxContentSize = 64 * 1024
	}

	if cfg.Pipeline.MaxIterations == 0 {
		cfg.Pipeline.MaxIterations = 3
	}
	if cfg.Pipeline.MaxRetriesPerCheck == 0 {
		cfg.Pipeline.MaxRetriesPerCheck = 3
	}

	if cfg.VCS.RepoDir == "" {
		cfg.VCS.RepoDir = "."
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
