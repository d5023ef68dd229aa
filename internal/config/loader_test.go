package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
gateway:
  host: 0.0.0.0
  port: 9999
subprocess:
  permission_mode: ${{ .Env.OZ_PERMISSION_MODE }}
`)
	t.Setenv("OZ_PERMISSION_MODE", "plan")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Subprocess.PermissionMode != "plan" {
		t.Errorf("expected permission_mode plan from env expansion, got %s", cfg.Subprocess.PermissionMode)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, ``)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 18420 {
		t.Errorf("expected default port 18420, got %d", cfg.Gateway.Port)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("expected default failure_threshold 5, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.TaskQueue.MaxQueueSize != 1000 {
		t.Errorf("expected default task queue size 1000, got %d", cfg.TaskQueue.MaxQueueSize)
	}
	if cfg.Update.MaxConcurrent != 3 {
		t.Errorf("expected default update max_concurrent 3, got %d", cfg.Update.MaxConcurrent)
	}
	if cfg.Pipeline.MaxIterations != 3 {
		t.Errorf("expected default pipeline max_iterations 3, got %d", cfg.Pipeline.MaxIterations)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`key: ${{ .Env.TEST_KEY }}`)
	expected := `key: my-secret`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
