package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/ozchestrator/internal/config"
)

// NewWakeCommand returns the onboarding subcommand.
func NewWakeCommand() *cli.Command {
	return &cli.Command{
		Name:   "wake",
		Usage:  "Initialize the ozchestrator home directory (~/.ozchestrator)",
		Action: runWake,
	}
}

func runWake(_ context.Context, _ *cli.Command) error {
	root := config.DataPath()
	created := false

	dirs := []string{
		root,
		filepath.Join(root, "logs"),
		filepath.Join(root, "ozchestrator", "claude-workspaces"),
	}
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", d, err)
			}
			fmt.Printf("  Created %s\n", d)
			created = true
		}
	}

	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("  Created %s\n", configPath)
		created = true
	}

	dotenvPath := config.DotenvPath()
	if _, err := os.Stat(dotenvPath); err != nil {
		if err := os.WriteFile(dotenvPath, []byte(defaultDotenv), 0o600); err != nil {
			return fmt.Errorf("write .env: %w", err)
		}
		fmt.Printf("  Created %s\n", dotenvPath)
		created = true
	}

	if !created {
		fmt.Printf("Already awake — %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(wakeMessage(root))
	return nil
}

const defaultConfig = `# ozchestrator configuration
gateway:
  host: 127.0.0.1
  port: 18420

subprocess:
  permission_mode: default
  timeout: 120s
  # binary_path: /usr/local/bin/claude
  # allowed_tools: ["Read", "Write", "Bash"]

workspace:
  subdir: ozchestrator
  cleanup_after: 24h
  cleanup_interval: 1h

breaker:
  failure_threshold: 5
  success_threshold: 2
  timeout_duration: 60s
  failure_window: 300s

task_queue:
  max_queue_size: 1000
  poll_interval: 200ms
  cleanup_interval: 1h
  retention_window: 24h

update:
  max_queue_size: 50
  max_concurrent: 3
  max_content_size: 65536

pipeline:
  max_iterations: 3
  max_retries_per_check: 3

vcs:
  repo_dir: .

log:
  level: info
  format: text
`

const defaultDotenv = `# ozchestrator environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# ANTHROPIC_API_KEY=sk-ant-...
`

func wakeMessage(root string) string {
	return fmt.Sprintf(`
  Home set up at %s
  Config and logs live in there; session workspaces go under
  <working dir>/<workspace.subdir>/claude-workspaces of the gateway process.

  Next steps:
    1. Drop your API key in %s/.env
    2. Tweak %s/config.yaml if you feel like it
    3. Run: ozchestrator gateway

`, root, root, root)
}
