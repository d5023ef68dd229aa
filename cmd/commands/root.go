package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/ozchestrator/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand(version, commit string) *cli.Command {
	return &cli.Command{
		Name:    "ozchestrator",
		Usage:   "Agent orchestration runtime: task queue, subprocess gateway, self-update pipeline",
		Version: version + " (" + commit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewWakeCommand(),
			NewGatewayCommand(),
			NewStatusCommand(),
			NewTasksCommand(),
			NewUpdatesCommand(),
		},
	}
}
