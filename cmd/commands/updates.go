package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewUpdatesCommand returns the updates subcommand: a thin REST client for
// the inbound self-update API — submit a request, answer a
// pending approval, and inspect/clear the bounded update queue (4.G).
func NewUpdatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "updates",
		Usage: "Drive the self-update pipeline",
		Flags: []cli.Flag{gatewayFlag},
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Submit a self-update request",
				ArgsUsage: "<codename> <description>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Value: "cli"},
					&cli.StringFlag{Name: "channel", Value: "cli"},
				},
				Action: runUpdateSubmit,
			},
			{
				Name:      "approve",
				Usage:     "Approve a pending plan",
				ArgsUsage: "<user_id> <channel_id>",
				Action:    runApprovalRespond("approve"),
			},
			{
				Name:      "reject",
				Usage:     "Reject a pending plan",
				ArgsUsage: "<user_id> <channel_id> [reason]",
				Action:    runApprovalRespond("reject"),
			},
			{
				Name:      "modify",
				Usage:     "Request modification of a pending plan",
				ArgsUsage: "<user_id> <channel_id> [details]",
				Action:    runApprovalRespond("modify"),
			},
			{
				Name:   "queue-status",
				Usage:  "Show the self-update queue snapshot",
				Action: runUpdateQueueStatus,
			},
			{
				Name:   "clear-queue",
				Usage:  "Drain all pending (not processing) self-update requests",
				Action: runUpdateClearQueue,
			},
		},
	}
}

func runUpdateSubmit(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("usage: ozchestrator updates submit <codename> <description>")
	}

	req := map[string]any{
		"codename":    args[0],
		"description": args[1],
		"user_id":     cmd.String("user"),
		"channel_id":  cmd.String("channel"),
	}

	var resp struct {
		RequestID string `json:"request_id"`
	}
	url := gatewayBaseURL(cmd) + "/api/updates"
	if err := apiCall(ctx, "POST", url, req, &resp); err != nil {
		return err
	}
	fmt.Println(resp.RequestID)
	return nil
}

func runApprovalRespond(verb string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		args := cmd.Args().Slice()
		if len(args) < 2 {
			return fmt.Errorf("usage: ozchestrator updates %s <user_id> <channel_id> [text]", verb)
		}

		text := verb
		if len(args) > 2 {
			text = verb + " " + args[2]
		}

		req := map[string]any{
			"user_id":    args[0],
			"channel_id": args[1],
			"text":       text,
		}

		var resp struct {
			Matched bool `json:"matched"`
		}
		url := gatewayBaseURL(cmd) + "/api/updates/approval"
		if err := apiCall(ctx, "POST", url, req, &resp); err != nil {
			return err
		}
		if !resp.Matched {
			fmt.Println("no pending approval matched this user/channel")
			return nil
		}
		fmt.Println("ok")
		return nil
	}
}

func runUpdateQueueStatus(ctx context.Context, cmd *cli.Command) error {
	var resp map[string]any
	url := gatewayBaseURL(cmd) + "/api/updates/queue"
	if err := apiCall(ctx, "GET", url, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("%+v\n", resp)
	return nil
}

func runUpdateClearQueue(ctx context.Context, cmd *cli.Command) error {
	var resp map[string]string
	url := gatewayBaseURL(cmd) + "/api/updates/queue/clear"
	if err := apiCall(ctx, "POST", url, nil, &resp); err != nil {
		return err
	}
	fmt.Println(resp["status"])
	return nil
}
