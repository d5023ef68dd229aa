package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// NewTasksCommand returns the tasks subcommand: a thin REST client for the
// inbound task API, grounded on the teacher's CLI idiom
// (urfave/cli/v3 subcommands, plain fmt.Printf tables) but talking to
// ozchestrator's chi-based gateway over HTTP instead of a local file store.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Submit and inspect orchestrator tasks",
		Flags: []cli.Flag{gatewayFlag},
		Commands: []*cli.Command{
			{
				Name:      "submit",
				Usage:     "Submit a task to an agent",
				ArgsUsage: "<agent_type> <content>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "priority", Value: "medium", Usage: "critical|high|medium|low"},
				},
				Action: runTaskSubmit,
			},
			{
				Name:      "status",
				Usage:     "Show a task's lifecycle status",
				ArgsUsage: "<task_id>",
				Action:    runTaskStatus,
			},
			{
				Name:      "result",
				Usage:     "Show a completed task's result",
				ArgsUsage: "<task_id>",
				Action:    runTaskResult,
			},
			{
				Name:      "agent-status",
				Usage:     "Show an agent type's execution stats",
				ArgsUsage: "<agent_type>",
				Action:    runAgentStatus,
			},
			{
				Name:   "system-status",
				Usage:  "Show queue depth and per-agent breaker state",
				Action: runSystemStatus,
			},
		},
	}
}

func runTaskSubmit(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 2 {
		return fmt.Errorf("usage: ozchestrator tasks submit <agent_type> <content>")
	}

	req := map[string]any{
		"agent_type": args[0],
		"content":    args[1],
		"priority":   cmd.String("priority"),
	}

	var resp struct {
		TaskID string `json:"task_id"`
	}
	url := gatewayBaseURL(cmd) + "/api/tasks"
	if err := apiCall(ctx, "POST", url, req, &resp); err != nil {
		return err
	}
	fmt.Println(resp.TaskID)
	return nil
}

func runTaskStatus(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: ozchestrator tasks status <task_id>")
	}

	var t struct {
		ID        string `json:"ID"`
		AgentType string `json:"AgentType"`
		Status    string `json:"Status"`
		Priority  string `json:"Priority"`
		CreatedAt string `json:"CreatedAt"`
		UpdatedAt string `json:"UpdatedAt"`
	}
	url := gatewayBaseURL(cmd) + "/api/tasks/" + id
	if err := apiCall(ctx, "GET", url, nil, &t); err != nil {
		return err
	}

	fmt.Printf("ID:         %s\n", t.ID)
	fmt.Printf("Agent type: %s\n", t.AgentType)
	fmt.Printf("Status:     %s\n", t.Status)
	fmt.Printf("Priority:   %s\n", t.Priority)
	fmt.Printf("Created:    %s\n", t.CreatedAt)
	fmt.Printf("Updated:    %s\n", t.UpdatedAt)
	return nil
}

func runTaskResult(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: ozchestrator tasks result <task_id>")
	}

	var res struct {
		TaskID      string `json:"TaskID"`
		Output      string `json:"Output"`
		CompletedAt string `json:"CompletedAt"`
	}
	url := gatewayBaseURL(cmd) + "/api/tasks/" + id + "/result"
	if err := apiCall(ctx, "GET", url, nil, &res); err != nil {
		return err
	}

	fmt.Printf("Completed: %s\n\n%s\n", res.CompletedAt, res.Output)
	return nil
}

func runAgentStatus(ctx context.Context, cmd *cli.Command) error {
	agentType := cmd.Args().First()
	if agentType == "" {
		return fmt.Errorf("usage: ozchestrator tasks agent-status <agent_type>")
	}

	var st struct {
		AgentType            string `json:"AgentType"`
		IsBusy               bool   `json:"IsBusy"`
		CurrentTaskID        string `json:"CurrentTaskID"`
		TasksCompleted       int    `json:"TasksCompleted"`
		TasksFailed          int    `json:"TasksFailed"`
		AverageExecutionTime int64  `json:"AverageExecutionTime"`
	}
	url := gatewayBaseURL(cmd) + "/api/agents/" + agentType + "/status"
	if err := apiCall(ctx, "GET", url, nil, &st); err != nil {
		return err
	}

	fmt.Printf("Agent:      %s\n", st.AgentType)
	fmt.Printf("Busy:       %v\n", st.IsBusy)
	if st.CurrentTaskID != "" {
		fmt.Printf("Current:    %s\n", st.CurrentTaskID)
	}
	fmt.Printf("Completed:  %d\n", st.TasksCompleted)
	fmt.Printf("Failed:     %d\n", st.TasksFailed)
	return nil
}

func runSystemStatus(ctx context.Context, cmd *cli.Command) error {
	var resp map[string]any
	url := gatewayBaseURL(cmd) + "/api/system/status"
	if err := apiCall(ctx, "GET", url, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Queue length: %v\n", resp["queue_length"])
	fmt.Printf("Agents:       %v\n", resp["agents"])
	if uq, ok := resp["update_queue"]; ok {
		fmt.Printf("Update queue: %v\n", uq)
	}
	return nil
}
