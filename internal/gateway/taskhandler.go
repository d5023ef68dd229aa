package gateway

import (
	"context"
	"fmt"

	"github.com/dohr-michael/ozchestrator/internal/tasks"
)

// TaskHandler exposes the task orchestrator (4.E) and agent registry (4.D)
// behind the narrow surface the HTTP gateway needs: a thin adapter in
// front of the pool, targeting the AgentType/priority task model.
type TaskHandler struct {
	orch *tasks.Orchestrator
}

// NewTaskHandler creates a TaskHandler backed by orch.
func NewTaskHandler(orch *tasks.Orchestrator) *TaskHandler {
	return &TaskHandler{orch: orch}
}

// SubmitTaskRequest is the submit_task operation's request body.
type SubmitTaskRequest struct {
	AgentType tasks.AgentType   `json:"agent_type"`
	Content   string            `json:"content"`
	Priority  tasks.Priority    `json:"priority,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// Submit creates a new task via the orchestrator and returns its ID.
func (h *TaskHandler) Submit(ctx context.Context, req SubmitTaskRequest) (string, error) {
	if req.Content == "" {
		return "", fmt.Errorf("content is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = tasks.PriorityMedium
	}
	return h.orch.Submit(ctx, req.AgentType, req.Content, priority, req.Context)
}

// Status returns a race-free snapshot of a task's current lifecycle state.
func (h *TaskHandler) Status(taskID string) (tasks.View, bool) {
	return h.orch.GetStatus(taskID)
}

// Result returns a completed task's result.
func (h *TaskHandler) Result(taskID string) (tasks.Result, bool) {
	return h.orch.GetResult(taskID)
}

// AgentStatus returns the per-agent-type execution stats.
func (h *TaskHandler) AgentStatus(t tasks.AgentType) (tasks.AgentStatus, bool) {
	return h.orch.AgentStatus(t)
}

// QueueLength reports the number of tasks awaiting a worker.
func (h *TaskHandler) QueueLength() int {
	return h.orch.QueueLength()
}
