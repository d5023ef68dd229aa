// Package tasks implements the task orchestrator (component 4.E): a
// bounded priority queue, a single worker loop, per-task lifecycle state,
// and retention-based GC (scheduleLoop/wakeScheduler style polling,
// serial execution on the worker goroutine, sync.Mutex-guarded maps) built around a
// plain Agent.Execute contract.
package tasks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AgentType is the closed, comparable variant tag used as the agent
// registry key.
type AgentType string

const (
	SoftwareDeveloper AgentType = "software_developer"
	ProjectManager    AgentType = "project_manager"
	Reviewer          AgentType = "reviewer"
	Researcher        AgentType = "researcher"
)

// Priority is the task priority, highest first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 3,
	PriorityHigh:     2,
	PriorityMedium:   1,
	PriorityLow:      0,
}

// Status is the task lifecycle state.
type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// IsTerminal reports whether s is Completed or Failed.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed
}

// Task is the unit of orchestrated work. ID/AgentType/Content/Priority/
// Context/CreatedAt are set once at construction and never change; Status
// and UpdatedAt are mutated by the worker goroutine as the task moves
// through its lifecycle while concurrently read by HTTP-handler goroutines
// (get_task_status), so they live behind mu rather than as plain fields —
// per spec.md §5's "per-task storage: exclusive acquire per operation".
type Task struct {
	ID        string
	AgentType AgentType
	Content   string
	Priority  Priority
	Context   map[string]string
	CreatedAt time.Time

	mu        sync.Mutex
	status    Status
	updatedAt time.Time

	seq int // insertion sequence number; tie-break order comes from the position in Queue.pending
}

// NewTask constructs a Task in its initial Pending state.
func NewTask(id string, agentType AgentType, content string, priority Priority, context map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		AgentType: agentType,
		Content:   content,
		Priority:  priority,
		Context:   context,
		CreatedAt: now,
		status:    Pending,
		updatedAt: now,
	}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// UpdatedAt returns the timestamp of the task's last status transition.
func (t *Task) UpdatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}

// setStatus atomically transitions status and records when, so a reader
// never observes one updated without the other.
func (t *Task) setStatus(s Status, when time.Time) {
	t.mu.Lock()
	t.status = s
	t.updatedAt = when
	t.mu.Unlock()
}

// View returns a point-in-time, race-free copy of the task, safe to
// serialize or inspect from any goroutine without touching t's lock again.
func (t *Task) View() View {
	t.mu.Lock()
	status, updatedAt := t.status, t.updatedAt
	t.mu.Unlock()
	return View{
		ID:        t.ID,
		AgentType: t.AgentType,
		Content:   t.Content,
		Priority:  t.Priority,
		Context:   t.Context,
		Status:    status,
		CreatedAt: t.CreatedAt,
		UpdatedAt: updatedAt,
	}
}

// View is the externally observable, copy-only shape of a Task: the data
// model's {id, agent_type, content, priority, context, status, created_at,
// updated_at} (spec.md §3), decoupled from Task's internal lock so callers
// (JSON encoding, CLI status prints) can hold it indefinitely.
type View struct {
	ID        string
	AgentType AgentType
	Content   string
	Priority  Priority
	Context   map[string]string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Result is the TaskResult data-model type.
type Result struct {
	TaskID      string
	Output      string
	CompletedAt time.Time
}

// AgentStatus is the data-model type tracking one registered agent.
type AgentStatus struct {
	AgentType           AgentType
	IsBusy              bool
	CurrentTaskID       string
	TasksCompleted      int
	TasksFailed         int
	AverageExecutionTime time.Duration

	totalExecutionTime time.Duration
}

// GenerateTaskID mints an opaque, URL-safe task id.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}

// Agent is the capability binding a registered AgentType must satisfy
// (component 4.D). Defined here, not in the agent package, so that
// Orchestrator does not need to import its own consumer's implementation
// package — a small, locally-owned interface rather than a shared one.
type Agent interface {
	CanHandle(t *Task) bool
	Execute(ctx context.Context, t *Task) (Result, error)
}

// Registry is the read view an Orchestrator needs of the agent registry
// (component 4.D), kept minimal to avoid a tasks<->agent import cycle.
type Registry interface {
	Get(t AgentType) (Agent, bool)
}
