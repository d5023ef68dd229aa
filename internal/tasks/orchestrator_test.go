package tasks

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeAgent struct {
	mu      sync.Mutex
	fail    bool
	execute func(t *Task) (Result, error)
}

func (a *fakeAgent) CanHandle(t *Task) bool { return true }

func (a *fakeAgent) Execute(ctx context.Context, t *Task) (Result, error) {
	if a.execute != nil {
		return a.execute(t)
	}
	a.mu.Lock()
	fail := a.fail
	a.mu.Unlock()
	if fail {
		return Result{}, fmt.Errorf("forced failure")
	}
	return Result{Output: "ok: " + t.Content}, nil
}

type fakeRegistry struct {
	agents map[AgentType]Agent
}

func (r *fakeRegistry) Get(t AgentType) (Agent, bool) {
	a, ok := r.agents[t]
	return a, ok
}

func waitForTerminal(t *testing.T, o *Orchestrator, id string, timeout time.Duration) View {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, ok := o.GetStatus(id)
		if ok && task.Status.IsTerminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach terminal state within %s", id, timeout)
	return View{}
}

func TestOrchestratorBasicExecution(t *testing.T) {
	reg := &fakeRegistry{agents: map[AgentType]Agent{SoftwareDeveloper: &fakeAgent{}}}
	o := NewOrchestrator(OrchestratorConfig{MaxQueueSize: 10, PollInterval: 10 * time.Millisecond, CleanupInterval: time.Hour, RetentionWindow: time.Hour}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	id, err := o.Submit(ctx, SoftwareDeveloper, "print hello", PriorityMedium, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	task := waitForTerminal(t, o, id, time.Second)
	if task.Status != Completed {
		t.Fatalf("expected Completed, got %s", task.Status)
	}
	result, ok := o.GetResult(id)
	if !ok || result.Output == "" {
		t.Fatalf("expected non-empty result")
	}
	status, ok := o.AgentStatus(SoftwareDeveloper)
	if !ok || status.TasksCompleted != 1 {
		t.Fatalf("expected tasks_completed=1, got %+v", status)
	}
}

func TestOrchestratorNoAgentRejected(t *testing.T) {
	reg := &fakeRegistry{agents: map[AgentType]Agent{}}
	o := NewOrchestrator(DefaultOrchestratorConfig(), reg)

	_, err := o.Submit(context.Background(), SoftwareDeveloper, "x", PriorityLow, nil)
	if err == nil {
		t.Fatalf("expected NoAgent error")
	}
}

func TestOrchestratorFailureDoesNotStallQueue(t *testing.T) {
	reg := &fakeRegistry{agents: map[AgentType]Agent{SoftwareDeveloper: &fakeAgent{fail: true}}}
	o := NewOrchestrator(OrchestratorConfig{MaxQueueSize: 10, PollInterval: 10 * time.Millisecond, CleanupInterval: time.Hour, RetentionWindow: time.Hour}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	id1, _ := o.Submit(ctx, SoftwareDeveloper, "one", PriorityLow, nil)
	id2, _ := o.Submit(ctx, SoftwareDeveloper, "two", PriorityLow, nil)

	t1 := waitForTerminal(t, o, id1, time.Second)
	t2 := waitForTerminal(t, o, id2, time.Second)
	if t1.Status != Failed || t2.Status != Failed {
		t.Fatalf("expected both tasks to fail independently, got %s %s", t1.Status, t2.Status)
	}
}

func TestOrchestratorPriorityOrdering(t *testing.T) {
	var order []string
	var mu sync.Mutex
	agent := &fakeAgent{execute: func(t *Task) (Result, error) {
		mu.Lock()
		order = append(order, t.ID)
		mu.Unlock()
		return Result{Output: "ok"}, nil
	}}
	reg := &fakeRegistry{agents: map[AgentType]Agent{SoftwareDeveloper: agent}}
	o := NewOrchestrator(OrchestratorConfig{MaxQueueSize: 10, PollInterval: time.Hour, CleanupInterval: time.Hour, RetentionWindow: time.Hour}, reg)

	// Submit before starting the worker so all tasks land in one batch.
	lowIDs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := o.Submit(context.Background(), SoftwareDeveloper, "low", PriorityLow, nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		lowIDs = append(lowIDs, id)
	}
	criticalID, err := o.Submit(context.Background(), SoftwareDeveloper, "critical", PriorityCritical, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	waitForTerminal(t, o, criticalID, time.Second)
	for _, id := range lowIDs {
		waitForTerminal(t, o, id, time.Second)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 4 || order[0] != criticalID {
		t.Fatalf("expected critical task first, got order=%v", order)
	}
}
