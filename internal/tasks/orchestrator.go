package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
)

// OrchestratorConfig tunes polling and retention.
type OrchestratorConfig struct {
	MaxQueueSize      int
	PollInterval      time.Duration
	CleanupInterval   time.Duration
	RetentionWindow   time.Duration
}

// DefaultOrchestratorConfig matches its defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxQueueSize:    1000,
		PollInterval:    200 * time.Millisecond,
		CleanupInterval: time.Hour,
		RetentionWindow: 24 * time.Hour,
	}
}

// Orchestrator runs the single logical worker loop and the retention GC:
// a ticker plus a wake channel, tasks executed one at a time on the worker
// goroutine, and mutex-guarded maps, driving the tasks.Agent contract.
type Orchestrator struct {
	cfg      OrchestratorConfig
	queue    *Queue
	registry Registry

	mu       sync.RWMutex
	statuses map[AgentType]*AgentStatus

	resultCh chan Result
	wakeCh   chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup

	onGC SweepFunc
}

// SweepFunc is invoked after each retention GC pass completes. Registered by
// the caller that owns the event bus (the tasks package has no events
// dependency) so sweeps can be published as schedule.trigger events.
type SweepFunc func()

// OnGC registers fn to run after every subsequent retention GC sweep.
func (o *Orchestrator) OnGC(fn SweepFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onGC = fn
}

// NewOrchestrator wires a Queue against a Registry.
func NewOrchestrator(cfg OrchestratorConfig, registry Registry) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		queue:    NewQueue(cfg.MaxQueueSize),
		registry: registry,
		statuses: make(map[AgentType]*AgentStatus),
		resultCh: make(chan Result, 64),
		wakeCh:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Results exposes the channel external callers may subscribe to; a
// Completed status is always observable via GetStatus no later than the
// matching Result appears here.
func (o *Orchestrator) Results() <-chan Result { return o.resultCh }

// Submit enqueues a task, validating agent registration first.
func (o *Orchestrator) Submit(ctx context.Context, agentType AgentType, content string, priority Priority, taskContext map[string]string) (string, error) {
	if _, ok := o.registry.Get(agentType); !ok {
		return "", ozerr.New(ozerr.NoAgent, "no agent registered for type "+string(agentType))
	}

	t := NewTask(GenerateTaskID(), agentType, content, priority, taskContext)
	if err := o.queue.Submit(t); err != nil {
		return "", err
	}
	o.wake()
	return t.ID, nil
}

// GetStatus returns a race-free snapshot of the task, if known.
func (o *Orchestrator) GetStatus(id string) (View, bool) { return o.queue.Get(id) }

// GetResult returns the stored result for a completed task.
func (o *Orchestrator) GetResult(id string) (Result, bool) { return o.queue.GetResult(id) }

// AgentStatus returns a snapshot of the named agent's status.
func (o *Orchestrator) AgentStatus(t AgentType) (AgentStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.statuses[t]
	if !ok {
		return AgentStatus{}, false
	}
	return *s, true
}

// QueueLength reports the current pending-queue depth.
func (o *Orchestrator) QueueLength() int { return o.queue.Len() }

func (o *Orchestrator) wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// Run starts the worker loop and retention GC; it blocks until ctx is
// cancelled or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) {
	o.wg.Add(2)
	go o.workerLoop(ctx)
	go o.gcLoop(ctx)
	o.wg.Wait()
}

// Stop signals both loops to exit without waiting for them; Run returns
// once both have exited.
func (o *Orchestrator) Stop() {
	close(o.stopCh)
}

func (o *Orchestrator) workerLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-o.wakeCh:
			o.drain(ctx)
		case <-ticker.C:
			o.drain(ctx)
		}
	}
}

// drain pops and executes tasks until the queue is empty. A single task's
// failure never stalls the worker.
func (o *Orchestrator) drain(ctx context.Context) {
	for {
		t := o.queue.Pop()
		if t == nil {
			return
		}
		o.execute(ctx, t)
	}
}

func (o *Orchestrator) execute(ctx context.Context, t *Task) {
	agent, ok := o.registry.Get(t.AgentType)
	if !ok {
		o.fail(t, "agent no longer registered")
		return
	}
	if !agent.CanHandle(t) {
		o.fail(t, "agent declined task")
		return
	}

	t.setStatus(InProgress, time.Now())
	status := o.statusFor(t.AgentType)
	o.mu.Lock()
	status.IsBusy = true
	status.CurrentTaskID = t.ID
	o.mu.Unlock()

	start := time.Now()
	result, err := agent.Execute(ctx, t)
	elapsed := time.Since(start)

	o.mu.Lock()
	status.IsBusy = false
	status.CurrentTaskID = ""
	status.totalExecutionTime += elapsed
	if err != nil {
		status.TasksFailed++
	} else {
		status.TasksCompleted++
	}
	completed := status.TasksCompleted + status.TasksFailed
	if completed > 0 {
		status.AverageExecutionTime = status.totalExecutionTime / time.Duration(completed)
	}
	o.mu.Unlock()

	if err != nil {
		slog.Warn("task execution failed", "task_id", t.ID, "error", err)
		o.fail(t, err.Error())
		return
	}

	result.TaskID = t.ID
	result.CompletedAt = time.Now()
	o.queue.StoreResult(result)
	t.setStatus(Completed, result.CompletedAt)

	select {
	case o.resultCh <- result:
	default:
	}
}

func (o *Orchestrator) fail(t *Task, reason string) {
	now := time.Now()
	t.setStatus(Failed, now)
	result := Result{TaskID: t.ID, Output: reason, CompletedAt: now}
	o.queue.StoreResult(result)

	select {
	case o.resultCh <- result:
	default:
	}
}

func (o *Orchestrator) statusFor(t AgentType) *AgentStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.statuses[t]
	if !ok {
		s = &AgentStatus{AgentType: t}
		o.statuses[t] = s
	}
	return s
}

func (o *Orchestrator) gcLoop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.queue.GC(time.Now().Add(-o.cfg.RetentionWindow))
			o.mu.RLock()
			fn := o.onGC
			o.mu.RUnlock()
			if fn != nil {
				fn()
			}
		}
	}
}
