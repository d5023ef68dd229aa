package tasks

import (
	"testing"
	"time"
)

func newTask(id string, p Priority) *Task {
	return NewTask(id, "", "", p, nil)
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(2)
	if err := q.Submit(newTask("a", PriorityLow)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Submit(newTask("b", PriorityLow)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Submit(newTask("c", PriorityLow)); err == nil {
		t.Fatalf("expected QueueFull on third submit")
	}
}

func TestQueuePriorityOrdering(t *testing.T) {
	q := NewQueue(10)
	for _, id := range []string{"low1", "low2", "low3"} {
		if err := q.Submit(newTask(id, PriorityLow)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := q.Submit(newTask("critical", PriorityCritical)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	first := q.Pop()
	if first.ID != "critical" {
		t.Fatalf("expected critical task first, got %s", first.ID)
	}
	for _, want := range []string{"low1", "low2", "low3"} {
		got := q.Pop()
		if got.ID != want {
			t.Fatalf("expected %s next, got %s", want, got.ID)
		}
	}
}

func TestQueueGCRetainsNonTerminal(t *testing.T) {
	q := NewQueue(10)
	pending := newTask("pending", PriorityLow)
	pending.setStatus(Pending, time.Now().Add(-48*time.Hour))
	q.Submit(pending)
	q.Pop()

	old := newTask("old-done", PriorityLow)
	old.setStatus(Completed, time.Now().Add(-48*time.Hour))
	q.Submit(old)
	q.Pop()

	q.GC(time.Now().Add(-24 * time.Hour))

	if _, ok := q.Get("pending"); !ok {
		t.Fatalf("expected non-terminal task to survive GC")
	}
	if _, ok := q.Get("old-done"); ok {
		t.Fatalf("expected stale terminal task to be collected")
	}
}
