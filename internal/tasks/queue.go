package tasks

import (
	"sync"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
)

// Queue is the bounded, priority-sorted task queue (component 4.E).
// Strictly higher priorities always execute before lower ones present at
// selection time; ties break on insertion order (its configuration ordering
// guarantees).
type Queue struct {
	mu       sync.Mutex
	maxSize  int
	pending  []*Task
	byID     map[string]*Task
	results  map[string]Result
	nextSeq  int
}

// NewQueue creates an empty Queue bounded at maxSize.
func NewQueue(maxSize int) *Queue {
	return &Queue{
		maxSize: maxSize,
		byID:    make(map[string]*Task),
		results: make(map[string]Result),
	}
}

// Submit inserts t into the queue, stable-sorted by descending priority.
// Rejects with QueueFull once len(pending) reaches maxSize.
func (q *Queue) Submit(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) >= q.maxSize {
		return ozerr.New(ozerr.QueueFull, "task queue is full")
	}

	t.seq = q.nextSeq
	q.nextSeq++
	q.byID[t.ID] = t

	inserted := false
	for i, existing := range q.pending {
		if priorityRank[t.Priority] > priorityRank[existing.Priority] {
			q.pending = append(q.pending, nil)
			copy(q.pending[i+1:], q.pending[i:])
			q.pending[i] = t
			inserted = true
			break
		}
	}
	if !inserted {
		q.pending = append(q.pending, t)
	}
	return nil
}

// Pop removes and returns the highest-priority, earliest-inserted task, or
// nil if the queue is empty.
func (q *Queue) Pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t
}

// Len reports the current pending-queue length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Get returns a race-free snapshot of the stored task by id, reflecting
// its lifecycle state as of the call. Callers never receive the live
// *Task pointer the worker goroutine may still be mutating.
func (q *Queue) Get(id string) (View, bool) {
	q.mu.Lock()
	t, ok := q.byID[id]
	q.mu.Unlock()
	if !ok {
		return View{}, false
	}
	return t.View(), true
}

// GetResult returns the stored result for a completed task.
func (q *Queue) GetResult(id string) (Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[id]
	return r, ok
}

// StoreResult records a task's result, keyed by task id.
func (q *Queue) StoreResult(r Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results[r.TaskID] = r
}

// GC applies the retention policy: a task is retained if its
// UpdatedAt is after cutoff, or its status is non-terminal; a result is
// retained if CompletedAt is after cutoff.
func (q *Queue) GC(cutoff time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, t := range q.byID {
		if t.UpdatedAt().After(cutoff) || !t.Status().IsTerminal() {
			continue
		}
		delete(q.byID, id)
	}
	for id, r := range q.results {
		if r.CompletedAt.After(cutoff) {
			continue
		}
		delete(q.results, id)
	}
}
