// Package queue implements the bounded self-update request queue
// (component 4.G), grounded on original_source's
// discord/self_update/queue.rs and following the same
// sync.Mutex-guarded-struct idiom used by internal/tasks.Queue.
package queue

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
	"github.com/dohr-michael/ozchestrator/internal/vcs"
)

const (
	// DefaultMaxSize bounds the number of pending+processing requests.
	DefaultMaxSize = 50
	// DefaultMaxConcurrent bounds simultaneously-processing requests.
	DefaultMaxConcurrent = 3
	// DefaultMaxContentSize bounds description+combined_messages length.
	DefaultMaxContentSize = 64 * 1024
	// MaxRetries is the retry ceiling before a request is abandoned.
	MaxRetries = 3
)

// Config tunes queue admission limits.
type Config struct {
	MaxSize        int
	MaxConcurrent  int
	MaxContentSize int
}

// DefaultConfig returns its stated defaults.
func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize, MaxConcurrent: DefaultMaxConcurrent, MaxContentSize: DefaultMaxContentSize}
}

// Queue is a bounded FIFO of self-update requests with a concurrency-capped
// processing set.
type Queue struct {
	mu            sync.Mutex
	cfg           Config
	pending       []*selfupdate.Request
	processing    map[string]*selfupdate.Request
	rejectedCount int
}

// New creates an empty Queue.
func New(cfg Config) *Queue {
	return &Queue{cfg: cfg, processing: make(map[string]*selfupdate.Request)}
}

func contentSize(r *selfupdate.Request) int {
	n := len(r.Description)
	for _, m := range r.CombinedMessages {
		n += len(m)
	}
	return n
}

// TryAdd enqueues req, applying size, content-size, and duplicate-codename
// admission checks. Every rejection increments RejectedCount.
func (q *Queue) TryAdd(req *selfupdate.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending)+len(q.processing) >= q.cfg.MaxSize {
		q.rejectedCount++
		return ozerr.New(ozerr.QueueFull, "update queue is full")
	}
	if contentSize(req) > q.cfg.MaxContentSize {
		q.rejectedCount++
		return ozerr.New(ozerr.ContentTooLarge, "update content exceeds maximum size")
	}
	for _, p := range q.pending {
		if sameCodename(p.Codename, req.Codename) {
			q.rejectedCount++
			return ozerr.New(ozerr.Duplicate, fmt.Sprintf("an update with codename %q is already queued", req.Codename))
		}
	}
	req.Status = selfupdate.StatusQueued
	q.pending = append(q.pending, req)
	return nil
}

// sameCodename compares two codenames on their sanitized/lower-cased form,
// per spec.md §9's resolved ambiguity ("duplicate-codename detection...
// compares on the sanitized/lower-cased form"). Codenames that fail to
// sanitize (e.g. empty after stripping) fall back to a case-insensitive
// raw comparison rather than treating every unsanitizable codename as a
// duplicate of every other.
func sameCodename(a, b string) bool {
	sa, errA := vcs.SanitizeCodename(a)
	sb, errB := vcs.SanitizeCodename(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return sa == sb
}

// Next moves the front pending request into the processing set and returns
// it, or returns nil if the concurrency cap is reached or the queue is
// empty.
func (q *Queue) Next() *selfupdate.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.processing) >= q.cfg.MaxConcurrent || len(q.pending) == 0 {
		return nil
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	req.Status = selfupdate.StatusPreflightChecks
	q.processing[req.ID] = req
	return req
}

// Complete removes id from the processing set on successful completion.
func (q *Queue) Complete(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, id)
}

// Fail removes id from the processing set; if clearQueue is true, also
// drains all pending requests (reserved for hard, fatal failures such as a
// rollback itself failing).
func (q *Queue) Fail(id string, clearQueue bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, id)
	if clearQueue {
		q.pending = nil
	}
}

// Retry re-enqueues req with an incremented retry count and a
// "<base>-retry-<n>" id, or rejects once MaxRetries is reached.
func (q *Queue) Retry(req *selfupdate.Request) error {
	if req.RetryCount >= MaxRetries {
		return ozerr.New(ozerr.Validation, "update request exceeded maximum retries")
	}
	req.RetryCount++
	req.ID = fmt.Sprintf("%s-retry-%d", baseID(req.ID), req.RetryCount)
	req.Status = selfupdate.StatusQueued
	return q.TryAdd(req)
}

func baseID(id string) string {
	for i := 0; i+len("-retry-") <= len(id); i++ {
		if id[i:i+len("-retry-")] == "-retry-" {
			return id[:i]
		}
	}
	return id
}

// Shutdown drains the pending list; requests already processing are left to
// complete.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
}

// Status reports the queue's current admission and occupancy state.
type Status struct {
	QueueSize     int
	MaxSize       int
	RejectedCount int
	Processing    []string
	MaxConcurrent int
}

// Status returns a snapshot of the queue's state.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.processing))
	for id := range q.processing {
		ids = append(ids, id)
	}
	return Status{
		QueueSize:     len(q.pending),
		MaxSize:       q.cfg.MaxSize,
		RejectedCount: q.rejectedCount,
		Processing:    ids,
		MaxConcurrent: q.cfg.MaxConcurrent,
	}
}
