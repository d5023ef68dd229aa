package queue

import (
	"testing"

	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
)

func newReq(id, codename string) *selfupdate.Request {
	return &selfupdate.Request{ID: id, Codename: codename, Description: "fix the bug"}
}

func TestTryAddRejectsWhenFull(t *testing.T) {
	q := New(Config{MaxSize: 1, MaxConcurrent: 1, MaxContentSize: 1024})
	if err := q.TryAdd(newReq("a", "fix-a")); err != nil {
		t.Fatalf("TryAdd: %v", err)
	}
	if err := q.TryAdd(newReq("b", "fix-b")); err == nil {
		t.Fatalf("expected QueueFull rejection")
	}
	if q.Status().RejectedCount != 1 {
		t.Fatalf("expected rejected_count=1, got %d", q.Status().RejectedCount)
	}
}

func TestTryAddRejectsDuplicateCodename(t *testing.T) {
	q := New(DefaultConfig())
	if err := q.TryAdd(newReq("a", "same-name")); err != nil {
		t.Fatalf("TryAdd: %v", err)
	}
	if err := q.TryAdd(newReq("b", "same-name")); err == nil {
		t.Fatalf("expected Duplicate rejection")
	}
}

func TestTryAddRejectsDuplicateCodenameCaseAndFormInsensitively(t *testing.T) {
	q := New(DefaultConfig())
	if err := q.TryAdd(newReq("a", "Foo-Bar")); err != nil {
		t.Fatalf("TryAdd: %v", err)
	}
	if err := q.TryAdd(newReq("b", " foo-bar ")); err == nil {
		t.Fatalf("expected Duplicate rejection for a mixed-case/whitespace variant of a queued codename")
	}
	if q.Status().QueueSize != 1 {
		t.Fatalf("expected queue to still contain exactly one request, got %d", q.Status().QueueSize)
	}
}

func TestTryAddRejectsOversizedContent(t *testing.T) {
	q := New(Config{MaxSize: 10, MaxConcurrent: 3, MaxContentSize: 5})
	req := newReq("a", "big")
	req.Description = "way too long for the limit"
	if err := q.TryAdd(req); err == nil {
		t.Fatalf("expected ContentTooLarge rejection")
	}
}

func TestNextRespectsConcurrencyCap(t *testing.T) {
	q := New(Config{MaxSize: 10, MaxConcurrent: 1, MaxContentSize: 1024})
	q.TryAdd(newReq("a", "a"))
	q.TryAdd(newReq("b", "b"))

	first := q.Next()
	if first == nil || first.ID != "a" {
		t.Fatalf("expected first request a, got %+v", first)
	}
	if second := q.Next(); second != nil {
		t.Fatalf("expected nil while at concurrency cap, got %+v", second)
	}

	q.Complete("a")
	second := q.Next()
	if second == nil || second.ID != "b" {
		t.Fatalf("expected request b after completing a, got %+v", second)
	}
}

func TestFailWithClearQueueDrainsPending(t *testing.T) {
	q := New(Config{MaxSize: 10, MaxConcurrent: 2, MaxContentSize: 1024})
	q.TryAdd(newReq("a", "a"))
	q.TryAdd(newReq("b", "b"))
	processing := q.Next()

	q.Fail(processing.ID, true)

	if q.Status().QueueSize != 0 {
		t.Fatalf("expected pending list drained, got size %d", q.Status().QueueSize)
	}
}

func TestRetryRewritesIDAndReenqueues(t *testing.T) {
	q := New(DefaultConfig())
	req := newReq("update-1", "fix")
	q.TryAdd(req)
	popped := q.Next()

	if err := q.Retry(popped); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if popped.ID != "update-1-retry-1" {
		t.Fatalf("expected retry-suffixed id, got %s", popped.ID)
	}
	if popped.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", popped.RetryCount)
	}
}

func TestRetryRejectsAtMaxRetries(t *testing.T) {
	q := New(DefaultConfig())
	req := newReq("update-1", "fix")
	req.RetryCount = MaxRetries
	if err := q.Retry(req); err == nil {
		t.Fatalf("expected rejection at max retries")
	}
}

func TestShutdownDrainsPendingOnly(t *testing.T) {
	q := New(Config{MaxSize: 10, MaxConcurrent: 2, MaxContentSize: 1024})
	q.TryAdd(newReq("a", "a"))
	q.TryAdd(newReq("b", "b"))
	processing := q.Next()

	q.Shutdown()

	if q.Status().QueueSize != 0 {
		t.Fatalf("expected pending drained")
	}
	if len(q.Status().Processing) != 1 || q.Status().Processing[0] != processing.ID {
		t.Fatalf("expected in-flight request to remain processing")
	}
}
