package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/agent"
	"github.com/dohr-michael/ozchestrator/internal/breaker"
	"github.com/dohr-michael/ozchestrator/internal/events"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/approval"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/queue"
	"github.com/dohr-michael/ozchestrator/internal/tasks"
)

// waitForEvents polls the bus history until at least n events are present.
func waitForEvents(bus *events.Bus, n int) {
	for i := 0; i < 200; i++ {
		if len(bus.History(100)) >= n {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
}

type stubAgent struct{ agentType tasks.AgentType }

func (a *stubAgent) Type() tasks.AgentType  { return a.agentType }
func (a *stubAgent) Capabilities() []string { return nil }
func (a *stubAgent) Describe() string       { return "stub" }
func (a *stubAgent) CanHandle(t *tasks.Task) bool { return t.AgentType == a.agentType }
func (a *stubAgent) Execute(_ context.Context, t *tasks.Task) (tasks.Result, error) {
	return tasks.Result{TaskID: t.ID, Output: "ok"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus := events.NewBus(64)
	t.Cleanup(func() { bus.Close() })

	orch := tasks.NewOrchestrator(tasks.DefaultOrchestratorConfig(), agent.NewRegistry())
	th := NewTaskHandler(orch)

	breakers := map[tasks.AgentType]*breaker.Breaker{
		tasks.SoftwareDeveloper: breaker.New(breaker.DefaultConfig()),
	}

	return NewServer(Config{
		Bus:       bus,
		Tasks:     th,
		Agents:    agent.NewRegistry(),
		Breakers:  breakers,
		Updates:   queue.New(queue.DefaultConfig()),
		Approvals: approval.New(),
		Host:      "localhost",
		Port:      0,
	})
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, r)
	return w
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status %q, got %q", "ok", body["status"])
	}
}

func TestHandleEvents_Empty(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/events", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleEvents_WithHistoryAndLimit(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 10; i++ {
		srv.bus.Publish(events.NewTypedEvent(events.SourceOrchestrator, events.TaskSubmittedPayload{TaskID: "t"}))
	}
	waitForEvents(srv.bus, 10)

	w := doRequest(t, srv, http.MethodGet, "/api/events?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 5 {
		t.Fatalf("expected 5 events with limit=5, got %d", len(body))
	}
}

func TestHandleSystemStatus(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/system/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["queue_length"]; !ok {
		t.Fatal("expected queue_length field")
	}
	if _, ok := body["agents"]; !ok {
		t.Fatal("expected agents field")
	}
}

func TestHandleSubmitTask_RejectsEmptyContent(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/tasks", SubmitTaskRequest{AgentType: tasks.SoftwareDeveloper})
	if w.Code != http.StatusInternalServerError && w.Code != http.StatusBadRequest {
		t.Fatalf("expected an error status for empty content, got %d", w.Code)
	}
}

func TestHandleGetTaskStatus_NotFound(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/tasks/nonexistent", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestHandleListAgents(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.agents.Register(&stubAgent{agentType: tasks.SoftwareDeveloper}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	w := doRequest(t, srv, http.MethodGet, "/api/agents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected 1 registered agent, got %d", len(body))
	}
	if body[0]["type"] != string(tasks.SoftwareDeveloper) {
		t.Fatalf("expected type %q, got %v", tasks.SoftwareDeveloper, body[0]["type"])
	}
	if body[0]["describe"] != "stub" {
		t.Fatalf("expected describe %q, got %v", "stub", body[0]["describe"])
	}
}

func TestHandleListAgents_Empty(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/agents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty array, got %d items", len(body))
	}
}

func TestHandleGetAgentStatus_NotFound(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/agents/unknown_type/status", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestHandleSubmitUpdate(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/updates", map[string]string{
		"codename":    "add-retry-logic",
		"description": "add retry logic to the subprocess gateway with exponential backoff",
		"user_id":     "u1",
		"channel_id":  "c1",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["request_id"] == "" {
		t.Fatal("expected a request_id")
	}
}

func TestHandleSubmitUpdate_RejectsDuplicateCodename(t *testing.T) {
	srv := newTestServer(t)

	payload := map[string]string{
		"codename":    "dup",
		"description": "some update description here",
		"user_id":     "u1",
		"channel_id":  "c1",
	}
	w1 := doRequest(t, srv, http.MethodPost, "/api/updates", payload)
	if w1.Code != http.StatusAccepted {
		t.Fatalf("expected first submission to succeed, got %d", w1.Code)
	}

	w2 := doRequest(t, srv, http.MethodPost, "/api/updates", payload)
	if w2.Code != http.StatusConflict {
		t.Fatalf("expected duplicate codename to be rejected with 409, got %d", w2.Code)
	}
}

func TestHandleQueueStatus(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/updates/queue", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var st queue.Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if st.MaxSize != queue.DefaultMaxSize {
		t.Fatalf("expected max_size %d, got %d", queue.DefaultMaxSize, st.MaxSize)
	}
}

func TestHandleApprovalResponse_NoMatch(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/updates/approval", map[string]string{
		"user_id":    "u1",
		"channel_id": "c1",
		"text":       "approve",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["matched"] {
		t.Fatal("expected no pending approval to match")
	}
}
