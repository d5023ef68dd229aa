// Package gateway implements the HTTP API surface: the
// inbound operations a caller uses to submit tasks, inspect agent/system
// status, and drive the self-update pipeline. Built on chi.Router plus
// middleware.Recoverer/RealIP, net.Listen + http.Server.Serve, and a
// graceful Shutdown — no WebSocket hub, session store, or plugin-permission
// surface; none of those have a place here.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/ozchestrator/internal/agent"
	"github.com/dohr-michael/ozchestrator/internal/breaker"
	"github.com/dohr-michael/ozchestrator/internal/events"
	"github.com/dohr-michael/ozchestrator/internal/ozerr"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/approval"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/queue"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/status"
	"github.com/dohr-michael/ozchestrator/internal/tasks"
)

// Server is the ozchestrator gateway HTTP server.
type Server struct {
	httpServer *http.Server
	bus        *events.Bus

	tasks     *TaskHandler
	agents    *agent.Registry
	breakers  map[tasks.AgentType]*breaker.Breaker
	updates   *queue.Queue
	approvals *approval.Manager
	tracker   *status.Tracker

	host string
	port int
}

// Config bundles the collaborators a Server routes HTTP requests to.
type Config struct {
	Bus       *events.Bus
	Tasks     *TaskHandler
	Agents    *agent.Registry
	Breakers  map[tasks.AgentType]*breaker.Breaker
	Updates   *queue.Queue
	Approvals *approval.Manager
	Tracker   *status.Tracker
	Host      string
	Port      int
}

// NewServer creates a new gateway server and mounts its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		bus:       cfg.Bus,
		tasks:     cfg.Tasks,
		agents:    cfg.Agents,
		breakers:  cfg.Breakers,
		updates:   cfg.Updates,
		approvals: cfg.Approvals,
		tracker:   cfg.Tracker,
		host:      cfg.Host,
		port:      cfg.Port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/system/status", s.handleSystemStatus)

	r.Post("/api/tasks", s.handleSubmitTask)
	r.Get("/api/tasks/{id}", s.handleGetTaskStatus)
	r.Get("/api/tasks/{id}/result", s.handleGetTaskResult)
	r.Post("/api/tasks/analyze", s.handleAnalyzeTask)
	r.Get("/api/agents", s.handleListAgents)
	r.Get("/api/agents/{type}/status", s.handleGetAgentStatus)

	r.Post("/api/updates", s.handleSubmitUpdate)
	r.Post("/api/updates/approval", s.handleApprovalResponse)
	r.Get("/api/updates/queue", s.handleQueueStatus)
	r.Post("/api/updates/queue/clear", s.handleClearQueue)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: r,
	}

	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("ozchestrator gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ozerr.Is(err, ozerr.Validation), ozerr.Is(err, ozerr.ContentTooLarge):
		status = http.StatusBadRequest
	case ozerr.Is(err, ozerr.NotFound):
		status = http.StatusNotFound
	case ozerr.Is(err, ozerr.Duplicate), ozerr.Is(err, ozerr.QueueFull):
		status = http.StatusConflict
	case ozerr.Is(err, ozerr.ServiceUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	history := s.bus.History(limit)

	type eventJSON struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id,omitempty"`
		Type      string             `json:"type"`
		Timestamp string             `json:"timestamp"`
		Source    events.EventSource `json:"source"`
		Payload   map[string]any     `json:"payload"`
	}

	result := make([]eventJSON, len(history))
	for i, e := range history {
		result[i] = eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSystemStatus implements get_system_status: the overall task queue
// depth, the breaker state per agent type, and the self-update queue
// snapshot.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	type agentState struct {
		BreakerState string `json:"breaker_state"`
	}

	breakerStates := make(map[string]agentState, len(s.breakers))
	for t, b := range s.breakers {
		breakerStates[string(t)] = agentState{BreakerState: string(b.State())}
	}

	resp := map[string]any{
		"queue_length": s.tasks.QueueLength(),
		"agents":       breakerStates,
	}
	if s.updates != nil {
		resp["update_queue"] = s.updates.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitTask implements submit_task.
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ozerr.Wrap(ozerr.Validation, "decode request body", err))
		return
	}

	id, err := s.tasks.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

// handleGetTaskStatus implements get_task_status.
func (s *Server) handleGetTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.tasks.Status(id)
	if !ok {
		writeError(w, ozerr.New(ozerr.NotFound, "task not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleGetTaskResult implements get_task_result.
func (s *Server) handleGetTaskResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, ok := s.tasks.Result(id)
	if !ok {
		writeError(w, ozerr.New(ozerr.NotFound, "no result for task: "+id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAnalyzeTask implements analyze_task: it delegates to the agent's
// subprocess-backed keyword analysis (4.C/4.D) without enqueueing a task.
func (s *Server) handleAnalyzeTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentType tasks.AgentType `json:"agent_type"`
		Content   string          `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ozerr.Wrap(ozerr.Validation, "decode request body", err))
		return
	}

	desc, ok := s.agents.Describe(req.AgentType)
	if !ok {
		writeError(w, ozerr.New(ozerr.NoAgent, "no agent registered for type "+string(req.AgentType)))
		return
	}

	analysis, err := desc.AnalyzeTask(r.Context(), &tasks.Task{AgentType: req.AgentType, Content: req.Content})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleListAgents implements list_agents: the registered agent types
// plus their capability/description introspection surface (4.D).
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	type agentJSON struct {
		Type         tasks.AgentType `json:"type"`
		Capabilities []string        `json:"capabilities"`
		Describe     string          `json:"describe"`
	}

	descs := s.agents.List()
	result := make([]agentJSON, len(descs))
	for i, d := range descs {
		result[i] = agentJSON{
			Type:         d.Type(),
			Capabilities: d.Capabilities(),
			Describe:     d.Describe(),
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetAgentStatus implements get_agent_status.
func (s *Server) handleGetAgentStatus(w http.ResponseWriter, r *http.Request) {
	agentType := tasks.AgentType(chi.URLParam(r, "type"))
	st, ok := s.tasks.AgentStatus(agentType)
	if !ok {
		writeError(w, ozerr.New(ozerr.NotFound, "unknown agent type: "+string(agentType)))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSubmitUpdate implements submit_update: admits a
// self-update request into the bounded queue (4.G); the executor (4.K)
// picks it up asynchronously.
func (s *Server) handleSubmitUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Codename    string   `json:"codename"`
		Description string   `json:"description"`
		UserID      string   `json:"user_id"`
		ChannelID   string   `json:"channel_id"`
		MessageID   string   `json:"message_id"`
		Messages    []string `json:"combined_messages,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ozerr.Wrap(ozerr.Validation, "decode request body", err))
		return
	}
	if s.updates == nil {
		writeError(w, ozerr.New(ozerr.ServiceUnavailable, "self-update pipeline is not configured"))
		return
	}

	update := &selfupdate.Request{
		ID:               selfupdate.GenerateRequestID(),
		Codename:         req.Codename,
		Description:      req.Description,
		UserID:           req.UserID,
		ChannelID:        req.ChannelID,
		MessageID:        req.MessageID,
		CombinedMessages: req.Messages,
		Timestamp:        time.Now(),
	}

	if err := s.updates.TryAdd(update); err != nil {
		writeError(w, err)
		return
	}

	s.bus.Publish(events.NewTypedEvent(events.SourceSelfUpdate, events.UpdateSubmittedPayload{
		RequestID: update.ID,
		Codename:  update.Codename,
	}))

	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": update.ID})
}

// handleApprovalResponse implements approval_response: a user's
// approve/reject/modify reply to a pending update plan (4.H).
func (s *Server) handleApprovalResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		ChannelID string `json:"channel_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ozerr.Wrap(ozerr.Validation, "decode request body", err))
		return
	}
	if s.approvals == nil {
		writeError(w, ozerr.New(ozerr.ServiceUnavailable, "approval manager is not configured"))
		return
	}

	matched := s.approvals.ProcessResponse(req.UserID, req.ChannelID, req.Text)
	writeJSON(w, http.StatusOK, map[string]bool{"matched": matched})
}

// handleQueueStatus implements queue_status for the self-update queue.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		writeError(w, ozerr.New(ozerr.ServiceUnavailable, "self-update pipeline is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, s.updates.Status())
}

// handleClearQueue implements clear_queue: drains all pending (not
// processing) self-update requests.
func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		writeError(w, ozerr.New(ozerr.ServiceUnavailable, "self-update pipeline is not configured"))
		return
	}
	s.updates.Shutdown()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
