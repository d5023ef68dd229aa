package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TASK EVENTS (4.E orchestrator)
// =============================================================================

type TaskSubmittedPayload struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Prompt  string `json:"prompt"`
}

func (TaskSubmittedPayload) EventType() EventType { return EventTaskSubmitted }

type TaskStatusChangedPayload struct {
	TaskID string `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (TaskStatusChangedPayload) EventType() EventType { return EventTaskStatusChanged }

type TaskCompletedPayload struct {
	TaskID   string        `json:"task_id"`
	Duration time.Duration `json:"duration"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

type TaskFailedPayload struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

// =============================================================================
// SELF-UPDATE EVENTS (4.G-4.L)
// =============================================================================

type UpdateSubmittedPayload struct {
	RequestID string `json:"request_id"`
	Codename  string `json:"codename"`
}

func (UpdateSubmittedPayload) EventType() EventType { return EventUpdateSubmitted }

type UpdateApprovalRequestedPayload struct {
	RequestID     string `json:"request_id"`
	PlanMessageID string `json:"plan_message_id"`
	RiskLevel     string `json:"risk_level"`
}

func (UpdateApprovalRequestedPayload) EventType() EventType { return EventUpdateApprovalRequested }

type UpdateApprovalResolvedPayload struct {
	RequestID string `json:"request_id"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
}

func (UpdateApprovalResolvedPayload) EventType() EventType { return EventUpdateApprovalResolved }

type UpdateStatusChangedPayload struct {
	RequestID string `json:"request_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

func (UpdateStatusChangedPayload) EventType() EventType { return EventUpdateStatusChanged }

type UpdateCompletedPayload struct {
	RequestID  string `json:"request_id"`
	CommitHash string `json:"commit_hash"`
}

func (UpdateCompletedPayload) EventType() EventType { return EventUpdateCompleted }

type UpdateFailedPayload struct {
	RequestID  string `json:"request_id"`
	Reason     string `json:"reason"`
	RolledBack bool   `json:"rolled_back"`
}

func (UpdateFailedPayload) EventType() EventType { return EventUpdateFailed }

// =============================================================================
// CIRCUIT BREAKER EVENTS (4.A)
// =============================================================================

type BreakerTrippedPayload struct {
	AgentID      string `json:"agent_id"`
	FailureCount int    `json:"failure_count"`
}

func (BreakerTrippedPayload) EventType() EventType { return EventBreakerTripped }

type BreakerResetPayload struct {
	AgentID string `json:"agent_id"`
}

func (BreakerResetPayload) EventType() EventType { return EventBreakerReset }

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

type ScheduleTriggerPayload struct {
	Name string `json:"name"`
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        generateEventID(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        generateEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

func GetTaskSubmittedPayload(e Event) (TaskSubmittedPayload, bool) {
	return ExtractPayload[TaskSubmittedPayload](e)
}

func GetTaskStatusChangedPayload(e Event) (TaskStatusChangedPayload, bool) {
	return ExtractPayload[TaskStatusChangedPayload](e)
}

func GetUpdateStatusChangedPayload(e Event) (UpdateStatusChangedPayload, bool) {
	return ExtractPayload[UpdateStatusChangedPayload](e)
}

func GetUpdateApprovalResolvedPayload(e Event) (UpdateApprovalResolvedPayload, bool) {
	return ExtractPayload[UpdateApprovalResolvedPayload](e)
}
