// Package selfupdate implements the self-update pipeline:
// a bounded update queue, human approval gate, diff scope limiter,
// two-phase validation pipeline, status tracker, and the executor that
// wires them together with the subprocess gateway (4.C) and version-control
// adapter (4.F).
//
// The data model below is grounded directly on its SelfUpdateRequest
// / ImplementationPlan / ChangeScope / PipelineContext definitions, and on
// original_source's discord/self_update/*.rs struct shapes.
package selfupdate

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID mints an opaque, URL-safe self-update request id,
// following the same convention as tasks.GenerateTaskID.
func GenerateRequestID() string {
	u := uuid.New().String()
	return "update_" + strings.ReplaceAll(u[:8], "-", "")
}

// RequestStatus is the SelfUpdateRequest lifecycle.
type RequestStatus string

const (
	StatusQueued           RequestStatus = "Queued"
	StatusPreflightChecks  RequestStatus = "PreflightChecks"
	StatusCreatingSnapshot RequestStatus = "CreatingSnapshot"
	StatusPlanning         RequestStatus = "Planning"
	StatusAwaitingApproval RequestStatus = "AwaitingApproval"
	StatusExecuting        RequestStatus = "Executing"
	StatusValidating       RequestStatus = "Validating"
	StatusCompleted        RequestStatus = "Completed"
	StatusFailed           RequestStatus = "Failed"
	StatusRolledBack       RequestStatus = "RolledBack"
)

// IsTerminal reports whether the request has left the active pipeline.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Request is a unit of self-modification work.
type Request struct {
	ID               string
	Codename         string
	Description      string
	UserID           string
	ChannelID        string
	MessageID        string
	CombinedMessages []string
	Timestamp        time.Time
	RetryCount       int
	Status           RequestStatus

	// FailureReason is populated when Status == StatusFailed.
	FailureReason string
	// SnapshotID is populated once (F).Snapshot has run for this request.
	SnapshotID string
}

// RiskLevel is an ImplementationPlan's assessed risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ApprovalStatus is an ImplementationPlan's approval lifecycle.
type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "Pending"
	ApprovalApproved         ApprovalStatus = "Approved"
	ApprovalRejected         ApprovalStatus = "Rejected"
	ApprovalModifyRequested  ApprovalStatus = "Modified"
)

// PlannedTask is one unit of work within an ImplementationPlan.
type PlannedTask struct {
	Description string
	Rationale   string
}

// ImplementationPlan is the subprocess-drafted plan a human approves before
// execution.
type ImplementationPlan struct {
	PlanID              string
	RequestID           string
	Summary             string
	RiskLevel           RiskLevel
	Tasks               []PlannedTask
	IdentifiedRisks     []string
	RollbackStrategy    string
	SuccessCriteria     []string
	ResourceRequirements string
	ApprovalStatus      ApprovalStatus
	// RejectReason/ModifyDetails are populated depending on ApprovalStatus.
	RejectReason  string
	ModifyDetails string
}

// FileChange is one file's footprint within a ChangeScope.
type FileChange struct {
	Path         string
	LinesChanged int
}

// ChangeScope is derived from a unified diff by the scope limiter (4.I).
type ChangeScope struct {
	ModifiedFiles    []string
	CreatedFiles     []string
	DeletedFiles     []string
	TotalLinesChanged int
	LinesPerFile     map[string]int
}

// CheckResult is one Phase-1 or Phase-2 check's outcome.
type CheckResult struct {
	Passed     bool
	Findings   []string
	Errors     []string
	Retries    int
	DurationMs int64
}

// Phase1Results holds the four Advanced-QA check outcomes.
type Phase1Results struct {
	CodeReview  CheckResult
	Testing     CheckResult
	Security    CheckResult
	Integration CheckResult
}

// Phase2Attempt is one pipeline iteration's Core-Compliance run.
type Phase2Attempt struct {
	Iteration     int
	Checks        map[string]CheckResult
	TriggeredLoop bool
}

// FinalStatus is the validation pipeline's terminal verdict.
type FinalStatus string

const (
	FinalSuccess            FinalStatus = "Success"
	FinalSuccessWithRetries FinalStatus = "SuccessWithRetries"
	FinalFailure            FinalStatus = "Failure"
)

// Patterns is the post-loop pattern analysis.
type Patterns struct {
	ConsistentFailures    []string
	FlakyChecks           []string
	PerformanceBottlenecks []string
}

// PipelineContext is the validation pipeline's accumulated state.
type PipelineContext struct {
	PipelineIterations int
	TotalDurationMs    int64
	FinalStatus        FinalStatus
	Phase1Results      Phase1Results
	Phase2Attempts     []Phase2Attempt
	FilesModified      []string
	ChangesApplied     bool
	CriticalErrors      []string
	Warnings           []string
	Patterns           Patterns
}
