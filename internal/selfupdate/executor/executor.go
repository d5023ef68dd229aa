// Package executor implements the self-update executor (component 4.K):
// the per-request state machine that drives preflight, snapshot, planning,
// approval, execution, validation, and commit/rollback in order, grounded
// on original_source's discord/self_update/orchestrator.rs control flow.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/ozchestrator/internal/gateway/codegen"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/approval"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/pipeline"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/preflight"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/queue"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/scope"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate/status"
	"github.com/dohr-michael/ozchestrator/internal/vcs"
)

// Executor wires together every self-update component behind one
// process(request) state machine.
type Executor struct {
	dir       string
	queue     *queue.Queue
	vcs       *vcs.Adapter
	gw        *codegen.Gateway
	approvals *approval.Manager
	tracker   *status.Tracker
	scopeCfg  scope.Limits
}

// New builds an Executor rooted at a repository working tree.
func New(dir string, q *queue.Queue, v *vcs.Adapter, gw *codegen.Gateway, approvals *approval.Manager, tracker *status.Tracker) *Executor {
	return &Executor{dir: dir, queue: q, vcs: v, gw: gw, approvals: approvals, tracker: tracker, scopeCfg: scope.DefaultLimits()}
}

// Run drives a concurrency-capped worker set (component 4.G's
// max_concurrent, default 3) that pops and processes requests from the
// queue until ctx is cancelled. Each worker polls independently; Queue.Next
// itself enforces the concurrency cap, so workers beyond the cap simply
// find nothing to pop.
func (e *Executor) Run(ctx context.Context, pollInterval time.Duration) {
	workers := e.queue.Status().MaxConcurrent
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			e.runWorker(gctx, pollInterval)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Executor) runWorker(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := e.queue.Next()
			if req == nil {
				continue
			}
			e.process(ctx, req)
		}
	}
}

// process carries req through its ordered steps, never leaving
// the working tree mutated without either a commit or a rollback.
func (e *Executor) process(ctx context.Context, req *selfupdate.Request) {
	if err := e.preflight(ctx, req); err != nil {
		e.fail(req, "preflight failed: "+err.Error(), false)
		return
	}

	req.Status = selfupdate.StatusCreatingSnapshot
	snapshotID, err := e.vcs.Snapshot(ctx, req.Codename)
	if err != nil {
		e.fail(req, "snapshot failed: "+err.Error(), false)
		return
	}
	req.SnapshotID = snapshotID

	req.Status = selfupdate.StatusPlanning
	plan, err := e.plan(ctx, req)
	if err != nil {
		e.fail(req, "planning failed: "+err.Error(), false)
		return
	}

	req.Status = selfupdate.StatusAwaitingApproval
	outcome, detail, err := e.awaitApproval(ctx, req, plan)
	if err != nil {
		e.fail(req, "approval wait failed: "+err.Error(), false)
		return
	}
	switch outcome {
	case approval.Rejected:
		e.fail(req, "rejected by reviewer: "+detail, false)
		return
	case approval.TimedOut:
		e.fail(req, "approval timed out", false)
		return
	case approval.ModifyRequested:
		e.fail(req, "modification requested: "+detail, false)
		return
	case approval.Approved:
		// continue
	}

	req.Status = selfupdate.StatusExecuting
	diff, err := e.execute(ctx, req, plan)
	if err != nil {
		e.rollbackAndFail(ctx, req, "execution failed: "+err.Error())
		return
	}

	changeScope := scope.ParseDiff(diff)
	if _, err := scope.Check(changeScope, e.scopeCfg); err != nil {
		e.rollbackAndFail(ctx, req, "scope violation: "+err.Error())
		return
	}

	req.Status = selfupdate.StatusValidating
	pc := pipeline.New(e.dir,
		pipeline.WithPhase1Check("code_review", e.analysisCheck(
			"Review the working tree's pending changes for code quality, style, and maintainability issues.")),
		pipeline.WithPhase1Check("testing", e.analysisCheck(
			"Assess whether the working tree's pending changes are adequately covered by tests and identify any coverage gaps.")),
		pipeline.WithPhase1Check("security", e.analysisCheck(
			"Audit the working tree's pending changes for security vulnerabilities, unsafe input handling, or leaked credentials.")),
		pipeline.WithPhase1Check("integration", e.analysisCheck(
			"Assess whether the working tree's pending changes integrate cleanly with the rest of the codebase without breaking existing behavior.")),
	).Run(ctx)

	switch pc.FinalStatus {
	case selfupdate.FinalSuccess, selfupdate.FinalSuccessWithRetries:
		if _, err := e.vcs.CommitValidated(ctx, req.Codename, req.Description); err != nil {
			e.rollbackAndFail(ctx, req, "commit failed: "+err.Error())
			return
		}
		if err := e.vcs.Push(ctx, ""); err != nil {
			e.rollbackAndFail(ctx, req, "push failed: "+err.Error())
			return
		}
		req.Status = selfupdate.StatusCompleted
		e.queue.Complete(req.ID)
		if e.tracker != nil {
			_ = e.tracker.Increment(status.SimpleUpdate)
		}
	default:
		e.rollbackAndFail(ctx, req, "validation failed")
	}
}

// analysisCheck builds a Phase1Check that asks the subprocess gateway to
// reason about the pending change under the given focus, rather than
// re-running the Go toolchain the way Phase 2 already does. A high
// complexity rating or any raised challenge fails the check so it behaves
// like the critical-failure gate hasCriticalPhase1Failures expects.
func (e *Executor) analysisCheck(prompt string) pipeline.Phase1Check {
	return func(ctx context.Context, dir string) selfupdate.CheckResult {
		start := time.Now()
		analysis, err := e.gw.AnalyzeTask(ctx, prompt, dir)
		ms := time.Since(start).Milliseconds()
		if err != nil {
			return selfupdate.CheckResult{Passed: false, Findings: []string{err.Error()}, DurationMs: ms}
		}
		if analysis.Complexity == "high" || len(analysis.Challenges) > 0 {
			return selfupdate.CheckResult{Passed: false, Findings: analysis.Challenges, DurationMs: ms}
		}
		return selfupdate.CheckResult{Passed: true, DurationMs: ms}
	}
}

func (e *Executor) preflight(ctx context.Context, req *selfupdate.Request) error {
	return preflight.New(e.dir).Run(ctx, req.Description)
}

// plan calls the subprocess gateway with a planning prompt and builds an
// ImplementationPlan from the result. Parsing is minimal: the summary is
// the raw result text and risk is derived from its length (over 2000 bytes
// is High, over 500 is Medium, otherwise Low); no other plan field is
// parsed from the result text.
func (e *Executor) plan(ctx context.Context, req *selfupdate.Request) (*selfupdate.ImplementationPlan, error) {
	prompt := fmt.Sprintf("Plan the following self-update without writing any files yet:\n\n%s", req.Description)
	res, err := e.gw.GenerateCode(ctx, prompt, "")
	if err != nil {
		return nil, err
	}

	risk := selfupdate.RiskLow
	if len(res.Response.Result) > 2000 {
		risk = selfupdate.RiskHigh
	} else if len(res.Response.Result) > 500 {
		risk = selfupdate.RiskMedium
	}

	return &selfupdate.ImplementationPlan{
		PlanID:         req.ID + "-plan",
		RequestID:      req.ID,
		Summary:        res.Response.Result,
		RiskLevel:      risk,
		ApprovalStatus: selfupdate.ApprovalPending,
	}, nil
}

func (e *Executor) awaitApproval(ctx context.Context, req *selfupdate.Request, plan *selfupdate.ImplementationPlan) (approval.Outcome, string, error) {
	planMessageID := plan.PlanID
	e.approvals.Register(plan, req.ID, req.UserID, req.ChannelID, planMessageID)
	return e.approvals.Wait(ctx, planMessageID)
}

// execute invokes the subprocess gateway to draft the implementation, then
// returns the unified diff of its changes against the pre-execution
// snapshot. Diff derivation is delegated to the version-control adapter's
// underlying tool rather than duplicated here.
func (e *Executor) execute(ctx context.Context, req *selfupdate.Request, plan *selfupdate.ImplementationPlan) (string, error) {
	prompt := fmt.Sprintf("Implement the following plan:\n\n%s", plan.Summary)
	if _, err := e.gw.GenerateCode(ctx, prompt, req.ID); err != nil {
		return "", err
	}
	return e.vcs.Diff(ctx)
}

func (e *Executor) rollbackAndFail(ctx context.Context, req *selfupdate.Request, reason string) {
	if req.SnapshotID != "" {
		if err := e.vcs.Rollback(ctx, req.SnapshotID); err != nil {
			reason = reason + "; rollback also failed: " + err.Error()
			req.Status = selfupdate.StatusFailed
			req.FailureReason = reason
			e.queue.Fail(req.ID, true)
			if e.tracker != nil {
				_ = e.tracker.MarkDataLoss()
			}
			return
		}
	}
	req.Status = selfupdate.StatusRolledBack
	req.FailureReason = reason
	e.queue.Fail(req.ID, false)
}

func (e *Executor) fail(req *selfupdate.Request, reason string, clearQueue bool) {
	req.Status = selfupdate.StatusFailed
	req.FailureReason = reason
	e.queue.Fail(req.ID, clearQueue)
}
