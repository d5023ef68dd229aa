// Package pipeline implements the two-phase validation pipeline (component
// 4.J), grounded on original_source's discord/self_update/pipeline.rs for
// the iteration loop and pattern analysis, and validation.rs for the
// concrete check implementations — adapted from cargo's toolchain to Go's:
// `go build` stands in for `cargo check`, `go test` for `cargo test`,
// `gofmt -l` for `cargo fmt --check`, `go vet` for `cargo clippy`, and a
// scan for exported identifiers without doc comments for `cargo doc`.
package pipeline

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
)

const (
	// MaxIterations bounds the Phase-1/Phase-2 loop.
	MaxIterations = 3
	// MaxRetriesPerCheck bounds how many times a single Phase-2 check may
	// retry internally (e.g. gofmt auto-fix) before giving up.
	MaxRetriesPerCheck = 3

	codeReviewBottleneckMs = 60_000
	testingBottleneckMs    = 120_000
)

// Phase1Check runs one Advanced-QA check against dir.
type Phase1Check func(ctx context.Context, dir string) selfupdate.CheckResult

// Phase2Check runs one Core-Compliance check against dir, retrying
// internally up to MaxRetriesPerCheck and reporting how many retries it
// used.
type Phase2Check func(ctx context.Context, dir string) selfupdate.CheckResult

// Pipeline runs the validation loop for a single working tree.
type Pipeline struct {
	dir          string
	phase1Checks map[string]Phase1Check
	phase2Checks []phase2Entry
}

type phase2Entry struct {
	name  string
	check Phase2Check
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithPhase1Check overrides the named Phase-1 Advanced-QA check. The
// executor (4.K) uses this to plug in subprocess-gateway-backed analysis
// (AnalyzeTask) in place of the structural-proxy defaults below, the same
// way original_source's validation.rs calls out to its AI client for each
// Phase-1 check rather than re-running the compiler.
func WithPhase1Check(name string, check Phase1Check) Option {
	return func(p *Pipeline) {
		p.phase1Checks[name] = check
	}
}

// New builds a Pipeline rooted at dir using the default Go-toolchain
// checks, optionally overridden by opts.
func New(dir string, opts ...Option) *Pipeline {
	p := &Pipeline{
		dir: dir,
		phase1Checks: map[string]Phase1Check{
			"code_review": codeReviewCheck,
			"testing":     testingAnalysisCheck,
			"security":    securityAuditCheck,
			"integration": integrationCheck,
		},
		phase2Checks: []phase2Entry{
			{"compilation", compilationCheck},
			{"tests", testsCheck},
			{"formatting", formattingCheck},
			{"lint", lintCheck},
			{"documentation", documentationCheck},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the Phase-1/Phase-2 loop described in and
// returns the accumulated PipelineContext.
func (p *Pipeline) Run(ctx context.Context) *selfupdate.PipelineContext {
	start := time.Now()
	pc := &selfupdate.PipelineContext{FinalStatus: selfupdate.FinalFailure}

	for pc.PipelineIterations < MaxIterations {
		pc.PipelineIterations++

		if pc.PipelineIterations == 1 {
			pc.Phase1Results = p.runPhase1(ctx)
			if hasCriticalPhase1Failures(pc.Phase1Results) {
				pc.FinalStatus = selfupdate.FinalFailure
				break
			}
		}

		attempt := p.runPhase2(ctx, pc.PipelineIterations)
		pc.Phase2Attempts = append(pc.Phase2Attempts, attempt)

		if allPhase2ChecksPassed(attempt) && !attempt.TriggeredLoop {
			if pc.PipelineIterations == 1 {
				pc.FinalStatus = selfupdate.FinalSuccess
			} else {
				pc.FinalStatus = selfupdate.FinalSuccessWithRetries
			}
			break
		}
		// any check that needed a retry loops back to Phase 1 on the next
		// iteration; the for-loop condition handles the MaxIterations cutoff.
	}

	pc.Patterns = analyzePatterns(pc)
	pc.TotalDurationMs = time.Since(start).Milliseconds()
	return pc
}

// hasCriticalPhase1Failures: security failed, OR two or more of
// {code review, testing, integration} failed.
func hasCriticalPhase1Failures(r selfupdate.Phase1Results) bool {
	if !r.Security.Passed {
		return true
	}
	failed := 0
	for _, c := range []selfupdate.CheckResult{r.CodeReview, r.Testing, r.Integration} {
		if !c.Passed {
			failed++
		}
	}
	return failed >= 2
}

func allPhase2ChecksPassed(attempt selfupdate.Phase2Attempt) bool {
	for _, c := range attempt.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

func (p *Pipeline) runPhase1(ctx context.Context) selfupdate.Phase1Results {
	return selfupdate.Phase1Results{
		CodeReview:  p.phase1Checks["code_review"](ctx, p.dir),
		Testing:     p.phase1Checks["testing"](ctx, p.dir),
		Security:    p.phase1Checks["security"](ctx, p.dir),
		Integration: p.phase1Checks["integration"](ctx, p.dir),
	}
}

func (p *Pipeline) runPhase2(ctx context.Context, iteration int) selfupdate.Phase2Attempt {
	attempt := selfupdate.Phase2Attempt{Iteration: iteration, Checks: make(map[string]selfupdate.CheckResult)}
	for _, entry := range p.phase2Checks {
		result := entry.check(ctx, p.dir)
		attempt.Checks[entry.name] = result
		if result.Retries > 0 {
			attempt.TriggeredLoop = true
		}
	}
	return attempt
}

// analyzePatterns implements its post-loop analysis: checks
// failing in every Phase-2 attempt are consistent_failures; checks failing
// in some but not all attempts are flaky_checks; any Phase-1 check whose
// duration exceeds its calibration threshold is a performance bottleneck.
func analyzePatterns(pc *selfupdate.PipelineContext) selfupdate.Patterns {
	var patterns selfupdate.Patterns
	if len(pc.Phase2Attempts) > 0 {
		failCounts := make(map[string]int)
		for _, attempt := range pc.Phase2Attempts {
			for name, result := range attempt.Checks {
				if !result.Passed {
					failCounts[name]++
				}
			}
		}
		for name, count := range failCounts {
			switch {
			case count == len(pc.Phase2Attempts):
				patterns.ConsistentFailures = append(patterns.ConsistentFailures, name)
			default:
				patterns.FlakyChecks = append(patterns.FlakyChecks, name)
			}
		}
	}

	if pc.Phase1Results.CodeReview.DurationMs > codeReviewBottleneckMs {
		patterns.PerformanceBottlenecks = append(patterns.PerformanceBottlenecks, "code_review")
	}
	if pc.Phase1Results.Testing.DurationMs > testingBottleneckMs {
		patterns.PerformanceBottlenecks = append(patterns.PerformanceBottlenecks, "testing")
	}

	return patterns
}

// runCommand is the shared exec helper for all checks below: argument
// vectors only, captured stdout/stderr, timed.
func runCommand(ctx context.Context, dir, name string, args ...string) (string, error, int64) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err, time.Since(start).Milliseconds()
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
