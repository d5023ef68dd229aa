// Package codegen implements the subprocess gateway (component 4.C): a
// session-keyed, workspace-isolated wrapper around an external
// code-generation CLI, guarded by a circuit breaker with permission-mode
// fallback.
//
// The spawn pattern (context timeout, stdout/stderr buffers, argument
// vectors, exit-code handling) follows the same os/exec idiom used
// elsewhere in this codebase for subprocess-backed work. The exact flag
// set, JSON response shape, and resume/continue arm logic are grounded on
// original_source/src/claude_code/cli_client.rs.
package codegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/breaker"
	"github.com/dohr-michael/ozchestrator/internal/ozerr"
	"github.com/dohr-michael/ozchestrator/internal/workspace"
)

// Config tunes binary discovery and default invocation flags.
type Config struct {
	BinaryPath     string        // explicit override; empty triggers auto-discovery
	Timeout        time.Duration // wall-clock budget per invocation
	PermissionMode string        // default permission mode flag value
	AllowedTools   []string      // CSV passed through via --allowedTools
}

// DefaultConfig mirrors the documented environment-style defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        120 * time.Second,
		PermissionMode: "default",
	}
}

// standardSearchPaths is the short list of install locations consulted when
// BinaryPath is not set.
var standardSearchPaths = []string{
	"/usr/local/bin/claude",
	"/opt/homebrew/bin/claude",
}

// Usage mirrors the subprocess contract's usage sub-object.
type Usage struct {
	InputTokens              int    `json:"input_tokens"`
	CacheCreationInputTokens *int   `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int   `json:"cache_read_input_tokens,omitempty"`
	OutputTokens             int    `json:"output_tokens"`
	ServerToolUse            any    `json:"server_tool_use,omitempty"`
	ServiceTier              string `json:"service_tier,omitempty"`
}

// Response is the exact JSON shape produced by the external CLI.
type Response struct {
	Type          string  `json:"type"`
	Subtype       string  `json:"subtype"`
	IsError       bool    `json:"is_error"`
	DurationMs    int64   `json:"duration_ms"`
	DurationAPIMs int64   `json:"duration_api_ms"`
	NumTurns      int     `json:"num_turns"`
	Result        string  `json:"result"`
	SessionID     string  `json:"session_id"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	Usage         Usage   `json:"usage"`
}

// limitation phrases scanned case-insensitively in Response.Result.
var (
	hardErrorPhrases = []string{"timeout", "quota exceeded", "rate limit"}
	softWarnPhrases  = []string{"cannot write", "cannot read", "cannot execute", "access denied", "permission"}
	inabilityPhrases = []string{"i cannot", "unable to", "can't do"}
)

// Gateway wraps the external code-generation CLI.
type Gateway struct {
	cfg     Config
	breaker *breaker.Breaker
	ws      *workspace.Manager
	binary  string
}

// New resolves the CLI binary and constructs a Gateway.
func New(cfg Config, br *breaker.Breaker, ws *workspace.Manager) (*Gateway, error) {
	bin, err := resolveBinary(cfg.BinaryPath)
	if err != nil {
		return nil, err
	}
	return &Gateway{cfg: cfg, breaker: br, ws: ws, binary: bin}, nil
}

func resolveBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if path, err := exec.LookPath("claude"); err == nil {
		return path, nil
	}
	for _, candidate := range standardSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ozerr.New(ozerr.SystemError, "code-generation CLI not found on PATH or standard install locations")
}

// Request is one invocation of the subprocess gateway.
type Request struct {
	Prompt         string
	SessionID      string // optional
	PermissionMode string // empty uses cfg default
}

// Result is the gateway's outward-facing answer, after limitation scanning.
type Result struct {
	Response      Response
	Warnings      []string
	Inabilities   []string
	WorkspacePath string
}

// Invoke runs the full subprocess gateway contract: breaker check, workspace
// resolution, spawn, parse, limitation scan, and permission-mode fallback.
func (g *Gateway) Invoke(ctx context.Context, req Request) (*Result, error) {
	if !g.breaker.Allow() {
		return nil, ozerr.New(ozerr.ServiceUnavailable, "circuit breaker open")
	}

	ws, isNew, err := g.ws.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, err
	}

	mode := req.PermissionMode
	if mode == "" {
		mode = g.cfg.PermissionMode
	}

	resp, runErr := g.run(ctx, req, ws.Path, mode, req.SessionID != "" && !isNew, req.SessionID == "" && !isNew)
	if runErr != nil {
		if isPermissionFailure(runErr) && mode != "bypassPermissions" {
			slog.Warn("code-generation permission retry",
				"prompt_length", len(req.Prompt),
				"session_id", req.SessionID,
				"timestamp", time.Now().Format(time.RFC3339))
			resp, runErr = g.run(ctx, req, ws.Path, "bypassPermissions", req.SessionID != "" && !isNew, req.SessionID == "" && !isNew)
		}
		if runErr != nil {
			g.breaker.RecordFailure()
			return nil, ozerr.Wrap(ozerr.Agent, "code-generation subprocess failed", runErr)
		}
	}

	result := &Result{Response: *resp, WorkspacePath: ws.Path}
	lower := strings.ToLower(resp.Result)
	for _, phrase := range hardErrorPhrases {
		if strings.Contains(lower, phrase) {
			g.breaker.RecordFailure()
			return result, ozerr.New(ozerr.Agent, fmt.Sprintf("subprocess reported limitation: %s", phrase))
		}
	}
	for _, phrase := range softWarnPhrases {
		if strings.Contains(lower, phrase) {
			result.Warnings = append(result.Warnings, phrase)
		}
	}
	for _, phrase := range inabilityPhrases {
		if strings.Contains(lower, phrase) {
			result.Inabilities = append(result.Inabilities, phrase)
		}
	}

	g.breaker.RecordSuccess()
	return result, nil
}

func isPermissionFailure(err error) bool {
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "permission") || strings.Contains(lower, "access")
}

func (g *Gateway) run(ctx context.Context, req Request, workspacePath, mode string, resume, cont bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	args := []string{"--print", "--output-format", "json", "--permission-mode", mode}
	if len(g.cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(g.cfg.AllowedTools, ","))
	}
	args = append(args, "--add-dir", workspacePath)
	switch {
	case resume:
		args = append(args, "--resume", req.SessionID)
	case cont:
		args = append(args, "--continue")
	}

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = workspacePath

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin: %w", err)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start subprocess: %w", err)
	}
	if _, err := stdin.Write([]byte(req.Prompt)); err != nil {
		return nil, fmt.Errorf("write prompt: %w", err)
	}
	if err := stdin.Close(); err != nil {
		return nil, fmt.Errorf("close stdin: %w", err)
	}

	waitErr := cmd.Wait()
	if waitErr != nil {
		return nil, fmt.Errorf("subprocess exited non-zero: %w (stderr: %s)", waitErr, stderr.String())
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse subprocess JSON: %w", err)
	}
	return &resp, nil
}

// GenerateCode asks the subprocess to produce code for request, optionally
// continuing session.
func (g *Gateway) GenerateCode(ctx context.Context, request, sessionID string) (*Result, error) {
	return g.Invoke(ctx, Request{Prompt: request, SessionID: sessionID})
}

// DetectLanguage returns the first lowercased word of the subprocess result.
func (g *Gateway) DetectLanguage(ctx context.Context, snippet, context_ string) (string, error) {
	prompt := fmt.Sprintf("Identify the programming language of the following snippet. Respond with just the language name.\nContext: %s\n\n%s", context_, snippet)
	res, err := g.Invoke(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", err
	}
	fields := strings.Fields(res.Response.Result)
	if len(fields) == 0 {
		return "", ozerr.New(ozerr.Agent, "empty language-detection result")
	}
	return strings.ToLower(fields[0]), nil
}

// TaskAnalysis is the structured summary AnalyzeTask extracts from a
// subprocess response (spec.md §6: {complexity, estimated_minutes,
// required_skills, challenges, approach}).
type TaskAnalysis struct {
	Complexity       string
	EstimatedMinutes int
	RequiredSkills   []string
	Challenges       []string
	Approach         string
}

// defaultEstimatedMinutes is the disclosed stand-in time estimate, matching
// the original's own extract_time_estimate stub (cli_client.rs), which
// never actually reads the response text and always returns 30.
const defaultEstimatedMinutes = 30

// AnalyzeTask asks the subprocess to reason about a task description and
// extracts a structured summary by keyword scanning the result.
func (g *Gateway) AnalyzeTask(ctx context.Context, description, context_ string) (*TaskAnalysis, error) {
	prompt := fmt.Sprintf("Analyze this task for complexity, required skills, and challenges. Task: %s\nContext: %s", description, context_)
	res, err := g.Invoke(ctx, Request{Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return extractAnalysis(res.Response.Result), nil
}

func extractAnalysis(result string) *TaskAnalysis {
	lower := strings.ToLower(result)
	analysis := &TaskAnalysis{Complexity: "medium", EstimatedMinutes: defaultEstimatedMinutes}

	switch {
	case strings.Contains(lower, "complex") || strings.Contains(lower, "difficult"):
		analysis.Complexity = "high"
	case strings.Contains(lower, "simple") || strings.Contains(lower, "easy"):
		analysis.Complexity = "low"
	}

	for _, line := range strings.Split(result, "\n") {
		trimmed := strings.TrimSpace(line)
		lowerLine := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lowerLine, "skill"):
			analysis.RequiredSkills = append(analysis.RequiredSkills, trimmed)
		case strings.HasPrefix(lowerLine, "challenge"):
			analysis.Challenges = append(analysis.Challenges, trimmed)
		case strings.HasPrefix(lowerLine, "approach"):
			analysis.Approach = trimmed
		}
	}
	return analysis
}
