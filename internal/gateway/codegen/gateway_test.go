package codegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/breaker"
	"github.com/dohr-michael/ozchestrator/internal/workspace"
)

// writeFakeCLI writes an executable shell script that stands in for the
// external code-generation CLI, echoing a canned JSON response regardless of
// the flags it receives (tests only care that the gateway shapes the
// invocation and parses the result correctly).
func writeFakeCLI(t *testing.T, dir, result string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-claude.sh")
	script := fmt.Sprintf(`#!/bin/sh
cat > /dev/null
printf '%s'
`, fmt.Sprintf(`{"type":"result","subtype":"success","is_error":false,"duration_ms":1,"duration_api_ms":1,"num_turns":1,"result":%q,"session_id":"sess-1","total_cost_usd":0,"usage":{"input_tokens":1,"output_tokens":1}}`, result))
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	return path
}

func newTestGateway(t *testing.T, result string) *Gateway {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	bin := writeFakeCLI(t, dir, result)
	ws, err := workspace.NewManager("work", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	br := breaker.New(breaker.DefaultConfig())
	gw, err := New(Config{BinaryPath: bin, Timeout: 5 * time.Second, PermissionMode: "default"}, br, ws)
	if err != nil {
		t.Fatalf("New gateway: %v", err)
	}
	return gw
}

func TestInvokeParsesResponse(t *testing.T) {
	gw := newTestGateway(t, "package main")

	res, err := gw.Invoke(context.Background(), Request{Prompt: "print hello", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Response.Result != "package main" {
		t.Fatalf("unexpected result: %q", res.Response.Result)
	}
	if res.WorkspacePath == "" {
		t.Fatalf("expected workspace path to be set")
	}
}

func TestInvokeDetectsHardFailurePhrase(t *testing.T) {
	gw := newTestGateway(t, "rate limit exceeded, try later")

	_, err := gw.Invoke(context.Background(), Request{Prompt: "print hello"})
	if err == nil {
		t.Fatalf("expected hard-error phrase to produce an error")
	}
}

func TestInvokeCollectsSoftWarnings(t *testing.T) {
	gw := newTestGateway(t, "cannot write to that file, access denied")

	res, err := gw.Invoke(context.Background(), Request{Prompt: "print hello"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected soft-warning phrases to be collected")
	}
}

func TestDetectLanguageLowercasesFirstWord(t *testing.T) {
	gw := newTestGateway(t, "Go is a great fit here")

	lang, err := gw.DetectLanguage(context.Background(), "func main() {}", "")
	if err != nil {
		t.Fatalf("DetectLanguage: %v", err)
	}
	if lang != "go" {
		t.Fatalf("expected lowercased first word, got %q", lang)
	}
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	bin := writeFakeCLI(t, dir, "quota exceeded for this account")
	ws, err := workspace.NewManager("work", time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	br := breaker.New(breaker.Config{FailureThreshold: 1, SuccessThreshold: 2, TimeoutDuration: time.Hour, FailureWindow: time.Hour})
	gw, err := New(Config{BinaryPath: bin, Timeout: 5 * time.Second, PermissionMode: "default"}, br, ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := gw.Invoke(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected failure on first call")
	}
	if _, err := gw.Invoke(context.Background(), Request{Prompt: "x"}); err == nil || br.State() != breaker.Open {
		t.Fatalf("expected circuit open and ServiceUnavailable on second call, state=%s err=%v", br.State(), err)
	}
}
