package pipeline

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
)

// --- Phase 1: Advanced Quality Assurance ---
//
// These are the defaults used when nothing overrides them via
// WithPhase1Check: cheap structural proxies for the LLM-backed review,
// analysis, and audit original_source's validation.rs runs through its AI
// client. The pipeline package does not import gateway/codegen, so the real
// AnalyzeTask-backed
// checks are built in internal/selfupdate/executor, which already imports
// both packages, and injected here by name. These defaults still apply
// whenever a Pipeline is built without that wiring (standalone tests, or
// a future caller with no subprocess gateway available), and each still
// records its real wall-clock duration so the performance-bottleneck
// calibration in analyzePatterns behaves correctly either way.

func codeReviewCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "go", "vet", "./...")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Findings: lines(out), DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

func testingAnalysisCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "go", "test", "./...", "-run", "xxNoSuchTestxx", "-list", ".*")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Findings: lines(out), DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

func securityAuditCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "gofmt", "-l", ".")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Findings: lines(out), DurationMs: ms}
	}
	// A non-empty file listing means files need formatting, not a security
	// problem per se, but in the absence of a dedicated vulnerability
	// scanner this doubles as a lightweight proxy for "nothing looks odd".
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

func integrationCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "go", "build", "./...")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Findings: lines(out), DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

// --- Phase 2: Core Compliance Checks ---

func compilationCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "go", "build", "./...")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Errors: lines(out), DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

func testsCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "go", "test", "./...")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Errors: lines(out), DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

// formattingCheck auto-fixes via `gofmt -w` and re-checks, up to
// MaxRetriesPerCheck times, mirroring the original's "formatting auto-fix"
// retry behavior.
func formattingCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	var totalMs int64
	for attempt := 0; attempt <= MaxRetriesPerCheck; attempt++ {
		out, err, ms := runCommand(ctx, dir, "gofmt", "-l", ".")
		totalMs += ms
		if err == nil && strings.TrimSpace(out) == "" {
			return selfupdate.CheckResult{Passed: true, Retries: attempt, DurationMs: totalMs}
		}
		if attempt == MaxRetriesPerCheck {
			return selfupdate.CheckResult{Passed: false, Errors: lines(out), Retries: attempt, DurationMs: totalMs}
		}
		_, _, fixMs := runCommand(ctx, dir, "gofmt", "-w", ".")
		totalMs += fixMs
	}
	return selfupdate.CheckResult{Passed: false, DurationMs: totalMs}
}

func lintCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	out, err, ms := runCommand(ctx, dir, "go", "vet", "./...")
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Errors: lines(out), DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

// documentationCheck is the Go-native stand-in for `cargo doc`: it walks
// the working tree's packages and flags exported top-level identifiers
// (funcs, types, consts, vars) that lack a doc comment, rather than merely
// re-running compilation.
func documentationCheck(ctx context.Context, dir string) selfupdate.CheckResult {
	start := time.Now()
	missing, err := undocumentedExports(dir)
	ms := time.Since(start).Milliseconds()
	if err != nil {
		return selfupdate.CheckResult{Passed: false, Errors: []string{err.Error()}, DurationMs: ms}
	}
	if len(missing) > 0 {
		return selfupdate.CheckResult{Passed: false, Errors: missing, DurationMs: ms}
	}
	return selfupdate.CheckResult{Passed: true, DurationMs: ms}
}

// undocumentedExports parses every non-test .go file under dir and reports
// one finding per exported top-level identifier that has no doc comment.
// Unexported identifiers, methods on unexported receiver types, and
// generated/vendored/example trees are skipped.
func undocumentedExports(dir string) ([]string, error) {
	var missing []string
	fset := token.NewFileSet()

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch name := d.Name(); {
			case path != dir && strings.HasPrefix(name, "."):
				return filepath.SkipDir
			case name == "_examples", name == "vendor", name == "node_modules", name == "testdata":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		file, perr := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if perr != nil {
			return perr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		for _, decl := range file.Decls {
			missing = append(missing, undocumentedInDecl(rel, decl)...)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return missing, nil
}

func undocumentedInDecl(rel string, decl ast.Decl) []string {
	var missing []string
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if !d.Name.IsExported() || !hasExportedOrNoReceiver(d.Recv) {
			return nil
		}
		if d.Doc == nil {
			missing = append(missing, fmt.Sprintf("%s: func %s missing doc comment", rel, d.Name.Name))
		}
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				if s.Name.IsExported() && d.Doc == nil && s.Doc == nil {
					missing = append(missing, fmt.Sprintf("%s: type %s missing doc comment", rel, s.Name.Name))
				}
			case *ast.ValueSpec:
				for _, name := range s.Names {
					if name.IsExported() && d.Doc == nil && s.Doc == nil {
						missing = append(missing, fmt.Sprintf("%s: %s missing doc comment", rel, name.Name))
					}
				}
			}
		}
	}
	return missing
}

func hasExportedOrNoReceiver(recv *ast.FieldList) bool {
	if recv == nil || len(recv.List) == 0 {
		return true
	}
	expr := recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	ident, ok := expr.(*ast.Ident)
	return !ok || ident.IsExported()
}
