// Package scope implements the unified-diff scope limiter (component 4.I),
// grounded on original_source's discord/self_update/scope_limiter.rs.
package scope

import (
	"fmt"
	"strings"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
)

// Limits bounds the size of a diff's ChangeScope.
type Limits struct {
	MaxModifiedFiles int
	MaxCreatedFiles  int
	MaxDeletedFiles  int
	MaxLinesPerFile  int
	MaxTotalLines    int
}

// DefaultLimits returns its stated defaults.
func DefaultLimits() Limits {
	return Limits{MaxModifiedFiles: 20, MaxCreatedFiles: 10, MaxDeletedFiles: 5, MaxLinesPerFile: 500, MaxTotalLines: 2000}
}

var protectedPathPrefixes = []string{".git", ".env", "target", "node_modules", ".claude"}

var sensitiveExtensions = []string{".env", ".key", ".pem", ".cert", ".secret"}

// ParseDiff builds a ChangeScope from a unified diff,
// exact header/line rules: files are enumerated from "diff --git" headers;
// "new file mode" marks a create, "deleted file mode" marks a delete,
// otherwise modify; lines starting with "+" (not "+++") count as additions
// and "-" (not "---") as deletions, both contributing to that file's
// lines_changed.
func ParseDiff(diff string) *selfupdate.ChangeScope {
	scope := &selfupdate.ChangeScope{LinesPerFile: make(map[string]int)}

	var current string
	var kind string // "modify" | "create" | "delete"

	flush := func() {
		if current == "" {
			return
		}
		switch kind {
		case "create":
			scope.CreatedFiles = append(scope.CreatedFiles, current)
		case "delete":
			scope.DeletedFiles = append(scope.DeletedFiles, current)
		default:
			scope.ModifiedFiles = append(scope.ModifiedFiles, current)
		}
	}

	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			current = parseDiffGitPath(line)
			kind = "modify"
		case strings.HasPrefix(line, "new file mode"):
			kind = "create"
		case strings.HasPrefix(line, "deleted file mode"):
			kind = "delete"
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// header lines, not content changes
		case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
			if current != "" {
				scope.LinesPerFile[current]++
				scope.TotalLinesChanged++
			}
		}
	}
	flush()

	return scope
}

// parseDiffGitPath extracts the "b/" side path from a "diff --git a/x b/x"
// header line.
func parseDiffGitPath(line string) string {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if strings.HasPrefix(fields[i], "b/") {
			return strings.TrimPrefix(fields[i], "b/")
		}
	}
	if len(fields) > 0 {
		return fields[len(fields)-1]
	}
	return ""
}

func hasProtectedPrefix(path string) bool {
	for _, prefix := range protectedPathPrefixes {
		if strings.HasPrefix(path, prefix) || strings.Contains(path, "/"+prefix+"/") || strings.Contains(path, "/"+prefix) {
			return true
		}
	}
	return false
}

func hasSensitiveExtension(path string) bool {
	for _, ext := range sensitiveExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Check evaluates scope against limits. Violations of hard limits or
// protected paths return an error naming the first violation found;
// sensitive extensions are collected as warnings only.
func Check(s *selfupdate.ChangeScope, limits Limits) (warnings []string, err error) {
	for _, path := range s.ModifiedFiles {
		if hasProtectedPrefix(path) {
			return nil, ozerr.New(ozerr.Validation, fmt.Sprintf("protected path %q must not be modified", path))
		}
		if hasSensitiveExtension(path) {
			warnings = append(warnings, fmt.Sprintf("modifying sensitive file %q", path))
		}
	}
	for _, path := range s.DeletedFiles {
		if hasProtectedPrefix(path) {
			return nil, ozerr.New(ozerr.Validation, fmt.Sprintf("protected path %q must not be deleted", path))
		}
	}
	for _, path := range s.CreatedFiles {
		if hasSensitiveExtension(path) {
			warnings = append(warnings, fmt.Sprintf("creating sensitive file %q", path))
		}
	}

	if len(s.ModifiedFiles) > limits.MaxModifiedFiles {
		return warnings, ozerr.New(ozerr.Validation, fmt.Sprintf("modified file count %d exceeds limit %d", len(s.ModifiedFiles), limits.MaxModifiedFiles))
	}
	if len(s.CreatedFiles) > limits.MaxCreatedFiles {
		return warnings, ozerr.New(ozerr.Validation, fmt.Sprintf("created file count %d exceeds limit %d", len(s.CreatedFiles), limits.MaxCreatedFiles))
	}
	if len(s.DeletedFiles) > limits.MaxDeletedFiles {
		return warnings, ozerr.New(ozerr.Validation, fmt.Sprintf("deleted file count %d exceeds limit %d", len(s.DeletedFiles), limits.MaxDeletedFiles))
	}
	for path, lines := range s.LinesPerFile {
		if lines > limits.MaxLinesPerFile {
			return warnings, ozerr.New(ozerr.Validation, fmt.Sprintf("file %q changed %d lines, exceeds per-file limit %d", path, lines, limits.MaxLinesPerFile))
		}
	}
	if s.TotalLinesChanged > limits.MaxTotalLines {
		return warnings, ozerr.New(ozerr.Validation, fmt.Sprintf("total changed lines %d exceeds limit %d", s.TotalLinesChanged, limits.MaxTotalLines))
	}

	return warnings, nil
}
