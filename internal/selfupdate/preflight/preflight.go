// Package preflight implements the self-update executor's first step
//, grounded on original_source's
// discord/self_update/validation.rs PreflightChecker and UpdateValidator:
// tool availability, repository cleanliness, disk-space headroom, and
// request content validation.
package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
)

// MinFreeDiskMB is the minimum acceptable free disk space headroom.
const MinFreeDiskMB = 100

// dangerousPatterns mirrors UpdateValidator's denylist exactly.
var dangerousPatterns = []string{
	"rm -rf",
	"format c:",
	"del /f",
	"drop table",
	"delete from",
	"../../../",
	"etc/passwd",
	"cmd.exe",
	"/bin/sh",
}

// Checker runs preflight checks rooted at a working directory.
type Checker struct {
	dir string
}

// New creates a Checker rooted at dir.
func New(dir string) *Checker {
	return &Checker{dir: dir}
}

// CheckToolsAvailable verifies git and go are on PATH.
func (c *Checker) CheckToolsAvailable() error {
	for _, tool := range []string{"git", "go"} {
		if _, err := exec.LookPath(tool); err != nil {
			return ozerr.Wrap(ozerr.SystemError, fmt.Sprintf("required tool %q not found", tool), err)
		}
	}
	return nil
}

// CheckRepositoryClean verifies there are no unresolved merge-conflict
// markers (porcelain status codes UU/AA/DD).
func (c *Checker) CheckRepositoryClean(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = c.dir
	out, err := cmd.Output()
	if err != nil {
		return ozerr.Wrap(ozerr.SystemError, "check repository status", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 2 {
			continue
		}
		code := line[:2]
		if code == "UU" || code == "AA" || code == "DD" {
			return ozerr.New(ozerr.Validation, "repository has unresolved merge conflicts")
		}
	}
	return nil
}

// CheckDiskSpace verifies at least MinFreeDiskMB of free space at dir,
// parsed from `df -Pm`'s portable output format.
func (c *Checker) CheckDiskSpace(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "df", "-Pm", c.dir)
	out, err := cmd.Output()
	if err != nil {
		return ozerr.Wrap(ozerr.SystemError, "check disk space", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return ozerr.New(ozerr.SystemError, "unexpected df output")
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 4 {
		return ozerr.New(ozerr.SystemError, "unexpected df output")
	}
	availMB, err := strconv.Atoi(fields[3])
	if err != nil {
		return ozerr.Wrap(ozerr.SystemError, "parse df available space", err)
	}
	if availMB < MinFreeDiskMB {
		return ozerr.New(ozerr.Validation, fmt.Sprintf("only %dMB free, need at least %dMB", availMB, MinFreeDiskMB))
	}
	return nil
}

// ValidateRequest checks description for dangerous patterns and a minimum
// token count, mirroring UpdateValidator.validate_request.
func ValidateRequest(description string) error {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return ozerr.New(ozerr.Validation, "update description must not be empty")
	}
	lower := strings.ToLower(trimmed)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return ozerr.New(ozerr.Validation, fmt.Sprintf("description contains disallowed pattern %q", pattern))
		}
	}
	if len(strings.Fields(trimmed)) < 3 {
		return ozerr.New(ozerr.Validation, "update description must contain at least 3 tokens")
	}
	return nil
}

// Run executes all preflight checks in order and returns the first failure.
func (c *Checker) Run(ctx context.Context, description string) error {
	if err := c.CheckToolsAvailable(); err != nil {
		return err
	}
	if err := c.CheckRepositoryClean(ctx); err != nil {
		return err
	}
	if err := c.CheckDiskSpace(ctx); err != nil {
		return err
	}
	return ValidateRequest(description)
}
