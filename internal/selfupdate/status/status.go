// Package status implements the markdown-checklist status tracker
// (component 4.L), grounded on original_source's
// discord/self_update/status_tracker.rs: counters embedded as
// "<current>/<target> <item-text>" inside "- [ ]" checklist lines, flipped
// to "- [x]" once current reaches target, with a distinct failure marker.
package status

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// UpdateType names the checklist item a tracked update touches.
type UpdateType string

const (
	SimpleUpdate      UpdateType = "SimpleUpdate"
	TestModification  UpdateType = "TestModification"
	FeatureAddition   UpdateType = "FeatureAddition"
	DataLossIncident  UpdateType = "DataLossIncident"
)

// itemText maps each UpdateType to the checklist line it increments.
// DataLossIncident has no counter: it is tracked as a single boolean gate
// (zero_data_loss) rather than an N/M progress line.
var itemText = map[UpdateType]string{
	SimpleUpdate:     "simple updates implemented",
	TestModification: "test modifications implemented",
	FeatureAddition:  "feature additions implemented",
}

// targetCounts mirrors status_tracker.rs's phase-1-completeness thresholds.
var targetCounts = map[UpdateType]int{
	SimpleUpdate:     10,
	TestModification: 3,
	FeatureAddition:  1,
}

const dataLossLine = "- [x] zero data loss incidents"
const dataLossFailedLine = "- [ ] zero data loss incidents ❌ FAILED"

// Tracker persists progress to a markdown checklist file.
type Tracker struct {
	mu   sync.Mutex
	path string
}

// New creates a Tracker backed by the checklist file at path, seeding it
// with the canonical section if it does not yet exist.
func New(path string) (*Tracker, error) {
	t := &Tracker{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(initialChecklist()), 0o644); err != nil {
			return nil, fmt.Errorf("seed status file: %w", err)
		}
	}
	return t, nil
}

func initialChecklist() string {
	return "# Self-Update Implementation Progress\n\n" +
		"- [ ] simple updates implemented\n" +
		"- [ ] test modifications implemented\n" +
		"- [ ] feature additions implemented\n" +
		dataLossLine + "\n"
}

// counterPattern matches "- [ ] N/M <text>" or a bare "- [ ] <text>" line
// for the same text, case-sensitively on text.
func counterPattern(text string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^- \[( |x)\] (?:(\d+)/(\d+) )?` + regexp.QuoteMeta(text) + `\s*$`)
}

// Increment advances the checklist counter for updateType by one, flipping
// the checkbox to [x] once the target is reached. DataLossIncident is not
// incrementable; use MarkDataLoss instead.
func (t *Tracker) Increment(updateType UpdateType) error {
	text, ok := itemText[updateType]
	if !ok {
		return fmt.Errorf("update type %s has no incrementable checklist item", updateType)
	}
	target := targetCounts[updateType]

	t.mu.Lock()
	defer t.mu.Unlock()

	content, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read status file: %w", err)
	}

	re := counterPattern(text)
	match := re.FindStringSubmatchIndex(string(content))

	var newLine string
	if match == nil {
		newLine = fmt.Sprintf("- [ ] 1/%d %s", target, text)
		updated := strings.TrimRight(string(content), "\n") + "\n" + newLine + "\n"
		return os.WriteFile(t.path, []byte(updated), 0o644)
	}

	s := string(content)
	current := 0
	if match[4] != -1 {
		current, _ = strconv.Atoi(s[match[4]:match[5]])
	}
	current++

	if current >= target {
		newLine = fmt.Sprintf("- [x] %d/%d %s", target, target, text)
	} else {
		newLine = fmt.Sprintf("- [ ] %d/%d %s", current, target, text)
	}

	updated := s[:match[0]] + newLine + s[match[1]:]
	return os.WriteFile(t.path, []byte(updated), 0o644)
}

// MarkFailed replaces a completed checklist line "- [x] <item>" with a
// failure marker.
func (t *Tracker) MarkFailed(updateType UpdateType) error {
	text, ok := itemText[updateType]
	if !ok {
		return fmt.Errorf("update type %s has no checklist item to mark failed", updateType)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	content, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read status file: %w", err)
	}

	re := regexp.MustCompile(`(?m)^- \[x\] (?:\d+/\d+ )?` + regexp.QuoteMeta(text) + `\s*$`)
	loc := re.FindStringIndex(string(content))
	if loc == nil {
		return fmt.Errorf("no completed checklist entry for %s to mark failed", updateType)
	}

	line := string(content)[loc[0]:loc[1]]
	failed := strings.Replace(line, "- [x]", "- [ ]", 1) + " ❌ FAILED"
	updated := string(content)[:loc[0]] + failed + string(content)[loc[1]:]
	return os.WriteFile(t.path, []byte(updated), 0o644)
}

// MarkDataLoss flips the zero-data-loss gate to failed. This is irreversible
// for the lifetime of the tracked checklist: a data-loss incident is a
// hard invariant violation, never cleared automatically.
func (t *Tracker) MarkDataLoss() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	content, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read status file: %w", err)
	}
	if !strings.Contains(string(content), dataLossLine) {
		return nil
	}
	updated := strings.Replace(string(content), dataLossLine, dataLossFailedLine, 1)
	return os.WriteFile(t.path, []byte(updated), 0o644)
}

// Progress is the aggregate implementation progress (its configuration /
// ImplementationProgress).
type Progress struct {
	SimpleUpdates     int
	TestModifications int
	FeatureAdditions  int
	ZeroDataLoss      bool
}

// IsPhase1Complete reports the original's Phase-1 completeness gate: at
// least 10 simple updates, 3 test modifications, 1 feature addition, and no
// recorded data-loss incident.
func (p Progress) IsPhase1Complete() bool {
	return p.SimpleUpdates >= targetCounts[SimpleUpdate] &&
		p.TestModifications >= targetCounts[TestModification] &&
		p.FeatureAdditions >= targetCounts[FeatureAddition] &&
		p.ZeroDataLoss
}

// GetProgress reads and aggregates the checklist's current counters.
func (t *Tracker) GetProgress() (Progress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	content, err := os.ReadFile(t.path)
	if err != nil {
		return Progress{}, fmt.Errorf("read status file: %w", err)
	}
	s := string(content)

	p := Progress{ZeroDataLoss: !strings.Contains(s, dataLossFailedLine)}
	p.SimpleUpdates = extractCount(s, itemText[SimpleUpdate], targetCounts[SimpleUpdate])
	p.TestModifications = extractCount(s, itemText[TestModification], targetCounts[TestModification])
	p.FeatureAdditions = extractCount(s, itemText[FeatureAddition], targetCounts[FeatureAddition])
	return p, nil
}

func extractCount(content, text string, target int) int {
	re := counterPattern(text)
	match := re.FindStringSubmatchIndex(content)
	if match == nil {
		return 0
	}
	if match[4] == -1 {
		// matched with no counter line ever written: treat [x] as fully
		// complete, [ ] as zero.
		if strings.HasPrefix(content[match[0]:match[1]], "- [x]") {
			return target
		}
		return 0
	}
	current, _ := strconv.Atoi(content[match[4]:match[5]])
	return current
}
