// Package workspace implements the per-session scratch directory manager
// (component 4.B): a per-session directory layout (session id -> directory,
// idempotent create, os.MkdirAll) serving code-generation scratch
// workspaces.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
)

// SessionWorkspace is the data-model type for one isolated session directory.
type SessionWorkspace struct {
	SessionID string
	Path      string
	CreatedAt time.Time
}

// Stats reports aggregate numbers for operational visibility.
type Stats struct {
	TotalWorkspaces      int
	TotalSizeMB          float64
	OldestWorkspaceAgeHr float64
}

// Manager owns the process-wide workspace root
// (<cwd>/<subdir>/claude-workspaces).
type Manager struct {
	mu     sync.Mutex
	root   string
	byID   map[string]*SessionWorkspace
	maxAge time.Duration
}

// NewManager creates a Manager rooted at <cwd>/subdir/claude-workspaces.
// cleanupAfter is the age threshold used by Cleanup.
func NewManager(subdir string, cleanupAfter time.Duration) (*Manager, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, ozerr.Wrap(ozerr.SystemError, "resolve working directory", err)
	}
	root := filepath.Join(cwd, subdir, "claude-workspaces")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ozerr.Wrap(ozerr.SystemError, "create workspace root", err)
	}
	return &Manager{root: root, byID: make(map[string]*SessionWorkspace), maxAge: cleanupAfter}, nil
}

// GetOrCreate returns the workspace for sessionID, minting a fresh UUID when
// sessionID is empty. Creation is idempotent: calling it twice for the same
// id returns the same path with isNew=false on the second call.
func (m *Manager) GetOrCreate(sessionID string) (ws *SessionWorkspace, isNew bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	if existing, ok := m.byID[sessionID]; ok {
		return existing, false, nil
	}

	path := filepath.Join(m.root, "session-"+sessionID)
	_, statErr := os.Stat(path)
	preexisted := statErr == nil

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, ozerr.Wrap(ozerr.SystemError, "create session workspace", err)
	}

	ws = &SessionWorkspace{SessionID: sessionID, Path: path, CreatedAt: time.Now()}
	m.byID[sessionID] = ws
	return ws, !preexisted, nil
}

// Cleanup removes workspace directories older than the configured
// cleanup-after threshold.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return ozerr.Wrap(ozerr.SystemError, "read workspace root", err)
	}

	cutoff := time.Now().Add(-m.maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		full := filepath.Join(m.root, entry.Name())
		if err := os.RemoveAll(full); err != nil {
			return ozerr.Wrap(ozerr.SystemError, fmt.Sprintf("remove workspace %s", entry.Name()), err)
		}
		delete(m.byID, sessionIDFromDir(entry.Name()))
	}
	return nil
}

// Stats reports workspace counts, disk usage, and the oldest workspace's age.
func (m *Manager) Stats() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return Stats{}, ozerr.Wrap(ozerr.SystemError, "read workspace root", err)
	}

	var (
		total    int
		sizeBytes int64
		oldest   time.Time
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		total++
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if oldest.IsZero() || info.ModTime().Before(oldest) {
			oldest = info.ModTime()
		}
		full := filepath.Join(m.root, entry.Name())
		sizeBytes += dirSize(full)
	}

	var oldestAgeHr float64
	if !oldest.IsZero() {
		oldestAgeHr = time.Since(oldest).Hours()
	}

	return Stats{
		TotalWorkspaces:      total,
		TotalSizeMB:          float64(sizeBytes) / (1024 * 1024),
		OldestWorkspaceAgeHr: oldestAgeHr,
	}, nil
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size
}

func sessionIDFromDir(name string) string {
	const prefix = "session-"
	if len(name) > len(prefix) && name[:len(prefix)] == prefix {
		return name[len(prefix):]
	}
	return name
}
