// Package approval implements the human approval gate (component 4.H),
// grounded on original_source's discord/self_update/approval.rs: a
// plan-message-id keyed pending map, prefix-matched text commands, a
// poll-based wait, and an hourly eviction janitor.
package approval

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/ozchestrator/internal/ozerr"
	"github.com/dohr-michael/ozchestrator/internal/selfupdate"
)

const (
	pollInterval  = 500 * time.Millisecond
	waitTimeout   = 10 * time.Minute
	evictAfter    = time.Hour
)

// Outcome is wait's terminal result.
type Outcome string

const (
	Approved        Outcome = "Approved"
	Rejected        Outcome = "Rejected"
	ModifyRequested Outcome = "ModifyRequested"
	TimedOut        Outcome = "TimedOut"
)

// Pending is one awaited approval.
type Pending struct {
	Plan          *selfupdate.ImplementationPlan
	RequestID     string
	UserID        string
	ChannelID     string
	PlanMessageID string
	RequestedAt   time.Time

	mu      sync.Mutex
	outcome Outcome
	reason  string
	details string
}

// Manager holds all pending approvals, keyed by plan message id.
type Manager struct {
	mu      sync.Mutex
	pending map[string]*Pending

	onSweep func()
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{pending: make(map[string]*Pending)}
}

// OnSweep registers fn to run after every subsequent eviction pass, so the
// caller that owns the event bus can publish it as a schedule.trigger event
// without this package depending on events.
func (m *Manager) OnSweep(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSweep = fn
}

// Register records a pending approval for plan under planMessageID.
func (m *Manager) Register(plan *selfupdate.ImplementationPlan, requestID, userID, channelID, planMessageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[planMessageID] = &Pending{
		Plan:          plan,
		RequestID:     requestID,
		UserID:        userID,
		ChannelID:     channelID,
		PlanMessageID: planMessageID,
		RequestedAt:   time.Now(),
	}
}

// HasPendingApproval reports whether userID/channelID has an outstanding
// approval awaiting a response.
func (m *Manager) HasPendingApproval(userID, channelID string) bool {
	_, ok := m.GetPendingApproval(userID, channelID)
	return ok
}

// GetPendingApproval looks up the pending approval for userID/channelID, if
// any.
func (m *Manager) GetPendingApproval(userID, channelID string) (*Pending, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p.UserID == userID && p.ChannelID == channelID {
			return p, true
		}
	}
	return nil, false
}

// ProcessResponse matches text against approve/reject/modify command
// prefixes (case-insensitive) for the pending approval belonging to
// userID/channelID. Returns false if text is not a recognized command or no
// approval is pending.
func (m *Manager) ProcessResponse(userID, channelID, text string) bool {
	p, ok := m.GetPendingApproval(userID, channelID)
	if !ok {
		return false
	}

	lower := strings.ToLower(strings.TrimSpace(text))
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.HasPrefix(lower, "approve"):
		p.outcome = Approved
	case strings.HasPrefix(lower, "reject"):
		p.outcome = Rejected
		p.reason = strings.TrimSpace(text[len("reject"):])
	case strings.HasPrefix(lower, "modify"):
		p.outcome = ModifyRequested
		p.details = strings.TrimSpace(text[len("modify"):])
	default:
		return false
	}
	return true
}

// Wait polls the pending approval's stored outcome every ~500ms, returning
// once it is set, the context is cancelled, or the 10-minute window expires.
// The entry is removed from the manager before returning.
func (m *Manager) Wait(ctx context.Context, planMessageID string) (Outcome, string, error) {
	m.mu.Lock()
	p, ok := m.pending[planMessageID]
	m.mu.Unlock()
	if !ok {
		return "", "", ozerr.New(ozerr.NotFound, "no pending approval for plan message id "+planMessageID)
	}

	deadline := time.Now().Add(waitTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		p.mu.Lock()
		outcome := p.outcome
		detail := p.reason
		if outcome == ModifyRequested {
			detail = p.details
		}
		p.mu.Unlock()

		if outcome != "" {
			m.remove(planMessageID)
			return outcome, detail, nil
		}
		if time.Now().After(deadline) {
			m.remove(planMessageID)
			return TimedOut, "", nil
		}

		select {
		case <-ctx.Done():
			m.remove(planMessageID)
			return "", "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) remove(planMessageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, planMessageID)
}

// CleanupOldApprovals evicts entries requested more than one hour ago. Call
// periodically from a ticker loop.
func (m *Manager) CleanupOldApprovals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-evictAfter)
	evicted := 0
	for id, p := range m.pending {
		if p.RequestedAt.Before(cutoff) {
			delete(m.pending, id)
			evicted++
		}
	}
	return evicted
}

// Run starts the hourly eviction janitor; it returns when ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(evictAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldApprovals()
			m.mu.Lock()
			fn := m.onSweep
			m.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	}
}
