// Package agent implements the agent registry and factory (component 4.D):
// a name -> capability mapping, and construction of agents that wrap the
// subprocess gateway.
//
// Registration uses a sync.RWMutex-guarded map that rejects duplicate
// names, in keeping with this codebase's narrow-interface style.
// Capabilities()/Describe() carry a human-readable capability description
// per agent kind.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/dohr-michael/ozchestrator/internal/gateway/codegen"
	"github.com/dohr-michael/ozchestrator/internal/ozerr"
	"github.com/dohr-michael/ozchestrator/internal/tasks"
)

// Descriptor is the richer introspection surface supplemented from the
// original's agent registry, exposed by the HTTP gateway's /api/agents
// listing.
type Descriptor interface {
	tasks.Agent
	Type() tasks.AgentType
	Capabilities() []string
	Describe() string
}

// codegenAgent wraps the subprocess gateway behind the tasks.Agent contract.
type codegenAgent struct {
	agentType    tasks.AgentType
	gw           *codegen.Gateway
	capabilities []string
	describe     string
}

func (a *codegenAgent) Type() tasks.AgentType  { return a.agentType }
func (a *codegenAgent) Capabilities() []string { return a.capabilities }
func (a *codegenAgent) Describe() string       { return a.describe }

// CanHandle reports whether this agent can take on t. All registered agents
// accept any task matching their own type; the orchestrator only ever looks
// an agent up by its own AgentType, so this predicate is always true today
// but is kept as an explicit seam for future capability-based routing.
func (a *codegenAgent) CanHandle(t *tasks.Task) bool {
	return t.AgentType == a.agentType
}

func (a *codegenAgent) Execute(ctx context.Context, t *tasks.Task) (tasks.Result, error) {
	prompt := buildPrompt(a.agentType, t)
	sessionID := t.Context["session_id"]

	res, err := a.gw.GenerateCode(ctx, prompt, sessionID)
	if err != nil {
		return tasks.Result{}, err
	}
	return tasks.Result{Output: res.Response.Result}, nil
}

func buildPrompt(agentType tasks.AgentType, t *tasks.Task) string {
	return fmt.Sprintf("[%s] %s", agentType, t.Content)
}

// AnalyzeTask delegates to the subprocess gateway's keyword-scanning
// analysis (component 4.C).
func (a *codegenAgent) AnalyzeTask(ctx context.Context, t *tasks.Task) (*codegen.TaskAnalysis, error) {
	return a.gw.AnalyzeTask(ctx, t.Content, fmt.Sprintf("%v", t.Context))
}

// Registry is a sync.RWMutex-guarded map[AgentType]Descriptor. Reads run
// concurrently with each other; Register takes the write lock, so it blocks
// every read while it runs, whatever the key. Register is
// idempotent-rejecting.
type Registry struct {
	mu     sync.RWMutex
	agents map[tasks.AgentType]Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[tasks.AgentType]Descriptor)}
}

// Register adds an agent. A second registration of the same AgentType is
// an error and leaves the registry unchanged.
func (r *Registry) Register(a Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.Type()]; exists {
		return ozerr.New(ozerr.Validation, fmt.Sprintf("agent already registered for type %s", a.Type()))
	}
	r.agents[a.Type()] = a
	return nil
}

// Get satisfies tasks.Registry.
func (r *Registry) Get(t tasks.AgentType) (tasks.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[t]
	return a, ok
}

// Describe returns the full agent, including its introspection surface.
func (r *Registry) Describe(t tasks.AgentType) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[t]
	return a, ok
}

// List returns all registered agents' descriptors, for the HTTP gateway's
// /api/agents listing.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// catalog pins each built-in AgentType's capability description, grounded
// on original_source agent_registry.rs's per-agent capability strings.
var catalog = map[tasks.AgentType]struct {
	capabilities []string
	describe     string
}{
	tasks.SoftwareDeveloper: {
		capabilities: []string{"write_code", "fix_bugs", "refactor"},
		describe:     "Implements and modifies source code via the code-generation subprocess.",
	},
	tasks.ProjectManager: {
		capabilities: []string{"plan", "prioritize", "summarize"},
		describe:     "Breaks work into tasks and tracks their completion.",
	},
	tasks.Reviewer: {
		capabilities: []string{"review_code", "flag_risks"},
		describe:     "Reviews proposed changes for correctness and risk.",
	},
	tasks.Researcher: {
		capabilities: []string{"investigate", "summarize_findings"},
		describe:     "Gathers and summarizes information to inform a task.",
	},
}

// Factory constructs agents from an AgentType plus a subprocess-gateway
// handle (component 4.D).
type Factory struct {
	gw *codegen.Gateway
}

// NewFactory binds a Factory to the given gateway.
func NewFactory(gw *codegen.Gateway) *Factory {
	return &Factory{gw: gw}
}

// New constructs the Descriptor for t, or an error if t is not a known
// built-in agent type.
func (f *Factory) New(t tasks.AgentType) (Descriptor, error) {
	entry, ok := catalog[t]
	if !ok {
		return nil, ozerr.New(ozerr.Validation, fmt.Sprintf("unknown agent type %s", t))
	}
	return &codegenAgent{
		agentType:    t,
		gw:           f.gw,
		capabilities: entry.capabilities,
		describe:     entry.describe,
	}, nil
}
