package agent

import (
	"sync"
)

// ContextRegistry maps agent ids to live agents so cross-agent
// messaging can resolve targets without strong reference cycles.
// Entries whose agent has stopped are cleaned on next access.
type ContextRegistry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewContextRegistry creates an empty registry. It is an explicit
// dependency injected into agent construction, not a process global.
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{agents: make(map[string]*Agent)}
}

// Register adds or replaces the entry for an agent.
func (r *ContextRegistry) Register(a *Agent) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
}

// Unregister removes an agent by name.
func (r *ContextRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// Resolve returns the live agent for a name. Dead entries (stopped
// agents) are removed and reported as missing.
func (r *ContextRegistry) Resolve(name string) (*Agent, bool) {
	r.mu.RLock()
	a, ok := r.agents[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if a.Phase().IsTerminal() {
		r.mu.Lock()
		if cur, still := r.agents[name]; still && cur == a {
			delete(r.agents, name)
		}
		r.mu.Unlock()
		return nil, false
	}
	return a, true
}

// Names returns the ids of all currently registered agents.
func (r *ContextRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}
