package team

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomlabs/loom/internal/agent"
)

// Manager tracks the teams running in one process and shares the
// worker pool and agent registry across them.
type Manager struct {
	deps agent.Deps

	mu    sync.RWMutex
	teams map[string]*Team
}

// NewManager creates an empty manager. All teams created through it
// share deps (and therefore one pool and one agent registry).
func NewManager(deps agent.Deps) *Manager {
	if deps.ContextRegistry == nil {
		deps.ContextRegistry = agent.NewContextRegistry()
	}
	return &Manager{
		deps:  deps,
		teams: make(map[string]*Team),
	}
}

// Create builds and starts a team. The name must be unused.
func (m *Manager) Create(ctx context.Context, cfg *Config) (*Team, error) {
	m.mu.Lock()
	if _, exists := m.teams[cfg.Name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("team %q already exists", cfg.Name)
	}
	m.mu.Unlock()

	t, err := New(cfg, m.deps)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.teams[cfg.Name] = t
	m.mu.Unlock()

	t.OnDoneCleanup(func() {
		m.mu.Lock()
		if cur, ok := m.teams[cfg.Name]; ok && cur == t {
			delete(m.teams, cfg.Name)
		}
		m.mu.Unlock()
	})
	return t, nil
}

// Get returns a running team by name.
func (m *Manager) Get(name string) (*Team, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[name]
	return t, ok
}

// Names returns the names of all tracked teams.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.teams))
	for name := range m.teams {
		names = append(names, name)
	}
	return names
}

// StopAll stops every tracked team, returning the first error.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	teams := make([]*Team, 0, len(m.teams))
	for _, t := range m.teams {
		teams = append(teams, t)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, t := range teams {
		if err := t.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
