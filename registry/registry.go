// Package registry indexes configured agents and groups by name. A Registry
// is an explicit value owned by its caller; there is no package-level
// instance, so two runtimes in one process never share state by accident.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/troupe-dev/troupe/agent"
	"github.com/troupe-dev/troupe/group"
)

// Registry is a thread-safe index of agents and groups. Agents and groups
// live in separate namespaces: an agent and a group may share a name.
// Registration rejects duplicates instead of silently replacing, so wiring
// mistakes surface at startup rather than at run time.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	groups map[string]*group.Group
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		agents: make(map[string]*agent.Agent),
		groups: make(map[string]*group.Group),
	}
}

// AddAgent registers an agent under its name.
func (r *Registry) AddAgent(a *agent.Agent) error {
	if a == nil {
		return errors.New("registry: nil agent")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("registry: agent %q already registered", a.Name())
	}
	r.agents[a.Name()] = a
	return nil
}

// AddGroup registers a group under its name.
func (r *Registry) AddGroup(g *group.Group) error {
	if g == nil {
		return errors.New("registry: nil group")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.groups[g.Name()]; exists {
		return fmt.Errorf("registry: group %q already registered", g.Name())
	}
	r.groups[g.Name()] = g
	return nil
}

// Agent retrieves a registered agent by name.
func (r *Registry) Agent(name string) (*agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Group retrieves a registered group by name.
func (r *Registry) Group(name string) (*group.Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	return g, ok
}

// RemoveAgent drops an agent from the index. It reports whether the name
// was registered.
func (r *Registry) RemoveAgent(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[name]; !ok {
		return false
	}
	delete(r.agents, name)
	return true
}

// RemoveGroup drops a group from the index. It reports whether the name
// was registered.
func (r *Registry) RemoveGroup(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[name]; !ok {
		return false
	}
	delete(r.groups, name)
	return true
}

// AgentNames returns the registered agent names in lexical order.
func (r *Registry) AgentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupNames returns the registered group names in lexical order.
func (r *Registry) GroupNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
