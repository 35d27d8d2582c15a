// Package kernel implements the plugin registry and hook dispatcher at the
// center of cobot: dependency-ordered lifecycle management, capability
// lookup, extension-point dispatch, and the closed hook chain that the
// orchestrator drives on every message.
package kernel

import (
	"context"
	"fmt"
	"sort"
)

// Meta describes a plugin's identity and how it participates in lifecycle
// ordering, capability lookup, and extension points.
type Meta struct {
	ID         string
	Version    string
	Priority   int
	Implements []string // capabilities this plugin is the primary provider of
	Extends    []string // extension points this plugin contributes an implementation to
	DependsOn  []string // plugin ids that must configure/start before this one
}

// Plugin is the minimal contract every registered component satisfies.
// Configure and Start/Stop are called in dependency order; Stop runs in
// reverse order. A plugin that has nothing to do in a phase returns nil.
type Plugin interface {
	Meta() Meta
	Configure(ctx context.Context, cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ErrDuplicateID is returned by Register when a plugin id is already taken.
type ErrDuplicateID struct{ ID string }

func (e *ErrDuplicateID) Error() string { return fmt.Sprintf("kernel: duplicate plugin id %q", e.ID) }

// ErrMissingDependency is returned by ConfigureAll when a DependsOn entry
// names an id that was never registered.
type ErrMissingDependency struct {
	ID   string
	Dep  string
}

func (e *ErrMissingDependency) Error() string {
	return fmt.Sprintf("kernel: plugin %q depends on unregistered plugin %q", e.ID, e.Dep)
}

// ErrDependencyCycle is returned by ConfigureAll when the dependency graph
// is not a DAG.
type ErrDependencyCycle struct{ Remaining []string }

func (e *ErrDependencyCycle) Error() string {
	return fmt.Sprintf("kernel: dependency cycle among plugins %v", e.Remaining)
}

// Kernel owns the plugin registry. It is a plain value — callers construct
// one with New and thread it explicitly through the orchestrator and CLI.
// There is no package-level singleton.
type Kernel struct {
	plugins map[string]Plugin
	order   []string // dependency order, set by ConfigureAll
	started bool
}

// New returns an empty kernel.
func New() *Kernel {
	return &Kernel{plugins: make(map[string]Plugin)}
}

// Register adds a plugin to the kernel. It must be called before
// ConfigureAll. Registering two plugins with the same id is an error.
func (k *Kernel) Register(p Plugin) error {
	id := p.Meta().ID
	if _, exists := k.plugins[id]; exists {
		return &ErrDuplicateID{ID: id}
	}
	k.plugins[id] = p
	return nil
}

// Get returns the plugin registered under id.
func (k *Kernel) Get(id string) (Plugin, bool) {
	p, ok := k.plugins[id]
	return p, ok
}

// GetByCapability returns the single plugin that declares capability in its
// Implements list. If more than one plugin implements the same capability,
// the one with the lowest priority number (ties broken by id) wins — this
// mirrors the "plugin selection rules" used for the llm and workspace
// capabilities.
func (k *Kernel) GetByCapability(capability string) (Plugin, bool) {
	var best Plugin
	var bestMeta Meta
	found := false
	for _, id := range k.order {
		p := k.plugins[id]
		m := p.Meta()
		for _, c := range m.Implements {
			if c != capability {
				continue
			}
			if !found || m.Priority < bestMeta.Priority || (m.Priority == bestMeta.Priority && m.ID < bestMeta.ID) {
				best, bestMeta, found = p, m, true
			}
		}
	}
	return best, found
}

// Implementation pairs a plugin with the id it was registered under, for
// an extension point, in load order.
type Implementation struct {
	PluginID string
	Plugin   Plugin
}

// GetImplementations returns every plugin that declares point in its Extends
// list, in dependency/load order. Callers type-assert Plugin to the
// interface the extension point expects (e.g. channels.Session for
// "session", kernel.hookPlugin for a hook point).
func (k *Kernel) GetImplementations(point string) []Implementation {
	var out []Implementation
	for _, id := range k.order {
		p := k.plugins[id]
		for _, ext := range p.Meta().Extends {
			if ext == point {
				out = append(out, Implementation{PluginID: id, Plugin: p})
			}
		}
	}
	return out
}

// ConfigureAll computes a dependency-ordered sequence — topological sort
// over DependsOn, ties broken by ascending Priority then ascending ID —
// and calls Configure on each plugin in that order. The resulting order is
// reused by StartAll, GetByCapability, and GetImplementations.
func (k *Kernel) ConfigureAll(ctx context.Context, cfgs map[string]map[string]any) error {
	for id, p := range k.plugins {
		for _, dep := range p.Meta().DependsOn {
			if _, ok := k.plugins[dep]; !ok {
				return &ErrMissingDependency{ID: id, Dep: dep}
			}
		}
	}

	order, err := topoSort(k.plugins)
	if err != nil {
		return err
	}
	k.order = order

	for _, id := range order {
		p := k.plugins[id]
		if err := p.Configure(ctx, cfgs[id]); err != nil {
			return fmt.Errorf("kernel: configure %q: %w", id, err)
		}
	}
	return nil
}

// topoSort performs Kahn's algorithm, picking among all currently-ready
// nodes the one with the lowest Priority number (ties broken by ascending
// ID) so ordering is deterministic and respects the priority hint within
// each dependency tier — lower priority starts earlier.
func topoSort(plugins map[string]Plugin) ([]string, error) {
	indegree := make(map[string]int, len(plugins))
	dependents := make(map[string][]string, len(plugins))
	for id, p := range plugins {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, dep := range p.Meta().DependsOn {
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]string, 0, len(plugins))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			mi, mj := plugins[ready[i]].Meta(), plugins[ready[j]].Meta()
			if mi.Priority != mj.Priority {
				return mi.Priority < mj.Priority
			}
			return mi.ID < mj.ID
		})
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(plugins) {
		var remaining []string
		for id, deg := range indegree {
			if deg > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, &ErrDependencyCycle{Remaining: remaining}
	}
	return order, nil
}

// StartAll calls Start on every plugin in dependency order. ConfigureAll
// must run first. Calling StartAll twice is a no-op.
func (k *Kernel) StartAll(ctx context.Context) error {
	if k.started {
		return nil
	}
	for _, id := range k.order {
		if err := k.plugins[id].Start(ctx); err != nil {
			return fmt.Errorf("kernel: start %q: %w", id, err)
		}
	}
	k.started = true
	return nil
}

// StopAll calls Stop on every plugin in reverse dependency order, continuing
// past individual failures and returning the last error observed.
func (k *Kernel) StopAll(ctx context.Context) error {
	var lastErr error
	for i := len(k.order) - 1; i >= 0; i-- {
		id := k.order[i]
		if err := k.plugins[id].Stop(ctx); err != nil {
			lastErr = fmt.Errorf("kernel: stop %q: %w", id, err)
		}
	}
	k.started = false
	return lastErr
}
