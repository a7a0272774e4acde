// Package agent implements the concrete Agent providers the piece engine
// is constructed with, plus the pure DetectRuleIndex/AIJudge/
// ParseStructuredOutput collaborators the rule cascade and judge phase
// depend on.
package agent

import (
	"fmt"
	"sync"

	"github.com/cadenzalabs/ensemble/internal/piece"
)

// Factory builds a piece.Agent from a resolved model/credential binding.
type Factory func(spec Spec) (piece.Agent, error)

// Spec is the loader-level provider binding: kind plus model/credential
// details. It never crosses into internal/piece; the engine only ever
// sees the resolved piece.Agent this factory produces.
type Spec struct {
	Name     string
	Kind     string
	Model    string
	APIKeyEnv string
	BaseURL  string
}

// Registry is a thread-safe name-to-factory map, adapted from the
// provider registry pattern used across the rest of the provider stack.
type Registry struct {
	mu       sync.RWMutex
	registry map[string]Factory
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{registry: make(map[string]Factory)}
}

// Register adds a factory under name. Returns an error if name is already
// registered.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registry[name]; ok {
		return fmt.Errorf("agent: provider %q is already registered", name)
	}
	r.registry[name] = factory
	return nil
}

// MustRegister panics if name is already registered.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Build resolves name to a piece.Agent by invoking its factory with spec.
func (r *Registry) Build(name string, spec Spec) (piece.Agent, error) {
	r.mu.RLock()
	factory, ok := r.registry[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("agent: no factory registered for provider %q", name)
	}
	return factory(spec)
}

// List returns every registered provider name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	return names
}

// Range calls fn for every registered factory. Iteration stops early if
// fn returns false.
func (r *Registry) Range(fn func(name string, factory Factory) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, factory := range r.registry {
		if !fn(name, factory) {
			return
		}
	}
}

// Default registers the engine's three built-in provider kinds: claude,
// codex, and mock. Callers (the config loader) typically start from this
// and layer project-specific bindings on top.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister("claude", func(spec Spec) (piece.Agent, error) { return NewClaudeProvider(spec) })
	r.MustRegister("codex", func(spec Spec) (piece.Agent, error) { return NewCodexProvider(spec) })
	r.MustRegister("mock", func(spec Spec) (piece.Agent, error) { return NewMockProvider(nil), nil })
	return r
}
