// Package tool provides the uniform adapter interface to all
// side-effecting operations a plan step may invoke, plus the built-in
// adapters for artifact, command, remote-resource, and delegation calls.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Output is the captured result of one adapter invocation.
type Output struct {
	Value      string `json:"value"`         // raw captured output
	ExitStatus int    `json:"exit_status"`   // command exit status, 0 for non-command operations
	Ref        string `json:"ref,omitempty"` // reference to the raw output (file path, URL)
}

// Adapter is the uniform interface to one side-effecting operation kind.
// Implementations must honor context cancellation and must never mutate
// the params map they receive.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, params map[string]string) (Output, error)
}

// Registry maps operation names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// DefaultRegistry creates a registry with every built-in adapter
// registered. The delegate adapter uses the given collaborator; pass nil
// to leave delegation unconfigured (delegate steps will fail).
func DefaultRegistry(workDir string, collaborator Collaborator) *Registry {
	r := NewRegistry()
	r.Register(NewReadArtifact(workDir))
	r.Register(NewWriteArtifact(workDir))
	r.Register(NewExecuteCommand(workDir))
	r.Register(NewFetchResource())
	r.Register(NewDelegate(collaborator))
	return r
}

// Register adds an adapter under its operation name, replacing any
// existing registration.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for an operation name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for operation %q (registered: %s)",
			name, strings.Join(r.Names(), ", "))
	}
	return a, nil
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requireParam fetches a mandatory parameter or errors.
func requireParam(params map[string]string, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return v, nil
}
