package syntax

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by Registry.For when no provider accepts a path.
var ErrUnsupported = errors.New("syntax: no provider for file")

// Provider turns a source file into a Tree.
type Provider interface {
	// Name returns the provider's short identifier (e.g. "go").
	Name() string

	// Supports reports whether the provider can parse path.
	Supports(path string) bool

	// Parse builds the syntax tree for path. A returned error means the file
	// could not be parsed at all.
	Parse(ctx context.Context, path string) (*Tree, error)
}

// Registry selects a provider by path, first match wins.
type Registry struct {
	providers []Provider
}

// NewRegistry returns a registry consulting providers in order. Nil entries
// are skipped.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		if p != nil {
			r.providers = append(r.providers, p)
		}
	}
	return r
}

// For returns the first provider that supports path.
func (r *Registry) For(path string) (Provider, error) {
	for _, p := range r.providers {
		if p.Supports(path) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
}

// Names lists the registered providers in consultation order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}
