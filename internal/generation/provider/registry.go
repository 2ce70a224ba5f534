// Package provider holds the provider registry and the bundled echo provider.
package provider

import (
	"sort"
	"strings"

	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
)

// Registry resolves providers by name.
type Registry struct {
	defaultName string
	providers   map[string]generationdomain.Provider
}

// NewRegistry indexes providers by their lowercased name. An empty lookup
// resolves to defaultName.
func NewRegistry(defaultName string, providers ...generationdomain.Provider) *Registry {
	r := &Registry{
		defaultName: normalize(defaultName),
		providers:   make(map[string]generationdomain.Provider, len(providers)),
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		r.providers[normalize(p.Name())] = p
	}
	return r
}

// Lookup returns the named provider, or the default one for an empty name.
func (r *Registry) Lookup(name string) (generationdomain.Provider, error) {
	key := normalize(name)
	if key == "" {
		key = r.defaultName
	}
	p, ok := r.providers[key]
	if !ok {
		return nil, generationdomain.ErrUnknownProvider
	}
	return p, nil
}

// Names lists registered providers in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
