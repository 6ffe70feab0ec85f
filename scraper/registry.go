package scraper

import (
	"fmt"
	"sort"
)

// Registry maps site names to their definitions.
type Registry struct {
	sites map[string]Site
}

func NewRegistry(sites ...Site) (*Registry, error) {
	r := &Registry{sites: make(map[string]Site, len(sites))}
	for _, s := range sites {
		if s.Name == "" {
			return nil, fmt.Errorf("site without a name (start url %q)", s.StartURL)
		}
		if _, dup := r.sites[s.Name]; dup {
			return nil, fmt.Errorf("site %q registered twice", s.Name)
		}
		r.sites[s.Name] = s
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Site, bool) {
	s, ok := r.sites[name]
	return s, ok
}

// All returns every site sorted by name.
func (r *Registry) All() []Site {
	out := make([]Site, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
