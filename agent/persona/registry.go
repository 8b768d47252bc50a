package persona

import (
	"github.com/BaSui01/debatehub/types"
)

// Registry is an ordered, read-only set of personas for one deployment.
// Iteration order is insertion order; selectors rely on it for tie-breaks.
type Registry struct {
	order       []string
	byID        map[string]Persona
	facilitator string
}

// NewRegistry validates every persona and builds the registry.
// Exactly one persona must be marked as facilitator.
func NewRegistry(personas ...Persona) (*Registry, error) {
	if len(personas) == 0 {
		return nil, types.NewError(types.ErrInvalidPersona, "registry needs at least one persona")
	}

	r := &Registry{
		order: make([]string, 0, len(personas)),
		byID:  make(map[string]Persona, len(personas)),
	}
	for _, p := range personas {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, types.Errorf(types.ErrInvalidPersona, "duplicate persona id %q", p.ID)
		}
		if p.Facilitator {
			if r.facilitator != "" {
				return nil, types.Errorf(types.ErrInvalidPersona,
					"personas %q and %q are both marked facilitator", r.facilitator, p.ID)
			}
			r.facilitator = p.ID
		}
		p.Expertise = append([]string(nil), p.Expertise...)
		p.Triggers = append([]string(nil), p.Triggers...)
		p.Goals = append([]string(nil), p.Goals...)
		p.Keywords = append([]string(nil), p.Keywords...)
		r.order = append(r.order, p.ID)
		r.byID[p.ID] = p
	}
	if r.facilitator == "" {
		return nil, types.NewError(types.ErrInvalidPersona, "no persona is marked facilitator")
	}
	return r, nil
}

// Get returns a copy of the persona with the given id.
func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Lookup is Get with an UNKNOWN_PERSONA error on miss.
func (r *Registry) Lookup(id string) (Persona, error) {
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, types.Errorf(types.ErrUnknownPersona, "unknown persona %q", id)
	}
	return p, nil
}

// Contains reports whether id names a registered persona.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns persona ids in registry order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns personas in registry order.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of personas.
func (r *Registry) Len() int {
	return len(r.order)
}

// Facilitator returns the designated default speaker.
func (r *Registry) Facilitator() Persona {
	return r.byID[r.facilitator]
}

// Without returns a new registry excluding the given ids.
// The facilitator cannot be removed.
func (r *Registry) Without(ids ...string) (*Registry, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if !r.Contains(id) {
			return nil, types.Errorf(types.ErrUnknownPersona, "unknown persona %q", id)
		}
		if id == r.facilitator {
			return nil, types.Errorf(types.ErrInvalidPersona, "facilitator %q cannot be disabled", id)
		}
		drop[id] = struct{}{}
	}

	kept := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		if _, skip := drop[id]; !skip {
			kept = append(kept, r.byID[id])
		}
	}
	return NewRegistry(kept...)
}
