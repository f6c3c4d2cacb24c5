package policy

import "github.com/optiq-io/qbrix/internal/qerrors"

// Registry is the explicit name -> Policy table that replaces the
// previous implementation's base-class subclass walk with a static
// lookup.
type Registry struct {
	byName map[string]Policy
}

func NewRegistry() *Registry {
	r := &Registry{byName: map[string]Policy{}}
	for _, p := range []Policy{
		BetaTS{},
		GaussianTS{},
		UCB1Tuned{},
		KLUCB{},
		KLUCBPlus{},
		EpsilonGreedy{},
		MOSS{},
		MOSSAnytime{},
		LinUCB{},
		LinTS{},
		EXP3{},
		FPL{},
	} {
		r.byName[p.Name()] = p
	}
	return r
}

func (r *Registry) Lookup(name string) (Policy, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, qerrors.InvalidArgument("unknown policy: " + name)
	}
	return p, nil
}

func (r *Registry) Registered(name string) bool {
	_, ok := r.byName[name]
	return ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}
