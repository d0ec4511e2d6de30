package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/integrators"
	"github.com/san-kum/lenseflow/internal/ode"
)

type Registry struct {
	integrators map[string]func(config.IntegratorConfig) ode.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func(config.IntegratorConfig) ode.Integrator),
	}

	r.integrators["euler"] = func(c config.IntegratorConfig) ode.Integrator {
		return integrators.NewFixedStep(integrators.NewEuler(), c.Steps)
	}
	r.integrators["rk4"] = func(c config.IntegratorConfig) ode.Integrator {
		return integrators.NewFixedStep(integrators.NewRK4(), c.Steps)
	}
	r.integrators["dopri5"] = func(c config.IntegratorConfig) ode.Integrator {
		return integrators.NewDormandPrince(c.RelTol, c.AbsTol, c.MinStep, c.MaxSteps)
	}

	return r
}

func (r *Registry) GetIntegrator(c config.IntegratorConfig) (ode.Integrator, error) {
	fn, ok := r.integrators[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", c.Kind)
	}
	return fn(c), nil
}

// Factory returns a constructor of independent integrators for c.
func (r *Registry) Factory(c config.IntegratorConfig) (func() ode.Integrator, error) {
	fn, ok := r.integrators[c.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", c.Kind)
	}
	return func() ode.Integrator { return fn(c) }, nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
