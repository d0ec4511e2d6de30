package metrics

import "github.com/san-kum/lenseflow/internal/jointmax"

// Acceptance is the fraction of potential steps that moved ϕ. The final
// record has no potential step and is not counted.
type Acceptance struct {
	accepted, steps int
}

func NewAcceptance() *Acceptance { return &Acceptance{} }

func (a *Acceptance) Name() string { return "acceptance" }

func (a *Acceptance) Observe(rec jointmax.Record) {
	if rec.Direction == nil {
		return
	}
	a.steps++
	if rec.Alpha > 0 {
		a.accepted++
	}
}

func (a *Acceptance) Value() float64 {
	if a.steps == 0 {
		return 0
	}
	return float64(a.accepted) / float64(a.steps)
}

func (a *Acceptance) Reset() { *a = Acceptance{} }

// SolverEffort is the mean number of conjugate-gradient iterations per
// field step.
type SolverEffort struct {
	iterations, samples int
}

func NewSolverEffort() *SolverEffort { return &SolverEffort{} }

func (s *SolverEffort) Name() string { return "cg_iterations" }

func (s *SolverEffort) Observe(rec jointmax.Record) {
	if rec.Solver == nil {
		return
	}
	s.iterations += rec.Solver.Iterations
	s.samples++
}

func (s *SolverEffort) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return float64(s.iterations) / float64(s.samples)
}

func (s *SolverEffort) Reset() { *s = SolverEffort{} }

// SolverConvergence is the fraction of field steps whose solve reached
// tolerance.
type SolverConvergence struct {
	converged, samples int
}

func NewSolverConvergence() *SolverConvergence { return &SolverConvergence{} }

func (s *SolverConvergence) Name() string { return "cg_converged" }

func (s *SolverConvergence) Observe(rec jointmax.Record) {
	if rec.Solver == nil {
		return
	}
	s.samples++
	if rec.Solver.Converged {
		s.converged++
	}
}

func (s *SolverConvergence) Value() float64 {
	if s.samples == 0 {
		return 1
	}
	return float64(s.converged) / float64(s.samples)
}

func (s *SolverConvergence) Reset() { *s = SolverConvergence{} }
