// Package metrics accumulates summary statistics over the trace of a joint
// reconstruction.
package metrics

import "github.com/san-kum/lenseflow/internal/jointmax"

// Metric observes optimizer records one at a time.
type Metric interface {
	Name() string
	Observe(rec jointmax.Record)
	Value() float64
	Reset()
}

// Default returns a fresh set of every trace metric.
func Default() []Metric {
	return []Metric{NewGain(), NewAcceptance(), NewSolverEffort(), NewSolverConvergence()}
}

// Summarize runs every metric in ms over trace and returns the values by
// name.
func Summarize(trace []jointmax.Record, ms ...Metric) map[string]float64 {
	if len(ms) == 0 {
		ms = Default()
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, rec := range trace {
			m.Observe(rec)
		}
		out[m.Name()] = m.Value()
	}
	return out
}

// Gain is the increase of lnP from the first field step to the last
// accepted state.
type Gain struct {
	first, last float64
	samples     int
}

func NewGain() *Gain { return &Gain{} }

func (g *Gain) Name() string { return "lnp_gain" }

func (g *Gain) Observe(rec jointmax.Record) {
	if g.samples == 0 {
		g.first = rec.LnPBefore
	}
	g.last = rec.LnP
	g.samples++
}

func (g *Gain) Value() float64 {
	if g.samples == 0 {
		return 0
	}
	return g.last - g.first
}

func (g *Gain) Reset() { *g = Gain{} }
