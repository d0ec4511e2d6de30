package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/lenseflow/internal/ode"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

const (
	DefaultRelTol   = 1e-6
	DefaultAbsTol   = 1e-9
	DefaultMinStep  = 1e-6
	DefaultMaxSteps = 10000
)

// DormandPrince is an adaptive 5(4) integrator. A step is accepted when the
// RMS of err_i/(AbsTol + RelTol*max(|x_i|, |x'_i|)) is at most one.
type DormandPrince struct {
	RelTol      float64
	AbsTol      float64
	MinStep     float64
	MaxSteps    int
	InitialStep float64

	safety   float64
	minScale float64
	maxScale float64
}

func NewDormandPrince(relTol, absTol, minStep float64, maxSteps int) *DormandPrince {
	return &DormandPrince{
		RelTol:   relTol,
		AbsTol:   absTol,
		MinStep:  minStep,
		MaxSteps: maxSteps,
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func NewRK45() *DormandPrince {
	return NewDormandPrince(DefaultRelTol, DefaultAbsTol, DefaultMinStep, DefaultMaxSteps)
}

func (r *DormandPrince) Integrate(sys ode.System, x0 ode.State, t1, t2 float64) (ode.State, error) {
	var final ode.State
	if err := r.run(sys, x0, t1, t2, func(_ float64, x ode.State) { final = x }); err != nil {
		return nil, err
	}
	return final, nil
}

func (r *DormandPrince) IntegrateTrajectory(sys ode.System, x0 ode.State, t1, t2 float64) (*ode.Trajectory, error) {
	tr := &ode.Trajectory{}
	err := r.run(sys, x0, t1, t2, func(t float64, x ode.State) {
		tr.Times = append(tr.Times, t)
		tr.States = append(tr.States, x)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (r *DormandPrince) validate() error {
	if r.RelTol <= 0 && r.AbsTol <= 0 {
		return fmt.Errorf("%w: at least one of rel/abs tolerance must be positive", ode.ErrInvalidConfig)
	}
	if r.RelTol < 0 || r.AbsTol < 0 || r.MinStep < 0 {
		return fmt.Errorf("%w: negative tolerance or minimum step", ode.ErrInvalidConfig)
	}
	if r.MaxSteps < 1 {
		return fmt.Errorf("%w: max steps must be positive, got %d", ode.ErrInvalidConfig, r.MaxSteps)
	}
	return nil
}

func (r *DormandPrince) run(sys ode.System, x0 ode.State, t1, t2 float64, observe func(float64, ode.State)) error {
	if err := r.validate(); err != nil {
		return err
	}
	if len(x0) != sys.StateDim() {
		return fmt.Errorf("%w: state has %d entries, system expects %d", ode.ErrDimensionMismatch, len(x0), sys.StateDim())
	}
	safety, minScale, maxScale := r.stepControl()

	x := x0.Clone()
	observe(t1, x)
	if t1 == t2 {
		return nil
	}

	span := math.Abs(t2 - t1)
	dir := 1.0
	if t2 < t1 {
		dir = -1.0
	}
	h := r.InitialStep
	if h <= 0 {
		h = span / 10
	}

	t := t1
	for attempt := 0; ; attempt++ {
		if attempt >= r.MaxSteps {
			return &ode.IntegrationError{Step: attempt, Time: t, Wrapped: ode.ErrNonConvergence}
		}

		remaining := math.Abs(t2 - t)
		last := h >= remaining
		if last {
			h = remaining
		}

		xNew, errNorm := r.attempt(sys, x, t, dir*h)
		if !xNew.IsValid() || math.IsNaN(errNorm) {
			return &ode.IntegrationError{Step: attempt, Time: t, Wrapped: ode.ErrInvalidState}
		}

		accepted := errNorm <= 1
		if accepted {
			x = xNew
			if last {
				observe(t2, x)
				return nil
			}
			t += dir * h
			observe(t, x)
		}

		var scale float64
		switch {
		case errNorm == 0:
			scale = maxScale
		case accepted:
			scale = math.Min(maxScale, safety*math.Pow(errNorm, -0.2))
		default:
			scale = math.Max(minScale, safety*math.Pow(errNorm, -0.25))
		}
		h *= scale

		if !accepted && h < r.MinStep {
			return &ode.IntegrationError{Step: attempt, Time: t, Wrapped: ode.ErrStepTooSmall}
		}
	}
}

// stepControl returns the step-size controls with unset ones defaulted. It
// never writes to r, which may be shared between goroutines.
func (r *DormandPrince) stepControl() (safety, minScale, maxScale float64) {
	safety, minScale, maxScale = r.safety, r.minScale, r.maxScale
	if safety == 0 {
		safety = 0.9
	}
	if minScale == 0 {
		minScale = 0.2
	}
	if maxScale == 0 {
		maxScale = 10.0
	}
	return safety, minScale, maxScale
}

// attempt takes one trial step and returns the fifth-order solution together
// with the scaled RMS error estimate.
func (r *DormandPrince) attempt(sys ode.System, x ode.State, t, dt float64) (ode.State, float64) {
	n := len(x)

	k1 := sys.Derive(x, t)

	x2 := make(ode.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + dt*b21*k1[i]
	}
	k2 := sys.Derive(x2, t+a2*dt)

	x3 := make(ode.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + dt*(b31*k1[i]+b32*k2[i])
	}
	k3 := sys.Derive(x3, t+a3*dt)

	x4 := make(ode.State, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + dt*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4 := sys.Derive(x4, t+a4*dt)

	x5 := make(ode.State, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + dt*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5 := sys.Derive(x5, t+a5*dt)

	x6 := make(ode.State, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + dt*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6 := sys.Derive(x6, t+dt)

	xNew := make(ode.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + dt*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	k7 := sys.Derive(xNew, t+dt)

	if n == 0 {
		return xNew, 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		errEst := dt * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
		scale := r.AbsTol + r.RelTol*math.Max(math.Abs(x[i]), math.Abs(xNew[i]))
		if scale == 0 {
			if errEst == 0 {
				continue
			}
			scale = math.SmallestNonzeroFloat64
		}
		e := errEst / scale
		sum += e * e
	}

	return xNew, math.Sqrt(sum / float64(n))
}
