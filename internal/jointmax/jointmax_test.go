package jointmax

import (
	"math"
	"math/rand"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/integrators"
	"github.com/san-kum/lenseflow/internal/lenseflow"
	"github.com/san-kum/lenseflow/internal/posterior"
	"github.com/san-kum/lenseflow/internal/wiener"
)

// syntheticDataSet lenses a prior draw of f by a prior draw of ϕ, then
// observes it through a beam and a masked pixel with white noise.
func syntheticDataSet(seed int64) (*posterior.DataSet, *field.Field) {
	g := field.MustGrid(8, 1)
	rng := rand.New(rand.NewSource(seed))
	cf := field.NewIsotropic(g, func(k float64) float64 { return 1/(1+k*k) + 0.01 })
	cphi := field.NewIsotropic(g, func(k float64) float64 { return 0.05/math.Pow(1+k*k, 2) + 1e-4 })
	beam := field.NewIsotropic(g, func(k float64) float64 { return math.Exp(-k * k / 16) })
	cn := field.ConstantDiagonal(g, field.Map, 0.05)

	mv := make([]float64, g.Size())
	for i := range mv {
		mv[i] = 1
	}
	mv[g.Index(2, 3)] = 0
	mask, err := field.NewDiagonal(g, field.Map, mv)
	Expect(err).NotTo(HaveOccurred())

	f, _ := cf.Sqrt().Apply(field.WhiteNoise(g, rng))
	phi, _ := cphi.Sqrt().Apply(field.WhiteNoise(g, rng))
	lensed, err := lenseflow.New(phi.Map(), integrators.NewFixedStep(integrators.NewRK4(), 8)).Apply(f.Map())
	Expect(err).NotTo(HaveOccurred())
	observed, _ := field.NewChain(mask, beam).Apply(lensed)
	noise, _ := cn.Sqrt().Apply(field.WhiteNoise(g, rng))

	ds, err := posterior.NewDataSet(posterior.DataSetParams{
		Data:        observed.Add(noise).Map(),
		Cn:          cn,
		Cf:          cf,
		Cphi:        cphi,
		M:           mask,
		B:           beam,
		MixVariance: 0.05,
	})
	Expect(err).NotTo(HaveOccurred())
	return ds, phi.Map()
}

func baseOptions() Options {
	return Options{
		Steps:      4,
		Integrator: integrators.NewFixedStep(integrators.NewRK4(), 8),
		Solver:     wiener.Options{Tol: 1e-8, MaxIter: 300},
		AlphaMax:   0.5,
		AlphaTol:   1e-4,
	}
}

var fieldsEqual = cmp.Comparer(func(a, b *field.Field) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Sub(b).Norm() == 0
})

var _ = Describe("Run", func() {
	var ds *posterior.DataSet

	BeforeEach(func() {
		ds, _ = syntheticDataSet(11)
	})

	Context("as a maximizer", func() {
		It("never lowers the posterior in a potential step", func() {
			res, err := Run(ds, baseOptions())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Trace).To(HaveLen(4))
			for _, rec := range res.Trace {
				Expect(rec.LnP).To(BeNumerically(">=", rec.LnPBefore), "step %d", rec.Step)
				Expect(rec.Alpha).To(BeNumerically(">=", 0))
				Expect(rec.Alpha).To(BeNumerically("<=", 0.5))
			}
		})

		It("moves the potential away from zero", func() {
			res, err := Run(ds, baseOptions())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Trace[0].Alpha).To(BeNumerically(">", 0))
			Expect(res.Phi.IsZero()).To(BeFalse())
		})

		It("skips the potential step on the last iteration", func() {
			res, err := Run(ds, baseOptions())
			Expect(err).NotTo(HaveOccurred())
			last := res.Trace[len(res.Trace)-1]
			Expect(last.Alpha).To(BeZero())
			Expect(last.Direction).To(BeNil())
			Expect(last.LnP).To(Equal(last.LnPBefore))
			Expect(res.Phi.Sub(last.Phi).Norm()).To(BeZero())
		})

		It("returns a mixed field consistent with the unlensed field", func() {
			opts := baseOptions()
			res, err := Run(ds, opts)
			Expect(err).NotTo(HaveOccurred())
			mixed, err := posterior.Mix(ds, res.F, res.Phi, opts.Integrator)
			Expect(err).NotTo(HaveOccurred())
			Expect(mixed.Sub(res.FMix).Norm()).To(BeNumerically("<", 1e-12*res.FMix.Norm()))
		})

		It("reports every record to the progress callback", func() {
			opts := baseOptions()
			var seen []int
			opts.Progress = func(r Record) { seen = append(seen, r.Step) }
			_, err := Run(ds, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]int{1, 2, 3, 4}))
		})

		It("performs a single field step when Steps is one", func() {
			opts := baseOptions()
			opts.Steps = 1
			res, err := Run(ds, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Trace).To(HaveLen(1))
			Expect(res.Phi.IsZero()).To(BeTrue())
		})

		It("accepts a potential noise estimate", func() {
			opts := baseOptions()
			opts.NPhi = field.NewIsotropic(ds.Grid, func(k float64) float64 {
				if k == 0 {
					return math.Inf(1)
				}
				return 0.01
			})
			res, err := Run(ds, opts)
			Expect(err).NotTo(HaveOccurred())
			for _, rec := range res.Trace {
				Expect(rec.LnP).To(BeNumerically(">=", rec.LnPBefore))
			}
		})
	})

	Context("as a quasi-sampler", func() {
		sampler := func(seed int64) Options {
			opts := baseOptions()
			opts.Steps = 3
			opts.QuasiSample = true
			opts.Seed = seed
			return opts
		}

		It("reproduces the trace for the same seed", func() {
			a, err := Run(ds, sampler(5))
			Expect(err).NotTo(HaveOccurred())
			b, err := Run(ds, sampler(5))
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.Diff(a.Trace, b.Trace, fieldsEqual)).To(BeEmpty())
		})

		It("draws different samples for different seeds", func() {
			a, err := Run(ds, sampler(5))
			Expect(err).NotTo(HaveOccurred())
			b, err := Run(ds, sampler(6))
			Expect(err).NotTo(HaveOccurred())
			Expect(a.F.Sub(b.F).Norm()).To(BeNumerically(">", 1e-3*a.F.Norm()))
			for _, rec := range append(a.Trace, b.Trace...) {
				Expect(rec.LnP).To(BeNumerically(">=", rec.LnPBefore))
			}
		})

		It("ends at consistent posterior values across seeds", func() {
			final := make([]float64, 5)
			for i := range final {
				res, err := Run(ds, sampler(int64(20+i)))
				Expect(err).NotTo(HaveOccurred())
				final[i] = res.Trace[len(res.Trace)-1].LnP
			}

			// A conditional draw of f sits a χ²/2 with one degree of freedom
			// per pixel below the mode, so seeds scatter on the scale of
			// sqrt(N/2) and never by more than N.
			_, sd := stat.MeanStdDev(final, nil)
			Expect(sd).To(BeNumerically(">", 0))
			Expect(sd).To(BeNumerically("<", float64(ds.Grid.Size())))
			for i, v := range final {
				rest := append(append([]float64{}, final[:i]...), final[i+1:]...)
				m, s := stat.MeanStdDev(rest, nil)
				Expect(math.Abs(v-m)).To(BeNumerically("<", 10*s), "seed %d lnP %g against %v", 20+i, v, rest)
			}
		})
	})

	Context("with invalid options", func() {
		It("rejects a non-positive step count", func() {
			opts := baseOptions()
			opts.Steps = 0
			_, err := Run(ds, opts)
			Expect(err).To(MatchError(ErrInvalidOptions))
		})

		It("rejects a missing integrator", func() {
			opts := baseOptions()
			opts.Integrator = nil
			_, err := Run(ds, opts)
			Expect(err).To(MatchError(ErrInvalidOptions))
		})

		It("rejects a negative line search bound", func() {
			opts := baseOptions()
			opts.AlphaMax = -1
			_, err := Run(ds, opts)
			Expect(err).To(MatchError(ErrInvalidOptions))
		})

		It("rejects a starting potential on another grid", func() {
			opts := baseOptions()
			opts.Phi0 = field.Zero(field.MustGrid(4, 1))
			_, err := Run(ds, opts)
			Expect(err).To(MatchError(field.ErrShapeMismatch))
		})
	})
})

var _ = Describe("Preconditioner", func() {
	It("is the prior covariance without a noise estimate", func() {
		ds, _ := syntheticDataSet(3)
		p, err := Preconditioner(ds, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeIdenticalTo(ds.Cphi))
	})

	It("combines prior and noise harmonically", func() {
		ds, _ := syntheticDataSet(3)
		nphi := field.NewIsotropic(ds.Grid, func(k float64) float64 {
			if k == 0 {
				return math.Inf(1)
			}
			return 0.02
		})
		p, err := Preconditioner(ds, nphi)
		Expect(err).NotTo(HaveOccurred())

		cphi := ds.Cphi.Values()
		for i, v := range p.Values() {
			want := 1 / (1/cphi[i] + 1/0.02)
			if ds.Grid.K(i) == 0 {
				want = cphi[i]
			}
			Expect(v).To(BeNumerically("~", want, 1e-12*want))
		}
	})
})
