package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultN             = 16
	DefaultDx            = 1.0
	DefaultSignalKnee    = 1.0
	DefaultSignalDamping = 2.5
	DefaultDeflection    = 0.3
	DefaultPotentialKnee = 0.5
	DefaultNoise         = 0.1
	DefaultSteps         = 8
	DefaultFlowSteps     = 8
	DefaultMixVariance   = 0.05
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Name       string           `yaml:"name"`
	Seed       int64            `yaml:"seed"`
	Grid       GridConfig       `yaml:"grid"`
	Signal     SignalConfig     `yaml:"signal"`
	Potential  PotentialConfig  `yaml:"potential"`
	Noise      NoiseConfig      `yaml:"noise"`
	Integrator IntegratorConfig `yaml:"integrator"`
	Solver     SolverConfig     `yaml:"solver"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
}

type GridConfig struct {
	N  int     `yaml:"n"`
	Dx float64 `yaml:"dx"`
}

// SignalConfig is the toy unlensed spectrum
// Amplitude/(1 + (k/Knee)²)·exp(−(k/Damping)²).
type SignalConfig struct {
	Amplitude float64 `yaml:"amplitude"`
	Knee      float64 `yaml:"knee"`
	Damping   float64 `yaml:"damping"`
	// LensedDraws is the number of lensed simulations averaged into the
	// lensed spectrum. Zero skips it.
	LensedDraws int     `yaml:"lensed_draws"`
	MixVariance float64 `yaml:"mix_variance"`
}

// PotentialConfig is a Lorentzian-squared spectrum normalized to a target
// rms deflection in grid length units.
type PotentialConfig struct {
	DeflectionRMS float64 `yaml:"deflection_rms"`
	Knee          float64 `yaml:"knee"`
}

type NoiseConfig struct {
	// Level is the white noise standard deviation per pixel.
	Level float64 `yaml:"level"`
	// BeamFWHM is the Gaussian beam full width in grid length units, zero
	// for no beam.
	BeamFWHM  float64 `yaml:"beam_fwhm"`
	MaskHoles int     `yaml:"mask_holes"`
	HoleSize  int     `yaml:"hole_size"`
}

type IntegratorConfig struct {
	// Kind is euler, rk4 or dopri5.
	Kind     string  `yaml:"kind"`
	Steps    int     `yaml:"steps"`
	RelTol   float64 `yaml:"rel_tol"`
	AbsTol   float64 `yaml:"abs_tol"`
	MinStep  float64 `yaml:"min_step"`
	MaxSteps int     `yaml:"max_steps"`
}

type SolverConfig struct {
	MaxIter int     `yaml:"max_iter"`
	Tol     float64 `yaml:"tol"`
}

type OptimizerConfig struct {
	Steps    int     `yaml:"steps"`
	AlphaMax float64 `yaml:"alpha_max"`
	AlphaTol float64 `yaml:"alpha_tol"`
	// QuadraticNoise preconditions the potential step with the quadratic
	// estimator noise.
	QuadraticNoise bool `yaml:"quadratic_noise"`
	QuasiSample    bool `yaml:"quasi_sample"`
}

func DefaultConfig() *Config {
	return &Config{
		Name: "default",
		Grid: GridConfig{N: DefaultN, Dx: DefaultDx},
		Signal: SignalConfig{
			Amplitude:   1,
			Knee:        DefaultSignalKnee,
			Damping:     DefaultSignalDamping,
			MixVariance: DefaultMixVariance,
		},
		Potential: PotentialConfig{DeflectionRMS: DefaultDeflection, Knee: DefaultPotentialKnee},
		Noise:     NoiseConfig{Level: DefaultNoise},
		Integrator: IntegratorConfig{
			Kind:     "rk4",
			Steps:    DefaultFlowSteps,
			RelTol:   1e-6,
			AbsTol:   1e-8,
			MinStep:  1e-6,
			MaxSteps: 1000,
		},
		Solver:    SolverConfig{MaxIter: 200, Tol: 1e-6},
		Optimizer: OptimizerConfig{Steps: DefaultSteps, AlphaMax: 0.5, AlphaTol: 1e-4},
	}
}

// Load reads a yaml file over DefaultConfig and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Grid.N >= 2 && c.Grid.N%2 == 0, "grid.n must be even and at least 2"},
		{c.Grid.Dx > 0, "grid.dx must be positive"},
		{c.Signal.Amplitude > 0, "signal.amplitude must be positive"},
		{c.Signal.Knee > 0, "signal.knee must be positive"},
		{c.Signal.Damping > 0, "signal.damping must be positive"},
		{c.Signal.LensedDraws >= 0, "signal.lensed_draws must not be negative"},
		{c.Signal.MixVariance >= 0, "signal.mix_variance must not be negative"},
		{c.Potential.DeflectionRMS > 0, "potential.deflection_rms must be positive"},
		{c.Potential.Knee > 0, "potential.knee must be positive"},
		{c.Noise.Level > 0, "noise.level must be positive"},
		{c.Noise.BeamFWHM >= 0, "noise.beam_fwhm must not be negative"},
		{c.Noise.MaskHoles >= 0, "noise.mask_holes must not be negative"},
		{c.Noise.MaskHoles == 0 || (c.Noise.HoleSize > 0 && c.Noise.HoleSize < c.Grid.N), "noise.hole_size must be in (0, grid.n)"},
		{c.Solver.MaxIter > 0, "solver.max_iter must be positive"},
		{c.Solver.Tol > 0, "solver.tol must be positive"},
		{c.Optimizer.Steps > 0, "optimizer.steps must be positive"},
		{c.Optimizer.AlphaMax > 0, "optimizer.alpha_max must be positive"},
		{c.Optimizer.AlphaTol > 0, "optimizer.alpha_tol must be positive"},
	}
	for _, ch := range checks {
		if !ch.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, ch.msg)
		}
	}

	switch c.Integrator.Kind {
	case "euler", "rk4":
		if c.Integrator.Steps <= 0 {
			return fmt.Errorf("%w: integrator.steps must be positive for %s", ErrInvalidConfig, c.Integrator.Kind)
		}
	case "dopri5":
		if c.Integrator.RelTol <= 0 || c.Integrator.AbsTol <= 0 || c.Integrator.MaxSteps <= 0 {
			return fmt.Errorf("%w: dopri5 needs positive rel_tol, abs_tol and max_steps", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown integrator %q", ErrInvalidConfig, c.Integrator.Kind)
	}
	return nil
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
