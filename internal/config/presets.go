package config

import "sort"

var Presets = map[string]*Config{
	"tiny": {
		Name: "tiny", Seed: 1,
		Grid:       GridConfig{N: 8, Dx: 1},
		Signal:     SignalConfig{Amplitude: 1, Knee: 1, Damping: 2.5, MixVariance: 0.05},
		Potential:  PotentialConfig{DeflectionRMS: 0.2, Knee: 0.5},
		Noise:      NoiseConfig{Level: 0.1},
		Integrator: IntegratorConfig{Kind: "rk4", Steps: 4},
		Solver:     SolverConfig{MaxIter: 100, Tol: 1e-6},
		Optimizer:  OptimizerConfig{Steps: 3, AlphaMax: 0.5, AlphaTol: 1e-3},
	},
	"small": {
		Name: "small", Seed: 2,
		Grid:       GridConfig{N: 16, Dx: 1},
		Signal:     SignalConfig{Amplitude: 1, Knee: 1, Damping: 2.5, LensedDraws: 8, MixVariance: 0.05},
		Potential:  PotentialConfig{DeflectionRMS: 0.3, Knee: 0.5},
		Noise:      NoiseConfig{Level: 0.1, BeamFWHM: 1.5},
		Integrator: IntegratorConfig{Kind: "rk4", Steps: 8},
		Solver:     SolverConfig{MaxIter: 200, Tol: 1e-6},
		Optimizer:  OptimizerConfig{Steps: 8, AlphaMax: 0.5, AlphaTol: 1e-4, QuadraticNoise: true},
	},
	"masked": {
		Name: "masked", Seed: 3,
		Grid:       GridConfig{N: 32, Dx: 1},
		Signal:     SignalConfig{Amplitude: 1, Knee: 1, Damping: 2.5, LensedDraws: 8, MixVariance: 0.05},
		Potential:  PotentialConfig{DeflectionRMS: 0.3, Knee: 0.3},
		Noise:      NoiseConfig{Level: 0.05, BeamFWHM: 2, MaskHoles: 3, HoleSize: 4},
		Integrator: IntegratorConfig{Kind: "rk4", Steps: 8},
		Solver:     SolverConfig{MaxIter: 400, Tol: 1e-5},
		Optimizer:  OptimizerConfig{Steps: 10, AlphaMax: 0.5, AlphaTol: 1e-4, QuadraticNoise: true},
	},
	"sample": {
		Name: "sample", Seed: 4,
		Grid:      GridConfig{N: 16, Dx: 1},
		Signal:    SignalConfig{Amplitude: 1, Knee: 1, Damping: 2.5, MixVariance: 0.05},
		Potential: PotentialConfig{DeflectionRMS: 0.3, Knee: 0.5},
		Noise:     NoiseConfig{Level: 0.1, BeamFWHM: 1.5},
		Integrator: IntegratorConfig{
			Kind: "dopri5", RelTol: 1e-6, AbsTol: 1e-8, MinStep: 1e-6, MaxSteps: 1000,
		},
		Solver:    SolverConfig{MaxIter: 200, Tol: 1e-6},
		Optimizer: OptimizerConfig{Steps: 6, AlphaMax: 0.5, AlphaTol: 1e-4, QuasiSample: true},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// ListPresets returns the preset names in order.
func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
