// Package analysis provides diagnostics for reconstructed fields.
//
// The package includes:
//
//   - [BandPowers]: azimuthally binned power spectrum of a map
//   - [CrossCorrelation]: per-band correlation coefficient of two maps
//   - [QuadraticEstimatorNoise]: flat-sky reconstruction noise of the
//     temperature quadratic estimator, usable as the potential-step noise
//     estimate of the joint optimizer
//
// # Band Convention
//
// Band powers follow the covariance convention of field.Diagonal: a map
// drawn with Fourier-diagonal covariance C has expected band power equal to
// the band average of C.
//
//	ps, err := analysis.BandPowers(f, analysis.LinearBands(g, 8))
//	cf, err := ps.Diagonal(g)
package analysis
