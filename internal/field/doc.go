// Package field implements the flat-sky field algebra the lensing core runs on.
//
// A [Field] lives on a square periodic [Grid] and is held either in pixel
// ([Map]) or discrete Fourier ([Fourier]) representation. Fields are
// immutable: every operation returns a new value. Linear operators share the
// [LinOp] contract; [Diagonal] covers covariances, beams and masks, [Chain]
// composes operators explicitly.
//
// The inner product is the plain pixel sum, so Fourier-diagonal operators
// with values even in k are self-adjoint and the first-derivative operators
// are exactly antisymmetric.
package field
