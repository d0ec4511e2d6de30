package field

import "errors"

var (
	// ErrShapeMismatch indicates fields or operators defined on different grids.
	ErrShapeMismatch = errors.New("field: grid shape mismatch")

	// ErrSingular indicates inversion of a zero or non-finite diagonal entry.
	ErrSingular = errors.New("field: singular operator")

	// ErrBasisMismatch indicates an elementwise combination of diagonals held in different bases.
	ErrBasisMismatch = errors.New("field: diagonal operators in different bases")

	// ErrInvalidGrid indicates a non-positive grid size or pixel width.
	ErrInvalidGrid = errors.New("field: invalid grid")
)
