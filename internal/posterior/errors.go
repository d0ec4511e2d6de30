package posterior

import "errors"

var (
	// ErrInvalidParametrization indicates a tag other than unlensed, lensed or mixed.
	ErrInvalidParametrization = errors.New("posterior: invalid parametrization")

	// ErrMissingOperator indicates a DataSet built without a required component.
	ErrMissingOperator = errors.New("posterior: missing required dataset component")
)
