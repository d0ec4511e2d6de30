package posterior

import (
	"fmt"
	"strings"
)

// Parametrization selects the time slice the signal field is expressed at.
type Parametrization int

const (
	// Unlensed fields live at t = 0.
	Unlensed Parametrization = iota
	// Lensed fields live at t = 1.
	Lensed
	// Mixed fields are D·L[0→1]·f, a bijective rescaling of Unlensed.
	Mixed
)

var parametrizationNames = map[Parametrization]string{
	Unlensed: "unlensed",
	Lensed:   "lensed",
	Mixed:    "mixed",
}

func (p Parametrization) String() string {
	if s, ok := parametrizationNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Parametrization(%d)", int(p))
}

// Validate returns ErrInvalidParametrization for values outside the enum.
func (p Parametrization) Validate() error {
	if _, ok := parametrizationNames[p]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidParametrization, int(p))
	}
	return nil
}

func ParseParametrization(s string) (Parametrization, error) {
	for p, name := range parametrizationNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidParametrization, s)
}
