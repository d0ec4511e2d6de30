package storage

import (
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/jointmax"
)

// Maps holds the final fields of a run as pixel rows.
type Maps struct {
	N    int         `json:"n"`
	Dx   float64     `json:"dx"`
	F    [][]float64 `json:"f"`
	FMix [][]float64 `json:"fmix"`
	Phi  [][]float64 `json:"phi"`
}

func NewMaps(res *jointmax.Result) *Maps {
	g := res.Phi.Grid()
	return &Maps{
		N:    g.N(),
		Dx:   g.Dx(),
		F:    res.F.Rows(),
		FMix: res.FMix.Rows(),
		Phi:  res.Phi.Rows(),
	}
}

// Fields rebuilds the stored maps on their grid.
func (m *Maps) Fields() (f, fmix, phi *field.Field, err error) {
	g, err := field.NewGrid(m.N, m.Dx)
	if err != nil {
		return nil, nil, nil, err
	}
	if f, err = field.FromRows(g, m.F); err != nil {
		return nil, nil, nil, err
	}
	if fmix, err = field.FromRows(g, m.FMix); err != nil {
		return nil, nil, nil, err
	}
	if phi, err = field.FromRows(g, m.Phi); err != nil {
		return nil, nil, nil, err
	}
	return f, fmix, phi, nil
}

func (s *Store) LoadMaps(runID string) (*Maps, error) {
	var m Maps
	if err := s.readJSON(runID, "maps.json", &m); err != nil {
		return nil, err
	}
	return &m, nil
}
