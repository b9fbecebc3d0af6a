// Package observation holds the historical flare measurements (solar flux,
// attenuation coefficient, reflection height) that the fitter learns from,
// and the SQLite-backed store they are read out of.
package observation

import (
	"context"
	"sort"
)

// Observation is one measured (ix, beta, H') triple.
type Observation struct {
	IX     float64 // solar X-ray flux, W/m^2
	Beta   float64 // attenuation coefficient, km^-1
	Height float64 // reflection height H', km
}

// Store exposes the single read the core needs: every observation, ordered
// ascending by ix.
type Store interface {
	Fetch(ctx context.Context) ([]Observation, error)
}

// MemoryStore serves a fixed observation set, mainly for tests and for
// callers that already hold the data in memory.
type MemoryStore struct {
	rows []Observation
}

// NewMemoryStore copies rows and orders them by ix. Equal ix values keep their
// input order, matching what ORDER BY returns for a freshly loaded table.
func NewMemoryStore(rows []Observation) *MemoryStore {
	cp := append([]Observation(nil), rows...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].IX < cp[j].IX })
	return &MemoryStore{rows: cp}
}

func (m *MemoryStore) Fetch(ctx context.Context) ([]Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Observation(nil), m.rows...), nil
}
