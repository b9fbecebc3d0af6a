// Package dedup collapses repeated flux values in the historical observation
// table into one averaged row each, so the fitter sees a strictly increasing ix
// axis.
package dedup

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"flared/observation"
)

// DefaultCeilingIX is the ix written onto the last averaged row by
// ApplyCeiling. The largest measured flux in the flare table sits far beyond
// the rest and stretches the interpolation domain on its own.
const DefaultCeilingIX = 0.0001

// Average groups consecutive observations with exactly equal ix and replaces
// each group of two or more with its mean beta and height, rounded to three
// decimals. A group of one is passed through untouched.
//
// The input is expected in ix order (the store query orders it). It is
// stable-sorted first anyway, which leaves ordered input unchanged and keeps a
// strictly increasing output for any input.
func Average(obs []observation.Observation) []observation.Observation {
	if len(obs) == 0 {
		return nil
	}
	sorted := append([]observation.Observation(nil), obs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].IX < sorted[j].IX })

	out := make([]observation.Observation, 0, len(sorted))
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].IX == sorted[start].IX {
			end++
		}
		out = append(out, collapse(sorted[start:end]))
		start = end
	}
	return out
}

func collapse(group []observation.Observation) observation.Observation {
	if len(group) == 1 {
		return group[0]
	}
	betas := make([]float64, len(group))
	heights := make([]float64, len(group))
	for i, o := range group {
		betas[i] = o.Beta
		heights[i] = o.Height
	}
	return observation.Observation{
		IX:     group[0].IX,
		Beta:   round3(stat.Mean(betas, nil)),
		Height: round3(stat.Mean(heights, nil)),
	}
}

// round3 rounds half away from zero at the third decimal.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ApplyCeiling returns a copy of avg with the ix of its last row replaced by
// ceiling. Beta and height of that row are kept.
func ApplyCeiling(avg []observation.Observation, ceiling float64) []observation.Observation {
	if len(avg) == 0 {
		return nil
	}
	out := append([]observation.Observation(nil), avg...)
	out[len(out)-1].IX = ceiling
	return out
}
