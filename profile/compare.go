package profile

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Comparison summarises log10(ED/ED_easy) over the rows where both densities
// are positive.
type Comparison struct {
	N              int
	MeanLogRatio   float64
	RMSLogRatio    float64
	MaxAbsLogRatio float64
}

// Compare builds the cross-check summary. With no usable rows the statistics
// are NaN and N is zero.
func Compare(rows []Row) Comparison {
	ratios := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !math.IsNaN(r.LogRatio) && !math.IsInf(r.LogRatio, 0) {
			ratios = append(ratios, r.LogRatio)
		}
	}
	if len(ratios) == 0 {
		nan := math.NaN()
		return Comparison{MeanLogRatio: nan, RMSLogRatio: nan, MaxAbsLogRatio: nan}
	}
	abs := make([]float64, len(ratios))
	for i, v := range ratios {
		abs[i] = math.Abs(v)
	}
	return Comparison{
		N:              len(ratios),
		MeanLogRatio:   stat.Mean(ratios, nil),
		RMSLogRatio:    floats.Norm(ratios, 2) / math.Sqrt(float64(len(ratios))),
		MaxAbsLogRatio: floats.Max(abs),
	}
}
