package fit

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"flared/observation"
)

// The fitting recipe. The bulk of the curve is smooth and well sampled and
// takes a high-order fit; the last few dozen points (the saturation regime at
// high flux) are sparse and erratic and take a straight line. Both fits use
// every averaged observation; only the evaluation ranges differ, and they
// overlap between len-40 and len-10.
const (
	BulkDegree        = 15
	TailDegree        = 1
	SamplesPerSegment = 100
	// MinObservations keeps both segment boundaries inside the sequence.
	MinObservations = 41

	bulkEndOffset   = 40
	tailStartOffset = 10
)

// ErrTooFewObservations is returned by Build for sequences shorter than
// MinObservations.
var ErrTooFewObservations = errors.New("fit: too few averaged observations")

// Target names one fitted quantity.
type Target string

const (
	TargetBeta   Target = "beta"
	TargetHPrime Target = "hprim"
)

// SegmentFit is one target's polynomial on one segment.
type SegmentFit struct {
	Coeffs  Poly
	Diag    Diagnostics
	Samples []float64
}

// Segment is one evaluation range with its sample abscissae and both fits.
type Segment struct {
	Name   string
	Lo, Hi float64
	Degree int
	X      []float64
	Beta   SegmentFit
	HPrime SegmentFit
}

// Warning is a conditioning diagnostic surfaced from a rank-deficient fit.
type Warning struct {
	Segment string
	Target  Target
	Diagnostics
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s fit: degree %d polynomial resolved at rank %d (cond %.3g)",
		w.Segment, w.Target, w.Degree, w.Rank, w.Cond)
}

// Samples is the concatenated sample set (bulk segment first, then tail) that
// the interpolants are built from. It is enough to rebuild a Model without
// refitting.
type Samples struct {
	X      []float64
	Beta   []float64
	HPrime []float64
}

// Model holds the beta(ix) and H'(ix) interpolants. It is immutable and safe
// for concurrent readers.
type Model struct {
	segments []Segment
	samples  Samples
	beta     *Interpolant
	hprim    *Interpolant
	warnings []Warning
}

// Build fits both segments over avg, which must be strictly increasing in ix
// and hold at least MinObservations rows.
func Build(avg []observation.Observation) (*Model, error) {
	n := len(avg)
	if n < MinObservations {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrTooFewObservations, MinObservations, n)
	}
	x := make([]float64, n)
	beta := make([]float64, n)
	hprim := make([]float64, n)
	for i, o := range avg {
		if i > 0 && !(o.IX > avg[i-1].IX) {
			return nil, fmt.Errorf("fit: ix not strictly increasing at row %d (%g after %g)", i, o.IX, avg[i-1].IX)
		}
		x[i], beta[i], hprim[i] = o.IX, o.Beta, o.Height
	}

	bulk, err := fitSegment("bulk", x, beta, hprim, x[0], x[n-bulkEndOffset], BulkDegree)
	if err != nil {
		return nil, err
	}
	tail, err := fitSegment("tail", x, beta, hprim, x[n-tailStartOffset], x[n-1], TailDegree)
	if err != nil {
		return nil, err
	}

	var s Samples
	for _, seg := range []Segment{bulk, tail} {
		s.X = append(s.X, seg.X...)
		s.Beta = append(s.Beta, seg.Beta.Samples...)
		s.HPrime = append(s.HPrime, seg.HPrime.Samples...)
	}
	m, err := Restore(s)
	if err != nil {
		return nil, err
	}
	m.segments = []Segment{bulk, tail}
	for _, seg := range m.segments {
		for _, f := range []struct {
			target Target
			diag   Diagnostics
		}{{TargetBeta, seg.Beta.Diag}, {TargetHPrime, seg.HPrime.Diag}} {
			if f.diag.RankDeficient() {
				m.warnings = append(m.warnings, Warning{Segment: seg.Name, Target: f.target, Diagnostics: f.diag})
			}
		}
	}
	return m, nil
}

func fitSegment(name string, x, beta, hprim []float64, lo, hi float64, degree int) (Segment, error) {
	seg := Segment{Name: name, Lo: lo, Hi: hi, Degree: degree}
	seg.X = floats.Span(make([]float64, SamplesPerSegment), lo, hi)

	var err error
	if seg.Beta, err = fitTarget(x, beta, degree, seg.X); err != nil {
		return seg, fmt.Errorf("fit: %s segment beta: %w", name, err)
	}
	if seg.HPrime, err = fitTarget(x, hprim, degree, seg.X); err != nil {
		return seg, fmt.Errorf("fit: %s segment hprim: %w", name, err)
	}
	return seg, nil
}

func fitTarget(x, y []float64, degree int, at []float64) (SegmentFit, error) {
	coeffs, diag, err := Polyfit(x, y, degree)
	if err != nil {
		return SegmentFit{}, err
	}
	out := SegmentFit{Coeffs: coeffs, Diag: diag, Samples: make([]float64, len(at))}
	for i, v := range at {
		out.Samples[i] = coeffs.Eval(v)
	}
	return out, nil
}

// Restore rebuilds a Model from a previously built sample set. The restored
// model has no segment detail or warnings; those exist only on a fresh Build.
func Restore(s Samples) (*Model, error) {
	if len(s.X) != len(s.Beta) || len(s.X) != len(s.HPrime) {
		return nil, errLengthMismatch
	}
	b, err := NewInterpolant(s.X, s.Beta)
	if err != nil {
		return nil, err
	}
	h, err := NewInterpolant(s.X, s.HPrime)
	if err != nil {
		return nil, err
	}
	return &Model{
		samples: Samples{
			X:      append([]float64(nil), s.X...),
			Beta:   append([]float64(nil), s.Beta...),
			HPrime: append([]float64(nil), s.HPrime...),
		},
		beta:  b,
		hprim: h,
	}, nil
}

// Beta returns beta(ix) in km^-1.
func (m *Model) Beta(ix float64) (float64, error) { return m.beta.At(ix) }

// HPrime returns H'(ix) in km.
func (m *Model) HPrime(ix float64) (float64, error) { return m.hprim.At(ix) }

// Domain returns the range accepted by Beta and HPrime.
func (m *Model) Domain() (lo, hi float64) { return m.beta.Domain() }

// Segments returns the bulk and tail segments of a built model.
func (m *Model) Segments() []Segment { return m.segments }

// Warnings returns the conditioning diagnostics of rank-deficient fits.
func (m *Model) Warnings() []Warning { return m.warnings }

// Samples returns a copy of the concatenated sample set.
func (m *Model) Samples() Samples {
	return Samples{
		X:      append([]float64(nil), m.samples.X...),
		Beta:   append([]float64(nil), m.samples.Beta...),
		HPrime: append([]float64(nil), m.samples.HPrime...),
	}
}
