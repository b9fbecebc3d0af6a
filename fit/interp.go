package fit

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDomain is matched by every *DomainError.
var ErrDomain = errors.New("fit: ix outside interpolation domain")

// DomainError reports a query outside the interpolant's knot range. The
// interpolant never clamps; callers apply their own clamping first.
type DomainError struct {
	X        float64
	Min, Max float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("fit: ix %.4g outside interpolation domain [%.4g, %.4g]", e.X, e.Min, e.Max)
}

func (e *DomainError) Unwrap() error { return ErrDomain }

// Interpolant is a piecewise-linear function over a fixed knot set. It is
// immutable after construction and safe for concurrent use.
type Interpolant struct {
	xs []float64
	ys []float64
}

// NewInterpolant orders the knots by x (stable, so samples sharing an x keep
// their given order) and returns the interpolant through them.
func NewInterpolant(xs, ys []float64) (*Interpolant, error) {
	if len(xs) != len(ys) {
		return nil, errLengthMismatch
	}
	if len(xs) < 2 {
		return nil, errors.New("fit: interpolant needs at least 2 knots")
	}
	idx := make([]int, len(xs))
	for i := range idx {
		if math.IsNaN(xs[i]) || math.IsInf(xs[i], 0) {
			return nil, fmt.Errorf("fit: knot %d has non-finite x", i)
		}
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	in := &Interpolant{xs: make([]float64, len(xs)), ys: make([]float64, len(ys))}
	for i, k := range idx {
		in.xs[i] = xs[k]
		in.ys[i] = ys[k]
	}
	if in.xs[0] == in.xs[len(in.xs)-1] {
		return nil, errors.New("fit: interpolant domain is a single point")
	}
	return in, nil
}

// Domain returns the closed range of valid queries.
func (in *Interpolant) Domain() (lo, hi float64) {
	return in.xs[0], in.xs[len(in.xs)-1]
}

// At evaluates the interpolant at x, or returns a *DomainError when x lies
// outside Domain (NaN included).
func (in *Interpolant) At(x float64) (float64, error) {
	lo, hi := in.Domain()
	if !(x >= lo && x <= hi) {
		return 0, &DomainError{X: x, Min: lo, Max: hi}
	}
	// First knot >= x, kept inside [1, n-1] so the bracket is always a pair.
	i := sort.SearchFloat64s(in.xs, x)
	if i < 1 {
		i = 1
	}
	if i > len(in.xs)-1 {
		i = len(in.xs) - 1
	}
	x0, x1 := in.xs[i-1], in.xs[i]
	y0, y1 := in.ys[i-1], in.ys[i]
	if x1 == x0 {
		return y1, nil
	}
	return y0 + (y1-y0)*(x-x0)/(x1-x0), nil
}

// Knots returns copies of the ordered knot coordinates.
func (in *Interpolant) Knots() (xs, ys []float64) {
	return append([]float64(nil), in.xs...), append([]float64(nil), in.ys...)
}
