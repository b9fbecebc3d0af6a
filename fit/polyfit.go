// Package fit turns the averaged flare observations into continuous beta(ix)
// and H'(ix) curves: least-squares polynomials over two ix segments, sampled
// and glued into one piecewise-linear interpolant per target.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrTooFewPoints is returned when a fit has fewer distinct abscissae
	// than coefficients to solve for.
	ErrTooFewPoints   = errors.New("fit: too few distinct points for polynomial degree")
	errLengthMismatch = errors.New("fit: x and y lengths differ")
)

// Poly holds polynomial coefficients, lowest power first.
type Poly []float64

// Eval evaluates the polynomial at x (Horner).
func (p Poly) Eval(x float64) float64 {
	var v float64
	for i := len(p) - 1; i >= 0; i-- {
		v = v*x + p[i]
	}
	return v
}

// Degree returns len(p)-1.
func (p Poly) Degree() int { return len(p) - 1 }

// Diagnostics describes the conditioning of one least-squares solve. A
// degree-15 fit over flux values spanning three decades is expected to be
// rank deficient; the solve still succeeds, truncated at the effective rank.
type Diagnostics struct {
	Degree int
	Rank   int     // effective rank of the scaled Vandermonde matrix
	Cond   float64 // 2-norm condition number of the scaled Vandermonde matrix
}

// RankDeficient reports whether fewer than Degree+1 directions were resolved.
func (d Diagnostics) RankDeficient() bool { return d.Rank < d.Degree+1 }

// Polyfit solves the least-squares polynomial of the given degree through
// (x, y). Vandermonde columns are scaled to unit norm before an SVD solve, and
// singular values below len(x)*eps of the largest are dropped. Rank loss is
// reported in Diagnostics, never as an error.
func Polyfit(x, y []float64, degree int) (Poly, Diagnostics, error) {
	diag := Diagnostics{Degree: degree}
	if len(x) != len(y) {
		return nil, diag, errLengthMismatch
	}
	if degree < 0 {
		return nil, diag, fmt.Errorf("fit: invalid degree %d", degree)
	}
	order := degree + 1
	if n := distinct(x); n < order {
		return nil, diag, fmt.Errorf("%w: degree %d needs %d, have %d", ErrTooFewPoints, degree, order, n)
	}

	lhs := vandermonde(x, degree)
	scale := make([]float64, order)
	for j := 0; j < order; j++ {
		col := mat.Col(nil, j, lhs)
		s := 0.0
		for _, v := range col {
			s += v * v
		}
		s = math.Sqrt(s)
		if s == 0 {
			s = 1
		}
		scale[j] = s
		for i := range col {
			lhs.Set(i, j, col[i]/s)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(lhs, mat.SVDThin); !ok {
		return nil, diag, errors.New("fit: SVD factorization failed")
	}
	rcond := float64(len(x)) * eps
	diag.Rank = svd.Rank(rcond)
	diag.Cond = svd.Cond()
	if diag.Rank == 0 {
		return nil, diag, errors.New("fit: vandermonde matrix has rank 0")
	}

	rhs := mat.NewVecDense(len(y), append([]float64(nil), y...))
	var c mat.VecDense
	svd.SolveVecTo(&c, rhs, diag.Rank)

	coeffs := make(Poly, order)
	for j := range coeffs {
		coeffs[j] = c.AtVec(j) / scale[j]
	}
	return coeffs, diag, nil
}

// eps is the float64 machine epsilon.
const eps = 2.220446049250313e-16

// vandermonde builds the len(a)x(degree+1) matrix with columns a^0..a^degree.
func vandermonde(a []float64, degree int) *mat.Dense {
	x := mat.NewDense(len(a), degree+1, nil)
	for i := range a {
		for j, p := 0, 1.0; j <= degree; j, p = j+1, p*a[i] {
			x.Set(i, j, p)
		}
	}
	return x
}

func distinct(x []float64) int {
	seen := make(map[float64]struct{}, len(x))
	for _, v := range x {
		seen[v] = struct{}{}
	}
	return len(seen)
}
