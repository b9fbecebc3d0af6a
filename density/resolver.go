package density

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Flux thresholds of the clamping policy, W/m^2.
const (
	DefaultLowThreshold  = 8e-7
	DefaultHighThreshold = 1e-4
	// WideHighThreshold is the upper flux bound accepted on the command line
	// by the altitude-profile tool.
	WideHighThreshold = 2.2e-4

	DefaultFallbackBeta   = 0.3
	DefaultFallbackHPrime = 74.0
)

// LowFluxPolicy decides beta and H' for flux below the low threshold, where
// the observation table has too few points to trust the fit.
type LowFluxPolicy interface {
	resolveLow(c Curves) (beta, hprim float64, src Source, err error)
	String() string
}

// Fixed uses constant beta and H' below the low threshold.
type Fixed struct {
	Beta   float64
	HPrime float64
}

func (f Fixed) resolveLow(Curves) (float64, float64, Source, error) {
	return f.Beta, f.HPrime, SourceLowFixed, nil
}

func (f Fixed) String() string {
	return fmt.Sprintf("fixed(beta=%g, hprim=%g)", f.Beta, f.HPrime)
}

// ClampToMin uses the curves' values at the lowest ix of their domain.
type ClampToMin struct{}

func (ClampToMin) resolveLow(c Curves) (float64, float64, Source, error) {
	lo, _ := c.Domain()
	beta, hprim, err := evaluate(c, lo)
	return beta, hprim, SourceLowClamped, err
}

func (ClampToMin) String() string { return "clamp_to_min" }

// ParsePolicy maps a config name onto a policy. "fixed" takes the fallback
// values; "clamp_to_min" ignores them.
func ParsePolicy(name string, fallbackBeta, fallbackHPrime float64) (LowFluxPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fixed":
		return Fixed{Beta: fallbackBeta, HPrime: fallbackHPrime}, nil
	case "clamp_to_min", "clamp":
		return ClampToMin{}, nil
	default:
		return nil, fmt.Errorf("density: unknown low flux policy %q", name)
	}
}

// Resolver applies the clamping policy in front of the fitted curves:
// ix below Low goes to Policy, ix above High is queried at High, anything
// else is queried directly.
type Resolver struct {
	Curves Curves
	Policy LowFluxPolicy
	Low    float64
	High   float64
}

// NewResolver returns a Resolver with the default thresholds and the fixed
// (beta=0.3, H'=74 km) low-flux policy.
func NewResolver(c Curves) *Resolver {
	return &Resolver{
		Curves: c,
		Policy: Fixed{Beta: DefaultFallbackBeta, HPrime: DefaultFallbackHPrime},
		Low:    DefaultLowThreshold,
		High:   DefaultHighThreshold,
	}
}

// Validate checks the thresholds against each other and against the curve
// domain: a High above the domain would turn every clamped query into a
// domain error.
func (r *Resolver) Validate() error {
	if r == nil || r.Curves == nil {
		return errors.New("density: resolver has no curves")
	}
	if r.Policy == nil {
		return errors.New("density: resolver has no low flux policy")
	}
	if !(r.Low > 0) || !(r.High > r.Low) {
		return fmt.Errorf("density: thresholds must satisfy 0 < low < high, got low=%g high=%g", r.Low, r.High)
	}
	if _, hi := r.Curves.Domain(); r.High > hi {
		return fmt.Errorf("density: high threshold %g exceeds curve domain max %g", r.High, hi)
	}
	return nil
}

// Resolve returns beta and H' for flux ix.
func (r *Resolver) Resolve(ix float64) (Params, error) {
	p := Params{IX: ix}
	if math.IsNaN(ix) {
		return p, fmt.Errorf("density: flux is NaN")
	}
	var err error
	switch {
	case ix < r.Low:
		p.Beta, p.HPrime, p.Source, err = r.Policy.resolveLow(r.Curves)
	case ix > r.High:
		p.Source = SourceHighClamped
		p.Beta, p.HPrime, err = evaluate(r.Curves, r.High)
	default:
		p.Source = SourceInterpolated
		p.Beta, p.HPrime, err = evaluate(r.Curves, ix)
	}
	if err != nil {
		return p, fmt.Errorf("density: resolve ix=%g: %w", ix, err)
	}
	return p, nil
}
