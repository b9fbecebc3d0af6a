// Package density computes flare-time electron density from the attenuation
// coefficient beta and the reflection height H' (the Wait exponential
// profile), and resolves beta/H' for a given solar flux under the low/high
// flux clamping policy.
package density

import (
	"fmt"
	"math"
)

// ElectronDensity returns the electron density in m^-3 at altitude h (km) for
// beta in km^-1 and hprim in km:
//
//	1.43e13 * exp(-0.15*H') * exp((beta-0.15)*(h-H'))
//
// NaN and Inf propagate.
func ElectronDensity(beta, hprim, h float64) float64 {
	return 1.43e13 * math.Exp(-0.15*hprim) * math.Exp((beta-0.15)*(h-hprim))
}

// Curves is the fitted beta(ix)/H'(ix) pair. *fit.Model satisfies it.
type Curves interface {
	Beta(ix float64) (float64, error)
	HPrime(ix float64) (float64, error)
	Domain() (lo, hi float64)
}

// Source records which branch of the clamping policy produced a Params.
type Source string

const (
	SourceInterpolated Source = "interpolated"
	SourceLowFixed     Source = "low_fixed"
	SourceLowClamped   Source = "low_clamped"
	SourceHighClamped  Source = "high_clamped"
)

// Params are the model inputs resolved for one flux value.
type Params struct {
	IX     float64 // flux as given
	Beta   float64
	HPrime float64
	Source Source
}

// Density evaluates ElectronDensity at altitude h with these parameters.
func (p Params) Density(h float64) float64 {
	return ElectronDensity(p.Beta, p.HPrime, h)
}

func evaluate(c Curves, ix float64) (beta, hprim float64, err error) {
	if beta, err = c.Beta(ix); err != nil {
		return 0, 0, fmt.Errorf("density: beta: %w", err)
	}
	if hprim, err = c.HPrime(ix); err != nil {
		return 0, 0, fmt.Errorf("density: hprim: %w", err)
	}
	return beta, hprim, nil
}
