package profile

import (
	"fmt"
	"math"
)

// Response delay coefficients: minutes = intercept + slope*log10(peak ix).
const (
	DefaultDelayIntercept = 0.45385
	DefaultDelaySlope     = -0.44863
)

// Delay models the lag of the lower ionosphere behind the X-ray flux.
type Delay struct {
	Enabled   bool
	Intercept float64
	Slope     float64
}

// DefaultDelay returns the delay model with its published coefficients,
// disabled.
func DefaultDelay() Delay {
	return Delay{Intercept: DefaultDelayIntercept, Slope: DefaultDelaySlope}
}

// Minutes returns the delay for a series whose peak flux is peak.
func (d Delay) Minutes(peak float64) (float64, error) {
	if !(peak > 0) || math.IsInf(peak, 1) {
		return 0, fmt.Errorf("profile: delay needs a positive finite peak flux, got %g", peak)
	}
	return d.Intercept + d.Slope*math.Log10(peak), nil
}

// DelayResult records the delay applied to a time series.
type DelayResult struct {
	Applied bool
	PeakIX  float64
	Minutes float64
}
