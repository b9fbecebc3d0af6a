// Package profile generates flarED electron density profiles over one sweep
// axis (altitude at fixed flux, or time at fixed altitude) and cross-checks
// each row against the easyfit model.
//
// Purpose:
//   - Drive density.Resolver and density.ElectronDensity over a sweep.
//   - Evaluate the easyfit reference for the same rows.
//   - Apply the flux-dependent ionospheric response delay in time mode.
//
// Downstream:
//   - report.Write emits the Result.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"flared/density"
	"flared/easyfit"
	"flared/xray"
)

// Altitude sweep bounds in km, inclusive.
const (
	MinHeight = 50
	MaxHeight = 90
)

// Mode names the sweep axis; the values are also used in result folder names.
type Mode string

const (
	ModeAltitude Mode = "h"
	ModeTime     Mode = "t"
)

// Axis selects the sweep. It is one of ByAltitude or ByTime.
type Axis interface {
	mode() Mode
}

// ByAltitude sweeps h over MinHeight..MaxHeight at a fixed flux.
type ByAltitude struct {
	IX float64
}

func (ByAltitude) mode() Mode { return ModeAltitude }

// ByTime evaluates each sample of a flux series at a fixed altitude.
type ByTime struct {
	Height  int
	Samples []xray.Sample
}

func (ByTime) mode() Mode { return ModeTime }

// Resolver resolves beta and H' for a flux value. *density.Resolver
// satisfies it.
type Resolver interface {
	Resolve(ix float64) (density.Params, error)
}

// Reference is the easyfit table. *easyfit.Table satisfies it.
type Reference interface {
	Lookup(h int) (easyfit.Row, error)
}

// Row is one line of the output table.
type Row struct {
	Height int
	Stamp  string    // time mode only
	Time   time.Time // time mode only
	EDTime time.Time // time mode with delay only
	Params density.Params
	ED     float64
	EDEasy float64
	// LogRatio is log10(ED/EDEasy); NaN when either density is not positive.
	LogRatio float64
}

// Result is the output of one Generate call.
type Result struct {
	Mode   Mode
	IX     float64 // altitude mode
	Height int     // time mode
	// Params holds the resolved inputs of an altitude profile.
	Params     density.Params
	Rows       []Row
	Delay      DelayResult
	Comparison Comparison
}

// Generator holds the shared model pieces for both sweep axes.
type Generator struct {
	Resolver Resolver
	EasyFit  Reference
	Delay    Delay
}

var errNoResolver = errors.New("profile: generator has no resolver")

// Generate evaluates the sweep selected by axis.
func (g *Generator) Generate(ctx context.Context, axis Axis) (Result, error) {
	if g == nil || g.Resolver == nil {
		return Result{}, errNoResolver
	}
	if g.EasyFit == nil {
		return Result{}, errors.New("profile: generator has no easyfit table")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	switch a := axis.(type) {
	case ByAltitude:
		return g.byAltitude(a)
	case ByTime:
		return g.byTime(ctx, a)
	default:
		return Result{}, fmt.Errorf("profile: unsupported axis %T", axis)
	}
}

func (g *Generator) byAltitude(a ByAltitude) (Result, error) {
	params, err := g.Resolver.Resolve(a.IX)
	if err != nil {
		return Result{}, fmt.Errorf("profile: altitude: %w", err)
	}
	res := Result{
		Mode:   ModeAltitude,
		IX:     a.IX,
		Params: params,
		Rows:   make([]Row, 0, MaxHeight-MinHeight+1),
	}
	for h := MinHeight; h <= MaxHeight; h++ {
		row, err := g.row(h, params, a.IX)
		if err != nil {
			return Result{}, err
		}
		res.Rows = append(res.Rows, row)
	}
	res.Comparison = Compare(res.Rows)
	return res, nil
}

func (g *Generator) byTime(ctx context.Context, a ByTime) (Result, error) {
	if len(a.Samples) == 0 {
		return Result{}, errors.New("profile: time series is empty")
	}
	res := Result{
		Mode:   ModeTime,
		Height: a.Height,
		Rows:   make([]Row, 0, len(a.Samples)),
	}
	var shift time.Duration
	if g.Delay.Enabled {
		peak, err := xray.Peak(a.Samples)
		if err != nil {
			return Result{}, fmt.Errorf("profile: delay: %w", err)
		}
		minutes, err := g.Delay.Minutes(peak)
		if err != nil {
			return Result{}, err
		}
		shift = time.Duration(minutes * float64(time.Minute))
		res.Delay = DelayResult{Applied: true, PeakIX: peak, Minutes: minutes}
	}
	for i, s := range a.Samples {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		params, err := g.Resolver.Resolve(s.IX)
		if err != nil {
			return Result{}, fmt.Errorf("profile: sample %d (%s): %w", i+1, s.Stamp, err)
		}
		row, err := g.row(a.Height, params, s.IX)
		if err != nil {
			return Result{}, fmt.Errorf("profile: sample %d (%s): %w", i+1, s.Stamp, err)
		}
		row.Stamp = s.Stamp
		row.Time = s.Time
		if res.Delay.Applied {
			row.EDTime = s.Time.Add(shift)
		}
		res.Rows = append(res.Rows, row)
	}
	res.Comparison = Compare(res.Rows)
	return res, nil
}

// row evaluates both models at altitude h. The easyfit model takes the flux
// as given; only flarED goes through the clamping policy.
func (g *Generator) row(h int, params density.Params, ix float64) (Row, error) {
	ref, err := g.EasyFit.Lookup(h)
	if err != nil {
		return Row{}, fmt.Errorf("profile: easyfit h=%d: %w", h, err)
	}
	easy, err := ref.Density(ix)
	if err != nil {
		return Row{}, fmt.Errorf("profile: easyfit h=%d: %w", h, err)
	}
	ed := params.Density(float64(h))
	return Row{
		Height:   h,
		Params:   params,
		ED:       ed,
		EDEasy:   easy,
		LogRatio: logRatio(ed, easy),
	}, nil
}

func logRatio(a, b float64) float64 {
	if !(a > 0) || !(b > 0) {
		return math.NaN()
	}
	return math.Log10(a / b)
}
