package density

import (
	"errors"
	"math"
	"testing"

	"flared/fit"
)

// stubCurves returns constant beta/H' over [lo, hi], with a fit-style domain
// error outside it.
type stubCurves struct {
	lo, hi      float64
	beta, hprim float64
	queried     []float64
}

func (s *stubCurves) check(ix float64) error {
	s.queried = append(s.queried, ix)
	if ix < s.lo || ix > s.hi {
		return &fit.DomainError{X: ix, Min: s.lo, Max: s.hi}
	}
	return nil
}

func (s *stubCurves) Beta(ix float64) (float64, error) {
	if err := s.check(ix); err != nil {
		return 0, err
	}
	return s.beta + ix, nil
}

func (s *stubCurves) HPrime(ix float64) (float64, error) {
	if err := s.check(ix); err != nil {
		return 0, err
	}
	return s.hprim, nil
}

func (s *stubCurves) Domain() (float64, float64) { return s.lo, s.hi }

func TestElectronDensityAtReflectionHeight(t *testing.T) {
	for _, hprim := range []float64{60, 70, 74, 80.5} {
		for _, beta := range []float64{0.1, 0.3, 0.5, 1.2} {
			got := ElectronDensity(beta, hprim, hprim)
			want := 1.43e13 * math.Exp(-0.15*hprim)
			if got != want {
				t.Fatalf("beta=%v hprim=%v: expected %v, got %v", beta, hprim, want, got)
			}
		}
	}
}

func TestElectronDensityKnownValue(t *testing.T) {
	// 1.43e13 * e^-12
	got := ElectronDensity(0.5, 80, 80)
	if math.Abs(got-8.786e7)/8.786e7 > 0.001 {
		t.Fatalf("expected about 8.786e7, got %v", got)
	}
	// Ten kilometres above H' with beta-0.15 = 0.35 grows by e^3.5.
	up := ElectronDensity(0.5, 80, 90)
	if math.Abs(up/got-math.Exp(3.5)) > 1e-9 {
		t.Fatalf("expected ratio e^3.5, got %v", up/got)
	}
}

func TestElectronDensityPropagatesNaN(t *testing.T) {
	if !math.IsNaN(ElectronDensity(math.NaN(), 74, 70)) {
		t.Fatalf("expected NaN to propagate")
	}
}

func TestResolverBranches(t *testing.T) {
	curves := &stubCurves{lo: 5e-7, hi: 1e-4, beta: 0.4, hprim: 70}
	r := NewResolver(curves)
	if err := r.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	p, err := r.Resolve(1e-7)
	if err != nil {
		t.Fatalf("low: %v", err)
	}
	if p.Source != SourceLowFixed || p.Beta != 0.3 || p.HPrime != 74 {
		t.Fatalf("expected fixed fallback, got %+v", p)
	}

	p, err = r.Resolve(2e-5)
	if err != nil {
		t.Fatalf("mid: %v", err)
	}
	if p.Source != SourceInterpolated || p.Beta != 0.4+2e-5 {
		t.Fatalf("expected direct lookup, got %+v", p)
	}

	p, err = r.Resolve(3e-4)
	if err != nil {
		t.Fatalf("high: %v", err)
	}
	if p.Source != SourceHighClamped || p.Beta != 0.4+1e-4 || p.IX != 3e-4 {
		t.Fatalf("expected lookup at high threshold, got %+v", p)
	}

	// Thresholds themselves query the curves directly.
	for _, ix := range []float64{DefaultLowThreshold, DefaultHighThreshold} {
		p, err := r.Resolve(ix)
		if err != nil || p.Source != SourceInterpolated {
			t.Fatalf("ix=%v: expected interpolated, got %+v (%v)", ix, p, err)
		}
	}
}

func TestResolverClampToMin(t *testing.T) {
	curves := &stubCurves{lo: 5e-7, hi: 1e-4, beta: 0.4, hprim: 70}
	r := NewResolver(curves)
	r.Policy = ClampToMin{}
	p, err := r.Resolve(1e-8)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Source != SourceLowClamped || p.Beta != 0.4+5e-7 || p.HPrime != 70 {
		t.Fatalf("expected values at domain min, got %+v", p)
	}
}

func TestResolverSurfacesDomainError(t *testing.T) {
	curves := &stubCurves{lo: 1e-6, hi: 1e-4, beta: 0.4, hprim: 70}
	r := NewResolver(curves)
	_, err := r.Resolve(9e-7)
	if !errors.Is(err, fit.ErrDomain) {
		t.Fatalf("expected domain error between low threshold and domain min, got %v", err)
	}
	if _, err := r.Resolve(math.NaN()); err == nil {
		t.Fatalf("expected error for NaN flux")
	}
}

func TestResolverValidate(t *testing.T) {
	curves := &stubCurves{lo: 1e-6, hi: 1e-4}
	r := NewResolver(curves)
	r.High = WideHighThreshold
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error when high threshold exceeds domain")
	}
	r.High = 1e-4
	r.Low = 2e-4
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error when low >= high")
	}
	if err := (&Resolver{}).Validate(); err == nil {
		t.Fatalf("expected error without curves")
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Fixed", 0.25, 73)
	if err != nil {
		t.Fatalf("parse fixed: %v", err)
	}
	if f, ok := p.(Fixed); !ok || f.Beta != 0.25 || f.HPrime != 73 {
		t.Fatalf("unexpected policy %#v", p)
	}
	p, err = ParsePolicy("clamp_to_min", 0, 0)
	if err != nil {
		t.Fatalf("parse clamp: %v", err)
	}
	if _, ok := p.(ClampToMin); !ok {
		t.Fatalf("unexpected policy %#v", p)
	}
	if _, err := ParsePolicy("nearest", 0, 0); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
