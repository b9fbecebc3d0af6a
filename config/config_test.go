package config

import (
	"os"
	"path/filepath"
	"testing"

	"flared/density"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flared.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LoadedFrom != "" {
		t.Fatalf("expected no LoadedFrom, got %q", cfg.LoadedFrom)
	}
	if !cfg.Fit.RewriteLastIX || cfg.Fit.CeilingIX != 0.0001 {
		t.Fatalf("expected ceiling rewrite by default, got %+v", cfg.Fit)
	}
	if cfg.Clamp.LowThreshold != 8e-7 || cfg.Clamp.HighThreshold != 1e-4 || cfg.Clamp.LowPolicy != "fixed" {
		t.Fatalf("unexpected clamp defaults %+v", cfg.Clamp)
	}
	if cfg.Delay.Enabled || cfg.Delay.Intercept != 0.45385 || cfg.Delay.Slope != -0.44863 {
		t.Fatalf("unexpected delay defaults %+v", cfg.Delay)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `data:
  database: "db/flares.sqlite"
fit:
  rewrite_last_ix: false
clamp:
  low_policy: " Clamp_To_Min "
delay:
  enabled: true
output:
  parquet: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LoadedFrom != path {
		t.Fatalf("expected LoadedFrom=%s, got %s", path, cfg.LoadedFrom)
	}
	if cfg.Data.Database != "db/flares.sqlite" || cfg.Data.EasyFit != "data/easyfit.csv" {
		t.Fatalf("expected file value merged with defaults, got %+v", cfg.Data)
	}
	if cfg.Fit.RewriteLastIX {
		t.Fatalf("expected fit.rewrite_last_ix=false from file")
	}
	if cfg.Clamp.LowPolicy != "clamp_to_min" {
		t.Fatalf("expected normalized policy, got %q", cfg.Clamp.LowPolicy)
	}
	policy, err := cfg.Clamp.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if _, ok := policy.(density.ClampToMin); !ok {
		t.Fatalf("expected ClampToMin, got %#v", policy)
	}
	if d := cfg.Delay.Model(); !d.Enabled || d.Slope != -0.44863 {
		t.Fatalf("unexpected delay model %+v", d)
	}
	if !cfg.Output.Parquet {
		t.Fatalf("expected output.parquet=true")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvDatabase, "/tmp/other.db")
	t.Setenv(EnvResults, "/tmp/results")
	path := writeConfig(t, "data:\n  database: \"file.db\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Data.Database != "/tmp/other.db" || cfg.Data.ResultsDir != "/tmp/results" {
		t.Fatalf("expected environment to win, got %+v", cfg.Data)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"thresholds": "clamp:\n  low_threshold: 0.001\n  high_threshold: 0.0001\n",
		"policy":     "clamp:\n  low_policy: nearest\n",
		"ceiling":    "fit:\n  ceiling_ix: -1\n",
		"yaml":       "data: [\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected Load() to fail", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfig, "")
	if got := ResolvePath(" flag.yaml "); got != "flag.yaml" {
		t.Fatalf("expected flag value, got %q", got)
	}
	t.Setenv(EnvConfig, "env.yaml")
	if got := ResolvePath(""); got != "env.yaml" {
		t.Fatalf("expected env value, got %q", got)
	}
}

type domainCurves struct{ hi float64 }

func (domainCurves) Beta(float64) (float64, error)   { return 0.4, nil }
func (domainCurves) HPrime(float64) (float64, error) { return 70, nil }
func (c domainCurves) Domain() (float64, float64)    { return 1e-7, c.hi }

func TestClampResolver(t *testing.T) {
	cfg := DefaultConfig()
	r, err := cfg.Clamp.Resolver(domainCurves{hi: 1e-4})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if r.Low != 8e-7 || r.High != 1e-4 {
		t.Fatalf("unexpected thresholds %v/%v", r.Low, r.High)
	}
	cfg.Clamp.HighThreshold = 2.2e-4
	if _, err := cfg.Clamp.Resolver(domainCurves{hi: 1e-4}); err == nil {
		t.Fatalf("expected error when high threshold exceeds the curve domain")
	}
}
