package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"flared/dedup"
	"flared/density"
	"flared/observation"
	"flared/profile"
)

// DefaultPath is where the CLI looks for its config when none is given.
const DefaultPath = "data/config/flared.yaml"

// Environment overrides, applied after the YAML file.
const (
	EnvConfig     = "FLARED_CONFIG"
	EnvDatabase   = "FLARED_DB"
	EnvEasyFit    = "FLARED_EASYFIT"
	EnvTimeSeries = "FLARED_TIME_SERIES"
	EnvResults    = "FLARED_RESULTS"
)

// Config represents the complete flarED configuration
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Fit      FitConfig      `yaml:"fit"`
	Clamp    ClampConfig    `yaml:"clamp"`
	Delay    DelayConfig    `yaml:"delay"`
	Output   OutputConfig   `yaml:"output"`
	FitCache FitCacheConfig `yaml:"fit_cache"`
	Logging  LoggingConfig  `yaml:"logging"`

	// LoadedFrom is the file the config was read from; empty for defaults.
	LoadedFrom string `yaml:"-"`
}

// DataConfig locates the input datasets and the results folder
type DataConfig struct {
	Database   string `yaml:"database"`
	Table      string `yaml:"table"`
	EasyFit    string `yaml:"easyfit"`
	TimeSeries string `yaml:"time_series"`
	ResultsDir string `yaml:"results_dir"`
}

// FitConfig controls the rewrite of the last averaged ix before fitting.
type FitConfig struct {
	RewriteLastIX bool    `yaml:"rewrite_last_ix"`
	CeilingIX     float64 `yaml:"ceiling_ix"`
}

// ClampConfig is the low/high flux clamping policy.
type ClampConfig struct {
	LowThreshold  float64 `yaml:"low_threshold"`
	HighThreshold float64 `yaml:"high_threshold"`
	LowPolicy     string  `yaml:"low_policy"`
	FallbackBeta  float64 `yaml:"fallback_beta"`
	FallbackHPrim float64 `yaml:"fallback_hprim"`
}

// DelayConfig is the time-series response delay model.
type DelayConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Intercept float64 `yaml:"intercept"`
	Slope     float64 `yaml:"slope"`
}

// OutputConfig selects optional result files.
type OutputConfig struct {
	Parquet bool `yaml:"parquet"`
}

// FitCacheConfig enables the Pebble fit cache.
type FitCacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	File string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Data: DataConfig{
			Database:   "data/flares.db",
			Table:      observation.DefaultTable,
			EasyFit:    "data/easyfit.csv",
			TimeSeries: "data/time_series.csv",
			ResultsDir: "results",
		},
		Fit: FitConfig{
			RewriteLastIX: true,
			CeilingIX:     dedup.DefaultCeilingIX,
		},
		Clamp: ClampConfig{
			LowThreshold:  density.DefaultLowThreshold,
			HighThreshold: density.DefaultHighThreshold,
			LowPolicy:     "fixed",
			FallbackBeta:  density.DefaultFallbackBeta,
			FallbackHPrim: density.DefaultFallbackHPrime,
		},
		Delay: DelayConfig{
			Enabled:   false,
			Intercept: profile.DefaultDelayIntercept,
			Slope:     profile.DefaultDelaySlope,
		},
		FitCache: FitCacheConfig{
			Enabled: false,
			Dir:     "data/fitcache",
		},
	}
}

// Load reads the YAML file at path over DefaultConfig, applies environment
// overrides (a .env file in the working directory is loaded first if
// present), normalizes and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.LoadedFrom = path
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ResolvePath picks the config file: the flag value, then FLARED_CONFIG,
// then DefaultPath if it exists. An empty result means defaults only.
func ResolvePath(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(EnvConfig)); v != "" {
		return v
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		EnvDatabase:   &c.Data.Database,
		EnvEasyFit:    &c.Data.EasyFit,
		EnvTimeSeries: &c.Data.TimeSeries,
		EnvResults:    &c.Data.ResultsDir,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
}

// normalize fills defaults for zero values and trims strings.
func (c *Config) normalize() {
	if c == nil {
		return
	}
	def := DefaultConfig()
	c.Data.Database = strings.TrimSpace(c.Data.Database)
	c.Data.EasyFit = strings.TrimSpace(c.Data.EasyFit)
	c.Data.TimeSeries = strings.TrimSpace(c.Data.TimeSeries)
	c.Data.ResultsDir = strings.TrimSpace(c.Data.ResultsDir)
	c.Data.Table = strings.TrimSpace(c.Data.Table)
	if c.Data.Table == "" {
		c.Data.Table = def.Data.Table
	}
	if c.Data.ResultsDir == "" {
		c.Data.ResultsDir = def.Data.ResultsDir
	}
	if c.Fit.CeilingIX == 0 {
		c.Fit.CeilingIX = def.Fit.CeilingIX
	}
	if c.Clamp.LowThreshold == 0 {
		c.Clamp.LowThreshold = def.Clamp.LowThreshold
	}
	if c.Clamp.HighThreshold == 0 {
		c.Clamp.HighThreshold = def.Clamp.HighThreshold
	}
	c.Clamp.LowPolicy = strings.ToLower(strings.TrimSpace(c.Clamp.LowPolicy))
	if c.Clamp.LowPolicy == "" {
		c.Clamp.LowPolicy = def.Clamp.LowPolicy
	}
	if c.Clamp.FallbackBeta == 0 {
		c.Clamp.FallbackBeta = def.Clamp.FallbackBeta
	}
	if c.Clamp.FallbackHPrim == 0 {
		c.Clamp.FallbackHPrim = def.Clamp.FallbackHPrim
	}
	if c.Delay.Intercept == 0 && c.Delay.Slope == 0 {
		c.Delay.Intercept = def.Delay.Intercept
		c.Delay.Slope = def.Delay.Slope
	}
	c.FitCache.Dir = strings.TrimSpace(c.FitCache.Dir)
	if c.FitCache.Dir == "" {
		c.FitCache.Dir = def.FitCache.Dir
	}
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}

// Validate performs sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Data.Database == "" {
		return errors.New("data.database must be set")
	}
	if c.Data.EasyFit == "" {
		return errors.New("data.easyfit must be set")
	}
	if !(c.Fit.CeilingIX > 0) {
		return fmt.Errorf("fit.ceiling_ix must be > 0, got %g", c.Fit.CeilingIX)
	}
	if !(c.Clamp.LowThreshold > 0) || !(c.Clamp.HighThreshold > c.Clamp.LowThreshold) {
		return fmt.Errorf("clamp thresholds must satisfy 0 < low_threshold < high_threshold, got %g and %g",
			c.Clamp.LowThreshold, c.Clamp.HighThreshold)
	}
	if _, err := c.Clamp.Policy(); err != nil {
		return fmt.Errorf("clamp.low_policy: %w", err)
	}
	if c.Delay.Enabled && c.Delay.Slope == 0 {
		return errors.New("delay.slope must be non-zero when delay is enabled")
	}
	return nil
}

// Policy builds the configured low flux policy.
func (c ClampConfig) Policy() (density.LowFluxPolicy, error) {
	return density.ParsePolicy(c.LowPolicy, c.FallbackBeta, c.FallbackHPrim)
}

// Resolver builds a density.Resolver over curves with these settings.
func (c ClampConfig) Resolver(curves density.Curves) (*density.Resolver, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}
	r := density.NewResolver(curves)
	r.Policy = policy
	r.Low = c.LowThreshold
	r.High = c.HighThreshold
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Model returns the delay model with these settings.
func (d DelayConfig) Model() profile.Delay {
	return profile.Delay{Enabled: d.Enabled, Intercept: d.Intercept, Slope: d.Slope}
}

// Print displays the configuration
func (c *Config) Print() {
	source := c.LoadedFrom
	if source == "" {
		source = "defaults"
	}
	fmt.Printf("Config: %s\n", source)
	fmt.Printf("Observations: %s (table %s)\n", c.Data.Database, c.Data.Table)
	fmt.Printf("EasyFit: %s\n", c.Data.EasyFit)
	fmt.Printf("Time series: %s\n", c.Data.TimeSeries)
	fmt.Printf("Results: %s\n", c.Data.ResultsDir)
	if c.Fit.RewriteLastIX {
		fmt.Printf("Fit: last ix rewritten to %g\n", c.Fit.CeilingIX)
	}
	fmt.Printf("Clamp: low=%g high=%g policy=%s\n", c.Clamp.LowThreshold, c.Clamp.HighThreshold, c.Clamp.LowPolicy)
	if c.Delay.Enabled {
		fmt.Printf("Delay: %g %+g*log10(peak ix) min\n", c.Delay.Intercept, c.Delay.Slope)
	}
	if c.FitCache.Enabled {
		fmt.Printf("Fit cache: %s\n", c.FitCache.Dir)
	}
}
