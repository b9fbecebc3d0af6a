package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"flared/config"
	"flared/dedup"
	"flared/density"
	"flared/easyfit"
	"flared/fit"
	"flared/fitcache"
	"flared/observation"
	"flared/profile"
	"flared/report"
	"flared/sqliteutil"
	"flared/xray"
)

// Version is reported at startup.
const Version = "1.2.0"

const preflightTimeout = 5 * time.Second

// valueRange is an inclusive bound for a command-line value.
type valueRange struct {
	lo, hi float64
}

func (r valueRange) contains(v float64) bool { return r.lo <= v && v <= r.hi }

func (r valueRange) String() string { return fmt.Sprintf("[%g, %g]", r.lo, r.hi) }

var (
	ixRange     = valueRange{lo: density.DefaultLowThreshold, hi: density.WideHighThreshold}
	heightRange = valueRange{lo: profile.MinHeight, hi: profile.MaxHeight}
)

// command is one parsed invocation.
type command struct {
	configPath string
	mode       profile.Mode
	ix         float64
	height     int
	series     string
	delay      bool
	delaySet   bool
	printCfg   bool
}

const usage = `usage: flared [-config file] [-print-config] <command> [flags]

commands:
  h -ix <flux>        altitude profile (50..90 km) for a solar X-ray flux in W/m^2
  t -height <km>      time series at a fixed altitude [-series file|url] [-delay]
`

// Purpose: Parse global flags, the subcommand, and its flags.
// Key aspects: Range checks live here, not in the model packages.
// Upstream: main.
// Downstream: flag.FlagSet.
func parseArgs(args []string, stderr io.Writer) (command, error) {
	var cmd command
	global := flag.NewFlagSet("flared", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	global.StringVar(&cmd.configPath, "config", "", "path to YAML config (default $"+config.EnvConfig+" or "+config.DefaultPath+")")
	global.BoolVar(&cmd.printCfg, "print-config", false, "print the effective configuration")
	if err := global.Parse(args); err != nil {
		return cmd, err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return cmd, errors.New("missing command")
	}

	sub := flag.NewFlagSet(rest[0], flag.ContinueOnError)
	sub.SetOutput(stderr)
	switch rest[0] {
	case "h":
		cmd.mode = profile.ModeAltitude
		ix := sub.Float64("ix", 0, "solar X-ray flux in W/m^2, in range "+ixRange.String())
		if err := sub.Parse(rest[1:]); err != nil {
			return cmd, err
		}
		if !isFlagSet(sub, "ix") {
			return cmd, errors.New("h: -ix is required")
		}
		if !ixRange.contains(*ix) {
			return cmd, fmt.Errorf("h: -ix %g is outside %s", *ix, ixRange)
		}
		cmd.ix = *ix
	case "t":
		cmd.mode = profile.ModeTime
		height := sub.Int("height", 0, "altitude in km, in range "+heightRange.String())
		sub.IntVar(height, "he", 0, "shorthand for -height")
		sub.StringVar(&cmd.series, "series", "", "time series CSV/JSON path or GOES URL (default data.time_series)")
		sub.BoolVar(&cmd.delay, "delay", false, "shift ED times by the flux-dependent response delay")
		if err := sub.Parse(rest[1:]); err != nil {
			return cmd, err
		}
		if !isFlagSet(sub, "height") && !isFlagSet(sub, "he") {
			return cmd, errors.New("t: -height is required")
		}
		if !heightRange.contains(float64(*height)) {
			return cmd, fmt.Errorf("t: -height %d is outside %s", *height, heightRange)
		}
		cmd.height = *height
		cmd.delaySet = isFlagSet(sub, "delay")
	default:
		global.Usage()
		return cmd, fmt.Errorf("unknown command %q", rest[0])
	}
	if sub.NArg() > 0 {
		return cmd, fmt.Errorf("%s: unexpected arguments %v", rest[0], sub.Args())
	}
	return cmd, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// Purpose: Report whether stdout is a TTY for summary output.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Program entrypoint; loads config, fits the curves, runs one profile.
// Key aspects: Every failure is terminal for the run.
// Upstream: OS process start.
// Downstream: run.
func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)
	cmd, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "flared: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(config.ResolvePath(cmd.configPath))
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	fanout, err := setupLogging(cfg.Logging, os.Stderr)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if err != nil {
		log.Printf("Warning: file logging disabled: %v", err)
	}
	source := cfg.LoadedFrom
	if source == "" {
		source = "built-in defaults"
	}
	log.Printf("flarED v%s; configuration from %s", Version, source)
	if cmd.printCfg {
		cfg.Print()
	}

	out, err := run(context.Background(), cmd, cfg, log.Printf)
	if err != nil {
		fanout.Close()
		log.SetFlags(log.LstdFlags | log.LUTC)
		log.SetOutput(os.Stderr)
		log.Fatalf("flared: %v", err)
	}
	log.Printf("Results written to %s (%s files)", out.written.Dir, humanize.Comma(int64(len(out.written.Files))))
	if isStdoutTTY() {
		printSummary(os.Stdout, out.result)
	}
}

type runOutput struct {
	result  profile.Result
	written report.Written
}

// Purpose: Execute one profile run end to end.
// Key aspects: Config supplies every path; logf receives progress lines.
// Upstream: main and tests.
// Downstream: loadCurves, profile.Generator, report.Write.
func run(ctx context.Context, cmd command, cfg *config.Config, logf func(string, ...any)) (runOutput, error) {
	if logf == nil {
		logf = log.Printf
	}
	pre, err := sqliteutil.Preflight(cfg.Data.Database, cfg.Data.Table, preflightTimeout, logf)
	if err != nil {
		return runOutput{}, err
	}
	logf("Observations: %s holds %s rows in %s (preflight %s)",
		cfg.Data.Database, humanize.Comma(pre.Rows), cfg.Data.Table, pre.Elapsed.Round(time.Millisecond))

	store, err := observation.OpenSQLite(cfg.Data.Database, cfg.Data.Table)
	if err != nil {
		return runOutput{}, err
	}
	defer store.Close()

	curves, err := loadCurves(ctx, store, cfg, logf)
	if err != nil {
		return runOutput{}, err
	}
	resolver, err := cfg.Clamp.Resolver(curves.model)
	if err != nil {
		return runOutput{}, err
	}
	table, err := easyfit.LoadCSV(cfg.Data.EasyFit)
	if err != nil {
		return runOutput{}, err
	}

	delay := cfg.Delay.Model()
	if cmd.delaySet {
		delay.Enabled = cmd.delay
	}
	gen := &profile.Generator{Resolver: resolver, EasyFit: table, Delay: delay}

	var axis profile.Axis
	switch cmd.mode {
	case profile.ModeAltitude:
		axis = profile.ByAltitude{IX: cmd.ix}
	case profile.ModeTime:
		series := cmd.series
		if series == "" {
			series = cfg.Data.TimeSeries
		}
		samples, err := xray.Load(ctx, series)
		if err != nil {
			return runOutput{}, err
		}
		logf("Time series: %s samples from %s", humanize.Comma(int64(len(samples))), series)
		axis = profile.ByTime{Height: cmd.height, Samples: samples}
	default:
		return runOutput{}, fmt.Errorf("unknown mode %q", cmd.mode)
	}

	res, err := gen.Generate(ctx, axis)
	if err != nil {
		return runOutput{}, err
	}
	if res.Delay.Applied {
		logf("Delay: peak ix %.2E -> %.4f min", res.Delay.PeakIX, res.Delay.Minutes)
	}
	if c := res.Comparison; c.N > 0 {
		logf("EasyFit cross-check: mean log10(ED/ED_easy)=%.3f rms=%.3f max|.|=%.3f over %d rows",
			c.MeanLogRatio, c.RMSLogRatio, c.MaxAbsLogRatio, c.N)
	}

	written, err := report.Write(cfg.Data.ResultsDir, res, report.Options{
		Parquet:     cfg.Output.Parquet,
		Fingerprint: curves.key.String(),
		Policy:      resolver.Policy.String(),
	})
	if err != nil {
		return runOutput{}, err
	}
	return runOutput{result: res, written: written}, nil
}

type fittedCurves struct {
	model *fit.Model
	key   fitcache.Key
}

// Purpose: Fetch, average, and fit the observation table.
// Key aspects: Serves the knots from the Pebble cache when enabled; logs
// conditioning warnings of fresh fits.
// Upstream: run.
// Downstream: dedup, fit.Build, fitcache.
func loadCurves(ctx context.Context, store observation.Store, cfg *config.Config, logf func(string, ...any)) (fittedCurves, error) {
	obs, err := store.Fetch(ctx)
	if err != nil {
		return fittedCurves{}, err
	}
	avg := dedup.Average(obs)
	logf("Averaged %s observations into %s distinct ix values", humanize.Comma(int64(len(obs))), humanize.Comma(int64(len(avg))))

	key := fitcache.Fingerprint(avg, cfg.Fit.RewriteLastIX, cfg.Fit.CeilingIX)
	build := func() (*fit.Model, error) {
		input := avg
		if cfg.Fit.RewriteLastIX {
			input = dedup.ApplyCeiling(avg, cfg.Fit.CeilingIX)
		}
		m, err := fit.Build(input)
		if err != nil {
			return nil, err
		}
		for _, w := range m.Warnings() {
			logf("Fit warning: %s", w)
		}
		return m, nil
	}

	if !cfg.FitCache.Enabled {
		m, err := build()
		return fittedCurves{model: m, key: key}, err
	}
	cache, err := fitcache.Open(cfg.FitCache.Dir, fitcache.Options{})
	if err != nil {
		return fittedCurves{}, err
	}
	defer cache.Close()
	m, hit, err := cache.Model(key, build)
	if err != nil {
		if m == nil {
			return fittedCurves{}, err
		}
		logf("Warning: fit cache write failed: %v", err)
	}
	if hit {
		logf("Fit cache hit for %s", key)
	}
	return fittedCurves{model: m, key: key}, nil
}

// printSummary writes the result table to an interactive terminal.
func printSummary(w io.Writer, res profile.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	switch res.Mode {
	case profile.ModeAltitude:
		fmt.Fprintf(w, "ix = %.2E  beta = %.2E  hprim = %.2f  (%s)\n", res.IX, res.Params.Beta, res.Params.HPrime, res.Params.Source)
		fmt.Fprintln(tw, "h [km]\tED [m^-3]\tED easyfit [m^-3]\t")
		for _, r := range res.Rows {
			fmt.Fprintf(tw, "%d\t%.3E\t%.3E\t\n", r.Height, r.ED, r.EDEasy)
		}
	case profile.ModeTime:
		fmt.Fprintf(w, "h = %d km\n", res.Height)
		cols := []string{"time", "ix", "beta", "hprim", "ED [m^-3]", "ED easyfit [m^-3]"}
		if res.Delay.Applied {
			cols = append(cols, "ED time")
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t")+"\t")
		for _, r := range res.Rows {
			line := fmt.Sprintf("%s\t%.2E\t%.3f\t%.2f\t%.3E\t%.3E", r.Stamp, r.Params.IX, r.Params.Beta, r.Params.HPrime, r.ED, r.EDEasy)
			if res.Delay.Applied {
				line += "\t" + r.EDTime.Format("15:04:05")
			}
			fmt.Fprintln(tw, line+"\t")
		}
	}
	_ = tw.Flush()
}
