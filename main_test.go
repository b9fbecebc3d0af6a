package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flared/config"
	"flared/observation"
	"flared/profile"
)

func TestParseArgsAltitude(t *testing.T) {
	cmd, err := parseArgs([]string{"-config", "x.yaml", "h", "-ix", "5e-5"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cmd.mode != profile.ModeAltitude || cmd.ix != 5e-5 || cmd.configPath != "x.yaml" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestParseArgsRanges(t *testing.T) {
	cases := []struct {
		args []string
		ok   bool
	}{
		{[]string{"h", "-ix", "8e-7"}, true},
		{[]string{"h", "-ix", "2.2e-4"}, true},
		{[]string{"h", "-ix", "7.9e-7"}, false},
		{[]string{"h", "-ix", "2.3e-4"}, false},
		{[]string{"h"}, false},
		{[]string{"t", "-height", "50"}, true},
		{[]string{"t", "-he", "90"}, true},
		{[]string{"t", "-height", "49"}, false},
		{[]string{"t", "-height", "91"}, false},
		{[]string{"t"}, false},
		{[]string{"x"}, false},
		{[]string{}, false},
		{[]string{"h", "-ix", "1e-5", "extra"}, false},
	}
	for _, tc := range cases {
		_, err := parseArgs(tc.args, io.Discard)
		if tc.ok && err != nil {
			t.Fatalf("%v: expected success, got %v", tc.args, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%v: expected error", tc.args)
		}
	}
}

func TestParseArgsTimeDelay(t *testing.T) {
	cmd, err := parseArgs([]string{"t", "-height", "74", "-delay", "-series", "s.csv"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cmd.mode != profile.ModeTime || cmd.height != 74 || !cmd.delay || !cmd.delaySet || cmd.series != "s.csv" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	cmd, err = parseArgs([]string{"t", "-height", "74"}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cmd.delaySet {
		t.Fatalf("expected delay to follow config when flag is absent")
	}
}

const sheetHeader = "transmiter,date,time_ut,class,ix,delta_amp,delta_phase,beta,reflection_height,ed_control_value\n"

// writeFixtures builds a flare database, an easyfit table and a time series
// and returns a config pointing at them.
func writeFixtures(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	var sheet strings.Builder
	sheet.WriteString(sheetHeader)
	for i := 1; i <= 60; i++ {
		ix := float64(i) * 1e-6
		fmt.Fprintf(&sheet, "NAA,01 Jan 2010,10:%02d,C%d.0,%g,1,1,%g,%g,1e9\n", i%60, i%9+1, ix, 0.3+2000*ix, 74-1e5*ix)
	}
	// A repeated ix exercises the averaging step.
	sheet.WriteString("DHO,02 Jan 2010,11:00,C1.0,1e-06,1,1,0.3,74.2,1e9\n")

	cfg := config.DefaultConfig()
	cfg.Data.Database = filepath.Join(dir, "flares.db")
	if _, err := observation.Import(context.Background(), cfg.Data.Database, "", strings.NewReader(sheet.String())); err != nil {
		t.Fatalf("import: %v", err)
	}

	var easy strings.Builder
	easy.WriteString("height,c0,c1,c2\n")
	for h := 50; h <= 90; h++ {
		fmt.Fprintf(&easy, "%d,%g,0.5,0\n", h, 10+float64(h-50)*0.05)
	}
	cfg.Data.EasyFit = filepath.Join(dir, "easyfit.csv")
	if err := os.WriteFile(cfg.Data.EasyFit, []byte(easy.String()), 0o644); err != nil {
		t.Fatalf("write easyfit: %v", err)
	}

	cfg.Data.TimeSeries = filepath.Join(dir, "time_series.csv")
	series := "time,ix\n12:00,5e-7\n12:01,2e-5\n12:02,1e-4\n12:03,3e-4\n"
	if err := os.WriteFile(cfg.Data.TimeSeries, []byte(series), 0o644); err != nil {
		t.Fatalf("write series: %v", err)
	}
	cfg.Data.ResultsDir = filepath.Join(dir, "results")
	cfg.FitCache.Dir = filepath.Join(dir, "fitcache")
	return &cfg
}

func TestRunAltitudeProfile(t *testing.T) {
	cfg := writeFixtures(t)
	var logs []string
	logf := func(format string, args ...any) { logs = append(logs, fmt.Sprintf(format, args...)) }

	out, err := run(context.Background(), command{mode: profile.ModeAltitude, ix: 2e-5}, cfg, logf)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.result.Rows) != 41 {
		t.Fatalf("expected 41 rows, got %d", len(out.result.Rows))
	}
	data, err := os.ReadFile(filepath.Join(out.written.Dir, "data_table.csv"))
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 42 {
		t.Fatalf("expected header plus 41 rows, got %d lines", got)
	}
	// beta = 0.3 + 2000*ix on the linear fixture.
	if b := out.result.Params.Beta; b < 0.32 || b > 0.36 {
		t.Fatalf("expected beta near 0.34, got %v", b)
	}
	joined := strings.Join(logs, "\n")
	if !strings.Contains(joined, "61 observations into 60 distinct") {
		t.Fatalf("expected averaging log, got:\n%s", joined)
	}
}

func TestRunTimeSeriesWithDelayAndCache(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.FitCache.Enabled = true
	cfg.Output.Parquet = true
	var logs []string
	logf := func(format string, args ...any) { logs = append(logs, fmt.Sprintf(format, args...)) }
	cmd := command{mode: profile.ModeTime, height: 74, delay: true, delaySet: true}

	first, err := run(context.Background(), cmd, cfg, logf)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !first.result.Delay.Applied || first.result.Delay.PeakIX != 3e-4 {
		t.Fatalf("expected delay from the series peak, got %+v", first.result.Delay)
	}
	if len(first.written.Files) != 4 {
		t.Fatalf("expected csv, parquet and params files, got %v", first.written.Files)
	}

	logs = nil
	second, err := run(context.Background(), cmd, cfg, logf)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(strings.Join(logs, "\n"), "Fit cache hit") {
		t.Fatalf("expected a cache hit on the second run, got:\n%s", strings.Join(logs, "\n"))
	}
	for i := range first.result.Rows {
		if first.result.Rows[i].ED != second.result.Rows[i].ED {
			t.Fatalf("row %d: expected identical ED from cached curves", i)
		}
	}
}

func TestRunFailsOnMissingDatabase(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.Data.Database = filepath.Join(t.TempDir(), "missing.db")
	if _, err := run(context.Background(), command{mode: profile.ModeAltitude, ix: 1e-5}, cfg, func(string, ...any) {}); err == nil {
		t.Fatalf("expected error for missing database")
	}
}

func TestPrintSummary(t *testing.T) {
	res := profile.Result{Mode: profile.ModeAltitude, IX: 1e-5, Rows: []profile.Row{{Height: 50, ED: 1e8, EDEasy: 2e8}}}
	var buf bytes.Buffer
	printSummary(&buf, res)
	if !strings.Contains(buf.String(), "ix = 1.00E-05") || !strings.Contains(buf.String(), "1.000E+08") {
		t.Fatalf("unexpected summary %q", buf.String())
	}
}
