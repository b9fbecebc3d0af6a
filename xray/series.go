// Package xray loads solar X-ray flux time series: the CSV files the flarED
// time mode was built around, and the GOES X-ray JSON feed.
package xray

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

// Sample is one time-series point. Stamp is the time as written in the
// source; Time is its parsed form (date part zero for clock-only stamps).
type Sample struct {
	Stamp string
	Time  time.Time
	IX    float64
}

var clockLayouts = []string{"15:04", "15:04:05"}

var errEmptySeries = errors.New("xray: series has no samples")

// Load reads a series from a local CSV (optionally gzipped), a local GOES JSON
// file, or an http(s) GOES JSON URL.
func Load(ctx context.Context, source string) ([]Sample, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("xray: empty source")
	}
	if isURL(source) {
		f := NewFetcher(source, nil)
		samples, _, err := f.Fetch(ctx)
		return samples, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := readFile(source)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.TrimSuffix(strings.ToLower(source), ".gz"), ".json") {
		samples, err := ParseGOES(raw, GOESLongBand)
		if err != nil {
			return nil, fmt.Errorf("xray: %s: %w", source, err)
		}
		return samples, nil
	}
	samples, err := ParseCSV(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("xray: %s: %w", source, err)
	}
	return samples, nil
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("xray: open %s: %w", path, err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("xray: gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("xray: read %s: %w", path, err)
	}
	return raw, nil
}

// ParseCSV reads a header line followed by time,ix[,...] rows. Extra columns
// (the control ED values of the original data files) are ignored.
func ParseCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var samples []Sample
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if line == 1 {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected time and ix, got %d fields", line, len(record))
		}
		s, err := parseRow(record[0], record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 {
		return nil, errEmptySeries
	}
	return samples, nil
}

func parseRow(stamp, ix string) (Sample, error) {
	stamp = strings.TrimSpace(stamp)
	t, err := parseClock(stamp)
	if err != nil {
		return Sample{}, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(ix), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("ix %q: %w", ix, err)
	}
	return Sample{Stamp: stamp, Time: t, IX: v}, nil
}

func parseClock(stamp string) (time.Time, error) {
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, stamp); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q: expected H:M or H:M:S", stamp)
}

// Peak returns the largest IX in the series, or an error when it is empty.
func Peak(samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, errEmptySeries
	}
	peak := samples[0].IX
	for _, s := range samples[1:] {
		if s.IX > peak {
			peak = s.IX
		}
	}
	return peak, nil
}
