// Package easyfit implements the tabulated easyfit electron density model: a
// quadratic in log10(ix) per integer altitude, used to cross-check the
// fitted flarED profile.
package easyfit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned by Lookup when the table has no row for a height.
	ErrNotFound = errors.New("easyfit: no row for height")
	// ErrInvalidFlux is returned for non-positive flux, where log10 is undefined.
	ErrInvalidFlux = errors.New("easyfit: flux must be > 0")
)

// Row holds the coefficients for one altitude.
type Row struct {
	Height int
	C0     float64
	C1     float64
	C2     float64
}

// Density returns 10^(c0 + c1*log10(ix) + c2*log10(ix)^2) in m^-3.
func (r Row) Density(ix float64) (float64, error) {
	if !(ix > 0) {
		return 0, fmt.Errorf("%w: got %g", ErrInvalidFlux, ix)
	}
	l := math.Log10(ix)
	return math.Pow(10, r.C0+r.C1*l+r.C2*l*l), nil
}

// Table is the read-only set of easyfit rows keyed by altitude.
type Table struct {
	rows map[int]Row
}

// NewTable indexes rows by height. A repeated height is an error.
func NewTable(rows []Row) (*Table, error) {
	t := &Table{rows: make(map[int]Row, len(rows))}
	for _, r := range rows {
		if _, dup := t.rows[r.Height]; dup {
			return nil, fmt.Errorf("easyfit: duplicate row for height %d", r.Height)
		}
		t.rows[r.Height] = r
	}
	if len(t.rows) == 0 {
		return nil, errors.New("easyfit: table is empty")
	}
	return t, nil
}

// Lookup returns the row whose height matches h exactly.
func (t *Table) Lookup(h int) (Row, error) {
	if t == nil {
		return Row{}, fmt.Errorf("%w %d", ErrNotFound, h)
	}
	r, ok := t.rows[h]
	if !ok {
		return Row{}, fmt.Errorf("%w %d", ErrNotFound, h)
	}
	return r, nil
}

// Density looks up height h and evaluates it at ix.
func (t *Table) Density(h int, ix float64) (float64, error) {
	r, err := t.Lookup(h)
	if err != nil {
		return 0, err
	}
	return r.Density(ix)
}

// Heights returns the tabulated heights in ascending order.
func (t *Table) Heights() []int {
	out := make([]int, 0, len(t.rows))
	for h := range t.rows {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// LoadCSV reads a table file: a header line, then height,c0,c1,c2 rows.
func LoadCSV(path string) (*Table, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("easyfit: read %s: %w", path, err)
	}
	rows, err := parseCSV(payload)
	if err != nil {
		return nil, fmt.Errorf("easyfit: %s: %w", path, err)
	}
	return NewTable(rows)
}

func parseCSV(raw []byte) ([]Row, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var rows []Row
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
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 fields, got %d", line, len(record))
		}
		row, err := toRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRow(record []string) (Row, error) {
	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return Row{}, err
		}
		vals[i] = v
	}
	if vals[0] != math.Trunc(vals[0]) {
		return Row{}, fmt.Errorf("height %v is not an integer", vals[0])
	}
	return Row{Height: int(vals[0]), C0: vals[1], C1: vals[2], C2: vals[3]}, nil
}
