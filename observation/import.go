package observation

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// importColumns is the flare sheet layout, in file order.
var importColumns = []string{
	"transmiter", "date", "time_ut", "class", "ix",
	"delta_amp", "delta_phase", "beta", "reflection_height", "ed_control_value",
}

// numeric columns are validated before insert so a bad sheet never reaches
// the fitter half-loaded.
var numericColumns = map[int]bool{4: true, 5: true, 6: true, 7: true, 8: true, 9: true}

func schemaSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    transmiter TEXT,
    date TEXT NOT NULL,        -- 01 Jan 1971
    time_ut TEXT NOT NULL,     -- 00:00
    class TEXT NOT NULL,
    ix REAL NOT NULL,          -- W/m2
    delta_amp REAL NOT NULL,   -- dB
    delta_phase REAL NOT NULL, -- deg
    beta REAL NOT NULL,
    reflection_height REAL NOT NULL,
    ed_control_value REAL NOT NULL -- for height 74
);`, table)
}

// ImportResult summarizes an ETL run.
type ImportResult struct {
	Rows  int
	Table string
}

// Import replaces the contents of table in the database at dbPath with the
// rows of the CSV sheet read from r (header line first). The whole import runs
// in one transaction; any malformed row rolls it back.
func Import(ctx context.Context, dbPath, table string, r io.Reader) (ImportResult, error) {
	res := ImportResult{Table: table}
	if table == "" {
		res.Table = DefaultTable
	}
	if !identPattern.MatchString(res.Table) {
		return res, fmt.Errorf("observation: invalid table name %q", res.Table)
	}
	records, err := readSheet(r)
	if err != nil {
		return res, err
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return res, fmt.Errorf("observation: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return res, fmt.Errorf("observation: open %s: %w", dbPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL(res.Table)); err != nil {
		return res, fmt.Errorf("observation: create table: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("observation: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", res.Table)); err != nil {
		return res, fmt.Errorf("observation: truncate: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", res.Table))
	if err != nil {
		return res, fmt.Errorf("observation: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec...); err != nil {
			return res, fmt.Errorf("observation: insert row %d: %w", i+2, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("observation: commit: %w", err)
	}
	res.Rows = len(records)
	return res, nil
}

// readSheet parses and type-checks every data row up front.
func readSheet(r io.Reader) ([][]any, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("observation: sheet is empty")
		}
		return nil, fmt.Errorf("observation: read header: %w", err)
	}

	var out [][]any
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("observation: parse csv: %w", err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if len(record) != len(importColumns) {
			return nil, fmt.Errorf("observation: line %d: expected %d fields, got %d", line, len(importColumns), len(record))
		}
		row := make([]any, len(record))
		for i, field := range record {
			field = strings.TrimSpace(field)
			if !numericColumns[i] {
				row[i] = field
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("observation: line %d: %s: %w", line, importColumns[i], err)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	if len(out) == 0 {
		return nil, errors.New("observation: sheet has no data rows")
	}
	return out, nil
}
