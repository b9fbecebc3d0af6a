package observation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

// DefaultTable is the table the ETL step populates.
const DefaultTable = "flares"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore reads observations from a flare database built by Import.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens an existing database read-only. A missing file is an error
// rather than an empty store, so a mistyped path never yields a silent fit over
// nothing.
func OpenSQLite(path, table string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("observation: database path is empty")
	}
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("observation: invalid table name %q", table)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("observation: stat %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("observation: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLiteStore{db: db, table: table}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Fetch returns every (ix, beta, reflection_height) row ordered by ix. A NULL
// or non-numeric value aborts the read.
func (s *SQLiteStore) Fetch(ctx context.Context) ([]Observation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("observation: store is not initialized")
	}
	query := fmt.Sprintf("SELECT ix, beta, reflection_height FROM %s ORDER BY ix", s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("observation: query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.IX, &o.Beta, &o.Height); err != nil {
			return nil, fmt.Errorf("observation: row %d: %w", len(out)+1, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("observation: iterate %s: %w", s.table, err)
	}
	return out, nil
}
