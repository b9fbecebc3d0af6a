// Package sqliteutil holds SQLite helpers shared by the store and the import
// tool.
package sqliteutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// PreflightResult reports the outcome of a read-only SQLite preflight check.
type PreflightResult struct {
	Healthy    bool // quick_check passed and the table exists.
	Rows       int64
	Elapsed    time.Duration
	CheckError error // Nil when quick_check succeeded.
}

// Preflight runs a bounded quick_check and a row count on table before the
// main open path. The source database is never modified or moved: an unhealthy
// file is reported through the result and a non-nil error, and the caller
// decides whether that ends the run.
func Preflight(path, table string, timeout time.Duration, logf func(string, ...any)) (PreflightResult, error) {
	if logf == nil {
		logf = log.Printf
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	start := time.Now().UTC()
	res := PreflightResult{}

	if strings.TrimSpace(path) == "" {
		return res, errors.New("preflight: empty path")
	}
	if _, err := os.Stat(path); err != nil {
		return res, fmt.Errorf("preflight: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return res, fmt.Errorf("preflight: open db: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
		return res, fmt.Errorf("preflight: set busy_timeout: %w", err)
	}

	res.CheckError = quickCheck(ctx, db)
	if res.CheckError != nil {
		res.Elapsed = time.Since(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("preflight: %s timed out after %s", path, timeout)
		}
		logf("preflight: quick_check failed for %s (%v); elapsed=%s", path, res.CheckError, res.Elapsed)
		return res, fmt.Errorf("preflight: %s: %w", path, res.CheckError)
	}

	rows, err := countRows(ctx, db, table)
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("preflight: %s: %w", path, err)
	}
	res.Rows = rows
	res.Healthy = true
	return res, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		if scanErr := rows.Scan(&status); scanErr != nil {
			return scanErr
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func countRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	var name string
	err := db.QueryRowContext(ctx, "select name from sqlite_master where type='table' and name=?", table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("table %q does not exist", table)
	}
	if err != nil {
		return 0, err
	}
	var n int64
	// name came back from sqlite_master, so it is a real table identifier.
	if err := db.QueryRowContext(ctx, fmt.Sprintf("select count(*) from %q", name)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
