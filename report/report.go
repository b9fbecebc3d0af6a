// Package report writes a profile.Result to a results folder:
// data_table.csv, params.txt, params.json and optionally data_table.parquet.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"flared/profile"
)

// File names inside a result folder.
const (
	TableCSV     = "data_table.csv"
	TableParquet = "data_table.parquet"
	ParamsText   = "params.txt"
	ParamsJSON   = "params.json"
)

// Options control what Write emits and the run metadata recorded with it.
type Options struct {
	Parquet bool
	// Fingerprint identifies the observation set the curves were fitted on.
	Fingerprint string
	// Policy describes the low-flux policy in effect.
	Policy string
	// Now overrides the clock used for the folder name; nil means time.Now.
	Now func() time.Time
}

// Written describes one emitted result folder.
type Written struct {
	Dir   string
	RunID string
	Files []string
}

// Write creates <dir>/Flared_<mode>-<unix seconds> and writes the result into
// it. A folder left by an earlier run in the same second gets a numeric
// suffix instead of being reused.
func Write(dir string, res profile.Result, opts Options) (Written, error) {
	if dir == "" {
		return Written{}, errors.New("report: results dir is empty")
	}
	if len(res.Rows) == 0 {
		return Written{}, errors.New("report: result has no rows")
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	created := now().UTC()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Written{}, fmt.Errorf("report: create %s: %w", dir, err)
	}
	folder, err := makeFolder(dir, FolderName(res.Mode, created))
	if err != nil {
		return Written{}, err
	}

	out := Written{Dir: folder, RunID: uuid.NewString()}
	emit := func(name string, write func(string) error) error {
		path := filepath.Join(folder, name)
		if err := write(path); err != nil {
			return fmt.Errorf("report: write %s: %w", name, err)
		}
		out.Files = append(out.Files, path)
		return nil
	}
	if err := emit(TableCSV, func(p string) error { return writeCSV(p, res) }); err != nil {
		return out, err
	}
	if opts.Parquet {
		if err := emit(TableParquet, func(p string) error { return writeParquet(p, res) }); err != nil {
			return out, err
		}
	}
	if err := emit(ParamsText, func(p string) error { return writeParamsText(p, res) }); err != nil {
		return out, err
	}
	doc := newParamsDoc(out.RunID, created, res, opts)
	if err := emit(ParamsJSON, func(p string) error { return writeParamsJSON(p, doc) }); err != nil {
		return out, err
	}
	return out, nil
}

// FolderName returns the result folder name for a run created at t.
func FolderName(mode profile.Mode, t time.Time) string {
	return fmt.Sprintf("Flared_%s-%d", mode, t.Unix())
}

func makeFolder(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	for i := 1; i <= 100; i++ {
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("report: create %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d", name, i))
	}
	return "", fmt.Errorf("report: no free folder name for %s in %s", name, dir)
}
