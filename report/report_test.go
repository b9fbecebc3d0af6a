package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"flared/density"
	"flared/profile"
)

func fixedNow() time.Time { return time.Unix(1700000000, 0) }

func altitudeResult() profile.Result {
	params := density.Params{IX: 5e-5, Beta: 0.5, HPrime: 80, Source: density.SourceInterpolated}
	res := profile.Result{Mode: profile.ModeAltitude, IX: 5e-5, Params: params}
	for h := 50; h <= 52; h++ {
		res.Rows = append(res.Rows, profile.Row{
			Height: h, Params: params, ED: params.Density(float64(h)), EDEasy: 1e9, LogRatio: 0.1,
		})
	}
	res.Comparison = profile.Compare(res.Rows)
	return res
}

func timeResult() profile.Result {
	base := time.Date(0, 1, 1, 12, 0, 0, 0, time.UTC)
	minutes := 2.2484
	shift := time.Duration(minutes * float64(time.Minute))
	res := profile.Result{
		Mode:   profile.ModeTime,
		Height: 74,
		Delay:  profile.DelayResult{Applied: true, PeakIX: 1e-4, Minutes: 2.2484},
	}
	for i, ix := range []float64{1e-5, 1e-4} {
		at := base.Add(time.Duration(i) * time.Minute)
		res.Rows = append(res.Rows, profile.Row{
			Height: 74,
			Stamp:  at.Format("15:04"),
			Time:   at,
			EDTime: at.Add(shift),
			Params: density.Params{IX: ix, Beta: 0.4, HPrime: 70, Source: density.SourceInterpolated},
			ED:     1e9,
			EDEasy: 2e9,
		})
	}
	return res
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return records
}

func TestWriteAltitude(t *testing.T) {
	dir := t.TempDir()
	out, err := Write(dir, altitudeResult(), Options{Now: fixedNow, Fingerprint: "abc", Parquet: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(out.Dir) != "Flared_h-1700000000" {
		t.Fatalf("unexpected folder %s", out.Dir)
	}
	if len(out.Files) != 4 || out.RunID == "" {
		t.Fatalf("unexpected output %+v", out)
	}

	records := readCSV(t, filepath.Join(out.Dir, TableCSV))
	want := "Height(km),Electron Density(m^-3),Electron Density(m^-3) easyfit,Solar Flux(W*m^-2),Beta(km^-1),H'(km)"
	if got := strings.Join(records[0], ","); got != want {
		t.Fatalf("expected header %q, got %q", want, got)
	}
	if len(records) != 4 || records[1][0] != "50" || records[1][3] != "5e-05" {
		t.Fatalf("unexpected rows %v", records)
	}

	text, err := os.ReadFile(filepath.Join(out.Dir, ParamsText))
	if err != nil {
		t.Fatalf("read params: %v", err)
	}
	if string(text) != "ix = 5.00E-05\nbeta = 5.00E-01\nhprim = 80.00\n" {
		t.Fatalf("unexpected params.txt %q", text)
	}

	raw, err := os.ReadFile(filepath.Join(out.Dir, ParamsJSON))
	if err != nil {
		t.Fatalf("read params json: %v", err)
	}
	var doc paramsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode params json: %v", err)
	}
	if doc.RunID != out.RunID || doc.Fingerprint != "abc" || doc.Rows != 3 || doc.Beta == nil || *doc.Beta != 0.5 {
		t.Fatalf("unexpected params doc %+v", doc)
	}
	if doc.Comparison == nil || doc.Comparison.N != 3 {
		t.Fatalf("expected comparison summary, got %+v", doc.Comparison)
	}

	rows, err := parquet.ReadFile[tableRow](filepath.Join(out.Dir, TableParquet))
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 3 || rows[2].Height != 52 || rows[0].Source != "interpolated" {
		t.Fatalf("unexpected parquet rows %+v", rows)
	}
}

func TestWriteTimeWithDelay(t *testing.T) {
	dir := t.TempDir()
	out, err := Write(dir, timeResult(), Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	records := readCSV(t, filepath.Join(out.Dir, TableCSV))
	if records[0][1] != "Time(H:M)" || records[0][2] != "ED Time(H:M:S)" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if records[1][1] != "12:00" || records[1][2] != "12:02:14" {
		t.Fatalf("unexpected first row %v", records[1])
	}
	text, err := os.ReadFile(filepath.Join(out.Dir, ParamsText))
	if err != nil {
		t.Fatalf("read params: %v", err)
	}
	if !strings.Contains(string(text), "height = 74\n") || !strings.Contains(string(text), "delay = 2.2484 min") {
		t.Fatalf("unexpected params.txt %q", text)
	}
	if _, err := os.Stat(filepath.Join(out.Dir, TableParquet)); !os.IsNotExist(err) {
		t.Fatalf("expected no parquet file, got %v", err)
	}
}

func TestWriteSameSecondGetsNewFolder(t *testing.T) {
	dir := t.TempDir()
	first, err := Write(dir, altitudeResult(), Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("first write: %v", err)
	}
	second, err := Write(dir, altitudeResult(), Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if first.Dir == second.Dir {
		t.Fatalf("expected distinct folders, got %s twice", first.Dir)
	}
	if filepath.Base(second.Dir) != "Flared_h-1700000000-1" {
		t.Fatalf("unexpected second folder %s", second.Dir)
	}
}

func TestWriteRejectsEmpty(t *testing.T) {
	if _, err := Write(t.TempDir(), profile.Result{Mode: profile.ModeAltitude}, Options{}); err == nil {
		t.Fatalf("expected error for empty result")
	}
	if _, err := Write("", altitudeResult(), Options{}); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
