package report

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"flared/profile"
)

// Column headers of data_table.csv.
const (
	colHeight = "Height(km)"
	colTime   = "Time(H:M)"
	colEDTime = "ED Time(H:M:S)"
	colED     = "Electron Density(m^-3)"
	colEDEasy = "Electron Density(m^-3) easyfit"
	colIX     = "Solar Flux(W*m^-2)"
	colBeta   = "Beta(km^-1)"
	colHPrime = "H'(km)"
)

func header(res profile.Result) []string {
	cols := []string{colHeight}
	if res.Mode == profile.ModeTime {
		cols = append(cols, colTime)
		if res.Delay.Applied {
			cols = append(cols, colEDTime)
		}
	}
	return append(cols, colED, colEDEasy, colIX, colBeta, colHPrime)
}

func record(res profile.Result, r profile.Row) []string {
	rec := []string{strconv.Itoa(r.Height)}
	if res.Mode == profile.ModeTime {
		rec = append(rec, r.Stamp)
		if res.Delay.Applied {
			rec = append(rec, r.EDTime.Format("15:04:05"))
		}
	}
	return append(rec,
		formatFloat(r.ED),
		formatFloat(r.EDEasy),
		formatFloat(r.Params.IX),
		formatFloat(r.Params.Beta),
		formatFloat(r.Params.HPrime),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(path string, res profile.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header(res)); err != nil {
		f.Close()
		return err
	}
	for _, r := range res.Rows {
		if err := w.Write(record(res, r)); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// tableRow is the Parquet schema of data_table.parquet. Time columns are
// empty in altitude mode.
type tableRow struct {
	Height   int32   `parquet:"height"`
	Time     string  `parquet:"time"`
	EDTime   string  `parquet:"ed_time"`
	ED       float64 `parquet:"ed"`
	EDEasy   float64 `parquet:"ed_easyfit"`
	IX       float64 `parquet:"ix"`
	Beta     float64 `parquet:"beta"`
	HPrime   float64 `parquet:"hprim"`
	Source   string  `parquet:"source"`
	LogRatio float64 `parquet:"log_ratio"`
}

func writeParquet(path string, res profile.Result) error {
	rows := make([]tableRow, 0, len(res.Rows))
	for _, r := range res.Rows {
		row := tableRow{
			Height:   int32(r.Height),
			Time:     r.Stamp,
			ED:       r.ED,
			EDEasy:   r.EDEasy,
			IX:       r.Params.IX,
			Beta:     r.Params.Beta,
			HPrime:   r.Params.HPrime,
			Source:   string(r.Params.Source),
			LogRatio: r.LogRatio,
		}
		if res.Delay.Applied {
			row.EDTime = r.EDTime.Format("15:04:05")
		}
		rows = append(rows, row)
	}
	return parquet.WriteFile(path, rows)
}
