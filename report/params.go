package report

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"flared/profile"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeParamsText(path string, res profile.Result) error {
	var b strings.Builder
	switch res.Mode {
	case profile.ModeAltitude:
		fmt.Fprintf(&b, "ix = %.2E\n", res.IX)
		fmt.Fprintf(&b, "beta = %.2E\n", res.Params.Beta)
		fmt.Fprintf(&b, "hprim = %.2f\n", res.Params.HPrime)
	case profile.ModeTime:
		fmt.Fprintf(&b, "height = %d\n", res.Height)
		if res.Delay.Applied {
			fmt.Fprintf(&b, "peak ix = %.2E\n", res.Delay.PeakIX)
			fmt.Fprintf(&b, "delay = %.4f min\n", res.Delay.Minutes)
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

type paramsDoc struct {
	RunID       string         `json:"run_id"`
	CreatedAt   string         `json:"created_at"`
	Mode        profile.Mode   `json:"mode"`
	IX          *float64       `json:"ix,omitempty"`
	Beta        *float64       `json:"beta,omitempty"`
	HPrime      *float64       `json:"hprim,omitempty"`
	Source      string         `json:"source,omitempty"`
	Height      *int           `json:"height,omitempty"`
	Policy      string         `json:"low_flux_policy,omitempty"`
	Delay       *delayDoc      `json:"delay,omitempty"`
	Fingerprint string         `json:"dataset_fingerprint,omitempty"`
	Rows        int            `json:"rows"`
	Comparison  *comparisonDoc `json:"easyfit_comparison,omitempty"`
}

type delayDoc struct {
	PeakIX  float64 `json:"peak_ix"`
	Minutes float64 `json:"minutes"`
}

type comparisonDoc struct {
	N              int     `json:"n"`
	MeanLogRatio   float64 `json:"mean_log10_ratio"`
	RMSLogRatio    float64 `json:"rms_log10_ratio"`
	MaxAbsLogRatio float64 `json:"max_abs_log10_ratio"`
}

func newParamsDoc(runID string, created time.Time, res profile.Result, opts Options) paramsDoc {
	doc := paramsDoc{
		RunID:       runID,
		CreatedAt:   created.Format(time.RFC3339),
		Mode:        res.Mode,
		Policy:      opts.Policy,
		Fingerprint: opts.Fingerprint,
		Rows:        len(res.Rows),
	}
	switch res.Mode {
	case profile.ModeAltitude:
		doc.IX = finite(res.IX)
		doc.Beta = finite(res.Params.Beta)
		doc.HPrime = finite(res.Params.HPrime)
		doc.Source = string(res.Params.Source)
	case profile.ModeTime:
		h := res.Height
		doc.Height = &h
		if res.Delay.Applied {
			doc.Delay = &delayDoc{PeakIX: res.Delay.PeakIX, Minutes: res.Delay.Minutes}
		}
	}
	if c := res.Comparison; c.N > 0 {
		doc.Comparison = &comparisonDoc{
			N:              c.N,
			MeanLogRatio:   c.MeanLogRatio,
			RMSLogRatio:    c.RMSLogRatio,
			MaxAbsLogRatio: c.MaxAbsLogRatio,
		}
	}
	return doc
}

// finite drops values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func writeParamsJSON(path string, doc paramsDoc) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}
