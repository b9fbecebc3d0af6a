package xray

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// GOESLongBand is the long-wavelength channel; its flux is the ix the
// observation table was compiled against.
const GOESLongBand = "0.1-0.8nm"

const defaultFetchTimeout = 15 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type goesEntry struct {
	TimeTag string  `json:"time_tag"`
	Flux    float64 `json:"flux"`
	Energy  string  `json:"energy"`
}

// ParseGOES decodes a GOES X-ray JSON array and keeps the entries of one
// energy band, ordered by time. Entries with an unparseable time tag or a
// non-positive flux are skipped.
func ParseGOES(body []byte, energyBand string) ([]Sample, error) {
	var entries []goesEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode goes json: %w", err)
	}
	samples := make([]Sample, 0, len(entries))
	for _, entry := range entries {
		if entry.Energy != energyBand {
			continue
		}
		t, err := time.Parse(time.RFC3339, entry.TimeTag)
		if err != nil {
			continue
		}
		if !(entry.Flux > 0) {
			continue
		}
		t = t.UTC()
		samples = append(samples, Sample{
			Stamp: t.Format("15:04"),
			Time:  t,
			IX:    entry.Flux,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w for band %s", errEmptySeries, energyBand)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	return samples, nil
}

// Fetcher polls a GOES JSON URL with ETag/Last-Modified revalidation.
type Fetcher struct {
	url          string
	band         string
	etag         string
	lastModified string
	client       *http.Client
}

// NewFetcher returns a Fetcher for the long band. A nil client gets a default
// one with a request timeout.
func NewFetcher(url string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{url: url, band: GOESLongBand, client: client}
}

// Fetch downloads and parses the feed. changed is false, with nil samples,
// when the server answered 304 Not Modified.
func (f *Fetcher) Fetch(ctx context.Context) (samples []Sample, changed bool, err error) {
	if f == nil {
		return nil, false, errors.New("xray: nil fetcher")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("xray: request %s: %w", f.url, err)
	}
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	if f.lastModified != "" {
		req.Header.Set("If-Modified-Since", f.lastModified)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("xray: fetch %s: %w", f.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("xray: fetch %s: unexpected status %d", f.url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("xray: read %s: %w", f.url, err)
	}
	samples, err = ParseGOES(body, f.band)
	if err != nil {
		return nil, false, fmt.Errorf("xray: %s: %w", f.url, err)
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		f.etag = etag
	}
	if last := resp.Header.Get("Last-Modified"); last != "" {
		f.lastModified = last
	}
	return samples, true, nil
}
