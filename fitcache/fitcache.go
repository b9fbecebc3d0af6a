// Package fitcache persists fitted sample sets in a Pebble key/value store so
// repeated runs over the same observation table skip the polynomial fits.
package fitcache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/zeebo/xxh3"

	"flared/fit"
	"flared/observation"
)

const (
	// formatVersion is folded into every key and value; bump it when the
	// fitting recipe or the value layout changes.
	formatVersion = 1
	valueHeader   = 5

	samplesPrefix = "s|"
)

const (
	defaultCacheSizeBytes  = int64(8 << 20)
	defaultBloomFilterBits = 10
)

var (
	errCacheClosed  = errors.New("fitcache: cache is not initialized")
	errInvalidValue = errors.New("fitcache: invalid value encoding")
)

// Options controls Pebble tuning. Zero fields get defaults.
type Options struct {
	CacheSizeBytes        int64
	BloomFilterBitsPerKey int
}

func sanitizeOptions(opts Options) Options {
	if opts.CacheSizeBytes <= 0 {
		opts.CacheSizeBytes = defaultCacheSizeBytes
	}
	if opts.BloomFilterBitsPerKey <= 0 {
		opts.BloomFilterBitsPerKey = defaultBloomFilterBits
	}
	return opts
}

// Key identifies one fit input: the averaged observations plus the ceiling
// rewrite settings.
type Key [16]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Fingerprint hashes the averaged observations (before the ceiling rewrite)
// together with the rewrite settings.
func Fingerprint(avg []observation.Observation, rewriteLast bool, ceiling float64) Key {
	buf := make([]byte, 0, 10+24*len(avg))
	buf = append(buf, formatVersion)
	if rewriteLast {
		buf = append(buf, 1)
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(ceiling))
	} else {
		buf = append(buf, 0)
	}
	for _, o := range avg {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(o.IX))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(o.Beta))
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(o.Height))
	}
	return Key(xxh3.Hash128(buf).Bytes())
}

// Cache wraps the Pebble database.
type Cache struct {
	db    *pebble.DB
	cache *pebble.Cache
}

// Open opens or creates the cache directory at path.
func Open(path string, opts Options) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("fitcache: path is empty")
	}
	opts = sanitizeOptions(opts)
	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("fitcache: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("fitcache: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("fitcache: ensure directory: %w", err)
	}

	pebbleOpts := &pebble.Options{
		Cache: pebble.NewCache(opts.CacheSizeBytes),
	}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(opts.BloomFilterBitsPerKey),
		FilterType:   pebble.TableFilter,
	}
	pebbleOpts.Levels = make([]pebble.LevelOptions, 7)
	for i := range pebbleOpts.Levels {
		pebbleOpts.Levels[i] = level
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		pebbleOpts.Cache.Unref()
		return nil, fmt.Errorf("fitcache: open: %w", err)
	}
	return &Cache{db: db, cache: pebbleOpts.Cache}, nil
}

// Close closes the database and releases its block cache.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if c.cache != nil {
		c.cache.Unref()
		c.cache = nil
	}
	return err
}

// Get returns the samples stored under key. A missing or undecodable value
// reports found=false with a nil error.
func (c *Cache) Get(key Key) (fit.Samples, bool, error) {
	if c == nil || c.db == nil {
		return fit.Samples{}, false, errCacheClosed
	}
	value, closer, err := c.db.Get(keyBytes(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return fit.Samples{}, false, nil
		}
		return fit.Samples{}, false, fmt.Errorf("fitcache: get %s: %w", key, err)
	}
	defer closer.Close()
	s, err := decodeSamples(value)
	if err != nil {
		return fit.Samples{}, false, nil
	}
	return s, true, nil
}

// Put stores samples under key and syncs.
func (c *Cache) Put(key Key, s fit.Samples) error {
	if c == nil || c.db == nil {
		return errCacheClosed
	}
	value, err := encodeSamples(s)
	if err != nil {
		return err
	}
	if err := c.db.Set(keyBytes(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("fitcache: put %s: %w", key, err)
	}
	return nil
}

// Model returns the cached model for key, or calls build and stores its
// samples. hit reports whether the cache served the model.
func (c *Cache) Model(key Key, build func() (*fit.Model, error)) (m *fit.Model, hit bool, err error) {
	s, found, err := c.Get(key)
	if err != nil {
		return nil, false, err
	}
	if found {
		if m, err := fit.Restore(s); err == nil {
			return m, true, nil
		}
	}
	m, err = build()
	if err != nil {
		return nil, false, err
	}
	if err := c.Put(key, m.Samples()); err != nil {
		return m, false, err
	}
	return m, false, nil
}

func keyBytes(key Key) []byte {
	buf := make([]byte, 0, len(samplesPrefix)+len(key))
	buf = append(buf, samplesPrefix...)
	return append(buf, key[:]...)
}

func encodeSamples(s fit.Samples) ([]byte, error) {
	n := len(s.X)
	if len(s.Beta) != n || len(s.HPrime) != n {
		return nil, errors.New("fitcache: sample columns differ in length")
	}
	buf := make([]byte, valueHeader, valueHeader+24*n)
	buf[0] = formatVersion
	binary.BigEndian.PutUint32(buf[1:], uint32(n))
	for _, col := range [][]float64{s.X, s.Beta, s.HPrime} {
		for _, v := range col {
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf, nil
}

func decodeSamples(raw []byte) (fit.Samples, error) {
	if len(raw) < valueHeader || raw[0] != formatVersion {
		return fit.Samples{}, errInvalidValue
	}
	n := int(binary.BigEndian.Uint32(raw[1:]))
	if len(raw) != valueHeader+24*n {
		return fit.Samples{}, errInvalidValue
	}
	cols := make([][]float64, 3)
	offset := valueHeader
	for c := range cols {
		cols[c] = make([]float64, n)
		for i := range cols[c] {
			cols[c][i] = math.Float64frombits(binary.BigEndian.Uint64(raw[offset:]))
			offset += 8
		}
	}
	return fit.Samples{X: cols[0], Beta: cols[1], HPrime: cols[2]}, nil
}
