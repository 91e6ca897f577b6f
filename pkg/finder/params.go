package finder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChrisMcGann/ffim/pkg/binning"
	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/detect"
	"github.com/ChrisMcGann/ffim/pkg/filter"
	"github.com/ChrisMcGann/ffim/pkg/match"
	"github.com/ChrisMcGann/ffim/pkg/store"
	"github.com/ChrisMcGann/ffim/pkg/store/bolt"
	"github.com/ChrisMcGann/ffim/pkg/store/sqlite"
)

// Pseudo-spectrum store kinds
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

const (
	DefaultNumBins   = 50
	DefaultMSLevel   = 1
	DefaultWorkers   = 1
	DefaultCacheSize = 16
)

// Params holds every parameter of a run. It is written next to the outputs so
// a run can be reproduced.
type Params struct {
	NumBins    int             `yaml:"num_bins"`
	MZEpsilon  float64         `yaml:"mz_epsilon"`
	Tolerance  match.Tolerance `yaml:"tolerance"`
	MSLevel    int             `yaml:"ms_level"`
	FlushEvery int             `yaml:"flush_every"`
	Workers    int             `yaml:"workers"`
	Store      string          `yaml:"store"`
	CacheSize  int             `yaml:"cache_size"` // loaded bins kept in memory, 0 disables
	Filter     filter.Config   `yaml:"filter"`
	Detect     detect.Params   `yaml:"detect"`
	Debug      bool            `yaml:"debug"`
}

// DefaultParams returns the default run parameters
func DefaultParams() Params {
	return Params{
		NumBins:    DefaultNumBins,
		MZEpsilon:  binning.DefaultMZEpsilon,
		Tolerance:  match.DefaultTolerance(),
		MSLevel:    DefaultMSLevel,
		FlushEvery: binning.DefaultFlushEvery,
		Workers:    DefaultWorkers,
		Store:      StoreSQLite,
		CacheSize:  DefaultCacheSize,
		Filter:     filter.DefaultConfig(),
		Detect:     detect.DefaultParams(),
	}
}

// Validate checks the parameters and normalizes the filter names
func (p *Params) Validate() error {
	if p.NumBins < 1 {
		return &core.ValidationError{Field: "NumBins", Message: fmt.Sprintf("must be at least 1, got %d", p.NumBins)}
	}
	if !(p.MZEpsilon > 0) {
		return &core.ValidationError{Field: "MZEpsilon", Message: fmt.Sprintf("must be positive, got %g", p.MZEpsilon)}
	}
	if !(p.Tolerance.RT > 0) || !(p.Tolerance.MZ > 0) {
		return &core.ValidationError{Field: "Tolerance", Message: fmt.Sprintf("thresholds must be positive, got rt=%g mz=%g", p.Tolerance.RT, p.Tolerance.MZ)}
	}
	if p.MSLevel < 1 {
		return &core.ValidationError{Field: "MSLevel", Message: fmt.Sprintf("must be at least 1, got %d", p.MSLevel)}
	}
	if p.FlushEvery < 1 {
		return &core.ValidationError{Field: "FlushEvery", Message: fmt.Sprintf("must be at least 1, got %d", p.FlushEvery)}
	}
	if p.Workers < 1 {
		return &core.ValidationError{Field: "Workers", Message: fmt.Sprintf("must be at least 1, got %d", p.Workers)}
	}
	if p.CacheSize < 0 {
		return &core.ValidationError{Field: "CacheSize", Message: "must not be negative"}
	}
	switch p.Store {
	case StoreSQLite, StoreBolt, StoreMemory:
	default:
		return &core.ValidationError{Field: "Store", Message: fmt.Sprintf("unknown store %q", p.Store)}
	}

	p.Filter.Normalize()
	if err := p.Filter.Validate(); err != nil {
		return err
	}
	return p.Detect.Validate()
}

// StorePath returns the file backing a store kind inside dir, or "" for the
// in-memory store.
func StorePath(kind, dir string) string {
	switch kind {
	case StoreSQLite:
		return filepath.Join(dir, "bins.db")
	case StoreBolt:
		return filepath.Join(dir, "bins.bolt")
	}
	return ""
}

// OpenStore opens a fresh pseudo-spectrum store of the given kind inside dir.
// Any store left by an earlier run is removed first. File-backed stores are
// wrapped in a load cache of cacheSize bins when cacheSize is positive.
func OpenStore(kind, dir string, cacheSize int) (store.Store, error) {
	path := StorePath(kind, dir)
	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale store: %w", err)
		}
	}

	var st store.Store
	switch kind {
	case StoreSQLite:
		s, err := sqlite.NewStore(path)
		if err != nil {
			return nil, err
		}
		st = s
	case StoreBolt:
		s, err := bolt.NewStore(path)
		if err != nil {
			return nil, err
		}
		st = s
	case StoreMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", kind)
	}

	if cacheSize <= 0 {
		return st, nil
	}
	cached, err := store.NewCached(st, cacheSize)
	if err != nil {
		st.Close()
		return nil, err
	}
	return cached, nil
}
