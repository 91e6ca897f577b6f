package binning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

const (
	DefaultMZEpsilon  = 0.001
	DefaultFlushEvery = 500
)

// Config holds the binning parameters
type Config struct {
	NumBins    int     `yaml:"num_bins"`
	MZEpsilon  float64 `yaml:"mz_epsilon"`
	FlushEvery int     `yaml:"flush_every"` // spectra held in memory between flushes
}

// DefaultConfig returns the default binning configuration for numBins bins
func DefaultConfig(numBins int) Config {
	return Config{
		NumBins:    numBins,
		MZEpsilon:  DefaultMZEpsilon,
		FlushEvery: DefaultFlushEvery,
	}
}

// Binner accumulates pseudo-spectra for every bin of both passes and
// periodically appends them to a store.
type Binner struct {
	cfg    Config
	store  store.Store
	logger *slog.Logger

	grid  Grid
	ready bool

	pending   map[core.BinKey][]*core.Spectrum
	held      int // spectra binned since the last flush
	binned    int
	flushes   int
	assigned  [core.NumPasses][]int
	pseudoLen [core.NumPasses][]int
}

// New creates a Binner writing to st. A nil logger uses slog.Default().
func New(cfg Config, st store.Store, logger *slog.Logger) *Binner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	return &Binner{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		pending: make(map[core.BinKey][]*core.Spectrum),
	}
}

// Setup fixes the grids from the global IM range of the dataset.
func (b *Binner) Setup(imStart, imEnd float64) error {
	grid, err := NewGrid(b.cfg.NumBins, imStart, imEnd)
	if err != nil {
		return err
	}
	b.grid = grid
	b.assigned = [core.NumPasses][]int{}
	b.pseudoLen = [core.NumPasses][]int{}
	for pass := 0; pass < grid.Passes(); pass++ {
		b.assigned[pass] = make([]int, grid.BinCount(pass))
		b.pseudoLen[pass] = make([]int, grid.BinCount(pass))
	}
	b.ready = true

	b.logger.Debug("bins set up",
		"im_start", grid.Start,
		"im_end", grid.End,
		"bin_size", grid.Size,
		"im_offset", grid.Offset)
	return nil
}

// Grid returns the grid fixed by Setup
func (b *Binner) Grid() Grid {
	return b.grid
}

// Add bins one spectrum into every binned pass and flushes once FlushEvery spectra
// are held in memory.
func (b *Binner) Add(ctx context.Context, spec *core.Spectrum) error {
	if !b.ready {
		return ErrNotSetup
	}

	for pass, bins := range b.BinSpectrum(spec) {
		for bin, peaks := range bins {
			if len(peaks) == 0 {
				continue
			}
			key := core.BinKey{Pass: pass, Bin: bin}
			b.pending[key] = append(b.pending[key], &core.Spectrum{
				RT:           spec.RT,
				MSLevel:      spec.MSLevel,
				Index:        spec.Index,
				ID:           spec.ID,
				Peaks:        peaks,
				SourceFile:   spec.SourceFile,
				SourceFormat: spec.SourceFormat,
			})
			b.pseudoLen[pass][bin] += len(peaks)
		}
	}
	b.binned++
	b.held++

	if b.held >= b.cfg.FlushEvery {
		return b.Flush(ctx)
	}
	return nil
}

// BinSpectrum assigns the points of spec to the bins of every binned pass and
// merges each bin's points with MergeRuns. The result is indexed by pass then
// bin; bins that received no point are nil, as is pass 1 of a single-bin grid.
func (b *Binner) BinSpectrum(spec *core.Spectrum) [core.NumPasses][][]core.Peak {
	points := spec.Points()
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].IM < points[j].IM
	})

	var slices [core.NumPasses][][]core.Point
	for pass := 0; pass < b.grid.Passes(); pass++ {
		slices[pass] = make([][]core.Point, b.grid.BinCount(pass))
	}
	for _, p := range points {
		for pass := 0; pass < b.grid.Passes(); pass++ {
			bin := b.grid.Assign(pass, p.IM)
			slices[pass][bin] = append(slices[pass][bin], p)
			b.assigned[pass][bin]++
		}
	}

	var out [core.NumPasses][][]core.Peak
	for pass := 0; pass < b.grid.Passes(); pass++ {
		out[pass] = make([][]core.Peak, len(slices[pass]))
		for bin, pts := range slices[pass] {
			if len(pts) > 0 {
				out[pass][bin] = MergeRuns(pts, b.cfg.MZEpsilon)
			}
		}
	}
	return out
}

// MergeRuns sorts points by m/z and collapses every run of points lying within
// eps of the run's first point into one peak. The merged peak keeps the first
// point's m/z and IM and carries the summed intensity of the run. The window is
// anchored on the first point and never recentered.
func MergeRuns(points []core.Point, eps float64) []core.Peak {
	if len(points) == 0 {
		return nil
	}
	sorted := make([]core.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MZ < sorted[j].MZ
	})

	var merged []core.Peak
	anchor := sorted[0]
	running := 0.0
	for _, p := range sorted {
		if withinEpsilon(anchor.MZ, p.MZ, eps) {
			running += p.Intensity
			continue
		}
		merged = append(merged, core.Peak{MZ: anchor.MZ, Intensity: running, IM: anchor.IM})
		anchor, running = p, p.Intensity
	}
	return append(merged, core.Peak{MZ: anchor.MZ, Intensity: running, IM: anchor.IM})
}

func withinEpsilon(target, v, eps float64) bool {
	return target-eps <= v && v <= target+eps
}

// Flush appends every held pseudo-spectrum to the store and clears memory.
// Flushing with nothing held is a no-op.
func (b *Binner) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		b.held = 0
		return nil
	}

	total := 0
	for _, key := range b.grid.Keys() {
		spectra := b.pending[key]
		if len(spectra) == 0 {
			continue
		}
		if err := b.store.Append(ctx, key, spectra); err != nil {
			return fmt.Errorf("failed to flush bin %s: %w", key, err)
		}
		total += len(spectra)
		delete(b.pending, key)
	}
	b.flushes++

	b.logger.Debug("flushed bins",
		"spectra", humanize.Comma(int64(b.held)),
		"pseudo_spectra", humanize.Comma(int64(total)),
		"flush", b.flushes)
	b.held = 0
	return nil
}

// Assigned returns how many input points each bin of a pass received.
func (b *Binner) Assigned(pass int) []int {
	out := make([]int, len(b.assigned[pass]))
	copy(out, b.assigned[pass])
	return out
}

// Merged returns how many merged peaks each bin of a pass holds.
func (b *Binner) Merged(pass int) []int {
	out := make([]int, len(b.pseudoLen[pass]))
	copy(out, b.pseudoLen[pass])
	return out
}

// Binned returns the number of spectra binned so far.
func (b *Binner) Binned() int {
	return b.binned
}
