// Package binning splits ion-mobility spectra into IM slices on two offset grids
// and merges each slice into a 1D pseudo-spectrum.
package binning

import (
	"errors"
	"fmt"
	"math"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

var (
	// ErrEmptyRange is returned when the IM range cannot be split into bins.
	ErrEmptyRange = errors.New("binning: empty ion mobility range")
	// ErrNotSetup is returned when spectra are added before Setup.
	ErrNotSetup = errors.New("binning: grid not set up")
)

// Grid describes both bin grids of a run. Pass 0 covers [Start, End) in
// NumBins bins; pass 1 has NumBins+1 bins whose edges sit half a bin later.
type Grid struct {
	NumBins int
	Start   float64
	End     float64
	Size    float64
	Offset  float64
}

// NewGrid derives the bin size and the pass-1 offset from the global IM range.
func NewGrid(numBins int, start, end float64) (Grid, error) {
	if numBins < 1 {
		return Grid{}, fmt.Errorf("%w: %d bins", ErrEmptyRange, numBins)
	}
	if !isFinite(start) || !isFinite(end) || end < start || (end == start && numBins > 1) {
		return Grid{}, fmt.Errorf("%w: [%g, %g] in %d bins", ErrEmptyRange, start, end, numBins)
	}

	size := (end - start) / float64(numBins)
	return Grid{
		NumBins: numBins,
		Start:   start,
		End:     end,
		Size:    size,
		Offset:  start + size/2,
	}, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Passes returns how many grids are binned. A single bin covers the whole
// range, so the offset grid is dropped.
func (g Grid) Passes() int {
	if g.NumBins == 1 {
		return 1
	}
	return core.NumPasses
}

// BinCount returns the number of bins of a pass.
func (g Grid) BinCount(pass int) int {
	if pass == 0 {
		return g.NumBins
	}
	return g.NumBins + 1
}

// Assign returns the bin of an IM value in the given pass. Values outside the
// range are clamped into the first or last bin.
func (g Grid) Assign(pass int, im float64) int {
	if g.Size == 0 {
		return 0
	}

	if pass == 0 {
		bin := int(math.Floor((im - g.Start) / g.Size))
		return min(max(bin, 0), g.NumBins-1)
	}

	if im < g.Offset {
		return 0
	}
	bin := int(math.Floor((im-g.Offset)/g.Size)) + 1
	return min(bin, g.NumBins)
}

// Center returns the IM at the middle of a bin. Pass-1 centers lie half a bin
// below the pass-0 center of the same index.
func (g Grid) Center(pass, bin int) float64 {
	if pass == 0 {
		return g.Start + (float64(bin)+0.5)*g.Size
	}
	return g.Offset + (float64(bin)-0.5)*g.Size
}

// Keys lists every bin of the binned passes, pass 0 first.
func (g Grid) Keys() []core.BinKey {
	keys := make([]core.BinKey, 0, 2*g.NumBins+1)
	for pass := 0; pass < g.Passes(); pass++ {
		for bin := 0; bin < g.BinCount(pass); bin++ {
			keys = append(keys, core.BinKey{Pass: pass, Bin: bin})
		}
	}
	return keys
}
