package binning

import (
	"context"
	"fmt"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/match"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

// AverageIM returns the intensity-weighted mean IM over every peak of the
// given spectra, or 0 when the total intensity is zero.
func AverageIM(spectra []*core.Spectrum) float64 {
	total := 0.0
	for _, s := range spectra {
		total += s.TotalIntensity()
	}
	if total == 0 {
		return 0
	}

	avg := 0.0
	for _, s := range spectra {
		for _, p := range s.Peaks {
			avg += p.IM * (p.Intensity / total)
		}
	}
	return avg
}

// BinIMs loads every bin of the binned passes from st and computes its average IM.
func BinIMs(ctx context.Context, st store.Store, grid Grid) (match.BinIMs, error) {
	var ims match.BinIMs
	for _, key := range grid.Keys() {
		spectra, err := st.Load(ctx, key)
		if err != nil {
			return ims, fmt.Errorf("failed to load bin %s: %w", key, err)
		}
		ims[key.Pass] = append(ims[key.Pass], AverageIM(spectra))
	}
	return ims, nil
}
