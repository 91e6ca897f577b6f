package binning

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

func TestAverageIM(t *testing.T) {
	tests := []struct {
		name    string
		spectra []*core.Spectrum
		want    float64
	}{
		{
			name: "weighted",
			spectra: []*core.Spectrum{
				{Peaks: []core.Peak{{MZ: 1, Intensity: 10, IM: 1.0}}},
				{Peaks: []core.Peak{{MZ: 2, Intensity: 30, IM: 3.0}}},
			},
			want: 2.5,
		},
		{
			name: "zero intensity",
			spectra: []*core.Spectrum{
				{Peaks: []core.Peak{{MZ: 1, Intensity: 0, IM: 1.0}}},
			},
			want: 0,
		},
		{
			name: "empty bin",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AverageIM(tt.spectra); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("AverageIM() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBinIMs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := New(DefaultConfig(2), st, nil)
	require.NoError(t, b.Setup(0.0, 4.0))

	spec := &core.Spectrum{RT: 1, MSLevel: 1, Peaks: []core.Peak{
		{MZ: 400, Intensity: 10, IM: 1.0},
		{MZ: 410, Intensity: 30, IM: 1.5},
		{MZ: 420, Intensity: 5, IM: 3.0},
	}}
	require.NoError(t, b.Add(ctx, spec))
	require.NoError(t, b.Flush(ctx))

	ims, err := BinIMs(ctx, st, b.Grid())
	require.NoError(t, err)

	require.Len(t, ims[0], 2)
	require.Len(t, ims[1], 3)
	// pass 0: [0,2) holds IM 1.0 and 1.5; [2,4) holds 3.0
	require.InDelta(t, (1.0*10+1.5*30)/40, ims[0][0], 1e-12)
	require.InDelta(t, 3.0, ims[0][1], 1e-12)
	// pass 1: offset 1.0, so 1.0 and 1.5 land in bin 1, 3.0 in bin 2
	require.InDelta(t, 0.0, ims[1][0], 1e-12)
	require.InDelta(t, (1.0*10+1.5*30)/40, ims[1][1], 1e-12)
	require.InDelta(t, 3.0, ims[1][2], 1e-12)
}

func TestBinIMsSingleBin(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := New(DefaultConfig(1), st, nil)
	require.NoError(t, b.Setup(0.0, 4.0))

	spec := &core.Spectrum{RT: 1, MSLevel: 1, Peaks: []core.Peak{
		{MZ: 400, Intensity: 10, IM: 1.0},
		{MZ: 420, Intensity: 30, IM: 3.0},
	}}
	require.NoError(t, b.Add(ctx, spec))
	require.NoError(t, b.Flush(ctx))

	ims, err := BinIMs(ctx, st, b.Grid())
	require.NoError(t, err)

	require.Len(t, ims[0], 1)
	assert.Empty(t, ims[1])
	assert.InDelta(t, (1.0*10+3.0*30)/40, ims[0][0], 1e-12)
}
