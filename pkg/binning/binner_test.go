package binning

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

func TestMergeRuns(t *testing.T) {
	tests := []struct {
		name   string
		points []core.Point
		want   []core.Peak
	}{
		{
			name: "empty",
		},
		{
			name: "single",
			points: []core.Point{
				{MZ: 500, Intensity: 3, IM: 0.9},
			},
			want: []core.Peak{{MZ: 500, Intensity: 3, IM: 0.9}},
		},
		{
			name: "unsorted input",
			points: []core.Point{
				{MZ: 600, Intensity: 1, IM: 1.0},
				{MZ: 500.0004, Intensity: 2, IM: 0.8},
				{MZ: 500, Intensity: 3, IM: 0.9},
			},
			want: []core.Peak{
				{MZ: 500, Intensity: 5, IM: 0.9},
				{MZ: 600, Intensity: 1, IM: 1.0},
			},
		},
		{
			name: "window anchored on first point",
			points: []core.Point{
				{MZ: 100.0, Intensity: 1, IM: 1},
				{MZ: 100.0008, Intensity: 1, IM: 2},
				{MZ: 100.0016, Intensity: 1, IM: 3},
			},
			want: []core.Peak{
				{MZ: 100.0, Intensity: 2, IM: 1},
				{MZ: 100.0016, Intensity: 1, IM: 3},
			},
		},
		{
			name: "equal m/z keeps input order",
			points: []core.Point{
				{MZ: 300, Intensity: 1, IM: 0.7},
				{MZ: 300, Intensity: 4, IM: 0.6},
			},
			want: []core.Peak{{MZ: 300, Intensity: 5, IM: 0.7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeRuns(tt.points, DefaultMZEpsilon)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeRunsConservesIntensity(t *testing.T) {
	var points []core.Point
	total := 0.0
	for i := 0; i < 200; i++ {
		p := core.Point{MZ: 400 + float64(i%37)*0.0007, Intensity: float64(i%11 + 1), IM: float64(i) / 200}
		points = append(points, p)
		total += p.Intensity
	}

	sum := 0.0
	for _, p := range MergeRuns(points, DefaultMZEpsilon) {
		sum += p.Intensity
	}
	if math.Abs(sum-total) > 1e-9 {
		t.Errorf("merged intensity = %v, want %v", sum, total)
	}
}

func testSpectra() []*core.Spectrum {
	var spectra []*core.Spectrum
	for i := 0; i < 5; i++ {
		spec := &core.Spectrum{RT: float64(i) * 1.5, MSLevel: 1, Index: i}
		for j := 0; j < 9; j++ {
			spec.Peaks = append(spec.Peaks, core.Peak{
				MZ:        500 + float64(j)*0.3,
				Intensity: float64(10 * (j + 1)),
				IM:        0.5 + float64(j)*0.125,
			})
		}
		spectra = append(spectra, spec)
	}
	return spectra
}

func TestBinnerAssignsEveryPointOnce(t *testing.T) {
	ctx := context.Background()
	b := New(Config{NumBins: 4, MZEpsilon: DefaultMZEpsilon, FlushEvery: 2}, store.NewMemory(), nil)
	require.NoError(t, b.Setup(0.5, 1.5))

	points := 0
	for _, spec := range testSpectra() {
		points += len(spec.Peaks)
		require.NoError(t, b.Add(ctx, spec))
	}
	require.NoError(t, b.Flush(ctx))

	for pass := 0; pass < core.NumPasses; pass++ {
		sum := 0
		for _, n := range b.Assigned(pass) {
			sum += n
		}
		assert.Equal(t, points, sum, "pass %d", pass)
	}
	assert.Equal(t, 5, b.Binned())
}

func TestBinnerFlushIsLossless(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := New(Config{NumBins: 4, MZEpsilon: DefaultMZEpsilon, FlushEvery: 2}, st, nil)
	require.NoError(t, b.Setup(0.5, 1.5))

	for _, spec := range testSpectra() {
		require.NoError(t, b.Add(ctx, spec))
	}
	require.NoError(t, b.Flush(ctx))
	require.NoError(t, b.Flush(ctx))

	for _, key := range b.Grid().Keys() {
		spectra, err := st.Load(ctx, key)
		require.NoError(t, err)

		peaks := 0
		for _, s := range spectra {
			peaks += len(s.Peaks)
			assert.True(t, s.ArePeaksSorted(), "bin %s", key)
		}
		assert.Equal(t, b.Merged(key.Pass)[key.Bin], peaks, "bin %s", key)
		if peaks > 0 {
			assert.Len(t, spectra, 5, "bin %s", key)
		}
	}
}

func TestBinnerRequiresSetup(t *testing.T) {
	b := New(DefaultConfig(4), store.NewMemory(), nil)
	err := b.Add(context.Background(), testSpectra()[0])
	if !errors.Is(err, ErrNotSetup) {
		t.Errorf("Add() error = %v, want ErrNotSetup", err)
	}
}

func TestBinnerSingleBinSkipsOffsetPass(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := New(DefaultConfig(1), st, nil)
	require.NoError(t, b.Setup(0.5, 1.5))

	for _, spec := range testSpectra() {
		bins := b.BinSpectrum(spec)
		assert.Nil(t, bins[1])
		require.NoError(t, b.Add(ctx, spec))
	}
	require.NoError(t, b.Flush(ctx))

	assert.Empty(t, b.Assigned(1))
	assert.Empty(t, b.Merged(1))
	require.Len(t, b.Assigned(0), 1)
	assert.Positive(t, b.Assigned(0)[0])

	spectra, err := st.Load(ctx, core.BinKey{Pass: 1, Bin: 0})
	require.NoError(t, err)
	assert.Empty(t, spectra)
}

func TestBinnerBoundaryPoint(t *testing.T) {
	b := New(DefaultConfig(4), store.NewMemory(), nil)
	require.NoError(t, b.Setup(0.5, 1.5))

	// exactly on the first pass-0 bin edge
	spec := &core.Spectrum{RT: 10, MSLevel: 1, Peaks: []core.Peak{{MZ: 700, Intensity: 50, IM: 0.75}}}
	bins := b.BinSpectrum(spec)

	assert.Len(t, bins[0][1], 1)
	assert.Len(t, bins[1][1], 1)
	assert.Nil(t, bins[0][0])
}
