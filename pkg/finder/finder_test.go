package finder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/ffim/pkg/binning"
	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/detect"
	"github.com/ChrisMcGann/ffim/pkg/filter"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

type sliceSource struct {
	spectra []*core.Spectrum
	pos     int
	cur     *core.Spectrum
}

func (s *sliceSource) Next() bool {
	if s.pos >= len(s.spectra) {
		return false
	}
	s.cur = s.spectra[s.pos]
	s.pos++
	return true
}

func (s *sliceSource) Spectrum() *core.Spectrum { return s.cur }
func (s *sliceSource) Err() error               { return nil }
func (s *sliceSource) Rewind() error {
	s.pos, s.cur = 0, nil
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams(numBins int) Params {
	p := DefaultParams()
	p.NumBins = numBins
	p.Store = StoreMemory
	p.Filter.Picker = filter.PickNone
	p.Workers = 2
	return p
}

func square(rt, mz float64) orb.Ring {
	return orb.Ring{{rt, mz}, {rt + 1, mz}, {rt + 1, mz + 0.001}, {rt, mz + 0.001}, {rt, mz}}
}

// boundarySource holds one analyte at m/z 500 whose IM alternates around
// 0.75, the first pass-0 bin edge of four bins over [0.5, 1.5].
func boundarySource() *sliceSource {
	var spectra []*core.Spectrum
	for i := 0; i <= 20; i++ {
		im := 0.74
		if i%2 == 1 {
			im = 0.76
		}
		spec := &core.Spectrum{
			RT:      float64(10 + i),
			MSLevel: 1,
			Index:   len(spectra),
			Peaks:   []core.Peak{{MZ: 500 + float64(i%3)*0.0005, Intensity: 1000, IM: im}},
		}
		switch i {
		case 0:
			spec.Peaks = append(spec.Peaks, core.Peak{MZ: 300, Intensity: 5, IM: 0.5})
		case 20:
			spec.Peaks = append(spec.Peaks, core.Peak{MZ: 900, Intensity: 5, IM: 1.5})
		}
		spectra = append(spectra, spec)
		// MS2 scans are skipped
		spectra = append(spectra, &core.Spectrum{
			RT:      float64(10+i) + 0.5,
			MSLevel: 2,
			Index:   len(spectra),
			Peaks:   []core.Peak{{MZ: 200, Intensity: 50, IM: 3}},
		})
	}
	return &sliceSource{spectra: spectra}
}

func TestIMExtrema(t *testing.T) {
	src := boundarySource()

	lo, hi, err := IMExtrema(src, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, lo)
	assert.Equal(t, 1.5, hi)
	assert.Equal(t, 0, src.pos, "source is rewound")

	_, _, err = IMExtrema(src, 3)
	assert.ErrorIs(t, err, ErrNoSpectra)

	src = withNaNIMSpectrum(boundarySource())
	lo, hi, err = IMExtrema(src, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.5, lo)
	assert.Equal(t, 1.5, hi)
}

// withNaNIMSpectrum appends an MS1 spectrum whose only peak has no usable IM.
func withNaNIMSpectrum(src *sliceSource) *sliceSource {
	src.spectra = append(src.spectra, &core.Spectrum{
		RT:      40.5,
		MSLevel: 1,
		Index:   len(src.spectra),
		Peaks:   []core.Peak{{MZ: 700, Intensity: 1000, IM: math.NaN()}},
	})
	return src
}

func TestRunSkipsInvalidSpectrum(t *testing.T) {
	f, err := New(testParams(4), store.NewMemory(), nil, quietLogger())
	require.NoError(t, err)

	res, err := f.Run(context.Background(), withNaNIMSpectrum(boundarySource()))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, 21, res.Spectra)
	assert.Equal(t, 0.5, res.Grid.Start)
	assert.Equal(t, 1.5, res.Grid.End)
	require.Len(t, res.Features, 1)
	assert.InDelta(t, 500, res.Features[0].MZ, 0.001)
}

func TestRunBoundaryAnalyteFoundOnce(t *testing.T) {
	p := testParams(4)
	f, err := New(p, store.NewMemory(), nil, quietLogger())
	require.NoError(t, err)

	res, err := f.Run(context.Background(), boundarySource())
	require.NoError(t, err)

	assert.Equal(t, 21, res.Spectra)
	assert.Equal(t, 21, res.Skipped)
	assert.Equal(t, 0.25, res.Grid.Size)
	require.Len(t, res.Features, 1)

	got := res.Features[0]
	assert.InDelta(t, 500, got.MZ, 0.001)
	require.NotNil(t, got.IM)
	assert.InDelta(t, 0.75, *got.IM, 0.02)

	// both pass-0 bins around the edge see the analyte, pass 1 holds it in one bin
	assert.NotEmpty(t, res.Bins[0][0])
	assert.NotEmpty(t, res.Bins[0][1])
	assert.NotEmpty(t, res.Bins[1][1])
	assert.Empty(t, res.Bins[1][0])

	for pass := range res.Assigned {
		total := 0
		for _, n := range res.Assigned[pass] {
			total += n
		}
		assert.Equal(t, 23, total, "pass %d", pass)
	}
}

// fixedDetector returns the same features for every bin holding peaks.
func fixedDetector(calls *atomic.Int32, features ...*core.Feature) detect.Detector {
	return detect.DetectorFunc(func(_ context.Context, _ []*core.Spectrum) ([]*core.Feature, error) {
		calls.Add(1)
		out := make([]*core.Feature, len(features))
		for i, f := range features {
			cp := *f
			out[i] = &cp
		}
		return out, nil
	})
}

func singleBinSource() *sliceSource {
	return &sliceSource{spectra: []*core.Spectrum{
		{RT: 100, MSLevel: 1, Peaks: []core.Peak{{MZ: 400, Intensity: 10, IM: 0.8}}},
		{RT: 101, MSLevel: 1, Peaks: []core.Peak{{MZ: 400, Intensity: 10, IM: 1.2}}},
	}}
}

func TestRunSingleBin(t *testing.T) {
	var calls atomic.Int32
	det := fixedDetector(&calls,
		&core.Feature{RT: 100, MZ: 400, Intensity: 10, Hull: square(100, 400)},
		&core.Feature{RT: 200, MZ: 450, Intensity: 20, Hull: square(200, 450)},
	)
	f, err := New(testParams(1), store.NewMemory(), det, quietLogger())
	require.NoError(t, err)

	res, err := f.Run(context.Background(), singleBinSource())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load(), "only pass 0 is detected")
	require.Len(t, res.Features, 2)
	for _, feat := range res.Features {
		assert.Nil(t, feat.IM)
	}
	require.Len(t, res.Bins[0], 1)
	assert.Empty(t, res.Bins[1])
	assert.Empty(t, res.BinIMs[1])
	assert.Empty(t, res.Assigned[1])
	require.Len(t, res.BinIMs[0], 1)
}

func TestRunRTThresholdEdge(t *testing.T) {
	tests := []struct {
		name string
		rt   float64
		want int
	}{
		{name: "exactly on the threshold", rt: 105, want: 1},
		{name: "just past the threshold", rt: 105.001, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			det := fixedDetector(&calls,
				&core.Feature{RT: 100, MZ: 400, Intensity: 10, Hull: square(100, 400)},
				// the larger hull represents a merged pair
				&core.Feature{RT: tt.rt, MZ: 400, Intensity: 10, Hull: orb.Ring{
					{tt.rt, 400}, {tt.rt + 2, 400}, {tt.rt + 2, 400.001}, {tt.rt, 400.001}, {tt.rt, 400},
				}},
			)
			f, err := New(testParams(1), store.NewMemory(), det, quietLogger())
			require.NoError(t, err)

			res, err := f.Run(context.Background(), singleBinSource())
			require.NoError(t, err)
			assert.Len(t, res.Features, tt.want)
		})
	}
}

func TestRunAbsorbsBinFailures(t *testing.T) {
	det := detect.DetectorFunc(func(_ context.Context, spectra []*core.Spectrum) ([]*core.Feature, error) {
		return nil, errors.New("detector crashed")
	})
	f, err := New(testParams(4), store.NewMemory(), det, quietLogger())
	require.NoError(t, err)

	res, err := f.Run(context.Background(), boundarySource())
	require.NoError(t, err)
	assert.Empty(t, res.Features)
}

func TestRunCancelled(t *testing.T) {
	f, err := New(testParams(4), store.NewMemory(), nil, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Run(ctx, boundarySource())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyRange(t *testing.T) {
	src := &sliceSource{spectra: []*core.Spectrum{
		{RT: 1, MSLevel: 1, Peaks: []core.Peak{{MZ: 400, Intensity: 10, IM: 0.8}}},
	}}
	f, err := New(testParams(4), store.NewMemory(), nil, quietLogger())
	require.NoError(t, err)

	_, err = f.Run(context.Background(), src)
	assert.ErrorIs(t, err, binning.ErrEmptyRange)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
		field  string
	}{
		{name: "defaults", modify: func(*Params) {}},
		{name: "no bins", modify: func(p *Params) { p.NumBins = 0 }, field: "NumBins"},
		{name: "zero epsilon", modify: func(p *Params) { p.MZEpsilon = 0 }, field: "MZEpsilon"},
		{name: "zero rt band", modify: func(p *Params) { p.Tolerance.RT = 0 }, field: "Tolerance"},
		{name: "no flush", modify: func(p *Params) { p.FlushEvery = 0 }, field: "FlushEvery"},
		{name: "no workers", modify: func(p *Params) { p.Workers = 0 }, field: "Workers"},
		{name: "unknown store", modify: func(p *Params) { p.Store = "redis" }, field: "Store"},
		{name: "unknown picker", modify: func(p *Params) { p.Filter.Picker = "wavelet" }, field: "Picker"},
		{name: "detector", modify: func(p *Params) { p.Detect.MinSpectra = 0 }, field: "MinSpectra"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			err := p.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestParamsValidateNormalizesPicker(t *testing.T) {
	p := DefaultParams()
	p.Filter.Picker = "custom"
	require.NoError(t, p.Validate())
	assert.Equal(t, filter.PickLocal, p.Filter.Picker)
}

func TestOpenStore(t *testing.T) {
	spec := &core.Spectrum{RT: 1, MSLevel: 1, Peaks: []core.Peak{{MZ: 100, Intensity: 2, IM: 0.9}}}
	key := core.BinKey{Pass: 1, Bin: 3}

	for _, kind := range []string{StoreSQLite, StoreBolt, StoreMemory} {
		t.Run(kind, func(t *testing.T) {
			dir := t.TempDir()
			st, err := OpenStore(kind, dir, 4)
			require.NoError(t, err)
			require.NoError(t, st.Append(context.Background(), key, []*core.Spectrum{spec}))
			require.NoError(t, st.Close())

			// reopening starts from an empty store
			st, err = OpenStore(kind, dir, 0)
			require.NoError(t, err)
			defer st.Close()
			loaded, err := st.Load(context.Background(), key)
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}

	_, err := OpenStore("redis", t.TempDir(), 0)
	assert.Error(t, err)
}
