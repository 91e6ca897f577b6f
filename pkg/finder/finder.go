// Package finder runs the 4D feature finding pipeline: IM binning on two offset
// grids, per-bin 2D detection and the merge of all bins into one feature list.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/ffim/pkg/binning"
	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/detect"
	"github.com/ChrisMcGann/ffim/pkg/match"
	"github.com/ChrisMcGann/ffim/pkg/store"
)

// ErrNoSpectra is returned when the source holds no peaks at the requested MS level.
var ErrNoSpectra = errors.New("no spectra with peaks at the requested ms level")

// Source is a finite, restartable sequence of spectra.
type Source interface {
	Next() bool
	Spectrum() *core.Spectrum
	Err() error
	Rewind() error
}

// IMExtrema scans src once for the smallest and largest IM over valid spectra
// of the given MS level, then rewinds it. Spectra failing validation are
// ignored, as they are during binning.
func IMExtrema(src Source, msLevel int) (lo, hi float64, err error) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for src.Next() {
		spec := src.Spectrum()
		if spec.MSLevel != msLevel || spec.Validate() != nil {
			continue
		}
		if l, h, ok := spec.IMRange(); ok {
			lo = math.Min(lo, l)
			hi = math.Max(hi, h)
		}
	}
	if err := src.Err(); err != nil {
		return 0, 0, fmt.Errorf("failed to scan ion mobility range: %w", err)
	}
	if err := src.Rewind(); err != nil {
		return 0, 0, fmt.Errorf("failed to rewind source: %w", err)
	}
	if lo > hi {
		return 0, 0, ErrNoSpectra
	}
	return lo, hi, nil
}

// Result is the outcome of one run
type Result struct {
	RunID    uuid.UUID
	Features []core.MatchedFeature
	Grid     binning.Grid
	BinIMs   match.BinIMs
	// Bins holds the deduplicated features of every bin, indexed by pass then
	// bin. With a single bin only pass 0 is binned, so pass 1 stays empty here
	// and in BinIMs and Assigned.
	Bins [core.NumPasses][][]*core.Feature

	Assigned [core.NumPasses][]int // input points per bin
	Spectra  int                   // spectra binned
	Skipped  int                   // spectra at another ms level
	Invalid  int                   // spectra rejected by validation
	Elapsed  time.Duration
}

// Finder runs the pipeline over one source at a time
type Finder struct {
	params   Params
	store    store.Store
	detector detect.Detector
	logger   *slog.Logger
}

// New creates a Finder staging pseudo-spectra in st. A nil detector uses the
// mass-trace detector configured by p.Detect; a nil logger uses slog.Default().
func New(p Params, st store.Store, det detect.Detector, logger *slog.Logger) (*Finder, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if det == nil {
		det = detect.NewCentroided(p.Detect)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{params: p, store: st, detector: det, logger: logger}, nil
}

// Params returns the validated parameters of the finder
func (f *Finder) Params() Params {
	return f.params
}

// Run bins every spectrum of src, detects features in every bin and merges
// them into the final feature list. Setup and store failures abort the run; a
// bin whose filtering or detection fails yields no features.
func (f *Finder) Run(ctx context.Context, src Source) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New()}

	lo, hi, err := IMExtrema(src, f.params.MSLevel)
	if err != nil {
		return nil, err
	}

	cfg := binning.DefaultConfig(f.params.NumBins)
	cfg.MZEpsilon = f.params.MZEpsilon
	cfg.FlushEvery = f.params.FlushEvery
	binner := binning.New(cfg, f.store, f.logger)
	if err := binner.Setup(lo, hi); err != nil {
		return nil, fmt.Errorf("failed to set up bins: %w", err)
	}
	res.Grid = binner.Grid()

	f.logger.Info("binning spectra",
		"run", res.RunID,
		"bins", res.Grid.NumBins,
		"im_start", res.Grid.Start,
		"im_end", res.Grid.End)

	for src.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := src.Spectrum()
		if spec.MSLevel != f.params.MSLevel {
			res.Skipped++
			continue
		}
		if err := spec.Validate(); err != nil {
			f.logger.Warn("skipping spectrum", "spectrum", spec.Name(), "error", err)
			res.Invalid++
			continue
		}
		if err := binner.Add(ctx, spec); err != nil {
			return nil, fmt.Errorf("failed to bin spectrum %s: %w", spec.Name(), err)
		}
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spectra: %w", err)
	}
	if err := binner.Flush(ctx); err != nil {
		return nil, err
	}
	res.Spectra = binner.Binned()
	for pass := range res.Assigned {
		res.Assigned[pass] = binner.Assigned(pass)
	}

	f.logger.Info("binned spectra",
		"spectra", humanize.Comma(int64(res.Spectra)),
		"skipped", humanize.Comma(int64(res.Skipped)),
		"invalid", res.Invalid)

	if res.BinIMs, err = binning.BinIMs(ctx, f.store, res.Grid); err != nil {
		return nil, err
	}

	if res.Bins, err = f.detectBins(ctx, res.Grid); err != nil {
		return nil, err
	}

	tol := f.params.Tolerance
	if res.Grid.NumBins == 1 {
		res.Features = match.Untagged(res.Bins[0][0])
	} else {
		pass0 := match.MatchChains(res.Bins[0], tol)
		pass1 := match.MatchChains(res.Bins[1], tol)
		f.logger.Debug("matched chains", "pass0", len(pass0), "pass1", len(pass1))
		res.Features = match.Reconcile(pass0, pass1, res.BinIMs, tol)
	}
	res.Elapsed = time.Since(start)

	f.logger.Info("found features",
		"features", humanize.Comma(int64(len(res.Features))),
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// detectBins runs filtering, detection and deduplication over every bin,
// up to Workers bins at a time. With a single bin, pass 1 is not detected.
func (f *Finder) detectBins(ctx context.Context, grid binning.Grid) ([core.NumPasses][][]*core.Feature, error) {
	var bins [core.NumPasses][][]*core.Feature
	for pass := 0; pass < grid.Passes(); pass++ {
		bins[pass] = make([][]*core.Feature, grid.BinCount(pass))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.params.Workers)
	for _, key := range grid.Keys() {
		g.Go(func() error {
			features, err := f.detectBin(gctx, key)
			if err != nil {
				return err
			}
			bins[key.Pass][key.Bin] = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return bins, err
	}
	return bins, nil
}

// detectBin returns the deduplicated features of one bin. Only load failures
// and cancellation are returned as errors.
func (f *Finder) detectBin(ctx context.Context, key core.BinKey) ([]*core.Feature, error) {
	spectra, err := f.store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load bin %s: %w", key, err)
	}
	if !core.HasPeaks(spectra) {
		return nil, nil
	}

	cfg := f.params.Filter
	filtered, err := cfg.Apply(spectra)
	if err != nil {
		f.logger.Warn("filtering failed", "bin", key, "error", err)
		return nil, nil
	}

	features, err := f.detector.Detect(ctx, filtered)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("detection failed", "bin", key, "error", err)
		return nil, nil
	}

	deduped := match.Deduplicate(features, f.params.Tolerance)
	f.logger.Debug("detected bin",
		"bin", key,
		"spectra", len(spectra),
		"features", len(features),
		"deduplicated", len(deduped))
	return deduped, nil
}
