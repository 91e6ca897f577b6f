// Package detect finds 2D (RT, m/z) features in a pseudo-spectrum.
package detect

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Detector finds features in a sequence of spectra. Every returned feature
// carries a convex hull; an input without usable peaks yields no features.
type Detector interface {
	Detect(ctx context.Context, spectra []*core.Spectrum) ([]*core.Feature, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, spectra []*core.Spectrum) ([]*core.Feature, error)

func (f DetectorFunc) Detect(ctx context.Context, spectra []*core.Spectrum) ([]*core.Feature, error) {
	return f(ctx, spectra)
}

// Default mass-trace parameters
const (
	DefaultMinSpectra  = 7
	DefaultMaxMissing  = 1
	DefaultMZTolerance = 0.01
)

// Params controls mass-trace extraction
type Params struct {
	MinSpectra   int     `yaml:"min_spectra"`   // spectra a trace must span to become a feature
	MaxMissing   int     `yaml:"max_missing"`   // consecutive spectra a trace may skip
	MZTolerance  float64 `yaml:"mz_tolerance"`  // m/z distance from the trace mean
	MinIntensity float64 `yaml:"min_intensity"` // peaks at or below are ignored
}

// DefaultParams returns the default mass-trace parameters
func DefaultParams() Params {
	return Params{
		MinSpectra:  DefaultMinSpectra,
		MaxMissing:  DefaultMaxMissing,
		MZTolerance: DefaultMZTolerance,
	}
}

// Validate checks that the parameters can drive a detection
func (p Params) Validate() error {
	if p.MinSpectra < 1 {
		return &core.ValidationError{Field: "MinSpectra", Message: fmt.Sprintf("must be at least 1, got %d", p.MinSpectra)}
	}
	if p.MaxMissing < 0 {
		return &core.ValidationError{Field: "MaxMissing", Message: fmt.Sprintf("must not be negative, got %d", p.MaxMissing)}
	}
	if !(p.MZTolerance > 0) {
		return &core.ValidationError{Field: "MZTolerance", Message: fmt.Sprintf("must be positive, got %g", p.MZTolerance)}
	}
	return nil
}

// Centroided extracts mass traces from centroided spectra and reports every
// trace spanning at least MinSpectra spectra as a feature.
type Centroided struct {
	Params Params
}

// NewCentroided creates a mass-trace detector
func NewCentroided(p Params) *Centroided {
	return &Centroided{Params: p}
}

type trace struct {
	mz        float64 // intensity-weighted mean m/z
	weight    float64
	points    []core.Point
	spectra   int
	missing   int
	extended  bool
	first     int
	lastIndex int
}

func (t *trace) add(p core.Point, scan int) {
	t.weight += p.Intensity
	if t.weight > 0 {
		t.mz += (p.MZ - t.mz) * p.Intensity / t.weight
	}
	t.points = append(t.points, p)
	if t.lastIndex != scan {
		t.spectra++
		t.lastIndex = scan
	}
	t.extended = true
}

// Detect implements Detector
func (c *Centroided) Detect(ctx context.Context, spectra []*core.Spectrum) ([]*core.Feature, error) {
	if err := c.Params.Validate(); err != nil {
		return nil, err
	}

	ordered := make([]*core.Spectrum, len(spectra))
	copy(ordered, spectra)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RT < ordered[j].RT
	})

	var active, closed []*trace
	for scan, spec := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		points := spec.Points()
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].Intensity > points[j].Intensity
		})

		for _, t := range active {
			t.extended = false
		}
		for _, p := range points {
			if p.Intensity <= c.Params.MinIntensity {
				continue
			}
			if t := c.nearest(active, p.MZ); t != nil {
				t.add(p, scan)
				continue
			}
			t := &trace{mz: p.MZ, first: scan, lastIndex: -1}
			t.add(p, scan)
			active = append(active, t)
		}

		kept := active[:0]
		for _, t := range active {
			if !t.extended {
				t.missing++
			} else {
				t.missing = 0
			}
			if t.missing > c.Params.MaxMissing {
				closed = append(closed, t)
				continue
			}
			kept = append(kept, t)
		}
		active = kept
	}
	closed = append(closed, active...)

	var features []*core.Feature
	for _, t := range closed {
		if t.spectra < c.Params.MinSpectra {
			continue
		}
		features = append(features, traceFeature(t))
	}

	sort.SliceStable(features, func(i, j int) bool {
		if features[i].RT != features[j].RT {
			return features[i].RT < features[j].RT
		}
		return features[i].MZ < features[j].MZ
	})
	if err := core.AssignIDs(features); err != nil {
		return nil, err
	}
	return features, nil
}

// nearest returns the closest trace within tolerance that has not been
// extended in the current spectrum.
func (c *Centroided) nearest(active []*trace, mz float64) *trace {
	var best *trace
	bestDist := math.Inf(1)
	for _, t := range active {
		if t.extended {
			continue
		}
		if d := math.Abs(t.mz - mz); d <= c.Params.MZTolerance && d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

func traceFeature(t *trace) *core.Feature {
	apex := t.points[0]
	total := 0.0
	hull := make([]orb.Point, len(t.points))
	for i, p := range t.points {
		if p.Intensity > apex.Intensity {
			apex = p
		}
		total += p.Intensity
		hull[i] = orb.Point{p.RT, p.MZ}
	}

	return &core.Feature{
		RT:        apex.RT,
		MZ:        t.mz,
		Intensity: total,
		Quality:   float64(t.spectra) / float64(t.lastIndex-t.first+1),
		Hull:      ConvexHull(hull),
	}
}
