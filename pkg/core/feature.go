package core

import (
	"fmt"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/paulmach/orb"
)

// Coord is the accessor set shared by detected features and plain
// coordinate triples, so comparison code is written once for both.
type Coord interface {
	RetentionTime() float64
	MassToCharge() float64
	Abundance() float64
	// ConvexHull returns nil when the item has no shape.
	ConvexHull() orb.Ring
}

// Feature is a 2D (RT, m/z) chromatographic peak found by a seed detector.
// Hull points are (RT, m/z) pairs.
type Feature struct {
	ID        uint64 `hash:"ignore"`
	RT        float64
	MZ        float64
	Intensity float64
	Charge    int
	Quality   float64
	Hull      orb.Ring
}

func (f *Feature) RetentionTime() float64 { return f.RT }
func (f *Feature) MassToCharge() float64  { return f.MZ }
func (f *Feature) Abundance() float64     { return f.Intensity }
func (f *Feature) ConvexHull() orb.Ring   { return f.Hull }

// Identity returns a hash of the feature's values. Two features with equal
// position, intensity and hull share an identity.
func (f *Feature) Identity() (uint64, error) {
	return hashstructure.Hash(f, hashstructure.FormatV2, nil)
}

// Key returns the feature id, deriving it from the feature's values on first use.
func (f *Feature) Key() uint64 {
	if f.ID == 0 {
		if id, err := f.Identity(); err == nil {
			f.ID = id
		}
	}
	return f.ID
}

// String implements fmt.Stringer
func (f *Feature) String() string {
	return fmt.Sprintf("feature(rt=%.4f mz=%.5f int=%.1f)", f.RT, f.MZ, f.Intensity)
}

// AssignIDs gives every feature its value-derived id.
func AssignIDs(features []*Feature) error {
	for _, f := range features {
		id, err := f.Identity()
		if err != nil {
			return fmt.Errorf("failed to hash feature %s: %w", f, err)
		}
		f.ID = id
	}
	return nil
}

// RawPoint is a bare (RT, m/z, intensity) triple, e.g. a row of a reference list.
type RawPoint struct {
	RT        float64
	MZ        float64
	Intensity float64
}

func (p RawPoint) RetentionTime() float64 { return p.RT }
func (p RawPoint) MassToCharge() float64  { return p.MZ }
func (p RawPoint) Abundance() float64     { return p.Intensity }
func (p RawPoint) ConvexHull() orb.Ring   { return nil }

// MatchedFeature is a final output feature with the average IM of the bin it was drawn from.
// IM is nil when no ion-mobility binning took place (a single bin).
type MatchedFeature struct {
	*Feature
	IM *float64
}

// IMValue returns the attached IM, or 0 when there is none.
func (m MatchedFeature) IMValue() float64 {
	if m.IM == nil {
		return 0
	}
	return *m.IM
}
