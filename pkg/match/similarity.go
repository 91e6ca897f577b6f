// Package match reconciles per-bin 2D features into one deduplicated feature list.
//
// All scans over candidate features are bounded to an RT window: candidates are
// kept sorted by RT, LeftRT finds the first candidate that can possibly match and
// the scan stops at the first candidate past the window.
package match

import (
	"math"
	"sort"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Default similarity bands.
const (
	DefaultRTThreshold = 5.0
	DefaultMZThreshold = 0.01
)

// Tolerance holds the symmetric RT and m/z bands used to call two features the same.
type Tolerance struct {
	RT float64 `yaml:"rt"`
	MZ float64 `yaml:"mz"`
}

// DefaultTolerance returns the default RT/m/z bands.
func DefaultTolerance() Tolerance {
	return Tolerance{RT: DefaultRTThreshold, MZ: DefaultMZThreshold}
}

// LeftRT returns the leftmost index i with items[i].RetentionTime() >= target,
// or len(items) if there is none. items must be sorted by ascending RT.
func LeftRT[T core.Coord](items []T, target float64) int {
	return sort.Search(len(items), func(i int) bool {
		return items[i].RetentionTime() >= target
	})
}

// PolygonArea returns the absolute area enclosed by a hull. The ring may be
// open or closed; fewer than three points enclose nothing.
func PolygonArea(hull orb.Ring) float64 {
	if len(hull) < 3 {
		return 0
	}
	return math.Abs(planar.Area(hull))
}

// Similar reports whether two items lie within both tolerance bands of each other.
func Similar(a, b core.Coord, tol Tolerance) bool {
	return math.Abs(a.RetentionTime()-b.RetentionTime()) <= tol.RT &&
		math.Abs(a.MassToCharge()-b.MassToCharge()) <= tol.MZ
}

func hullArea(c core.Coord) float64 {
	return PolygonArea(c.ConvexHull())
}

// sortedByRT returns an RT-ordered copy; equal RTs keep their input order.
func sortedByRT[T core.Coord](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RetentionTime() < out[j].RetentionTime()
	})
	return out
}
