// Package compare benchmarks a found feature list against a reference list.
package compare

import (
	"fmt"
	"sort"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/match"
)

// Result holds the outcome of comparing input items against reference items
type Result struct {
	// Common holds, for every matched reference item, the input item with the
	// largest hull among those similar to it.
	Common []core.Coord
	// Missing holds the reference items without a similar input item.
	Missing []core.Coord
	// Found flags every reference item, in reference order.
	Found []bool

	NoMatch   int
	OneMatch  int
	MultMatch int
}

// NumCommon returns the number of reference items matched at least once
func (r *Result) NumCommon() int {
	return len(r.Common)
}

// Compare looks up every reference item among the input items.
func Compare[I, R core.Coord](input []I, reference []R, tol match.Tolerance) *Result {
	sorted := make([]I, len(input))
	copy(sorted, input)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RetentionTime() < sorted[j].RetentionTime()
	})

	res := &Result{Found: make([]bool, len(reference))}
	for j, ref := range reference {
		var best core.Coord
		bestArea, similar := 0.0, 0

		for i := match.LeftRT(sorted, ref.RetentionTime()-tol.RT); i < len(sorted); i++ {
			in := sorted[i]
			if in.RetentionTime() > ref.RetentionTime()+tol.RT {
				break
			}
			if !match.Similar(in, ref, tol) {
				continue
			}
			similar++
			if area := match.PolygonArea(in.ConvexHull()); best == nil || area > bestArea {
				best, bestArea = in, area
			}
		}

		switch similar {
		case 0:
			res.NoMatch++
			res.Missing = append(res.Missing, ref)
		case 1:
			res.OneMatch++
		default:
			res.MultMatch++
		}
		if best != nil {
			res.Found[j] = true
			res.Common = append(res.Common, best)
		}
	}
	return res
}

// Summary renders the match counts, one per line
func (r *Result) Summary() string {
	return fmt.Sprintf("Common features: %d\nNo matches: %d\nOne match: %d\nMultiple matches: %d\n",
		r.NumCommon(), r.NoMatch, r.OneMatch, r.MultMatch)
}

// HasHulls reports whether any item carries a convex hull
func HasHulls[T core.Coord](items []T) bool {
	for _, it := range items {
		if len(it.ConvexHull()) > 0 {
			return true
		}
	}
	return false
}

// AsFeatures converts items to features for featureXML output. Detected
// features are passed through; other items become hull-less features.
func AsFeatures(items []core.Coord) []core.MatchedFeature {
	out := make([]core.MatchedFeature, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case core.MatchedFeature:
			out = append(out, v)
		case *core.Feature:
			out = append(out, core.MatchedFeature{Feature: v})
		default:
			out = append(out, core.MatchedFeature{Feature: &core.Feature{
				RT:        it.RetentionTime(),
				MZ:        it.MassToCharge(),
				Intensity: it.Abundance(),
			}})
		}
	}
	return out
}
