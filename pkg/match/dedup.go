package match

import "github.com/ChrisMcGann/ffim/pkg/core"

// Deduplicate collapses overlapping features of a single bin. Every feature
// anchors its own scan: among the anchor and all features similar to it, the
// one with the largest hull area represents the cluster. Representatives are
// emitted once each, in the order they are first chosen.
func Deduplicate(features []*core.Feature, tol Tolerance) []*core.Feature {
	sorted := sortedByRT(features)
	seen := make(map[uint64]struct{}, len(sorted))
	out := make([]*core.Feature, 0, len(sorted))

	for i, anchor := range sorted {
		best, bestArea := anchor, hullArea(anchor)

		for j := LeftRT(sorted, anchor.RT-tol.RT); j < len(sorted); j++ {
			if i == j {
				continue
			}
			f := sorted[j]
			if f.RT > anchor.RT+tol.RT {
				break
			}
			if !Similar(anchor, f, tol) {
				continue
			}
			if area := hullArea(f); area > bestArea {
				best, bestArea = f, area
			}
		}

		key := best.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, best)
	}

	return out
}
