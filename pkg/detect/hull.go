package detect

import (
	"sort"

	"github.com/paulmach/orb"
)

// ConvexHull returns the closed convex hull ring of points in counter-clockwise
// order (monotone chain). Fewer than three distinct points yield an open ring
// of those points.
func ConvexHull(points []orb.Point) orb.Ring {
	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})
	sorted = dedupPoints(sorted)

	n := len(sorted)
	if n < 3 {
		return orb.Ring(sorted)
	}

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	hull := make([]orb.Point, 0, 2*n)
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// the upper chain ends on the first point, which closes the ring
	return orb.Ring(hull)
}

func dedupPoints(sorted []orb.Point) []orb.Point {
	out := sorted[:0]
	for _, p := range sorted {
		if len(out) > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
