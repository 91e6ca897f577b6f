package match

import (
	"github.com/ChrisMcGann/ffim/pkg/core"
)

// BinIMs holds the average IM of every bin, indexed by pass then bin.
type BinIMs [core.NumPasses][]float64

// At returns the average IM of a bin, or 0 for a bin outside the table.
func (b BinIMs) At(pass, bin int) float64 {
	if pass < 0 || pass >= len(b) || bin < 0 || bin >= len(b[pass]) {
		return 0
	}
	return b[pass][bin]
}

// Reconcile merges the chain representatives of both passes into the final
// feature list.
//
// Each pass-0 representative absorbs the unconsumed, similar pass-1
// representatives whose bin is the same or the next one (the grids are offset
// by half a bin, so one analyte's bins differ by at most one). The largest-area
// member survives, tagged with the average IM of its own bin. Unabsorbed pass-1
// representatives are kept with their own bin's IM, and a final sweep merges
// similar survivors that carry exactly the same IM.
func Reconcile(pass0, pass1 []Representative, ims BinIMs, tol Tolerance) []core.MatchedFeature {
	second := sortedByRT(pass1)
	used := make([]bool, len(second))
	merged := make([]core.MatchedFeature, 0, len(pass0)+len(pass1))

	for _, r := range pass0 {
		best := tag(r.Feature, ims.At(0, r.Bin))
		bestArea := hullArea(r)

		for j := LeftRT(second, r.RT-tol.RT); j < len(second); j++ {
			if used[j] {
				continue
			}
			c := second[j]
			if c.RT > r.RT+tol.RT {
				break
			}
			if !Similar(r, c, tol) || !adjacent(r.Bin, c.Bin) {
				continue
			}
			used[j] = true
			if area := hullArea(c); area > bestArea {
				best, bestArea = tag(c.Feature, ims.At(1, c.Bin)), area
			}
		}

		merged = append(merged, best)
	}

	for j, c := range second {
		if !used[j] {
			merged = append(merged, tag(c.Feature, ims.At(1, c.Bin)))
		}
	}

	return Cleanup(merged, tol)
}

// Cleanup merges similar features that carry the same IM value, keeping the
// largest-area one. A feature absorbed into one cluster is not revisited.
func Cleanup(features []core.MatchedFeature, tol Tolerance) []core.MatchedFeature {
	sorted := sortedByRT(features)
	used := make([]bool, len(sorted))
	out := make([]core.MatchedFeature, 0, len(sorted))

	for i, anchor := range sorted {
		if used[i] {
			continue
		}
		used[i] = true
		best, bestArea := anchor, hullArea(anchor)

		for j := LeftRT(sorted, anchor.RT-tol.RT); j < len(sorted); j++ {
			if used[j] {
				continue
			}
			f := sorted[j]
			if f.RT > anchor.RT+tol.RT {
				break
			}
			if !Similar(anchor, f, tol) || !sameIM(anchor, f) {
				continue
			}
			used[j] = true
			if area := hullArea(f); area > bestArea {
				best, bestArea = f, area
			}
		}

		out = append(out, best)
	}

	return out
}

// Untagged wraps features that carry no IM value.
func Untagged(features []*core.Feature) []core.MatchedFeature {
	out := make([]core.MatchedFeature, len(features))
	for i, f := range features {
		out[i] = core.MatchedFeature{Feature: f}
	}
	return out
}

func adjacent(bin0, bin1 int) bool {
	return bin0 == bin1 || bin0+1 == bin1
}

func sameIM(a, b core.MatchedFeature) bool {
	if a.IM == nil || b.IM == nil {
		return a.IM == nil && b.IM == nil
	}
	return *a.IM == *b.IM
}

func tag(f *core.Feature, im float64) core.MatchedFeature {
	return core.MatchedFeature{Feature: f, IM: &im}
}
