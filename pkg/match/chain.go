package match

import (
	"sort"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Representative is a feature together with the bin it was drawn from.
type Representative struct {
	*core.Feature
	Bin int
}

// Chain is one analyte followed across consecutive bins of a pass.
// The first link is the chain head.
type Chain []Representative

// Strongest returns the link with the highest intensity; the earliest link wins ties.
func (c Chain) Strongest() Representative {
	best := c[0]
	for _, link := range c[1:] {
		if link.Intensity > best.Intensity {
			best = link
		}
	}
	return best
}

// Chains follows features across consecutive bins of one pass.
//
// Bins are visited in ascending order and each unconsumed feature heads a new
// chain. The chain grows into bin+1, bin+2, ... while the next bin holds at
// least one unconsumed feature similar to the head. Every similar candidate is
// consumed, but only the one with the largest hull area becomes the next link.
// A consumed feature never heads a chain of its own.
func Chains(bins [][]*core.Feature, tol Tolerance) []Chain {
	sorted := make([][]*core.Feature, len(bins))
	used := make([][]bool, len(bins))
	for b, features := range bins {
		sorted[b] = sortedByPosition(features)
		used[b] = make([]bool, len(features))
	}

	var chains []Chain
	for b := range sorted {
		for i, head := range sorted[b] {
			if used[b][i] {
				continue
			}
			used[b][i] = true

			chain := Chain{{Feature: head, Bin: b}}
			for next := b + 1; next < len(sorted); next++ {
				link := extend(head, sorted[next], used[next], tol)
				if link == nil {
					break
				}
				chain = append(chain, Representative{Feature: link, Bin: next})
			}
			chains = append(chains, chain)
		}
	}

	return chains
}

// MatchChains collapses every chain of a pass to its most intense link.
func MatchChains(bins [][]*core.Feature, tol Tolerance) []Representative {
	chains := Chains(bins, tol)
	reps := make([]Representative, len(chains))
	for i, c := range chains {
		reps[i] = c.Strongest()
	}
	return reps
}

// extend consumes every unused candidate similar to head and returns the
// largest-area one, or nil when none is similar.
func extend(head *core.Feature, candidates []*core.Feature, used []bool, tol Tolerance) *core.Feature {
	var best *core.Feature
	bestArea := 0.0

	for j := LeftRT(candidates, head.RT-tol.RT); j < len(candidates); j++ {
		if used[j] {
			continue
		}
		f := candidates[j]
		if f.RT > head.RT+tol.RT {
			break
		}
		if !Similar(head, f, tol) {
			continue
		}
		used[j] = true
		if area := hullArea(f); best == nil || area > bestArea {
			best, bestArea = f, area
		}
	}

	return best
}

// sortedByPosition returns a copy ordered by RT, then m/z.
func sortedByPosition(features []*core.Feature) []*core.Feature {
	out := make([]*core.Feature, len(features))
	copy(out, features)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RT != out[j].RT {
			return out[i].RT < out[j].RT
		}
		return out[i].MZ < out[j].MZ
	})
	return out
}
