package filter

import (
	"sort"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// PickHighRes reduces every local intensity maximum to one centroid. The
// centroid m/z is the intensity-weighted mean of the apex and its immediate
// neighbours lying within radius of it; neighbours farther away count as zero
// intensity. Peaks must be sorted by m/z.
func PickHighRes(peaks []core.Peak, radius float64) []core.Peak {
	var picked []core.Peak
	for i, apex := range peaks {
		left, right := 0.0, 0.0
		var span []core.Peak
		if i > 0 && apex.MZ-peaks[i-1].MZ <= radius {
			left = peaks[i-1].Intensity
			span = append(span, peaks[i-1])
		}
		span = append(span, apex)
		if i < len(peaks)-1 && peaks[i+1].MZ-apex.MZ <= radius {
			right = peaks[i+1].Intensity
			span = append(span, peaks[i+1])
		}
		if apex.Intensity <= left || apex.Intensity < right {
			continue
		}
		picked = append(picked, core.Peak{MZ: weightedMZ(span), Intensity: apex.Intensity, IM: apex.IM})
	}
	return picked
}

// PickLocalMaxima groups peaks around apexes. An apex reaches minIntensity and
// exceeds the peakRadius nearest peaks on each side that lie within
// windowRadius. Apexes are visited by descending intensity (ModeIntensity) or
// ascending m/z (ModeLeftToRight); each collects the contiguous, unclaimed
// peaks within windowRadius into one peak carrying their summed intensity.
func PickLocalMaxima(peaks []core.Peak, peakRadius int, windowRadius float64, mode string, minIntensity float64) []core.Peak {
	var apexes []int
	for i, p := range peaks {
		if p.Intensity < minIntensity {
			continue
		}
		if isApex(peaks, i, peakRadius, windowRadius) {
			apexes = append(apexes, i)
		}
	}
	if mode == ModeIntensity {
		sort.SliceStable(apexes, func(a, b int) bool {
			return peaks[apexes[a]].Intensity > peaks[apexes[b]].Intensity
		})
	}

	claimed := make([]bool, len(peaks))
	var picked []core.Peak
	for _, i := range apexes {
		if claimed[i] {
			continue
		}
		lo, hi := i, i
		for lo > 0 && !claimed[lo-1] && peaks[i].MZ-peaks[lo-1].MZ <= windowRadius {
			lo--
		}
		for hi < len(peaks)-1 && !claimed[hi+1] && peaks[hi+1].MZ-peaks[i].MZ <= windowRadius {
			hi++
		}

		total := 0.0
		for j := lo; j <= hi; j++ {
			claimed[j] = true
			total += peaks[j].Intensity
		}
		picked = append(picked, core.Peak{MZ: weightedMZ(peaks[lo : hi+1]), Intensity: total, IM: peaks[i].IM})
	}
	return picked
}

func isApex(peaks []core.Peak, i, radius int, window float64) bool {
	apex := peaks[i]
	for k := 1; k <= radius; k++ {
		if j := i - k; j >= 0 && apex.MZ-peaks[j].MZ <= window && peaks[j].Intensity >= apex.Intensity {
			return false
		}
		if j := i + k; j < len(peaks) && peaks[j].MZ-apex.MZ <= window && peaks[j].Intensity > apex.Intensity {
			return false
		}
	}
	return true
}

func weightedMZ(peaks []core.Peak) float64 {
	sum, weight := 0.0, 0.0
	for _, p := range peaks {
		sum += p.MZ * p.Intensity
		weight += p.Intensity
	}
	if weight == 0 {
		return peaks[len(peaks)/2].MZ
	}
	return sum / weight
}
