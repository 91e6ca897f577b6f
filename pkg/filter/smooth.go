package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// FWHM to standard deviation
const fwhmToSigma = 2.3548200450309493

// GaussSmooth convolves intensities along m/z with a Gaussian whose full width
// at half maximum is ppm parts per million of each peak's m/z. Peaks must be
// sorted by m/z.
func GaussSmooth(peaks []core.Peak, ppm float64) []core.Peak {
	out := make([]core.Peak, len(peaks))
	copy(out, peaks)

	var weights, intensities []float64
	for i, p := range peaks {
		sigma := ppm * 1e-6 * p.MZ / fwhmToSigma
		if !(sigma > 0) {
			continue
		}
		reach := 3 * sigma

		lo := i
		for lo > 0 && p.MZ-peaks[lo-1].MZ <= reach {
			lo--
		}
		hi := i
		for hi < len(peaks)-1 && peaks[hi+1].MZ-p.MZ <= reach {
			hi++
		}

		weights, intensities = weights[:0], intensities[:0]
		for j := lo; j <= hi; j++ {
			d := (peaks[j].MZ - p.MZ) / sigma
			weights = append(weights, math.Exp(-0.5*d*d))
			intensities = append(intensities, peaks[j].Intensity)
		}
		out[i].Intensity = floats.Dot(weights, intensities) / floats.Sum(weights)
	}
	return out
}

// SavitzkyGolay smooths intensities with a least-squares polynomial fit over a
// sliding window of peaks. Points closer to either end than half a frame are
// evaluated from the fit of the first or last full frame.
type SavitzkyGolay struct {
	frame   int
	weights [][]float64 // weights[p] evaluates the fit at position p of a frame
}

// NewSavitzkyGolay computes the filter coefficients for an odd frame length
func NewSavitzkyGolay(frame, order int) (*SavitzkyGolay, error) {
	if frame < 3 || frame%2 == 0 || order < 0 || order >= frame {
		return nil, fmt.Errorf("invalid Savitzky-Golay frame %d / order %d", frame, order)
	}
	half := frame / 2

	a := mat.NewDense(frame, order+1, nil)
	for i := 0; i < frame; i++ {
		z := float64(i - half)
		for k := 0; k <= order; k++ {
			a.Set(i, k, math.Pow(z, float64(k)))
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	// proj maps frame intensities onto polynomial coefficients
	var proj mat.Dense
	if err := proj.Solve(&ata, a.T()); err != nil {
		return nil, fmt.Errorf("failed to compute Savitzky-Golay coefficients: %w", err)
	}

	weights := make([][]float64, frame)
	for p := range weights {
		z := float64(p - half)
		w := make([]float64, frame)
		for k := 0; k <= order; k++ {
			floats.AddScaled(w, math.Pow(z, float64(k)), mat.Row(nil, k, &proj))
		}
		weights[p] = w
	}
	return &SavitzkyGolay{frame: frame, weights: weights}, nil
}

// Smooth returns a smoothed copy of peaks. Spectra shorter than the frame are
// returned unchanged; negative fitted intensities are clamped to zero.
func (s *SavitzkyGolay) Smooth(peaks []core.Peak) []core.Peak {
	out := make([]core.Peak, len(peaks))
	copy(out, peaks)
	n := len(peaks)
	if n < s.frame {
		return out
	}

	intensities := make([]float64, n)
	for i, p := range peaks {
		intensities[i] = p.Intensity
	}

	half := s.frame / 2
	for i := range out {
		start, pos := i-half, half
		switch {
		case i < half:
			start, pos = 0, i
		case i >= n-half:
			start, pos = n-s.frame, i-(n-s.frame)
		}
		v := floats.Dot(s.weights[pos], intensities[start:start+s.frame])
		out[i].Intensity = math.Max(v, 0)
	}
	return out
}
