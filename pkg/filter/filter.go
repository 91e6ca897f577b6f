// Package filter provides noise filtering and peak picking of pseudo-spectra
package filter

import (
	"fmt"
	"strings"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Noise filters
const (
	NoiseNone   = "none"
	NoiseGauss  = "gauss"
	NoiseSGolay = "sgolay"
)

// Peak pickers
const (
	PickNone  = "none"
	PickHiRes = "hires"
	PickLocal = "local"
)

// Local picker modes
const (
	ModeIntensity   = "int"
	ModeLeftToRight = "ltr"
)

// Config holds filtering configuration
type Config struct {
	Noise        string  `yaml:"noise"`         // none, gauss or sgolay
	PPM          float64 `yaml:"ppm"`           // Gaussian width in ppm of m/z
	FrameLength  int     `yaml:"frame_length"`  // Savitzky-Golay window (odd)
	PolyOrder    int     `yaml:"poly_order"`    // Savitzky-Golay polynomial order
	Picker       string  `yaml:"picker"`        // none, hires or local
	PeakRadius   int     `yaml:"peak_radius"`   // points that must fall off on each side of an apex
	WindowRadius float64 `yaml:"window_radius"` // m/z radius collected into one picked peak
	Mode         string  `yaml:"mode"`          // int or ltr
	MinIntensity float64 `yaml:"min_intensity"` // apexes below are not picked
}

// DefaultConfig returns a configuration with no noise filter and the
// high-resolution picker
func DefaultConfig() Config {
	return Config{
		Noise:        NoiseNone,
		PPM:          20,
		FrameLength:  7,
		PolyOrder:    3,
		Picker:       PickHiRes,
		PeakRadius:   1,
		WindowRadius: 0.015,
		Mode:         ModeIntensity,
		MinIntensity: 0.1,
	}
}

// Normalize maps accepted aliases onto canonical names
func (c *Config) Normalize() {
	c.Noise = strings.ToLower(c.Noise)
	switch strings.ToLower(c.Picker) {
	case "pphr":
		c.Picker = PickHiRes
	case "custom":
		c.Picker = PickLocal
	default:
		c.Picker = strings.ToLower(c.Picker)
	}
	c.Mode = strings.ToLower(c.Mode)
	if c.Noise == "" {
		c.Noise = NoiseNone
	}
	if c.Picker == "" {
		c.Picker = PickNone
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	switch c.Noise {
	case NoiseNone, NoiseGauss, NoiseSGolay:
	default:
		return &core.ValidationError{Field: "Noise", Message: fmt.Sprintf("unknown noise filter %q", c.Noise)}
	}
	switch c.Picker {
	case PickNone, PickHiRes, PickLocal:
	default:
		return &core.ValidationError{Field: "Picker", Message: fmt.Sprintf("unknown peak picker %q", c.Picker)}
	}

	if c.Noise == NoiseGauss && !(c.PPM > 0) {
		return &core.ValidationError{Field: "PPM", Message: "must be positive"}
	}
	if c.Noise == NoiseSGolay {
		if c.FrameLength < 3 || c.FrameLength%2 == 0 {
			return &core.ValidationError{Field: "FrameLength", Message: fmt.Sprintf("must be odd and at least 3, got %d", c.FrameLength)}
		}
		if c.PolyOrder < 0 || c.PolyOrder >= c.FrameLength {
			return &core.ValidationError{Field: "PolyOrder", Message: fmt.Sprintf("must be in [0, %d), got %d", c.FrameLength, c.PolyOrder)}
		}
	}
	if c.Picker == PickLocal {
		if c.Mode != ModeIntensity && c.Mode != ModeLeftToRight {
			return &core.ValidationError{Field: "Mode", Message: fmt.Sprintf("unknown picking mode %q", c.Mode)}
		}
		if c.PeakRadius < 0 || c.WindowRadius < 0 {
			return &core.ValidationError{Field: "PeakRadius", Message: "radii must not be negative"}
		}
	}
	return nil
}

// Apply runs the configured noise filter and peak picker over a copy of every
// spectrum. The input spectra are left untouched.
func (c *Config) Apply(spectra []*core.Spectrum) ([]*core.Spectrum, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var sg *SavitzkyGolay
	if c.Noise == NoiseSGolay {
		var err error
		if sg, err = NewSavitzkyGolay(c.FrameLength, c.PolyOrder); err != nil {
			return nil, err
		}
	}

	out := make([]*core.Spectrum, len(spectra))
	for i, spec := range spectra {
		filtered := *spec
		filtered.Peaks = make([]core.Peak, len(spec.Peaks))
		copy(filtered.Peaks, spec.Peaks)
		filtered.SortPeaks()

		switch c.Noise {
		case NoiseGauss:
			filtered.Peaks = GaussSmooth(filtered.Peaks, c.PPM)
		case NoiseSGolay:
			filtered.Peaks = sg.Smooth(filtered.Peaks)
		}

		filtered.Peaks = RemoveZeroIntensityPeaks(filtered.Peaks)

		switch c.Picker {
		case PickHiRes:
			filtered.Peaks = PickHighRes(filtered.Peaks, c.WindowRadius)
		case PickLocal:
			filtered.Peaks = PickLocalMaxima(filtered.Peaks, c.PeakRadius, c.WindowRadius, c.Mode, c.MinIntensity)
		}

		// Ensure peaks are sorted after all filtering
		filtered.SortPeaks()
		out[i] = &filtered
	}
	return out, nil
}

// RemoveZeroIntensityPeaks drops peaks with no intensity
func RemoveZeroIntensityPeaks(peaks []core.Peak) []core.Peak {
	var filtered []core.Peak
	for _, peak := range peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	return filtered
}
