// Package core provides the intermediate representation (IR) models and validation logic
// for ion-mobility mass spectrometry data used by ffim.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Spectrum represents a single scan with an ion-mobility value per peak.
type Spectrum struct {
	// Required fields
	RT      float64 // Retention time in seconds
	MSLevel int     // Acquisition level (1 = MS1)
	Peaks   []Peak  // Peaks; sorted by m/z once binned

	// Optional metadata
	Index int    // Position in the source file
	ID    string // Native spectrum id

	// Internal tracking
	SourceFile   string
	SourceFormat string // mzml, csv, binned
}

// Peak represents a single m/z, intensity pair with its ion mobility.
type Peak struct {
	MZ        float64
	Intensity float64
	IM        float64
}

// Point is one flattened 4D data point.
type Point struct {
	RT        float64
	MZ        float64
	Intensity float64
	IM        float64
}

// ValidationError represents an error found during spectrum validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that a spectrum meets all requirements for binning.
func (s *Spectrum) Validate() error {
	var errs []string

	if math.IsNaN(s.RT) || math.IsInf(s.RT, 0) {
		errs = append(errs, "retention time is invalid")
	}
	if s.MSLevel <= 0 {
		errs = append(errs, "ms level must be positive")
	}

	for i, peak := range s.Peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
		if math.IsNaN(peak.IM) || math.IsInf(peak.IM, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid ion mobility", i))
		}
		if peak.Intensity < 0 {
			errs = append(errs, fmt.Sprintf("peak %d intensity must be non-negative", i))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "Spectrum",
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (s *Spectrum) ArePeaksSorted() bool {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].MZ < s.Peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func (s *Spectrum) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool {
		return s.Peaks[i].MZ < s.Peaks[j].MZ
	})
}

// TotalIntensity returns the sum of all peak intensities.
func (s *Spectrum) TotalIntensity() float64 {
	total := 0.0
	for _, p := range s.Peaks {
		total += p.Intensity
	}
	return total
}

// IMRange returns the smallest and largest ion mobility among the peaks.
// ok is false for a spectrum without peaks.
func (s *Spectrum) IMRange() (lo, hi float64, ok bool) {
	if len(s.Peaks) == 0 {
		return 0, 0, false
	}
	lo, hi = s.Peaks[0].IM, s.Peaks[0].IM
	for _, p := range s.Peaks[1:] {
		lo = math.Min(lo, p.IM)
		hi = math.Max(hi, p.IM)
	}
	return lo, hi, true
}

// Points flattens the spectrum into 4D points sharing the spectrum's RT.
func (s *Spectrum) Points() []Point {
	points := make([]Point, len(s.Peaks))
	for i, p := range s.Peaks {
		points[i] = Point{RT: s.RT, MZ: p.MZ, Intensity: p.Intensity, IM: p.IM}
	}
	return points
}

// Name returns the spectrum name in format "ID@RT"
func (s *Spectrum) Name() string {
	id := s.ID
	if id == "" {
		id = fmt.Sprintf("index=%d", s.Index)
	}
	return fmt.Sprintf("%s@%.4f", id, s.RT)
}

// HasPeaks reports whether any spectrum in the sequence carries a peak.
func HasPeaks(spectra []*Spectrum) bool {
	for _, s := range spectra {
		if len(s.Peaks) > 0 {
			return true
		}
	}
	return false
}
