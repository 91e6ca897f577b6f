// Package mzml provides a streaming reader for ion-mobility mzML files
package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/net/html/charset"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

var (
	// ErrNotMzML is returned when the input holds no mzML document
	ErrNotMzML = errors.New("mzML: not an mzML document")
	// ErrNoIonMobility is returned for a spectrum with peaks but no ion mobility array
	ErrNoIonMobility = errors.New("mzML: spectrum has no ion mobility array")
	// ErrUnsupportedEncoding is returned for binary arrays the reader cannot decode
	ErrUnsupportedEncoding = errors.New("mzML: unsupported binary encoding")
)

// Controlled vocabulary accessions
const (
	accMSLevel       = "MS:1000511"
	accScanStartTime = "MS:1000016"
	accMZArray       = "MS:1000514"
	accIntensity     = "MS:1000515"
	accFloat32       = "MS:1000521"
	accFloat64       = "MS:1000523"
	accZlib          = "MS:1000574"
	accNoCompression = "MS:1000576"
	accNonStandard   = "MS:1000786"
	unitMinute       = "UO:0000031"
)

// ion mobility arrays: mean drift time, mean inverse reduced mobility,
// raw ion mobility, raw inverse reduced mobility
var imArrays = map[string]bool{
	"MS:1002816": true,
	"MS:1003006": true,
	"MS:1003007": true,
	"MS:1002893": true,
}

type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

type xmlSpectrum struct {
	Index              int       `xml:"index,attr"`
	ID                 string    `xml:"id,attr"`
	DefaultArrayLength int       `xml:"defaultArrayLength,attr"`
	CvPar              []cvParam `xml:"cvParam"`
	Scans              []struct {
		CvPar []cvParam `xml:"cvParam"`
	} `xml:"scanList>scan"`
	Arrays []binaryDataArray `xml:"binaryDataArrayList>binaryDataArray"`
}

type binaryDataArray struct {
	CvPar  []cvParam `xml:"cvParam"`
	Binary string    `xml:"binary"`
}

// Reader provides streaming access to the spectra of an mzML file
type Reader struct {
	src         io.ReadSeeker
	closer      io.Closer
	dec         *xml.Decoder
	sourceFile  string
	sawRoot     bool
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new mzML reader. The source must be seekable so the
// spectra can be read more than once.
func NewReader(r io.ReadSeeker) *Reader {
	reader := &Reader{src: r}
	reader.reset()
	return reader
}

// Open opens an mzML file for reading
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	r := NewReader(file)
	r.closer = file
	r.sourceFile = path
	return r, nil
}

func (r *Reader) reset() {
	r.dec = xml.NewDecoder(r.src)
	r.dec.CharsetReader = charset.NewReaderLabel
	r.sawRoot = false
	r.currentSpec = nil
	r.err = nil
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.currentSpec = nil
	if r.err != nil {
		return false
	}

	for {
		tok, err := r.dec.Token()
		if err == io.EOF {
			if !r.sawRoot {
				r.err = ErrNotMzML
			}
			return false
		}
		if err != nil {
			r.err = fmt.Errorf("failed to parse mzML: %w", err)
			return false
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "mzML", "indexedmzML":
			r.sawRoot = true
		case "spectrum":
			if !r.sawRoot {
				r.err = ErrNotMzML
				return false
			}
			var xs xmlSpectrum
			if err := r.dec.DecodeElement(&xs, &start); err != nil {
				r.err = fmt.Errorf("failed to decode spectrum: %w", err)
				return false
			}
			spec, err := xs.toSpectrum()
			if err != nil {
				r.err = fmt.Errorf("spectrum %q: %w", xs.ID, err)
				return false
			}
			spec.SourceFile = r.sourceFile
			r.currentSpec = spec
			return true
		}
	}
}

// Spectrum returns the current spectrum
func (r *Reader) Spectrum() *core.Spectrum {
	return r.currentSpec
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// Rewind restarts reading from the first spectrum
func (r *Reader) Rewind() error {
	if _, err := r.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind mzML: %w", err)
	}
	r.reset()
	return nil
}

// Close closes the underlying file when the reader was created by Open
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (xs *xmlSpectrum) toSpectrum() (*core.Spectrum, error) {
	spec := &core.Spectrum{
		Index:        xs.Index,
		ID:           xs.ID,
		SourceFormat: "mzml",
		MSLevel:      1,
	}

	for _, cv := range xs.CvPar {
		if cv.Accession == accMSLevel {
			level, err := strconv.Atoi(cv.Value)
			if err != nil {
				return nil, fmt.Errorf("invalid ms level %q: %w", cv.Value, err)
			}
			spec.MSLevel = level
		}
	}

	for _, scan := range xs.Scans {
		for _, cv := range scan.CvPar {
			if cv.Accession != accScanStartTime {
				continue
			}
			rt, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid scan start time %q: %w", cv.Value, err)
			}
			if cv.UnitAccession == unitMinute {
				rt *= 60
			}
			spec.RT = rt
		}
	}

	var mz, intensity, im, nonStandard []float64
	for _, arr := range xs.Arrays {
		values, kind, err := arr.decode()
		if err != nil {
			return nil, err
		}
		switch {
		case kind == accMZArray:
			mz = values
		case kind == accIntensity:
			intensity = values
		case imArrays[kind]:
			im = values
		case kind == accNonStandard:
			nonStandard = values
		}
	}
	if im == nil {
		im = nonStandard
	}

	if len(mz) != len(intensity) {
		return nil, fmt.Errorf("m/z and intensity arrays differ in length (%d/%d)", len(mz), len(intensity))
	}
	if len(mz) == 0 {
		return spec, nil
	}
	if im == nil {
		return nil, ErrNoIonMobility
	}
	if len(im) != len(mz) {
		return nil, fmt.Errorf("ion mobility array has %d values for %d peaks", len(im), len(mz))
	}

	spec.Peaks = make([]core.Peak, len(mz))
	for i := range mz {
		spec.Peaks[i] = core.Peak{MZ: mz[i], Intensity: intensity[i], IM: im[i]}
	}
	return spec, nil
}

// decode returns the values of a binary array and the accession naming its content
func (a *binaryDataArray) decode() ([]float64, string, error) {
	var kind string
	width := 0
	compressed := false
	for _, cv := range a.CvPar {
		switch {
		case cv.Accession == accFloat32:
			width = 4
		case cv.Accession == accFloat64:
			width = 8
		case cv.Accession == accZlib:
			compressed = true
		case cv.Accession == accNoCompression:
		case cv.Accession == accMZArray, cv.Accession == accIntensity, cv.Accession == accNonStandard, imArrays[cv.Accession]:
			kind = cv.Accession
		case strings.HasPrefix(cv.Name, "MS-Numpress"):
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedEncoding, cv.Name)
		}
	}
	if kind == "" {
		return nil, "", nil
	}
	if width == 0 {
		return nil, "", fmt.Errorf("%w: array %s has no float width", ErrUnsupportedEncoding, kind)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(a.Binary))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if compressed && len(raw) > 0 {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open zlib stream: %w", err)
		}
		raw, err = io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, "", fmt.Errorf("failed to inflate array: %w", err)
		}
	}

	if len(raw)%width != 0 {
		return nil, "", fmt.Errorf("array %s: %d bytes is not a multiple of %d", kind, len(raw), width)
	}
	values := make([]float64, len(raw)/width)
	for i := range values {
		if width == 4 {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		} else {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
	return values, kind, nil
}
