// Package pointcsv provides a streaming reader for flat 4D point tables
//
// Each row is rt,mz,intensity,im with an optional fifth ms_level column.
// Consecutive rows sharing a retention time form one spectrum. A header row is
// recognized when its first field is not a number.
package pointcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Reader provides streaming access to point CSV files
type Reader struct {
	src         io.ReadSeeker
	closer      io.Closer
	csv         *csv.Reader
	sourceFile  string
	lineNum     int
	index       int
	pending     *core.Spectrum // first row of the next spectrum
	currentSpec *core.Spectrum
	err         error
}

// NewReader creates a new point CSV reader
func NewReader(r io.ReadSeeker) *Reader {
	reader := &Reader{src: r}
	reader.reset()
	return reader
}

// Open opens a point CSV file for reading
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
	r.csv = csv.NewReader(r.src)
	r.csv.FieldsPerRecord = -1
	r.csv.TrimLeadingSpace = true
	r.csv.Comment = '#'
	r.lineNum = 0
	r.index = 0
	r.pending = nil
	r.currentSpec = nil
	r.err = nil
}

// Next advances to the next spectrum. Returns false when no more spectra or error.
func (r *Reader) Next() bool {
	r.currentSpec = nil
	if r.err != nil {
		return false
	}

	spec, err := r.readSpectrum()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentSpec = spec
	return true
}

// Spectrum returns the current spectrum
func (r *Reader) Spectrum() *core.Spectrum {
	return r.currentSpec
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// Rewind restarts reading from the first row
func (r *Reader) Rewind() error {
	if _, err := r.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind point table: %w", err)
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

// readSpectrum collects rows until the retention time changes
func (r *Reader) readSpectrum() (*core.Spectrum, error) {
	spec := r.pending
	r.pending = nil

	for {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read point table: %w", err)
		}
		r.lineNum++

		row, isHeader, err := r.parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		if isHeader {
			continue
		}

		if spec == nil {
			spec = row
			continue
		}
		if row.RT != spec.RT || row.MSLevel != spec.MSLevel {
			r.pending = row
			break
		}
		spec.Peaks = append(spec.Peaks, row.Peaks...)
	}

	if spec == nil {
		return nil, io.EOF
	}
	spec.Index = r.index
	r.index++
	return spec, nil
}

// parseRow parses one record into a single-peak spectrum
func (r *Reader) parseRow(record []string) (*core.Spectrum, bool, error) {
	if len(record) < 4 {
		return nil, false, fmt.Errorf("expected at least 4 fields, got %d", len(record))
	}

	values := make([]float64, 4)
	for i := range values {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			if r.lineNum == 1 {
				return nil, true, nil
			}
			return nil, false, fmt.Errorf("invalid number %q: %w", record[i], err)
		}
		values[i] = v
	}

	level := 1
	if len(record) > 4 && strings.TrimSpace(record[4]) != "" {
		l, err := strconv.Atoi(strings.TrimSpace(record[4]))
		if err != nil {
			return nil, false, fmt.Errorf("invalid ms level %q: %w", record[4], err)
		}
		level = l
	}

	return &core.Spectrum{
		RT:           values[0],
		MSLevel:      level,
		Peaks:        []core.Peak{{MZ: values[1], Intensity: values[2], IM: values[3]}},
		SourceFile:   r.sourceFile,
		SourceFormat: "csv",
	}, false, nil
}
