// Package featurecsv reads plain feature lists with RT, m/z and intensity columns
package featurecsv

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

// Read parses rows of RT,m/z,Intensity. The first row is a header. Extra
// columns are ignored.
func Read(r io.Reader) ([]core.RawPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var points []core.RawPoint
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read feature list: %w", err)
		}
		if line == 1 {
			continue
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("line %d: expected RT,m/z,Intensity, got %d fields", line, len(record))
		}

		var values [3]float64
		for i := range values {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid number %q: %w", line, record[i], err)
			}
			values[i] = v
		}
		points = append(points, core.RawPoint{RT: values[0], MZ: values[1], Intensity: values[2]})
	}
	return points, nil
}

// ReadFile reads the feature list at path
func ReadFile(path string) ([]core.RawPoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature list: %w", err)
	}
	defer file.Close()
	return Read(file)
}
