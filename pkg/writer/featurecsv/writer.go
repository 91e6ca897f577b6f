// Package featurecsv writes plain-text feature tables
package featurecsv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/match"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteFeatureIMs writes one RT,m/z,im row per feature. Features without an IM
// leave the column empty.
func WriteFeatureIMs(w io.Writer, features []core.MatchedFeature) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"RT", "m/z", "im"}); err != nil {
		return err
	}
	for _, f := range features {
		im := ""
		if f.IM != nil {
			im = formatFloat(*f.IM)
		}
		if err := cw.Write([]string{formatFloat(f.RT), formatFloat(f.MZ), im}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFound writes a reference list as RT,m/z,Intensity rows with a fourth
// column holding FOUND for matched items.
func WriteFound(w io.Writer, points []core.RawPoint, found []bool) error {
	if len(points) != len(found) {
		return fmt.Errorf("%d points but %d match flags", len(points), len(found))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"RT", "m/z", "Intensity", "Found"}); err != nil {
		return err
	}
	for i, p := range points {
		flag := ""
		if found[i] {
			flag = "FOUND"
		}
		row := []string{formatFloat(p.RT), formatFloat(p.MZ), formatFloat(p.Intensity), flag}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBinIMs writes the average IM of every bin, one per line, pass 0 first.
func WriteBinIMs(w io.Writer, ims match.BinIMs) error {
	bw := bufio.NewWriter(w)
	for _, pass := range ims {
		for _, im := range pass {
			if _, err := fmt.Fprintln(bw, formatFloat(im)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFile creates path and hands it to write
func WriteFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
