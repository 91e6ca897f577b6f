package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize a feature file",
	Long: `Print summary statistics about a featureXML or RT,m/z,Intensity CSV feature file:
feature count and the min, max, mean, median and standard deviation of RT, m/z,
intensity and ion mobility.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coords, err := loadCoords(args[0])
		if err != nil {
			return fmt.Errorf("failed to load features: %w", err)
		}
		return writeSummary(os.Stdout, args[0], coords)
	},
}

// columnSummary holds the statistics of one feature attribute
type columnSummary struct {
	Name   string
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
}

func summarizeColumn(name string, data []float64) columnSummary {
	must := func(fn func() (float64, error)) float64 {
		out, _ := fn()
		return out
	}

	values := stats.Float64Data(data)
	return columnSummary{
		Name:   name,
		Count:  len(data),
		Min:    must(values.Min),
		Max:    must(values.Max),
		Mean:   must(values.Mean),
		Median: must(values.Median),
		StdDev: must(values.StandardDeviation),
	}
}

func summarizeCoords(coords []core.Coord) []columnSummary {
	var rt, mz, intensity, im []float64
	for _, c := range coords {
		rt = append(rt, c.RetentionTime())
		mz = append(mz, c.MassToCharge())
		intensity = append(intensity, c.Abundance())
		if f, ok := c.(core.MatchedFeature); ok && f.IM != nil {
			im = append(im, *f.IM)
		}
	}

	columns := []columnSummary{
		summarizeColumn("RT", rt),
		summarizeColumn("m/z", mz),
		summarizeColumn("Intensity", intensity),
	}
	if len(im) > 0 {
		columns = append(columns, summarizeColumn("IM", im))
	}
	return columns
}

func writeSummary(w io.Writer, path string, coords []core.Coord) error {
	fmt.Fprintf(w, "File: %s\n", path)
	fmt.Fprintf(w, "Features: %s\n\n", humanize.Comma(int64(len(coords))))
	if len(coords) == 0 {
		return nil
	}

	fmt.Fprintf(w, "%-10s %8s %14s %14s %14s %14s %14s\n", "", "count", "min", "max", "mean", "median", "stddev")
	for _, c := range summarizeCoords(coords) {
		_, err := fmt.Fprintf(w, "%-10s %8d %14.4f %14.4f %14.4f %14.4f %14.4f\n",
			c.Name, c.Count, c.Min, c.Max, c.Mean, c.Median, c.StdDev)
		if err != nil {
			return err
		}
	}
	return nil
}
