package cmd

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var validateFormat string

func init() {
	validateCmd.Flags().StringVar(&validateFormat, "from", "", "Input format: mzml, csv (auto-detect if not specified)")
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate input file format and contents",
	Long: `Validate that an input file is readable, that every spectrum carries an ion
mobility value per peak and that all values are finite.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	src, err := openSource(args[0], validateFormat)
	if err != nil {
		return err
	}
	defer src.Close()

	levels := make(map[int]int)
	peaks, invalid := 0, 0
	imLo, imHi := math.Inf(1), math.Inf(-1)
	for src.Next() {
		spec := src.Spectrum()
		levels[spec.MSLevel]++
		peaks += len(spec.Peaks)
		if err := spec.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid spectrum %s: %v\n", spec.Name(), err)
			invalid++
			continue
		}
		if lo, hi, ok := spec.IMRange(); ok {
			imLo = math.Min(imLo, lo)
			imHi = math.Max(imHi, hi)
		}
	}
	if err := src.Err(); err != nil {
		return fmt.Errorf("error reading input file: %w", err)
	}

	var order []int
	for level := range levels {
		order = append(order, level)
	}
	sort.Ints(order)

	fmt.Printf("File: %s\n", args[0])
	for _, level := range order {
		fmt.Printf("MS%d spectra: %s\n", level, humanize.Comma(int64(levels[level])))
	}
	fmt.Printf("Peaks: %s\n", humanize.Comma(int64(peaks)))
	if imLo <= imHi {
		fmt.Printf("Ion mobility range: %.4f - %.4f\n", imLo, imHi)
	}
	if invalid > 0 {
		return fmt.Errorf("%d invalid spectra", invalid)
	}
	fmt.Println("OK")
	return nil
}
