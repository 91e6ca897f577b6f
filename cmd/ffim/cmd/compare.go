package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/ffim/pkg/compare"
	"github.com/ChrisMcGann/ffim/pkg/core"
	"github.com/ChrisMcGann/ffim/pkg/match"
	readcsv "github.com/ChrisMcGann/ffim/pkg/reader/featurecsv"
	"github.com/ChrisMcGann/ffim/pkg/writer/featurecsv"
	"github.com/ChrisMcGann/ffim/pkg/writer/featurexml"
)

var (
	// Flags for compare command
	compareInput  string
	compareRef    string
	compareOutput string
	compareRT     float64
	compareMZ     float64
)

func init() {
	compareCmd.Flags().StringVarP(&compareInput, "in", "i", "", "Found features: featureXML or RT,m/z,Intensity CSV (required)")
	compareCmd.Flags().StringVarP(&compareRef, "ref", "r", "", "Reference features: featureXML or RT,m/z,Intensity CSV (required)")
	compareCmd.Flags().StringVarP(&compareOutput, "out", "o", "", "Output prefix (required)")
	compareCmd.Flags().Float64Var(&compareRT, "rt-threshold", match.DefaultRTThreshold, "RT band for calling two features the same")
	compareCmd.Flags().Float64Var(&compareMZ, "mz-threshold", match.DefaultMZThreshold, "m/z band for calling two features the same")

	compareCmd.MarkFlagRequired("in")
	compareCmd.MarkFlagRequired("ref")
	compareCmd.MarkFlagRequired("out")
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare found features against a reference list",
	Long: `Look up every reference feature among the found features and count how many
reference features have no, one or several matches.

When the found features carry convex hulls, the best match of every reference
feature is written to <out>-common.featureXML and the unmatched reference
features to <out>-missing.featureXML. Otherwise the reference list is written to
<out>.csv, most intense first, with matched rows flagged FOUND. The counts are
written to <out>-summary.txt.

Examples:
  ffim compare -i run.featureXML -r reference.csv -o run-vs-ref`,
	RunE: runCompare,
}

// loadCoords reads a featureXML or CSV feature file
func loadCoords(path string) ([]core.Coord, error) {
	if strings.EqualFold(filepath.Ext(path), ".featurexml") {
		features, err := featurexml.ReadFile(path)
		if err != nil {
			return nil, err
		}
		coords := make([]core.Coord, len(features))
		for i, f := range features {
			coords[i] = f
		}
		return coords, nil
	}

	points, err := readcsv.ReadFile(path)
	if err != nil {
		return nil, err
	}
	coords := make([]core.Coord, len(points))
	for i, p := range points {
		coords[i] = p
	}
	return coords, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	input, err := loadCoords(compareInput)
	if err != nil {
		return fmt.Errorf("failed to load input features: %w", err)
	}
	reference, err := loadCoords(compareRef)
	if err != nil {
		return fmt.Errorf("failed to load reference features: %w", err)
	}

	hulls := compare.HasHulls(input)
	if !hulls {
		sort.SliceStable(reference, func(i, j int) bool {
			return reference[i].Abundance() > reference[j].Abundance()
		})
	}

	tol := match.Tolerance{RT: compareRT, MZ: compareMZ}
	res := compare.Compare(input, reference, tol)

	if hulls {
		if err := featurexml.WriteFile(compareOutput+"-common.featureXML", compare.AsFeatures(res.Common)); err != nil {
			return err
		}
		if err := featurexml.WriteFile(compareOutput+"-missing.featureXML", compare.AsFeatures(res.Missing)); err != nil {
			return err
		}
	} else {
		points := make([]core.RawPoint, len(reference))
		for i, r := range reference {
			points[i] = core.RawPoint{RT: r.RetentionTime(), MZ: r.MassToCharge(), Intensity: r.Abundance()}
		}
		if err := featurecsv.WriteFile(compareOutput+".csv", func(w io.Writer) error {
			return featurecsv.WriteFound(w, points, res.Found)
		}); err != nil {
			return err
		}
	}

	summary := res.Summary()
	if err := os.WriteFile(compareOutput+"-summary.txt", []byte(summary), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	fmt.Printf("Compared %d features against %d reference features\n", len(input), len(reference))
	fmt.Print(summary)
	return nil
}
