package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/ffim/pkg/featuremap"
	"github.com/ChrisMcGann/ffim/pkg/finder"
	"github.com/ChrisMcGann/ffim/pkg/match"
	"github.com/ChrisMcGann/ffim/pkg/writer/featurecsv"
	"github.com/ChrisMcGann/ffim/pkg/writer/featurexml"
	"github.com/ChrisMcGann/ffim/pkg/writer/sqlite"
)

var (
	// Flags for find command
	inputFile   string
	inputFormat string
	outputFile  string
	outputDir   string
	dbFile      string
	plotFile    string
)

const detectorCentroided = "centroided"

func init() {
	findCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Input file path (required)")
	findCmd.Flags().StringVar(&inputFormat, "from", "", "Input format: mzml, csv (auto-detect if not specified)")
	findCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output featureXML file (required)")
	findCmd.Flags().StringVarP(&outputDir, "dir", "d", ".", "Directory for the bin store and side outputs")
	findCmd.Flags().StringVar(&dbFile, "db", "", "Also write the features to this SQLite database")
	findCmd.Flags().StringVar(&plotFile, "plot", "", "Also plot the features to this PNG file")

	defaults := finder.DefaultParams()
	findCmd.Flags().IntP("num-bins", "n", defaults.NumBins, "Number of ion mobility bins")
	findCmd.Flags().Float64("mz-epsilon", defaults.MZEpsilon, "m/z window for merging points of one bin")
	findCmd.Flags().Float64("rt-threshold", defaults.Tolerance.RT, "RT band for calling two features the same")
	findCmd.Flags().Float64("mz-threshold", defaults.Tolerance.MZ, "m/z band for calling two features the same")
	findCmd.Flags().Int("ms-level", defaults.MSLevel, "MS level of the spectra to bin")
	findCmd.Flags().String("store", defaults.Store, "Bin store: sqlite, bolt, memory")
	findCmd.Flags().Int("flush-every", defaults.FlushEvery, "Spectra held in memory between flushes to the bin store")
	findCmd.Flags().Int("cache-size", defaults.CacheSize, "Bins cached in memory when loading from the store")
	findCmd.Flags().Int("workers", defaults.Workers, "Bins detected concurrently")
	findCmd.Flags().StringP("filter", "e", defaults.Filter.Noise, "Noise filter: none, gauss, sgolay")
	findCmd.Flags().StringP("pp-type", "p", defaults.Filter.Picker, "Peak picker: none, pphr, custom")
	findCmd.Flags().IntP("peak-radius", "r", defaults.Filter.PeakRadius, "Peak radius of the custom picker")
	findCmd.Flags().Float64P("window-radius", "w", defaults.Filter.WindowRadius, "Window radius of the peak pickers")
	findCmd.Flags().String("pp-mode", defaults.Filter.Mode, "Custom picker mode: int, ltr")
	findCmd.Flags().StringP("ff-type", "f", detectorCentroided, "Feature detector: centroided")
	findCmd.Flags().Int("min-spectra", defaults.Detect.MinSpectra, "Spectra a mass trace must span")
	findCmd.Flags().Int("max-missing", defaults.Detect.MaxMissing, "Spectra a mass trace may skip")
	findCmd.Flags().Float64("mz-tolerance", defaults.Detect.MZTolerance, "m/z tolerance of mass traces")
	findCmd.Flags().Bool("debug", false, "Keep the bin store and write per-bin feature files")

	findCmd.MarkFlagRequired("in")
	findCmd.MarkFlagRequired("out")
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Find ion mobility features in a data file",
	Long: `Find 4D features in an ion mobility mzML or point CSV file.

Writes the features as featureXML, their RT,m/z,im triples to features-im.csv and
the average ion mobility of every bin to bins-im.txt in --dir.

Examples:
  # Find features with default settings
  ffim find --in run.mzML --out run.featureXML

  # Use 20 bins, a Gaussian filter and the custom peak picker
  ffim find -i run.mzML -o run.featureXML -n 20 -e gauss -p custom -r 2 -w 0.02

  # Keep intermediate files and plot the result
  ffim find -i run.mzML -o run.featureXML -d work --debug --plot run.png`,
	RunE: runFind,
}

// findParams assembles the run parameters from flags, environment and config
func findParams() (finder.Params, error) {
	params := finder.DefaultParams()
	params.NumBins = viper.GetInt("num-bins")
	params.MZEpsilon = viper.GetFloat64("mz-epsilon")
	params.Tolerance = match.Tolerance{
		RT: viper.GetFloat64("rt-threshold"),
		MZ: viper.GetFloat64("mz-threshold"),
	}
	params.MSLevel = viper.GetInt("ms-level")
	params.Store = viper.GetString("store")
	params.FlushEvery = viper.GetInt("flush-every")
	params.CacheSize = viper.GetInt("cache-size")
	params.Workers = viper.GetInt("workers")
	params.Filter.Noise = viper.GetString("filter")
	params.Filter.Picker = viper.GetString("pp-type")
	params.Filter.PeakRadius = viper.GetInt("peak-radius")
	params.Filter.WindowRadius = viper.GetFloat64("window-radius")
	params.Filter.Mode = viper.GetString("pp-mode")
	params.Detect.MinSpectra = viper.GetInt("min-spectra")
	params.Detect.MaxMissing = viper.GetInt("max-missing")
	params.Detect.MZTolerance = viper.GetFloat64("mz-tolerance")
	params.Debug = viper.GetBool("debug")

	if ff := viper.GetString("ff-type"); ff != detectorCentroided {
		return params, fmt.Errorf("invalid feature detector '%s', must be %s", ff, detectorCentroided)
	}
	return params, params.Validate()
}

// runRecord is the params.yaml document of a run
type runRecord struct {
	RunID  string        `yaml:"run_id"`
	Input  string        `yaml:"input"`
	Output string        `yaml:"output"`
	Params finder.Params `yaml:"params"`
}

func runFind(cmd *cobra.Command, args []string) error {
	params, err := findParams()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	src, err := openSource(inputFile, inputFormat)
	if err != nil {
		return err
	}
	defer src.Close()

	st, err := finder.OpenStore(params.Store, outputDir, params.CacheSize)
	if err != nil {
		return fmt.Errorf("failed to open bin store: %w", err)
	}
	defer func() {
		st.Close()
		if path := finder.StorePath(params.Store, outputDir); path != "" && !params.Debug {
			os.Remove(path)
		}
	}()

	f, err := finder.New(params, st, nil, slog.Default())
	if err != nil {
		return err
	}

	fmt.Printf("Finding features in %s...\n", inputFile)
	fmt.Printf("Bins: %d\n", params.NumBins)
	fmt.Printf("Filter: %s, picker: %s\n", params.Filter.Noise, params.Filter.Picker)

	res, err := f.Run(cmd.Context(), src)
	if err != nil {
		return err
	}

	record := runRecord{RunID: res.RunID.String(), Input: inputFile, Output: outputFile, Params: params}
	paramsYAML, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "params.yaml"), paramsYAML, 0o644); err != nil {
		return fmt.Errorf("failed to write parameters: %w", err)
	}

	if err := featurecsv.WriteFile(filepath.Join(outputDir, "bins-im.txt"), func(w io.Writer) error {
		return featurecsv.WriteBinIMs(w, res.BinIMs)
	}); err != nil {
		return err
	}
	if err := featurecsv.WriteFile(filepath.Join(outputDir, "features-im.csv"), func(w io.Writer) error {
		return featurecsv.WriteFeatureIMs(w, res.Features)
	}); err != nil {
		return err
	}
	if err := featurexml.WriteFile(outputFile, res.Features); err != nil {
		return err
	}

	if params.Debug {
		if err := writeBinFeatures(outputDir, res); err != nil {
			return err
		}
	}
	if dbFile != "" {
		if err := writeDatabase(dbFile, string(paramsYAML), res); err != nil {
			return err
		}
	}
	if plotFile != "" {
		if err := featuremap.WritePNG(plotFile, res.Features); err != nil {
			return err
		}
	}

	fmt.Printf("\nFeature finding complete!\n")
	fmt.Printf("Spectra: %s binned", humanize.Comma(int64(res.Spectra)))
	if res.Skipped > 0 || res.Invalid > 0 {
		fmt.Printf(", %s skipped (ms level), %d invalid", humanize.Comma(int64(res.Skipped)), res.Invalid)
	}
	fmt.Printf("\nFeatures: %s\n", humanize.Comma(int64(len(res.Features))))
	fmt.Printf("Elapsed: %s\n", res.Elapsed)
	fmt.Printf("Output: %s\n", outputFile)

	return nil
}

// writeBinFeatures writes the deduplicated features of every detected bin
func writeBinFeatures(dir string, res *finder.Result) error {
	for pass, bins := range res.Bins {
		for bin, features := range bins {
			path := filepath.Join(dir, fmt.Sprintf("pass%d-bin%d.featureXML", pass, bin))
			if err := featurexml.WriteFile(path, match.Untagged(features)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeDatabase(path, paramsYAML string, res *finder.Result) error {
	writer, err := sqlite.NewWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	if _, err := writer.WriteRun(sqlite.Run{
		ID:         res.RunID,
		InputFile:  inputFile,
		NumBins:    res.Grid.NumBins,
		IMStart:    res.Grid.Start,
		IMEnd:      res.Grid.End,
		Parameters: paramsYAML,
	}); err != nil {
		return err
	}

	for pass := 0; pass < res.Grid.Passes(); pass++ {
		for bin := 0; bin < res.Grid.BinCount(pass); bin++ {
			if err := writer.WriteBin(sqlite.Bin{
				Pass:      pass,
				Bin:       bin,
				CenterIM:  res.Grid.Center(pass, bin),
				AverageIM: res.BinIMs.At(pass, bin),
				Points:    res.Assigned[pass][bin],
				Features:  len(res.Bins[pass][bin]),
			}); err != nil {
				return err
			}
		}
	}

	for _, f := range res.Features {
		if err := writer.WriteFeature(f); err != nil {
			return err
		}
	}

	if err := writer.Finalize(); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}
	fmt.Printf("Database: %s (%d features)\n", path, writer.Count())
	return nil
}
