// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ffim",
	Short: "ffim - Ion mobility feature finder",
	Long: `ffim finds 4D features (RT, m/z, intensity, ion mobility) in ion mobility
mass spectrometry data.

Spectra are split into ion mobility slices on two grids offset by half a bin,
2D features are detected in every slice, and the per-slice results are merged
back into one feature list with an ion mobility value per feature.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file with flag values")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(validateCmd)
}

// initConfig sets up logging and reads the config file and FFIM_ environment
// variables. Explicit flags take precedence over both.
func initConfig(cmd *cobra.Command, args []string) error {
	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	viper.SetEnvPrefix("FFIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		slog.Debug("using config file", "path", viper.ConfigFileUsed())
	}

	return viper.BindPFlags(cmd.Flags())
}

// wordSepNormalizeFunc accepts underscores in flag names, e.g. --num_bins
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level '%s': %w", s, err)
	}
	return level, nil
}
