package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisMcGann/ffim/pkg/finder"
	"github.com/ChrisMcGann/ffim/pkg/reader/mzml"
	"github.com/ChrisMcGann/ffim/pkg/reader/pointcsv"
)

type spectrumSource interface {
	finder.Source
	io.Closer
}

// detectFormat maps a file extension to an input format
func detectFormat(path, format string) (string, error) {
	if format != "" {
		format = strings.ToLower(format)
		if format != "mzml" && format != "csv" {
			return "", fmt.Errorf("invalid input format '%s', must be mzml or csv", format)
		}
		return format, nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mzml":
		return "mzml", nil
	case ".csv", ".txt":
		return "csv", nil
	}
	return "", fmt.Errorf("cannot auto-detect format from extension '%s', please specify --from", ext)
}

func openSource(path, format string) (spectrumSource, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file does not exist: %s", path)
	}

	format, err := detectFormat(path, format)
	if err != nil {
		return nil, err
	}
	if format == "mzml" {
		r, err := mzml.Open(path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := pointcsv.Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}
