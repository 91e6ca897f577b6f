// Package featurexml reads and writes feature maps in the featureXML format
package featurexml

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/net/html/charset"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

// Name of the userParam carrying a feature's ion mobility
const imParam = "IM"

// ErrNotFeatureXML is returned when the input holds no feature map
var ErrNotFeatureXML = errors.New("featureXML: not a feature map")

type featureMap struct {
	XMLName     xml.Name    `xml:"featureMap"`
	Version     string      `xml:"version,attr"`
	ID          string      `xml:"id,attr,omitempty"`
	FeatureList featureList `xml:"featureList"`
}

type featureList struct {
	Count    int          `xml:"count,attr"`
	Features []xmlFeature `xml:"feature"`
}

type xmlFeature struct {
	ID             string       `xml:"id,attr"`
	Positions      []position   `xml:"position"`
	Intensity      float64      `xml:"intensity"`
	Qualities      []position   `xml:"quality"`
	OverallQuality float64      `xml:"overallquality"`
	Charge         int          `xml:"charge"`
	ConvexHulls    []convexHull `xml:"convexhull"`
	UserParams     []userParam  `xml:"UserParam"`
}

type position struct {
	Dim   int     `xml:"dim,attr"`
	Value float64 `xml:",chardata"`
}

type convexHull struct {
	Nr     int     `xml:"nr,attr"`
	Points []point `xml:"pt"`
}

type point struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
}

type userParam struct {
	Type  string `xml:"type,attr"`
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Write writes features as a feature map. Features carrying an IM value get
// it as a userParam.
func Write(w io.Writer, features []core.MatchedFeature) error {
	fm := featureMap{
		Version:     "1.9",
		FeatureList: featureList{Count: len(features)},
	}

	for _, f := range features {
		xf := xmlFeature{
			ID:             fmt.Sprintf("f_%d", f.Key()),
			Positions:      []position{{Dim: 0, Value: f.RT}, {Dim: 1, Value: f.MZ}},
			Intensity:      f.Intensity,
			Qualities:      []position{{Dim: 0}, {Dim: 1}},
			OverallQuality: f.Quality,
			Charge:         f.Charge,
		}

		hull := openRing(f.Hull)
		if len(hull) > 0 {
			ch := convexHull{Points: make([]point, len(hull))}
			for i, p := range hull {
				ch.Points[i] = point{X: p[0], Y: p[1]}
			}
			xf.ConvexHulls = []convexHull{ch}
		}

		if f.IM != nil {
			xf.UserParams = []userParam{{
				Type:  "float",
				Name:  imParam,
				Value: strconv.FormatFloat(*f.IM, 'g', -1, 64),
			}}
		}
		fm.FeatureList.Features = append(fm.FeatureList.Features, xf)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(bw)
	enc.Indent("", "  ")
	if err := enc.Encode(fm); err != nil {
		return fmt.Errorf("failed to encode feature map: %w", err)
	}
	if _, err := bw.WriteString("\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes features to path
func WriteFile(path string, features []core.MatchedFeature) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := Write(file, features); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Read parses a feature map. The IM of a feature is taken from its IM
// userParam and left nil when there is none.
func Read(r io.Reader) ([]core.MatchedFeature, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var fm featureMap
	if err := dec.Decode(&fm); err != nil {
		if err == io.EOF {
			return nil, ErrNotFeatureXML
		}
		var unexpected xml.UnmarshalError
		if errors.As(err, &unexpected) {
			return nil, fmt.Errorf("%w: %v", ErrNotFeatureXML, err)
		}
		return nil, fmt.Errorf("failed to parse featureXML: %w", err)
	}

	features := make([]core.MatchedFeature, 0, len(fm.FeatureList.Features))
	for _, xf := range fm.FeatureList.Features {
		f := &core.Feature{
			Intensity: xf.Intensity,
			Charge:    xf.Charge,
			Quality:   xf.OverallQuality,
		}
		for _, p := range xf.Positions {
			switch p.Dim {
			case 0:
				f.RT = p.Value
			case 1:
				f.MZ = p.Value
			}
		}
		if len(xf.ConvexHulls) > 0 {
			for _, p := range xf.ConvexHulls[0].Points {
				f.Hull = append(f.Hull, orb.Point{p.X, p.Y})
			}
		}
		if id, ok := strings.CutPrefix(xf.ID, "f_"); ok {
			if v, err := strconv.ParseUint(id, 10, 64); err == nil {
				f.ID = v
			}
		}

		mf := core.MatchedFeature{Feature: f}
		for _, up := range xf.UserParams {
			if up.Name != imParam {
				continue
			}
			v, err := strconv.ParseFloat(up.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("feature %s: invalid IM %q: %w", xf.ID, up.Value, err)
			}
			mf.IM = &v
		}
		features = append(features, mf)
	}
	return features, nil
}

// ReadFile reads the feature map at path
func ReadFile(path string) ([]core.MatchedFeature, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feature file: %w", err)
	}
	defer file.Close()
	return Read(file)
}

// openRing drops the closing point of a closed ring
func openRing(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}
