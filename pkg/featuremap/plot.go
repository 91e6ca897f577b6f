// Package featuremap renders feature maps as PNG scatter plots
package featuremap

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/ChrisMcGann/ffim/pkg/core"
)

const defaultShades = 8

// WritePNG writes an RT x m/z scatter of features to path. Features are
// grouped into IM shades; features without an IM are drawn in grey.
func WritePNG(path string, features []core.MatchedFeature) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Features (%d)", len(features))
	p.X.Label.Text = "RT (s)"
	p.Y.Label.Text = "m/z"
	p.Add(plotter.NewGrid())

	groups, labels := groupByIM(features, defaultShades)
	colors := generateColors(len(groups))
	for i, pts := range groups {
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("create scatter: %w", err)
		}
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(2)
		s.GlyphStyle.Color = colors[i]
		if labels[i] == "" {
			s.GlyphStyle.Color = color.Gray{Y: 128}
		}
		p.Add(s)
		if labels[i] != "" {
			p.Legend.Add(labels[i], s)
		}
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save feature plot: %w", err)
	}
	return nil
}

// groupByIM splits features into n IM ranges plus a trailing group holding
// features without an IM. The trailing group's label is empty.
func groupByIM(features []core.MatchedFeature, n int) ([]plotter.XYs, []string) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range features {
		if f.IM != nil {
			lo = math.Min(lo, *f.IM)
			hi = math.Max(hi, *f.IM)
		}
	}

	if math.IsInf(lo, 1) {
		n = 0
	} else if hi == lo {
		n = 1
	}

	groups := make([]plotter.XYs, n+1)
	labels := make([]string, n+1)
	width := 0.0
	if n > 0 {
		width = (hi - lo) / float64(n)
	}
	for i := 0; i < n; i++ {
		labels[i] = fmt.Sprintf("IM %.3f-%.3f", lo+float64(i)*width, lo+float64(i+1)*width)
	}

	for _, f := range features {
		idx := n
		if f.IM != nil {
			idx = 0
			if width > 0 {
				idx = min(int((*f.IM-lo)/width), n-1)
			}
		}
		groups[idx] = append(groups[idx], plotter.XY{X: f.RT, Y: f.MZ})
	}
	return groups, labels
}

// generateColors creates a palette of distinct colors
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}

	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
