// Package plots renders the mappability summaries as PNG images.
package plots

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"maptrack/internal/mapdiff"
)

const (
	width  = 10 * vg.Inch
	height = 6 * vg.Inch
)

// DistributionFile and ChangesFile name the images inside an output dir.
func DistributionFile(dir string) string {
	return filepath.Join(dir, "mappability_distribution.png")
}

func ChangesFile(dir, comparison string) string {
	return filepath.Join(dir, "mappability_changes_"+comparison+".png")
}

// Distribution draws one density curve per track.
func Distribution(path string, tracks []mapdiff.TrackStats) error {
	p := plot.New()
	p.Title.Text = "Distribution of Mappability Scores"
	p.X.Label.Text = "Mappability Score"
	p.Y.Label.Text = "Density"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var lines []interface{}
	for i := range tracks {
		t := &tracks[i]
		if t.Hist.Total() == 0 {
			continue
		}
		xys := make(plotter.XYs, len(t.Hist.Counts))
		for b := range t.Hist.Counts {
			xys[b].X = t.Hist.Center(b)
			xys[b].Y = t.Hist.Density(b)
		}
		lines = append(lines, t.Key+"-mers", xys)
	}
	if len(lines) > 0 {
		if err := plotutil.AddLines(p, lines...); err != nil {
			return fmt.Errorf("distribution plot: %w", err)
		}
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Changes draws the histogram of per-base differences of one comparison.
func Changes(path string, c *mapdiff.Comparison) error {
	p := plot.New()
	p.Title.Text = "Mappability Changes: " + c.Name
	p.X.Label.Text = "Mappability Score Difference"
	p.Y.Label.Text = "Count"
	p.Add(plotter.NewGrid())

	w := c.Hist.Width()
	h := &plotter.Histogram{
		Bins:      make([]plotter.HistogramBin, len(c.Hist.Counts)),
		Width:     w,
		FillColor: plotutil.Color(0),
		LineStyle: plotter.DefaultLineStyle,
	}
	for i, n := range c.Hist.Counts {
		lo := c.Hist.Min + float64(i)*w
		h.Bins[i] = plotter.HistogramBin{Min: lo, Max: lo + w, Weight: float64(n)}
	}
	p.Add(h)
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
