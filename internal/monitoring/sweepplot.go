package monitoring

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/hazardlink/internal/fusion"
)

// PlotSweep renders a lidar sweep as distance against angle, with the fused
// observations overlaid, and writes it to w as a PNG.
func PlotSweep(w io.Writer, sweep []fusion.LidarSample, marks []fusion.FusedObservation) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Lidar sweep (%d samples)", len(sweep))
	p.X.Label.Text = "Angle (°)"
	p.Y.Label.Text = "Distance (m)"
	p.X.Min = 0
	p.X.Max = 360

	pts := make(plotter.XYs, 0, len(sweep))
	for _, s := range sweep {
		if s.DistanceMm <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(s.AngleDegrees), Y: float64(s.DistanceMm) / 1000})
	}
	if len(pts) > 0 {
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Radius = vg.Points(1)
		scatter.GlyphStyle.Color = color.RGBA{R: 70, G: 70, B: 200, A: 255}
		p.Add(scatter)
		p.Legend.Add("returns", scatter)
	}

	fused := make(plotter.XYs, 0, len(marks))
	for _, m := range marks {
		if !m.HasDistance() {
			continue
		}
		fused = append(fused, plotter.XY{X: float64(m.AngleDegrees), Y: float64(m.DistanceMm) / 1000})
	}
	if len(fused) > 0 {
		scatter, err := plotter.NewScatter(fused)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Shape = draw.CrossGlyph{}
		scatter.GlyphStyle.Radius = vg.Points(5)
		scatter.GlyphStyle.Color = color.RGBA{R: 220, G: 30, B: 30, A: 255}
		p.Add(scatter)
		p.Legend.Add("fused", scatter)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create plot writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}
