package contour

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// maxPlottedSeeds limits per-seed lines in a growth plot; the total is always drawn.
const maxPlottedSeeds = 16

// PlotGrowth saves a chart of seed volume per round to path.  The image format
// follows the file extension (png, svg, pdf, ...).  growth is indexed by round,
// then by seed, as returned by Engine.Growth.
func PlotGrowth(growth [][]int, indices []float32, path string) error {
	if len(growth) == 0 {
		return fmt.Errorf("no growth samples to plot")
	}
	p := plot.New()
	p.Title.Text = "Active contour growth"
	p.X.Label.Text = "Round"
	p.Y.Label.Text = "Volume (voxels)"

	numSeeds := len(growth[0])
	total := make(plotter.XYs, len(growth))
	for t, volumes := range growth {
		var sum int
		for _, v := range volumes {
			sum += v
		}
		total[t] = plotter.XY{X: float64(t + 1), Y: float64(sum)}
	}
	line, err := plotter.NewLine(total)
	if err != nil {
		return err
	}
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add("total", line)

	for i := 0; i < numSeeds && i < maxPlottedSeeds; i++ {
		pts := make(plotter.XYs, 0, len(growth))
		for t, volumes := range growth {
			if i < len(volumes) {
				pts = append(pts, plotter.XY{X: float64(t + 1), Y: float64(volumes[i])})
			}
		}
		seedLine, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		seedLine.Color = plotutil.Color(i)
		seedLine.Width = vg.Points(1)
		p.Add(seedLine)
		label := fmt.Sprintf("seed %d", i)
		if i < len(indices) {
			label = fmt.Sprintf("seed %g", indices[i])
		}
		p.Legend.Add(label, seedLine)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save growth plot: %w", err)
	}
	return nil
}
