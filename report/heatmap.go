package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// landscapeGrid presents a result matrix as plotter.GridXYZ: columns of
// the plot follow the first direction, rows the second.
type landscapeGrid struct {
	m    mat.Matrix
	axis []float64
}

func (g landscapeGrid) Dims() (c, r int) {
	rows, cols := g.m.Dims()
	return rows, cols
}

func (g landscapeGrid) Z(c, r int) float64 { return g.m.At(c, r) }
func (g landscapeGrid) X(c int) float64    { return g.axis[c] }
func (g landscapeGrid) Y(r int) float64    { return g.axis[r] }

// SaveHeatmap renders m over axis as a heat map image. The format follows
// the file extension (png, svg, pdf). NaN cells are left transparent.
func SaveHeatmap(path, title string, m mat.Matrix, axis []float64) error {
	rows, cols := m.Dims()
	if rows != len(axis) || cols != len(axis) {
		return fmt.Errorf("matrix is %dx%d but axis has %d points", rows, cols, len(axis))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Direction 1"
	p.Y.Label.Text = "Direction 2"

	h := plotter.NewHeatMap(landscapeGrid{m: m, axis: axis}, palette.Heat(64, 1))
	if h.Min > h.Max {
		// every cell is NaN
		h.Min, h.Max = 0, 0
	}
	h.NaN = color.Transparent
	p.Add(h)

	if err := p.Save(6*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save heatmap %s: %w", path, err)
	}
	return nil
}
