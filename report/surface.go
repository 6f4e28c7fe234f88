package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var surfaceColors = []string{"#313695", "#4575b4", "#74add1", "#abd9e9", "#e0f3f8", "#ffffbf", "#fee090", "#fdae61", "#f46d43", "#d73027", "#a50026"}

// RenderSurface writes an interactive 3-D surface of m over axis as a
// standalone HTML page.
func RenderSurface(w io.Writer, title, subtitle string, m mat.Matrix, axis []float64) error {
	rows, cols := m.Dims()
	if rows != len(axis) || cols != len(axis) {
		return fmt.Errorf("matrix is %dx%d but axis has %d points", rows, cols, len(axis))
	}

	data := make([]opts.Chart3DData, 0, rows*cols)
	finite := make([]float64, 0, rows*cols)
	for x := 0; x < rows; x++ {
		for y := 0; y < cols; y++ {
			v := m.At(x, y)
			var z interface{} = "-"
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				z = v
				finite = append(finite, v)
			}
			data = append(data, opts.Chart3DData{Value: []interface{}{axis[x], axis[y], z}})
		}
	}

	var zMin, zMax float64
	if len(finite) > 0 {
		zMin, zMax = floats.Min(finite), floats.Max(finite)
	}

	surface := charts.NewSurface3D()
	surface.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxis3DOpts(opts.XAxis3D{Name: "Direction 1", Type: "value", Min: -1, Max: 1}),
		charts.WithYAxis3DOpts(opts.YAxis3D{Name: "Direction 2", Type: "value", Min: -1, Max: 1}),
		charts.WithZAxis3DOpts(opts.ZAxis3D{Name: "Loss", Type: "value"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(zMin),
			Max:        float32(zMax),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: surfaceColors},
		}),
	)
	surface.AddSeries("loss", data)
	// AddSeries tags the series as scatter3D
	for i := range surface.MultiSeries {
		surface.MultiSeries[i].Type = types.ChartSurface3D
	}

	return surface.Render(w)
}

// SaveSurface renders the surface to path
func SaveSurface(path, title, subtitle string, m mat.Matrix, axis []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := RenderSurface(f, title, subtitle, m, axis); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
