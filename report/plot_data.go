package report

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-landscape/landscape"
)

// PlotType represents the plots a landscape run can produce
type PlotType string

const (
	LossSurface     PlotType = "loss_surface"
	LossHeatmap     PlotType = "loss_heatmap"
	AccuracyHeatmap PlotType = "accuracy_heatmap"
)

// PlotData is the JSON document accepted by the sidecar plotting service
type PlotData struct {
	// Metadata
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`
	RunID     string    `json:"run_id,omitempty"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name  string                 `json:"name"`
	Type  string                 `json:"type"` // "surface", "heatmap"
	Data  []DataPoint            `json:"data"`
	Style map[string]interface{} `json:"style,omitempty"`
}

// DataPoint is one grid cell. Z is omitted for cells whose value is NaN.
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`
	Label string      `json:"label,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel    string                 `json:"x_axis_label"`
	YAxisLabel    string                 `json:"y_axis_label"`
	ZAxisLabel    string                 `json:"z_axis_label,omitempty"`
	XAxisScale    string                 `json:"x_axis_scale"`
	YAxisScale    string                 `json:"y_axis_scale"`
	ShowLegend    bool                   `json:"show_legend"`
	ShowGrid      bool                   `json:"show_grid"`
	Width         int                    `json:"width"`
	Height        int                    `json:"height"`
	Interactive   bool                   `json:"interactive"`
	CustomOptions map[string]interface{} `json:"custom_options,omitempty"`
}

// NewPlotData builds plot data for one result matrix. Surfaces are drawn
// over the [-1, 1] axis in both directions.
func NewPlotData(plotType PlotType, modelName string, res *landscape.Result, m mat.Matrix, zLabel string) PlotData {
	seriesType := "heatmap"
	if plotType == LossSurface {
		seriesType = "surface"
	}

	return PlotData{
		PlotType:  plotType,
		Title:     fmt.Sprintf("%s - %s", zLabel, modelName),
		Timestamp: time.Now(),
		ModelName: modelName,
		RunID:     res.RunID,
		Series: []SeriesData{{
			Name: zLabel,
			Type: seriesType,
			Data: gridPoints(m, res.Axis()),
		}},
		Config: PlotConfig{
			XAxisLabel:  "Direction 1",
			YAxisLabel:  "Direction 2",
			ZAxisLabel:  zLabel,
			XAxisScale:  "linear",
			YAxisScale:  "linear",
			ShowGrid:    true,
			Width:       800,
			Height:      600,
			Interactive: true,
		},
		Metrics: map[string]interface{}{
			"steps":        res.Steps,
			"param_count":  res.ParamCount,
			"network_norm": res.NetworkNorm,
			"default_loss": finiteOrNil(res.DefaultLoss),
		},
	}
}

// SurfacePlotData is the best-sample loss surface pushed after a run.
func SurfacePlotData(modelName string, res *landscape.Result) PlotData {
	return NewPlotData(LossSurface, modelName, res, res.BestLoss, "Best sample loss")
}

func gridPoints(m mat.Matrix, axis []float64) []DataPoint {
	rows, cols := m.Dims()
	points := make([]DataPoint, 0, rows*cols)
	for x := 0; x < rows; x++ {
		for y := 0; y < cols; y++ {
			points = append(points, DataPoint{
				X: axis[x],
				Y: axis[y],
				Z: finiteOrNil(m.At(x, y)),
			})
		}
	}
	return points
}

func finiteOrNil(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// ToJSON converts plot data to JSON string
func (pd PlotData) ToJSON() (string, error) {
	jsonData, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data to JSON: %w", err)
	}
	return string(jsonData), nil
}
