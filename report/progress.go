package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tsawler/go-landscape/landscape"
	"github.com/tsawler/go-landscape/layers"
)

// ProgressBar draws a single-line progress bar that is redrawn in place
type ProgressBar struct {
	description string
	total       int
	current     int
	startTime   time.Time
	width       int
	unit        string
	metrics     map[string]float64
	out         io.Writer
}

// NewProgressBar creates a progress bar writing to stdout
func NewProgressBar(description string, total int) *ProgressBar {
	return &ProgressBar{
		description: description,
		total:       total,
		startTime:   time.Now(),
		width:       50,
		unit:        "it",
		metrics:     make(map[string]float64),
		out:         os.Stdout,
	}
}

// SetOutput redirects the bar
func (pb *ProgressBar) SetOutput(w io.Writer) {
	pb.out = w
}

// SetUnit names what the rate counts, e.g. "cell"
func (pb *ProgressBar) SetUnit(unit string) {
	pb.unit = unit
}

// Update moves the bar to step and replaces the displayed metrics
func (pb *ProgressBar) Update(step int, metrics map[string]float64) {
	pb.current = step
	pb.metrics = metrics
	pb.render()
}

// Finish completes the progress bar
func (pb *ProgressBar) Finish() {
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

// CellReporter returns an Evaluator.OnCell callback that advances the bar
// once per cell and shows the latest cell's loss and accuracy.
func (pb *ProgressBar) CellReporter() func(landscape.Cell) {
	done := 0
	return func(c landscape.Cell) {
		done++
		pb.Update(done, map[string]float64{
			"loss":     c.Loss,
			"accuracy": c.Accuracy,
		})
	}
}

func (pb *ProgressBar) render() {
	percentage := 0.0
	if pb.total > 0 {
		percentage = float64(pb.current) / float64(pb.total)
	}
	if percentage > 1.0 {
		percentage = 1.0
	}

	filled := int(percentage * float64(pb.width))
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", pb.width-filled)

	elapsed := time.Since(pb.startTime)
	var eta time.Duration
	var rate float64
	if pb.current > 0 {
		rate = float64(pb.current) / elapsed.Seconds()
		if percentage > 0 {
			eta = time.Duration(float64(elapsed)/percentage) - elapsed
		}
	}

	line := fmt.Sprintf("\r%s: %3.0f%%|%s| %d/%d [%s<%s",
		pb.description, percentage*100, bar, pb.current, pb.total,
		formatDuration(elapsed), formatDuration(eta))

	if rate > 0 {
		line += fmt.Sprintf(", %.2f%s/s", rate, pb.unit)
	}

	keys := make([]string, 0, len(pb.metrics))
	for k := range pb.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := pb.metrics[key]
		if strings.Contains(key, "accuracy") {
			line += fmt.Sprintf(", %s=%.2f%%", key, value*100)
		} else {
			line += fmt.Sprintf(", %s=%.4f", key, value)
		}
	}
	line += "]"

	fmt.Fprint(pb.out, line)
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// PrintArchitecture writes a layer-by-layer description of a model and
// marks the layers that are perturbed.
func PrintArchitecture(w io.Writer, modelName string, modelSpec *layers.ModelSpec) {
	fmt.Fprintf(w, "Model Architecture:\n%s(\n", modelName)
	for _, layer := range modelSpec.Layers {
		marker := ""
		if layer.Type.Perturbable() {
			marker = "  *"
		}
		fmt.Fprintf(w, "  %s%s\n", formatLayer(layer), marker)
	}
	fmt.Fprintf(w, ")\n\n")
	fmt.Fprintf(w, "Total parameters: %s\n", formatParameterCount(modelSpec.TotalParameters))

	var perturbable int64
	for _, layer := range modelSpec.PerturbableLayers() {
		perturbable += layer.ParameterCount
	}
	fmt.Fprintf(w, "Perturbed parameters: %s\n\n", formatParameterCount(perturbable))
}

func formatLayer(layer layers.LayerSpec) string {
	p := layer.Parameters
	switch layer.Type {
	case layers.Conv2D:
		k := layers.IntParam(p, "kernel_size", 0)
		s := layers.IntParam(p, "stride", 1)
		pad := layers.IntParam(p, "padding", 0)
		return fmt.Sprintf("(%s): Conv2d(%d, %d, kernel_size=(%d, %d), stride=(%d, %d), padding=(%d, %d), bias=%t)",
			layer.Name, layers.IntParam(p, "input_channels", 0), layers.IntParam(p, "output_channels", 0),
			k, k, s, s, pad, pad, layers.BoolParam(p, "use_bias", true))
	case layers.Dense:
		return fmt.Sprintf("(%s): Linear(in_features=%d, out_features=%d, bias=%t)",
			layer.Name, layers.IntParam(p, "input_size", 0), layers.IntParam(p, "output_size", 0),
			layers.BoolParam(p, "use_bias", true))
	case layers.MaxPool2D:
		size := layers.IntParam(p, "pool_size", 2)
		return fmt.Sprintf("(%s): MaxPool2d(kernel_size=%d, stride=%d)", layer.Name, size, layers.IntParam(p, "stride", size))
	case layers.BatchNorm:
		return fmt.Sprintf("(%s): BatchNorm(%d, eps=%g)", layer.Name, layers.IntParam(p, "num_features", 0), layers.FloatParam(p, "eps", 1e-5))
	case layers.Softmax:
		return fmt.Sprintf("(%s): Softmax(dim=%d)", layer.Name, layers.IntParam(p, "axis", -1))
	default:
		return fmt.Sprintf("(%s): %s()", layer.Name, layer.Type.String())
	}
}

// formatParameterCount formats parameter count with K/M suffixes
func formatParameterCount(count int64) string {
	if count >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(count)/1000000.0)
	} else if count >= 1000 {
		return fmt.Sprintf("%.1fK", float64(count)/1000.0)
	}
	return fmt.Sprintf("%d", count)
}
