// Package report writes the artifacts of a landscape run: one CSV per
// result matrix, heat maps of each, an interactive surface of the
// best-sample loss and a JSON summary. The same data can be pushed to the
// sidecar plotting service as PlotData.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/tsawler/go-landscape/landscape"
)

// File names of the artifacts written next to the CSVs
const (
	SurfaceName = "best_loss_surface.html"
	SummaryName = "summary.json"
)

// Writer exports results into Dir
type Writer struct {
	Dir       string
	ModelName string

	// Heatmaps and Surface toggle the rendered artifacts; CSVs and the
	// summary are always written.
	Heatmaps bool
	Surface  bool
}

// NewWriter returns a writer producing every artifact
func NewWriter(dir, modelName string) *Writer {
	return &Writer{Dir: dir, ModelName: modelName, Heatmaps: true, Surface: true}
}

// Summary describes a run in summary.json
type Summary struct {
	RunID       string    `json:"run_id"`
	ModelName   string    `json:"model_name"`
	Steps       int       `json:"steps"`
	ParamCount  int       `json:"param_count"`
	NetworkNorm float64   `json:"network_norm"`
	DefaultLoss *float64  `json:"default_loss"`
	GridsCached bool      `json:"grids_cached"`
	Started     time.Time `json:"started"`
	ElapsedSec  float64   `json:"elapsed_seconds"`

	Samples int        `json:"samples"`
	Correct int        `json:"correct"`
	Best    *Reference `json:"best,omitempty"`
	Worst   *Reference `json:"worst,omitempty"`

	Files []string `json:"files"`
}

// Reference is a reference sample as reported in the summary
type Reference struct {
	Index       int     `json:"index"`
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// Write exports res and returns the summary it wrote. Paths in
// Summary.Files are relative to Dir.
func (w *Writer) Write(res *landscape.Result) (*Summary, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	s := newSummary(w.ModelName, res)
	axis := res.Axis()

	for _, nm := range res.Matrices() {
		name := nm.Name + ".csv"
		if err := writeFile(filepath.Join(w.Dir, name), func(f *os.File) error { return WriteCSV(f, nm.Matrix) }); err != nil {
			return nil, err
		}
		s.Files = append(s.Files, name)

		if w.Heatmaps {
			name := nm.Name + ".png"
			if err := SaveHeatmap(filepath.Join(w.Dir, name), nm.Name, nm.Matrix, axis); err != nil {
				return nil, err
			}
			s.Files = append(s.Files, name)
		}
	}

	if w.Surface {
		subtitle := fmt.Sprintf("run %s, %d×%d cells", res.RunID, res.Steps, res.Steps)
		if err := SaveSurface(filepath.Join(w.Dir, SurfaceName), "Best sample loss", subtitle, res.BestLoss, axis); err != nil {
			return nil, err
		}
		s.Files = append(s.Files, SurfaceName)
	}

	s.Files = append(s.Files, SummaryName)
	err := writeFile(filepath.Join(w.Dir, SummaryName), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newSummary(modelName string, res *landscape.Result) *Summary {
	s := &Summary{
		RunID:       res.RunID,
		ModelName:   modelName,
		Steps:       res.Steps,
		ParamCount:  res.ParamCount,
		NetworkNorm: res.NetworkNorm,
		GridsCached: res.GridsCached,
		Started:     res.Started,
		ElapsedSec:  res.Elapsed.Seconds(),
	}
	if !math.IsNaN(res.DefaultLoss) && !math.IsInf(res.DefaultLoss, 0) {
		loss := res.DefaultLoss
		s.DefaultLoss = &loss
	}
	if refs := res.References; refs != nil {
		s.Samples = refs.Count
		s.Correct = refs.Correct
		s.Best = &Reference{Index: refs.Best.Index, Label: refs.Best.Label, Probability: refs.Best.Probability}
		s.Worst = &Reference{Index: refs.Worst.Index, Label: refs.Worst.Label, Probability: refs.Worst.Probability}
	}
	return s
}

func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
