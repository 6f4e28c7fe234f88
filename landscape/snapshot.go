package landscape

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LayerWeights holds one layer's weights and bias
type LayerWeights struct {
	Weights []float64
	Bias    []float64
}

// Snapshot is the unperturbed baseline of a model's perturbable
// parameters. It is never modified after Capture and is safe to share
// between goroutines.
type Snapshot struct {
	layout *Layout
	layers map[string]LayerWeights
}

// Capture copies the current parameters of every perturbable layer.
func Capture(model Model) (*Snapshot, error) {
	s := &Snapshot{
		layout: &Layout{},
		layers: make(map[string]LayerWeights),
	}
	for _, info := range model.Layers() {
		if !info.Kind.Perturbable() {
			continue
		}
		w, b, err := model.Parameters(info.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to capture layer %s: %w", info.Name, err)
		}
		if _, dup := s.layers[info.Name]; dup {
			return nil, fmt.Errorf("layer %s appears twice", info.Name)
		}
		s.layers[info.Name] = LayerWeights{
			Weights: append([]float64(nil), w...),
			Bias:    append([]float64(nil), b...),
		}
		s.layout.add(info.Name, len(w), len(b))
	}
	return s, nil
}

// Layout returns the parameter layout the snapshot was captured with
func (s *Snapshot) Layout() *Layout {
	return s.layout
}

// Baseline returns a copy of a layer's captured parameters
func (s *Snapshot) Baseline(layer string) (LayerWeights, bool) {
	lw, ok := s.layers[layer]
	if !ok {
		return LayerWeights{}, false
	}
	return LayerWeights{
		Weights: append([]float64(nil), lw.Weights...),
		Bias:    append([]float64(nil), lw.Bias...),
	}, true
}

// Norm returns the parameter count and Frobenius norm of the baseline
func (s *Snapshot) Norm() (int, float64) {
	sumSquares := 0.0
	for _, name := range s.layout.layers {
		lw := s.layers[name]
		sumSquares += floats.Dot(lw.Weights, lw.Weights) + floats.Dot(lw.Bias, lw.Bias)
	}
	return s.layout.size, math.Sqrt(sumSquares)
}

// Apply sets every perturbable layer of model to baseline + a + b, taking
// each layer's slice of a and b from the layout. The model's previous
// state is ignored, so repeated calls never accumulate.
func (s *Snapshot) Apply(model Model, a, b []float64) error {
	if len(a) != s.layout.size || len(b) != s.layout.size {
		return fmt.Errorf("%w: vectors have %d and %d values, layout has %d", ErrDimensionMismatch, len(a), len(b), s.layout.size)
	}
	for i, name := range s.layout.layers {
		ws, bs := s.layout.slotsFor(i)
		lw := s.layers[name]
		weights := perturb(lw.Weights, a[ws.Offset:ws.Offset+ws.Length], b[ws.Offset:ws.Offset+ws.Length])
		bias := perturb(lw.Bias, a[bs.Offset:bs.Offset+bs.Length], b[bs.Offset:bs.Offset+bs.Length])
		if err := model.SetParameters(name, weights, bias); err != nil {
			return fmt.Errorf("failed to set parameters of layer %s: %w", name, err)
		}
	}
	return nil
}

// Restore writes the baseline back into model
func (s *Snapshot) Restore(model Model) error {
	for _, name := range s.layout.layers {
		lw := s.layers[name]
		if err := model.SetParameters(name, lw.Weights, lw.Bias); err != nil {
			return fmt.Errorf("failed to restore layer %s: %w", name, err)
		}
	}
	return nil
}

func perturb(base, a, b []float64) []float64 {
	out := make([]float64, len(base))
	floats.AddTo(out, base, a)
	floats.Add(out, b)
	return out
}
