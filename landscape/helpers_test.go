package landscape

import (
	"fmt"
	"math"
)

// linearModel is a tiny softmax classifier: an optional "conv" layer whose
// parameters only count towards the layout, a non-perturbable layer, and a
// fully-connected layer producing class scores.
type linearModel struct {
	inputs, classes int
	params          map[string]*LayerWeights
	order           []LayerInfo
}

func newLinearModel(inputs, classes int, withConv bool) *linearModel {
	m := &linearModel{inputs: inputs, classes: classes, params: map[string]*LayerWeights{}}
	if withConv {
		m.order = append(m.order, LayerInfo{Name: "conv1", Kind: KindConvolution})
		m.params["conv1"] = &LayerWeights{Weights: []float64{0.5, -0.25}, Bias: []float64{0.1}}
	}
	m.order = append(m.order, LayerInfo{Name: "relu1", Kind: KindOther})
	m.order = append(m.order, LayerInfo{Name: "fc1", Kind: KindInnerProduct})

	w := make([]float64, inputs*classes)
	for i := range w {
		w[i] = float64(i%5)*0.3 - 0.6
	}
	b := make([]float64, classes)
	for i := range b {
		b[i] = float64(i) * 0.1
	}
	m.params["fc1"] = &LayerWeights{Weights: w, Bias: b}
	return m
}

func (m *linearModel) Layers() []LayerInfo { return m.order }

func (m *linearModel) Parameters(name string) ([]float64, []float64, error) {
	p, ok := m.params[name]
	if !ok {
		return nil, nil, fmt.Errorf("no layer %s", name)
	}
	return p.Weights, p.Bias, nil
}

func (m *linearModel) SetParameters(name string, w, b []float64) error {
	p, ok := m.params[name]
	if !ok {
		return fmt.Errorf("no layer %s", name)
	}
	if len(w) != len(p.Weights) || len(b) != len(p.Bias) {
		return fmt.Errorf("layer %s: wrong parameter sizes", name)
	}
	copy(p.Weights, w)
	copy(p.Bias, b)
	return nil
}

func (m *linearModel) Forward(image []float64) ([]float64, error) {
	if len(image) != m.inputs {
		return nil, fmt.Errorf("expected %d inputs, got %d", m.inputs, len(image))
	}
	fc := m.params["fc1"]
	scores := make([]float64, m.classes)
	maxScore := math.Inf(-1)
	for c := range scores {
		s := fc.Bias[c]
		for i, v := range image {
			s += fc.Weights[c*m.inputs+i] * v
		}
		scores[c] = s
		maxScore = math.Max(maxScore, s)
	}
	sum := 0.0
	for c := range scores {
		scores[c] = math.Exp(scores[c] - maxScore)
		sum += scores[c]
	}
	for c := range scores {
		scores[c] /= sum
	}
	return scores, nil
}

func (m *linearModel) Clone() (Model, error) {
	c := &linearModel{inputs: m.inputs, classes: m.classes, params: map[string]*LayerWeights{}}
	c.order = append(c.order, m.order...)
	for name, p := range m.params {
		c.params[name] = &LayerWeights{
			Weights: append([]float64(nil), p.Weights...),
			Bias:    append([]float64(nil), p.Bias...),
		}
	}
	return c, nil
}

// tableModel returns a fixed probability vector per record, chosen by the
// first pixel of the image.
type tableModel struct {
	table  [][]float64
	inputs [][]float64
}

func (m *tableModel) Layers() []LayerInfo { return nil }
func (m *tableModel) Parameters(string) ([]float64, []float64, error) {
	return nil, nil, nil
}
func (m *tableModel) SetParameters(string, []float64, []float64) error { return nil }
func (m *tableModel) Forward(image []float64) ([]float64, error) {
	m.inputs = append(m.inputs, append([]float64(nil), image...))
	return m.table[int(image[0])%len(m.table)], nil
}

// countingCursor yields n synthetic records and counts how many were read
type countingCursor struct {
	n, read int
	image   []float64
}

func (c *countingCursor) Next() bool {
	if c.read >= c.n {
		return false
	}
	c.read++
	c.image = []float64{float64(c.read - 1)}
	return true
}
func (c *countingCursor) Image() []float64 { return c.image }
func (c *countingCursor) Label() int       { return 0 }
func (c *countingCursor) Err() error       { return nil }
func (c *countingCursor) Close() error     { return nil }

// testSamples builds a small dataset for linearModel with the given input size
func testSamples(n, inputs, classes int) SliceDataset {
	samples := make(SliceDataset, n)
	for i := range samples {
		img := make([]float64, inputs)
		for j := range img {
			img[j] = float64((i+j)%4) - 1.5
		}
		samples[i] = Sample{Image: img, Label: i % classes}
	}
	return samples
}
