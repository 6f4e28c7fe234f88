package landscape

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func TestRowNormsUnitVectors(t *testing.T) {
	m := mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	if diff := cmp.Diff([]float64{1, 1, 1}, RowNorms(m)); diff != "" {
		t.Errorf("RowNorms mismatch (-want +got):\n%s", diff)
	}
}

func TestRowNorms(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{3, 4, 0, -2})
	if diff := cmp.Diff([]float64{5, 2}, RowNorms(m)); diff != "" {
		t.Errorf("RowNorms mismatch (-want +got):\n%s", diff)
	}
}

// layeredModel exposes fixed parameters in a chosen layer order
type layeredModel struct {
	tableModel
	order  []LayerInfo
	params map[string]LayerWeights
}

func (m *layeredModel) Layers() []LayerInfo { return m.order }
func (m *layeredModel) Parameters(name string) ([]float64, []float64, error) {
	p := m.params[name]
	return p.Weights, p.Bias, nil
}

func TestScalarNormOrderInvariant(t *testing.T) {
	params := map[string]LayerWeights{
		"a": {Weights: []float64{1, 2, 3}, Bias: []float64{4}},
		"b": {Weights: []float64{-5, 6}, Bias: []float64{7, 8}},
		"c": {Weights: []float64{9}, Bias: nil},
	}
	forward := &layeredModel{params: params, order: []LayerInfo{
		{"a", KindConvolution}, {"x", KindOther}, {"b", KindInnerProduct}, {"c", KindInnerProduct},
	}}
	reversed := &layeredModel{params: params, order: []LayerInfo{
		{"c", KindInnerProduct}, {"b", KindInnerProduct}, {"x", KindOther}, {"a", KindConvolution},
	}}

	n1, norm1, err := ScalarNorm(forward)
	if err != nil {
		t.Fatalf("ScalarNorm failed: %v", err)
	}
	n2, norm2, err := ScalarNorm(reversed)
	if err != nil {
		t.Fatalf("ScalarNorm failed: %v", err)
	}

	// 1+4+9+16+25+36+49+64+81 = 285
	if n1 != 9 || n2 != 9 {
		t.Errorf("Expected 9 parameters, got %d and %d", n1, n2)
	}
	if norm1 != math.Sqrt(285) || norm2 != norm1 {
		t.Errorf("Expected norm %v in both orders, got %v and %v", math.Sqrt(285), norm1, norm2)
	}

	snap, err := Capture(forward)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	n3, norm3 := snap.Norm()
	if n3 != 9 || norm3 != norm1 {
		t.Errorf("Snapshot norm (%d, %v) differs from ScalarNorm (%d, %v)", n3, norm3, n1, norm1)
	}
}
