package landscape

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RowNorms returns the Euclidean norm of each row of m
func RowNorms(m mat.Matrix) []float64 {
	rows, _ := m.Dims()
	norms := make([]float64, rows)
	var row []float64
	for i := range norms {
		row = mat.Row(row, i, m)
		norms[i] = floats.Norm(row, 2)
	}
	return norms
}

// ScalarNorm returns the number of perturbable parameters in model and
// their global Frobenius norm. Squares are accumulated layer by layer
// without building a flat copy of the parameters.
func ScalarNorm(model Model) (int, float64, error) {
	count := 0
	sumSquares := 0.0
	for _, info := range model.Layers() {
		if !info.Kind.Perturbable() {
			continue
		}
		w, b, err := model.Parameters(info.Name)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to read parameters of layer %s: %w", info.Name, err)
		}
		sumSquares += floats.Dot(w, w) + floats.Dot(b, b)
		count += len(w) + len(b)
	}
	return count, math.Sqrt(sumSquares), nil
}
