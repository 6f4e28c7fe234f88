package landscape

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Cell is the evaluation of one grid point
type Cell struct {
	X, Y         int
	Loss         float64 // NaN when the mean true-class probability is zero
	Accuracy     float64
	BestLoss     float64
	BestCorrect  float64
	WorstLoss    float64
	WorstCorrect float64
}

// Result holds the six steps×steps matrices of a run, indexed [x][y], and
// what produced them.
type Result struct {
	RunID       string
	Steps       int
	ParamCount  int
	NetworkNorm float64
	DefaultLoss float64
	References  *References
	Directions  *mat.Dense
	GridsCached bool

	Loss         *mat.Dense
	Accuracy     *mat.Dense
	BestLoss     *mat.Dense
	BestCorrect  *mat.Dense
	WorstLoss    *mat.Dense
	WorstCorrect *mat.Dense

	Started time.Time
	Elapsed time.Duration
}

// NamedMatrix pairs a result matrix with its export name
type NamedMatrix struct {
	Name   string
	Matrix *mat.Dense
}

func newResult(steps int) *Result {
	return &Result{
		Steps:        steps,
		Loss:         mat.NewDense(steps, steps, nil),
		Accuracy:     mat.NewDense(steps, steps, nil),
		BestLoss:     mat.NewDense(steps, steps, nil),
		BestCorrect:  mat.NewDense(steps, steps, nil),
		WorstLoss:    mat.NewDense(steps, steps, nil),
		WorstCorrect: mat.NewDense(steps, steps, nil),
	}
}

// set writes one cell. Concurrent calls must use distinct coordinates.
func (r *Result) set(c Cell) {
	r.Loss.Set(c.X, c.Y, c.Loss)
	r.Accuracy.Set(c.X, c.Y, c.Accuracy)
	r.BestLoss.Set(c.X, c.Y, c.BestLoss)
	r.BestCorrect.Set(c.X, c.Y, c.BestCorrect)
	r.WorstLoss.Set(c.X, c.Y, c.WorstLoss)
	r.WorstCorrect.Set(c.X, c.Y, c.WorstCorrect)
}

// Matrices lists the result matrices under their export names
func (r *Result) Matrices() []NamedMatrix {
	return []NamedMatrix{
		{"loss", r.Loss},
		{"accuracy", r.Accuracy},
		{"best_loss", r.BestLoss},
		{"best_accuracy", r.BestCorrect},
		{"worst_loss", r.WorstLoss},
		{"worst_accuracy", r.WorstCorrect},
	}
}

// Axis returns the plot coordinates of the grid steps, evenly spaced over
// [-1, 1].
func (r *Result) Axis() []float64 {
	return Axis(r.Steps)
}

// Axis returns steps values evenly spaced over [-1, 1]
func Axis(steps int) []float64 {
	switch {
	case steps <= 0:
		return nil
	case steps == 1:
		return []float64{-1}
	}
	return floats.Span(make([]float64, steps), -1, 1)
}
