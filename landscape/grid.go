package landscape

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// progressEvery is how many columns BuildGrid fills between progress calls
const progressEvery = 1000

// BuildGrid interpolates between the two rows of endpoints. Column c of
// the steps×n result runs linearly from endpoints[0][c] to endpoints[1][c],
// both inclusive; with one step it is just the start row. progress, when
// non-nil, is called periodically with the number of columns done.
func BuildGrid(endpoints mat.Matrix, steps int, progress func(done, total int)) (*mat.Dense, error) {
	rows, cols := endpoints.Dims()
	if rows != 2 || cols == 0 || steps <= 0 {
		return nil, ErrDegenerateInput
	}

	grid := mat.NewDense(steps, cols, nil)
	column := make([]float64, steps)
	for c := 0; c < cols; c++ {
		start, end := endpoints.At(0, c), endpoints.At(1, c)
		if steps == 1 {
			column[0] = start
		} else {
			floats.Span(column, start, end)
			column[steps-1] = end
		}
		grid.SetCol(c, column)

		if progress != nil && c > 0 && c%progressEvery == 0 {
			progress(c, cols)
		}
	}
	return grid, nil
}

// DirectionGrid builds the grid from +direction to -direction
func DirectionGrid(direction []float64, steps int, progress func(done, total int)) (*mat.Dense, error) {
	if len(direction) == 0 {
		return nil, ErrDegenerateInput
	}
	endpoints := mat.NewDense(2, len(direction), nil)
	endpoints.SetRow(0, direction)
	negated := endpoints.RawRowView(1)
	floats.ScaleTo(negated, -1, direction)
	return BuildGrid(endpoints, steps, progress)
}
