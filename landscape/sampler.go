package landscape

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SampleDirections draws count independent direction vectors of the given
// dimension. Each row is standard normal, shifted to zero mean and divided
// by its own population standard deviation. A row whose deviation is
// exactly zero is left centred but unscaled.
func SampleDirections(rng *rand.Rand, dimension, count int) (*mat.Dense, error) {
	if dimension <= 0 || count <= 0 {
		return nil, ErrDegenerateInput
	}

	dirs := mat.NewDense(count, dimension, nil)
	for i := 0; i < count; i++ {
		row := dirs.RawRowView(i)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		standardize(row)
	}
	return dirs, nil
}

func standardize(row []float64) {
	mean, std := stat.PopMeanStdDev(row, nil)
	floats.AddConst(-mean, row)
	if std != 0 {
		floats.Scale(1/std, row)
	}
}

// NormalizeAndScale rescales every row of dirs in place to unit Euclidean
// norm and then to networkNorm. Zero rows are left as they are.
func NormalizeAndScale(dirs *mat.Dense, networkNorm float64) {
	norms := RowNorms(dirs)
	for i, n := range norms {
		if n == 0 {
			continue
		}
		floats.Scale(networkNorm/n, dirs.RawRowView(i))
	}
}
