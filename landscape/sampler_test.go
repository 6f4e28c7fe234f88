package landscape

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestSampleDirectionsRowStatistics(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	dirs, err := SampleDirections(rng, 500, 3)
	if err != nil {
		t.Fatalf("SampleDirections failed: %v", err)
	}

	rows, cols := dirs.Dims()
	if rows != 3 || cols != 500 {
		t.Fatalf("Expected 3x500, got %dx%d", rows, cols)
	}
	for i := 0; i < rows; i++ {
		mean, std := stat.PopMeanStdDev(dirs.RawRowView(i), nil)
		if math.Abs(mean) > 1e-12 {
			t.Errorf("row %d: mean %g, expected 0", i, mean)
		}
		if math.Abs(std-1) > 1e-12 {
			t.Errorf("row %d: std %g, expected 1", i, std)
		}
	}
}

func TestSampleDirectionsDegenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, tc := range []struct{ dimension, count int }{{0, 2}, {10, 0}, {0, 0}} {
		dirs, err := SampleDirections(rng, tc.dimension, tc.count)
		if !errors.Is(err, ErrDegenerateInput) || dirs != nil {
			t.Errorf("SampleDirections(%d, %d): expected ErrDegenerateInput, got %v", tc.dimension, tc.count, err)
		}
	}
}

func TestSampleDirectionsDeterministic(t *testing.T) {
	a, _ := SampleDirections(rand.New(rand.NewPCG(7, 7)), 32, 2)
	b, _ := SampleDirections(rand.New(rand.NewPCG(7, 7)), 32, 2)
	if diff := cmp.Diff(a.RawMatrix().Data, b.RawMatrix().Data); diff != "" {
		t.Errorf("same seed produced different directions (-a +b):\n%s", diff)
	}

	c, _ := SampleDirections(rand.New(rand.NewPCG(8, 7)), 32, 2)
	if cmp.Equal(a.RawMatrix().Data, c.RawMatrix().Data) {
		t.Error("different seeds produced identical directions")
	}
}

func TestStandardizeZeroDeviation(t *testing.T) {
	row := []float64{3, 3, 3, 3}
	standardize(row)
	for i, v := range row {
		if v != 0 {
			t.Errorf("value %d: expected centred 0, got %v", i, v)
		}
	}

	single := []float64{5}
	standardize(single)
	if single[0] != 0 || math.IsNaN(single[0]) {
		t.Errorf("single value: expected 0, got %v", single[0])
	}
}

func TestNormalizeAndScale(t *testing.T) {
	dirs := mat.NewDense(3, 2, []float64{
		3, 4,
		0, 0,
		-1, 0,
	})
	NormalizeAndScale(dirs, 10)

	want := []float64{6, 8, 0, 0, -10, 0}
	if diff := cmp.Diff(want, dirs.RawMatrix().Data); diff != "" {
		t.Errorf("unexpected scaled directions (-want +got):\n%s", diff)
	}
}
