package landscape

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/mat"
)

func TestBuildGridSingleStep(t *testing.T) {
	endpoints := mat.NewDense(2, 3, []float64{0.1, -2, 7, 5, 5, 5})
	grid, err := BuildGrid(endpoints, 1, nil)
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}
	if diff := cmp.Diff([]float64{0.1, -2, 7}, grid.RawMatrix().Data); diff != "" {
		t.Errorf("steps=1 should return the start row (-want +got):\n%s", diff)
	}
}

func TestBuildGridTwoSteps(t *testing.T) {
	data := []float64{0.1, -2.7, 1e-9, 0.3, 3.3, -1e9}
	grid, err := BuildGrid(mat.NewDense(2, 3, data), 2, nil)
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}
	if diff := cmp.Diff(data, grid.RawMatrix().Data); diff != "" {
		t.Errorf("steps=2 should return [start, end] exactly (-want +got):\n%s", diff)
	}
}

func TestBuildGridMonotonic(t *testing.T) {
	endpoints := mat.NewDense(2, 3, []float64{
		1, -4, 2,
		-1, 4, 2,
	})
	grid, err := BuildGrid(endpoints, 5, nil)
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}

	want := mat.NewDense(5, 3, []float64{
		1, -4, 2,
		0.5, -2, 2,
		0, 0, 2,
		-0.5, 2, 2,
		-1, 4, 2,
	})
	if diff := cmp.Diff(want.RawMatrix().Data, grid.RawMatrix().Data, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}

	for r := 1; r < 5; r++ {
		if !(grid.At(r, 0) < grid.At(r-1, 0)) || !(grid.At(r, 1) > grid.At(r-1, 1)) {
			t.Errorf("row %d breaks monotonic interpolation", r)
		}
	}
}

func TestBuildGridDegenerate(t *testing.T) {
	tests := []struct {
		name      string
		endpoints mat.Matrix
		steps     int
	}{
		{"zero steps", mat.NewDense(2, 2, nil), 0},
		{"one row", mat.NewDense(1, 2, nil), 3},
		{"three rows", mat.NewDense(3, 2, nil), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := BuildGrid(tt.endpoints, tt.steps, nil)
			if !errors.Is(err, ErrDegenerateInput) || grid != nil {
				t.Errorf("Expected ErrDegenerateInput, got %v", err)
			}
		})
	}
}

func TestBuildGridProgress(t *testing.T) {
	endpoints := mat.NewDense(2, 2500, nil)
	var calls []int
	_, err := BuildGrid(endpoints, 3, func(done, total int) {
		if total != 2500 {
			t.Errorf("Expected total 2500, got %d", total)
		}
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatalf("BuildGrid failed: %v", err)
	}
	if diff := cmp.Diff([]int{1000, 2000}, calls); diff != "" {
		t.Errorf("progress calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDirectionGrid(t *testing.T) {
	direction := []float64{2, -6}
	grid, err := DirectionGrid(direction, 3, nil)
	if err != nil {
		t.Fatalf("DirectionGrid failed: %v", err)
	}
	want := []float64{
		2, -6,
		0, 0,
		-2, 6,
	}
	if diff := cmp.Diff(want, grid.RawMatrix().Data); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	if direction[0] != 2 {
		t.Error("DirectionGrid modified its input")
	}

	if _, err := DirectionGrid(nil, 3, nil); !errors.Is(err, ErrDegenerateInput) {
		t.Errorf("Expected ErrDegenerateInput for empty direction, got %v", err)
	}
}
