package landscape

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultSampleCap bounds how many records one dataset pass reads
const DefaultSampleCap = 10000

// Aggregate is the outcome of one pass over the dataset
type Aggregate struct {
	MeanProbability float64 // mean true-class probability
	Accuracy        float64
	Count           int
	Correct         int
}

// Aggregator streams a dataset through a model
type Aggregator struct {
	// SampleCap stops a pass after this many records; zero means
	// DefaultSampleCap.
	SampleCap int
}

// Evaluate reads at most SampleCap records from cursor, subtracting mean
// (when non-nil) from each image before the forward pass. It returns the
// mean true-class probability, not a loss.
func (a *Aggregator) Evaluate(ctx context.Context, model Model, cursor Cursor, mean []float64) (Aggregate, error) {
	limit := a.SampleCap
	if limit <= 0 {
		limit = DefaultSampleCap
	}

	var sum compensatedSum
	var scratch []float64
	count, correct := 0, 0
	for count < limit && cursor.Next() {
		if count%64 == 0 {
			if err := ctx.Err(); err != nil {
				return Aggregate{}, err
			}
		}

		input, err := centre(cursor.Image(), mean, &scratch)
		if err != nil {
			return Aggregate{}, fmt.Errorf("record %d: %w", count, err)
		}
		p, ok, err := classify(model, input, cursor.Label())
		if err != nil {
			return Aggregate{}, fmt.Errorf("record %d: %w", count, err)
		}
		sum.add(p)
		if ok {
			correct++
		}
		count++
	}
	if err := cursor.Err(); err != nil {
		return Aggregate{}, fmt.Errorf("failed to read dataset: %w", err)
	}
	if count == 0 {
		return Aggregate{}, ErrEmptyDataset
	}

	return Aggregate{
		MeanProbability: sum.value() / float64(count),
		Accuracy:        float64(correct) / float64(count),
		Count:           count,
		Correct:         correct,
	}, nil
}

// LossFromProbability returns -ln(p), or NaN when p is zero.
func LossFromProbability(p float64) float64 {
	if p <= 0 || math.IsNaN(p) {
		return math.NaN()
	}
	return -math.Log(p)
}

// EvaluateSample runs one already-centred image and returns its loss and
// whether the arg-max class equals label (1 or 0).
func EvaluateSample(model Model, image []float64, label int) (float64, float64, error) {
	p, ok, err := classify(model, image, label)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		return LossFromProbability(p), 1, nil
	}
	return LossFromProbability(p), 0, nil
}

// classify returns the true-class probability and whether the prediction
// is correct.
func classify(model Model, image []float64, label int) (float64, bool, error) {
	probs, err := model.Forward(image)
	if err != nil {
		return 0, false, fmt.Errorf("forward pass failed: %w", err)
	}
	if label < 0 || label >= len(probs) {
		return 0, false, fmt.Errorf("label %d outside %d classes", label, len(probs))
	}
	return probs[label], floats.MaxIdx(probs) == label, nil
}

// centre returns image - mean using scratch, or image itself when mean is nil.
func centre(image, mean []float64, scratch *[]float64) ([]float64, error) {
	if mean == nil {
		return image, nil
	}
	if len(image) != len(mean) {
		return nil, fmt.Errorf("%w: image has %d values, mean image has %d", ErrDimensionMismatch, len(image), len(mean))
	}
	if cap(*scratch) < len(image) {
		*scratch = make([]float64, len(image))
	}
	out := (*scratch)[:len(image)]
	floats.SubTo(out, image, mean)
	return out, nil
}

// compensatedSum is a Neumaier running sum
type compensatedSum struct {
	sum, c float64
}

func (s *compensatedSum) add(v float64) {
	t := s.sum + v
	if math.Abs(s.sum) >= math.Abs(v) {
		s.c += (s.sum - t) + v
	} else {
		s.c += (v - t) + s.sum
	}
	s.sum = t
}

func (s *compensatedSum) value() float64 {
	return s.sum + s.c
}
