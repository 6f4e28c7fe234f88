package landscape

import (
	"context"
	"fmt"
)

// Reference is a fixed sample tracked at every grid cell. Image is already
// mean-subtracted.
type Reference struct {
	Image       []float64
	Label       int
	Probability float64
	Index       int
}

// References are the best and worst correctly classified samples of the
// unperturbed model.
type References struct {
	Best    Reference
	Worst   Reference
	Count   int
	Correct int
}

// SelectReferences scans up to limit records (zero means DefaultSampleCap)
// and keeps the correctly classified samples with the highest and lowest
// predicted probability. Ties keep the earlier record.
func SelectReferences(ctx context.Context, model Model, cursor Cursor, mean []float64, limit int) (*References, error) {
	if limit <= 0 {
		limit = DefaultSampleCap
	}

	refs := &References{}
	var scratch []float64
	found := false
	for refs.Count < limit && cursor.Next() {
		if refs.Count%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		input, err := centre(cursor.Image(), mean, &scratch)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", refs.Count, err)
		}
		label := cursor.Label()
		p, ok, err := classify(model, input, label)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", refs.Count, err)
		}
		if ok {
			refs.Correct++
			if !found || p > refs.Best.Probability {
				refs.Best = newReference(input, label, p, refs.Count)
			}
			if !found || p < refs.Worst.Probability {
				refs.Worst = newReference(input, label, p, refs.Count)
			}
			found = true
		}
		refs.Count++
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	if refs.Count == 0 {
		return nil, ErrEmptyDataset
	}
	if !found {
		return nil, fmt.Errorf("%w: none of %d samples is classified correctly", ErrDegenerateInput, refs.Count)
	}
	return refs, nil
}

func newReference(image []float64, label int, p float64, index int) Reference {
	return Reference{
		Image:       append([]float64(nil), image...),
		Label:       label,
		Probability: p,
		Index:       index,
	}
}
