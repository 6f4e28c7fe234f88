package preprocessing

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tsawler/go-landscape/vision/blob"
)

// DatumToImage converts a record's pixels to a CHW float slice. Raw byte
// pixels keep their 0..255 values; float data is copied as is; encoded
// images are decoded with p, which may be nil when no record is encoded.
func DatumToImage(d *blob.Datum, p *ImageProcessor) ([]float64, error) {
	if d.Encoded {
		if p == nil {
			return nil, fmt.Errorf("encoded record but no image processor configured")
		}
		img, err := p.DecodeBytes(d.Data)
		if err != nil {
			return nil, err
		}
		return img.Data, nil
	}

	if len(d.FloatData) > 0 {
		if n := d.Len(); n > 0 && n != len(d.FloatData) {
			return nil, fmt.Errorf("record has %d float values for geometry %dx%dx%d", len(d.FloatData), d.Channels, d.Height, d.Width)
		}
		out := make([]float64, len(d.FloatData))
		for i, v := range d.FloatData {
			out[i] = float64(v)
		}
		return out, nil
	}

	if n := d.Len(); n != len(d.Data) {
		return nil, fmt.Errorf("record has %d pixel bytes for geometry %dx%dx%d", len(d.Data), d.Channels, d.Height, d.Width)
	}
	out := make([]float64, len(d.Data))
	for i, v := range d.Data {
		out[i] = float64(v)
	}
	return out, nil
}

// DecodeBatch converts raw records concurrently, preserving order.
func DecodeBatch(ctx context.Context, records [][]byte, p *ImageProcessor, maxWorkers int) ([][]float64, []int, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	images := make([][]float64, len(records))
	labels := make([]int, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i, raw := range records {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, err := blob.UnmarshalDatum(raw)
			if err != nil {
				return fmt.Errorf("failed to decode record %d: %w", i, err)
			}
			img, err := DatumToImage(d, p)
			if err != nil {
				return fmt.Errorf("failed to process record %d: %w", i, err)
			}
			images[i] = img
			labels[i] = int(d.Label)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return images, labels, nil
}
