package preprocessing

import (
	"fmt"
	"os"

	"github.com/tsawler/go-landscape/vision/blob"
)

// MeanImage is the per-pixel training mean subtracted from every input
type MeanImage struct {
	Channels int
	Height   int
	Width    int
	Data     []float64
}

// LoadMeanImage reads a serialized Blob and reshapes it to shape
// (channels, height, width). The blob must hold exactly that many values.
func LoadMeanImage(path string, shape []int) (*MeanImage, error) {
	if len(shape) != 3 {
		return nil, fmt.Errorf("mean image shape must be [channels, height, width], got %v", shape)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mean image: %w", err)
	}
	b, err := blob.UnmarshalBlob(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mean image %s: %w", path, err)
	}

	values := b.Values()
	if want := shape[0] * shape[1] * shape[2]; len(values) != want {
		return nil, fmt.Errorf("mean image %s has %d values, expected %d for shape %v", path, len(values), want, shape)
	}

	return &MeanImage{
		Channels: shape[0],
		Height:   shape[1],
		Width:    shape[2],
		Data:     values,
	}, nil
}

// Len returns channels*height*width
func (m *MeanImage) Len() int {
	return len(m.Data)
}

// Subtract removes the mean from img in place.
func (m *MeanImage) Subtract(img []float64) error {
	if len(img) != len(m.Data) {
		return fmt.Errorf("image has %d values, mean image has %d", len(img), len(m.Data))
	}
	for i, v := range m.Data {
		img[i] -= v
	}
	return nil
}

// Save writes the mean as a legacy 4-d blob (1, C, H, W).
func (m *MeanImage) Save(path string) error {
	data := make([]float32, len(m.Data))
	for i, v := range m.Data {
		data[i] = float32(v)
	}
	b := &blob.Blob{
		Num:      1,
		Channels: int32(m.Channels),
		Height:   int32(m.Height),
		Width:    int32(m.Width),
		Data:     data,
	}
	if err := os.WriteFile(path, b.Marshal(), 0644); err != nil {
		return fmt.Errorf("failed to write mean image: %w", err)
	}
	return nil
}

// MeanAccumulator builds a MeanImage from a stream of images
type MeanAccumulator struct {
	shape []int
	sum   []float64
	count int
}

// NewMeanAccumulator starts an empty running mean for shape (C, H, W)
func NewMeanAccumulator(shape []int) *MeanAccumulator {
	return &MeanAccumulator{
		shape: append([]int(nil), shape...),
		sum:   make([]float64, shape[0]*shape[1]*shape[2]),
	}
}

// Add folds one image into the running sum
func (a *MeanAccumulator) Add(img []float64) error {
	if len(img) != len(a.sum) {
		return fmt.Errorf("image has %d values, expected %d", len(img), len(a.sum))
	}
	for i, v := range img {
		a.sum[i] += v
	}
	a.count++
	return nil
}

// Mean returns the mean of all images added so far
func (a *MeanAccumulator) Mean() (*MeanImage, error) {
	if a.count == 0 {
		return nil, fmt.Errorf("no images accumulated")
	}
	data := make([]float64, len(a.sum))
	for i, v := range a.sum {
		data[i] = v / float64(a.count)
	}
	return &MeanImage{Channels: a.shape[0], Height: a.shape[1], Width: a.shape[2], Data: data}, nil
}
