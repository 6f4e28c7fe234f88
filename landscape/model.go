package landscape

import "context"

// LayerKind classifies layers for perturbation
type LayerKind int

const (
	KindOther LayerKind = iota
	KindConvolution
	KindInnerProduct
)

func (k LayerKind) String() string {
	switch k {
	case KindConvolution:
		return "Convolution"
	case KindInnerProduct:
		return "InnerProduct"
	default:
		return "Other"
	}
}

// Perturbable reports whether layers of this kind take part in perturbation.
func (k LayerKind) Perturbable() bool {
	return k == KindConvolution || k == KindInnerProduct
}

// LayerInfo identifies one layer of a Model
type LayerInfo struct {
	Name string
	Kind LayerKind
}

// Model is the forward-pass oracle whose parameters are perturbed.
// Parameters and SetParameters are only called for perturbable layers;
// SetParameters must copy the slices it is given.
type Model interface {
	Layers() []LayerInfo
	Parameters(name string) (weights, bias []float64, err error)
	SetParameters(name string, weights, bias []float64) error
	// Forward returns per-class probabilities for one image.
	Forward(image []float64) ([]float64, error)
}

// Cloner is implemented by models that can produce an independent copy,
// which parallel evaluation requires.
type Cloner interface {
	Clone() (Model, error)
}

// Cursor walks a dataset once in its native order. Image may return a
// shared buffer that callers must not modify.
type Cursor interface {
	Next() bool
	Image() []float64
	Label() int
	Err() error
	Close() error
}

// Dataset opens fresh cursors positioned at the first record.
type Dataset interface {
	Open(ctx context.Context) (Cursor, error)
}

// DatasetFunc adapts a function to the Dataset interface.
type DatasetFunc func(ctx context.Context) (Cursor, error)

// Open calls f(ctx).
func (f DatasetFunc) Open(ctx context.Context) (Cursor, error) {
	return f(ctx)
}

// Sample is one labelled image
type Sample struct {
	Image []float64
	Label int
}

// SliceDataset is an in-memory Dataset
type SliceDataset []Sample

// Open returns a cursor over the samples
func (s SliceDataset) Open(ctx context.Context) (Cursor, error) {
	return &sliceCursor{samples: s, pos: -1}, nil
}

type sliceCursor struct {
	samples []Sample
	pos     int
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.samples) {
		c.pos = len(c.samples)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Image() []float64 { return c.samples[c.pos].Image }
func (c *sliceCursor) Label() int       { return c.samples[c.pos].Label }
func (c *sliceCursor) Err() error       { return nil }
func (c *sliceCursor) Close() error     { return nil }
