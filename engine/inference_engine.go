// Package engine runs compiled layer specifications on the CPU. An
// InferenceEngine is the forward-pass oracle the landscape evaluator
// perturbs: it exposes each Conv2D and Dense layer's weights and bias by
// name and returns class probabilities for one image at a time.
package engine

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/tsawler/go-landscape/checkpoints"
	"github.com/tsawler/go-landscape/landscape"
	"github.com/tsawler/go-landscape/layers"
	"github.com/tsawler/go-landscape/monitoring"
)

// layerState holds the parameters of one layer in float64. For BatchNorm
// weights and bias are gamma and beta.
type layerState struct {
	spec        *layers.LayerSpec
	weights     []float64
	bias        []float64
	runningMean []float64
	runningVar  []float64
}

// InferenceEngine evaluates a ModelSpec in inference mode. It is not safe
// for concurrent use; Clone gives each goroutine its own copy.
type InferenceEngine struct {
	modelSpec *layers.ModelSpec
	layers    []layerState
	byName    map[string]int
	inputSize int

	// appendSoftmax is set when the model ends in raw scores
	appendSoftmax bool
}

var (
	_ landscape.Model  = (*InferenceEngine)(nil)
	_ landscape.Cloner = (*InferenceEngine)(nil)
)

// NewInferenceEngine prepares an engine for a compiled spec. Weights start
// at zero, BatchNorm at gamma=1, beta=0 and the spec's running statistics
// (mean 0, variance 1 when absent).
func NewInferenceEngine(modelSpec *layers.ModelSpec) (*InferenceEngine, error) {
	if modelSpec == nil {
		return nil, fmt.Errorf("model spec is nil")
	}
	if !modelSpec.Compiled {
		return nil, fmt.Errorf("model spec is not compiled")
	}
	if n := len(modelSpec.InputShape); n != 2 && n != 4 {
		return nil, fmt.Errorf("input shape %v must be [batch, features] or [batch, channels, height, width]", modelSpec.InputShape)
	}

	e := &InferenceEngine{
		modelSpec: modelSpec,
		layers:    make([]layerState, len(modelSpec.Layers)),
		byName:    make(map[string]int, len(modelSpec.Layers)),
		inputSize: volume(modelSpec.InputShape[1:]),
	}

	for i := range modelSpec.Layers {
		spec := &modelSpec.Layers[i]
		st := layerState{spec: spec}

		switch spec.Type {
		case layers.Dense, layers.Conv2D:
			st.weights = make([]float64, volume(spec.ParameterShapes[0]))
			if len(spec.ParameterShapes) > 1 {
				st.bias = make([]float64, volume(spec.ParameterShapes[1]))
			}
		case layers.BatchNorm:
			features := spec.InputShape[1]
			st.weights = constant(features, 1)
			st.bias = make([]float64, features)
			st.runningMean = constant(features, 0)
			st.runningVar = constant(features, 1)
			if err := st.setRunningStatistics(spec.RunningStatistics); err != nil {
				return nil, err
			}
		case layers.ReLU, layers.LeakyReLU, layers.ELU, layers.Dropout, layers.Softmax, layers.MaxPool2D:
		default:
			return nil, fmt.Errorf("layer %s: unsupported type %s", spec.Name, spec.Type)
		}

		e.layers[i] = st
		e.byName[spec.Name] = i
	}

	last := modelSpec.Layers[len(modelSpec.Layers)-1]
	e.appendSoftmax = last.Type != layers.Softmax
	return e, nil
}

// FromCheckpoint builds an engine from a checkpoint's spec and weights.
func FromCheckpoint(c *checkpoints.Checkpoint) (*InferenceEngine, error) {
	if c == nil {
		return nil, fmt.Errorf("checkpoint is nil")
	}
	e, err := NewInferenceEngine(c.ModelSpec)
	if err != nil {
		return nil, err
	}
	if err := e.LoadWeights(c.Weights); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadCheckpoint reads a checkpoint file and builds an engine from it.
func LoadCheckpoint(path string) (*InferenceEngine, error) {
	c, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	return FromCheckpoint(c)
}

// NewRandomEngine builds an engine with He-normal weights and zero biases.
func NewRandomEngine(modelSpec *layers.ModelSpec, rng *rand.Rand) (*InferenceEngine, error) {
	e, err := NewInferenceEngine(modelSpec)
	if err != nil {
		return nil, err
	}
	for _, st := range e.layers {
		if !st.spec.Type.Perturbable() {
			continue
		}
		fanIn := len(st.weights) / st.spec.OutputShape[1]
		std := math.Sqrt(2 / float64(fanIn))
		for i := range st.weights {
			st.weights[i] = rng.NormFloat64() * std
		}
	}
	return e, nil
}

// LoadWeights copies checkpoint tensors into the engine. Running statistics
// are loaded alongside the learnable parameters; every learnable tensor the
// spec declares must be present.
func (e *InferenceEngine) LoadWeights(weights []checkpoints.WeightTensor) error {
	loaded := make(map[string]bool, len(weights))
	stats := 0

	for _, w := range weights {
		i, ok := e.byName[w.Layer]
		if !ok {
			return fmt.Errorf("weight %s: unknown layer %q", w.Name, w.Layer)
		}
		st := &e.layers[i]

		var dst []float64
		switch w.Type {
		case checkpoints.TypeWeight, checkpoints.TypeGamma:
			dst = st.weights
		case checkpoints.TypeBias, checkpoints.TypeBeta:
			dst = st.bias
		case checkpoints.TypeRunningMean:
			dst = st.runningMean
			stats++
		case checkpoints.TypeRunningVar:
			dst = st.runningVar
			stats++
		default:
			return fmt.Errorf("weight %s: unknown parameter type %q", w.Name, w.Type)
		}
		if dst == nil || len(dst) != len(w.Data) {
			return fmt.Errorf("weight %s: expected %d values, got %d", w.Name, len(dst), len(w.Data))
		}
		for j, v := range w.Data {
			dst[j] = float64(v)
		}
		loaded[w.Layer+"."+w.Type] = true
	}

	for _, st := range e.layers {
		for _, paramType := range checkpoints.ParameterTypes(*st.spec) {
			if !loaded[st.spec.Name+"."+paramType] {
				return fmt.Errorf("missing %s tensor for layer %s", paramType, st.spec.Name)
			}
		}
	}

	monitoring.Logf("engine: loaded %d tensors (%d running statistics)", len(weights), stats)
	return nil
}

// Checkpoint exports the current parameters and running statistics.
func (e *InferenceEngine) Checkpoint() *checkpoints.Checkpoint {
	c := &checkpoints.Checkpoint{ModelSpec: e.modelSpec}
	for _, st := range e.layers {
		types := checkpoints.ParameterTypes(*st.spec)
		for i, paramType := range types {
			src := st.weights
			if i == 1 {
				src = st.bias
			}
			c.Weights = append(c.Weights, checkpoints.NewWeightTensor(st.spec.Name, paramType, st.spec.ParameterShapes[i], toFloat32(src)))
		}
		if st.spec.Type == layers.BatchNorm {
			shape := []int{len(st.runningMean)}
			c.Weights = append(c.Weights,
				checkpoints.NewWeightTensor(st.spec.Name, checkpoints.TypeRunningMean, shape, toFloat32(st.runningMean)),
				checkpoints.NewWeightTensor(st.spec.Name, checkpoints.TypeRunningVar, shape, toFloat32(st.runningVar)),
			)
		}
	}
	return c
}

// ModelSpec returns the model specification
func (e *InferenceEngine) ModelSpec() *layers.ModelSpec {
	return e.modelSpec
}

// InputSize is the number of values Forward expects
func (e *InferenceEngine) InputSize() int {
	return e.inputSize
}

// Layers lists every layer in model order. Conv2D and Dense layers are the
// perturbable ones.
func (e *InferenceEngine) Layers() []landscape.LayerInfo {
	out := make([]landscape.LayerInfo, len(e.layers))
	for i, st := range e.layers {
		kind := landscape.KindOther
		switch st.spec.Type {
		case layers.Conv2D:
			kind = landscape.KindConvolution
		case layers.Dense:
			kind = landscape.KindInnerProduct
		}
		out[i] = landscape.LayerInfo{Name: st.spec.Name, Kind: kind}
	}
	return out
}

// Parameters returns copies of a perturbable layer's weights and bias. The
// bias is nil for layers built without one.
func (e *InferenceEngine) Parameters(name string) ([]float64, []float64, error) {
	st, err := e.perturbable(name)
	if err != nil {
		return nil, nil, err
	}
	return append([]float64(nil), st.weights...), append([]float64(nil), st.bias...), nil
}

// SetParameters overwrites a perturbable layer's weights and bias.
func (e *InferenceEngine) SetParameters(name string, weights, bias []float64) error {
	st, err := e.perturbable(name)
	if err != nil {
		return err
	}
	if len(weights) != len(st.weights) {
		return fmt.Errorf("layer %s: expected %d weights, got %d", name, len(st.weights), len(weights))
	}
	if len(bias) != len(st.bias) {
		return fmt.Errorf("layer %s: expected %d bias values, got %d", name, len(st.bias), len(bias))
	}
	copy(st.weights, weights)
	copy(st.bias, bias)
	return nil
}

func (e *InferenceEngine) perturbable(name string) (*layerState, error) {
	i, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown layer %q", name)
	}
	st := &e.layers[i]
	if !st.spec.Type.Perturbable() {
		return nil, fmt.Errorf("layer %s (%s) has no perturbable parameters", name, st.spec.Type)
	}
	return st, nil
}

// Clone returns an engine with its own copy of every parameter. The model
// spec is shared and must not be modified afterwards.
func (e *InferenceEngine) Clone() (landscape.Model, error) {
	c := &InferenceEngine{
		modelSpec:     e.modelSpec,
		layers:        make([]layerState, len(e.layers)),
		byName:        e.byName,
		inputSize:     e.inputSize,
		appendSoftmax: e.appendSoftmax,
	}
	for i, st := range e.layers {
		c.layers[i] = layerState{
			spec:        st.spec,
			weights:     clone(st.weights),
			bias:        clone(st.bias),
			runningMean: clone(st.runningMean),
			runningVar:  clone(st.runningVar),
		}
	}
	return c, nil
}

// Forward runs one CHW image (or feature vector) through the model and
// returns class probabilities.
func (e *InferenceEngine) Forward(image []float64) ([]float64, error) {
	if len(image) != e.inputSize {
		return nil, fmt.Errorf("expected %d input values, got %d", e.inputSize, len(image))
	}

	x := append([]float64(nil), image...)
	for i := range e.layers {
		st := &e.layers[i]
		spec := st.spec
		switch spec.Type {
		case layers.Conv2D:
			x = conv2D(x, spec.InputShape, spec.OutputShape, st.weights, st.bias,
				layers.IntParam(spec.Parameters, "kernel_size", 0),
				layers.IntParam(spec.Parameters, "stride", 1),
				layers.IntParam(spec.Parameters, "padding", 0))
		case layers.Dense:
			x = dense(x, st.weights, st.bias)
		case layers.MaxPool2D:
			poolSize := layers.IntParam(spec.Parameters, "pool_size", 2)
			x = maxPool2D(x, spec.InputShape, spec.OutputShape, poolSize, layers.IntParam(spec.Parameters, "stride", poolSize))
		case layers.BatchNorm:
			batchNorm(x, spec.InputShape, st, layers.FloatParam(spec.Parameters, "eps", 1e-5))
		case layers.ReLU:
			leakyReLU(x, 0)
		case layers.LeakyReLU:
			leakyReLU(x, layers.FloatParam(spec.Parameters, "negative_slope", 0.01))
		case layers.ELU:
			elu(x, layers.FloatParam(spec.Parameters, "alpha", 1))
		case layers.Softmax:
			softmax(x)
		case layers.Dropout:
			// identity at inference
		}
	}

	if e.appendSoftmax {
		softmax(x)
	}
	return x, nil
}

func (st *layerState) setRunningStatistics(stats map[string][]float32) error {
	for key, dst := range map[string][]float64{
		checkpoints.TypeRunningMean: st.runningMean,
		checkpoints.TypeRunningVar:  st.runningVar,
	} {
		src, ok := stats[key]
		if !ok {
			continue
		}
		if len(src) != len(dst) {
			return fmt.Errorf("layer %s: %s has %d values, expected %d", st.spec.Name, key, len(src), len(dst))
		}
		for i, v := range src {
			dst[i] = float64(v)
		}
	}
	return nil
}

func volume(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func clone(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}

func toFloat32(s []float64) []float32 {
	out := make([]float32, len(s))
	for i, v := range s {
		out[i] = float32(v)
	}
	return out
}
