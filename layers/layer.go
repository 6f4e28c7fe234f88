package layers

import (
	"fmt"
	"strings"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Dense LayerType = iota
	Conv2D
	ReLU
	Softmax
	MaxPool2D
	Dropout
	BatchNorm
	LeakyReLU
	ELU
)

func (lt LayerType) String() string {
	switch lt {
	case Dense:
		return "Dense"
	case Conv2D:
		return "Conv2D"
	case ReLU:
		return "ReLU"
	case Softmax:
		return "Softmax"
	case MaxPool2D:
		return "MaxPool2D"
	case Dropout:
		return "Dropout"
	case BatchNorm:
		return "BatchNorm"
	case LeakyReLU:
		return "LeakyReLU"
	case ELU:
		return "ELU"
	default:
		return "Unknown"
	}
}

// Perturbable reports whether the layer's weights and bias take part in
// landscape perturbation. Only convolution and fully-connected layers do;
// BatchNorm carries parameters but is never perturbed.
func (lt LayerType) Perturbable() bool {
	return lt == Conv2D || lt == Dense
}

// LayerSpec defines layer configuration.
// This is pure configuration - no execution logic
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information (computed during model compilation)
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	// Parameter metadata (computed during model compilation)
	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`

	// Non-learnable parameters (e.g., BatchNorm running statistics)
	RunningStatistics map[string][]float32 `json:"running_statistics,omitempty"`
}

// ModelSpec defines a complete neural network model as layer configuration
type ModelSpec struct {
	Layers []LayerSpec `json:"layers"`

	// Compiled model information
	TotalParameters int64   `json:"total_parameters"`
	ParameterShapes [][]int `json:"parameter_shapes"`
	InputShape      []int   `json:"input_shape"`
	OutputShape     []int   `json:"output_shape"`
	Compiled        bool    `json:"compiled"`
}

// ModelBuilder helps construct neural network models
type ModelBuilder struct {
	layers     []LayerSpec
	inputShape []int
	compiled   bool
}

// NewModelBuilder creates a new model builder.
// inputShape is [batch, channels, height, width] for image models or
// [batch, features] for flat inputs.
func NewModelBuilder(inputShape []int) *ModelBuilder {
	return &ModelBuilder{
		layers:     make([]LayerSpec, 0),
		inputShape: inputShape,
	}
}

// AddLayer adds a layer to the model
func (mb *ModelBuilder) AddLayer(layer LayerSpec) *ModelBuilder {
	if layer.Parameters == nil {
		layer.Parameters = map[string]interface{}{}
	}
	mb.layers = append(mb.layers, layer)
	mb.compiled = false
	return mb
}

// AddDense adds a dense layer to the model
func (mb *ModelBuilder) AddDense(outputSize int, useBias bool, name string) *ModelBuilder {
	// Input size will be computed during compilation
	return mb.AddLayer(LayerSpec{
		Type: Dense,
		Name: name,
		Parameters: map[string]interface{}{
			"output_size": outputSize,
			"use_bias":    useBias,
		},
	})
}

// AddConv2D adds a Conv2D layer to the model
func (mb *ModelBuilder) AddConv2D(
	outputChannels, kernelSize, stride, padding int,
	useBias bool, name string,
) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"output_channels": outputChannels,
			"kernel_size":     kernelSize,
			"stride":          stride,
			"padding":         padding,
			"use_bias":        useBias,
		},
	})
}

// AddMaxPool2D adds a max pooling layer to the model
func (mb *ModelBuilder) AddMaxPool2D(poolSize, stride int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: MaxPool2D,
		Name: name,
		Parameters: map[string]interface{}{
			"pool_size": poolSize,
			"stride":    stride,
		},
	})
}

// AddReLU adds a ReLU activation to the model
func (mb *ModelBuilder) AddReLU(name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{Type: ReLU, Name: name})
}

// AddSoftmax adds a Softmax activation to the model
func (mb *ModelBuilder) AddSoftmax(axis int, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Softmax,
		Name: name,
		Parameters: map[string]interface{}{
			"axis": axis,
		},
	})
}

// AddDropout adds a Dropout layer. Evaluation always runs in inference
// mode, so dropout is the identity here; the rate is kept for round-trips.
func (mb *ModelBuilder) AddDropout(rate float64, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: Dropout,
		Name: name,
		Parameters: map[string]interface{}{
			"rate": rate,
		},
	})
}

// AddBatchNorm adds a Batch Normalization layer to the model
// numFeatures: channels for Conv layers, neurons for Dense layers
// eps: small value added for numerical stability (default: 1e-5)
// affine: whether to use learnable scale and shift parameters
func (mb *ModelBuilder) AddBatchNorm(numFeatures int, eps float64, affine bool, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: BatchNorm,
		Name: name,
		Parameters: map[string]interface{}{
			"num_features": numFeatures,
			"eps":          eps,
			"affine":       affine,
		},
	})
}

// AddLeakyReLU adds a Leaky ReLU activation to the model
func (mb *ModelBuilder) AddLeakyReLU(negativeSlope float64, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: LeakyReLU,
		Name: name,
		Parameters: map[string]interface{}{
			"negative_slope": negativeSlope,
		},
	})
}

// AddELU adds an ELU activation to the model
func (mb *ModelBuilder) AddELU(alpha float64, name string) *ModelBuilder {
	return mb.AddLayer(LayerSpec{
		Type: ELU,
		Name: name,
		Parameters: map[string]interface{}{
			"alpha": alpha,
		},
	})
}

// Compile compiles the model and computes shapes and parameter counts
func (mb *ModelBuilder) Compile() (*ModelSpec, error) {
	if len(mb.layers) == 0 {
		return nil, fmt.Errorf("cannot compile empty model")
	}

	model := &ModelSpec{
		Layers:     make([]LayerSpec, len(mb.layers)),
		InputShape: append([]int(nil), mb.inputShape...),
	}
	copy(model.Layers, mb.layers)

	if err := model.compileShapes(); err != nil {
		return nil, err
	}
	mb.compiled = true

	return model, nil
}

// Recompile recomputes shapes and parameter counts, e.g. after a ModelSpec
// was decoded from JSON.
func (ms *ModelSpec) Recompile() error {
	return ms.compileShapes()
}

func (ms *ModelSpec) compileShapes() error {
	names := make(map[string]bool, len(ms.Layers))
	currentShape := ms.InputShape
	var allParameterShapes [][]int
	totalParams := int64(0)

	for i := range ms.Layers {
		layer := &ms.Layers[i]
		if layer.Name == "" {
			return fmt.Errorf("layer %d (%s) has no name", i, layer.Type)
		}
		if names[layer.Name] {
			return fmt.Errorf("duplicate layer name %q", layer.Name)
		}
		names[layer.Name] = true
		if layer.Parameters == nil {
			layer.Parameters = map[string]interface{}{}
		}

		layer.InputShape = append([]int(nil), currentShape...)

		outputShape, paramShapes, paramCount, err := computeLayerInfo(layer, currentShape)
		if err != nil {
			return fmt.Errorf("failed to compute layer %d (%s) info: %w", i, layer.Name, err)
		}

		layer.OutputShape = outputShape
		layer.ParameterShapes = paramShapes
		layer.ParameterCount = paramCount

		allParameterShapes = append(allParameterShapes, paramShapes...)
		totalParams += paramCount
		currentShape = outputShape
	}

	ms.OutputShape = currentShape
	ms.ParameterShapes = allParameterShapes
	ms.TotalParameters = totalParams
	ms.Compiled = true
	return nil
}

// computeLayerInfo computes output shape and parameter information for a layer
func computeLayerInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	switch layer.Type {
	case Dense:
		return computeDenseInfo(layer, inputShape)
	case Conv2D:
		return computeConv2DInfo(layer, inputShape)
	case MaxPool2D:
		return computeMaxPoolInfo(layer, inputShape)
	case BatchNorm:
		return computeBatchNormInfo(layer, inputShape)
	case ReLU, Softmax, Dropout, LeakyReLU, ELU:
		return computeActivationInfo(inputShape)
	default:
		return nil, nil, 0, fmt.Errorf("unsupported layer type: %s", layer.Type.String())
	}
}

func computeDenseInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("dense layer requires at least 2D input")
	}

	outputSize := IntParam(layer.Parameters, "output_size", 0)
	if outputSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing output_size parameter")
	}
	useBias := BoolParam(layer.Parameters, "use_bias", true)

	// Flatten all dimensions except batch
	inputSize := 1
	for i := 1; i < len(inputShape); i++ {
		inputSize *= inputShape[i]
	}
	layer.Parameters["input_size"] = inputSize

	outputShape := []int{inputShape[0], outputSize}

	// Weight matrix: [inputSize, outputSize]
	paramShapes := [][]int{{inputSize, outputSize}}
	paramCount := int64(inputSize * outputSize)

	if useBias {
		paramShapes = append(paramShapes, []int{outputSize})
		paramCount += int64(outputSize)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeConv2DInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("Conv2D layer requires 4D input [batch, channels, height, width]")
	}

	outputChannels := IntParam(layer.Parameters, "output_channels", 0)
	if outputChannels <= 0 {
		return nil, nil, 0, fmt.Errorf("missing output_channels parameter")
	}
	kernelSize := IntParam(layer.Parameters, "kernel_size", 0)
	if kernelSize <= 0 {
		return nil, nil, 0, fmt.Errorf("missing kernel_size parameter")
	}
	stride := IntParam(layer.Parameters, "stride", 1)
	if stride <= 0 {
		return nil, nil, 0, fmt.Errorf("stride must be positive, got %d", stride)
	}
	padding := IntParam(layer.Parameters, "padding", 0)
	useBias := BoolParam(layer.Parameters, "use_bias", true)

	inputChannels := inputShape[1]
	layer.Parameters["input_channels"] = inputChannels

	outputHeight := (inputShape[2]+2*padding-kernelSize)/stride + 1
	outputWidth := (inputShape[3]+2*padding-kernelSize)/stride + 1
	if outputHeight <= 0 || outputWidth <= 0 {
		return nil, nil, 0, fmt.Errorf("kernel %d does not fit input %dx%d", kernelSize, inputShape[2], inputShape[3])
	}

	outputShape := []int{inputShape[0], outputChannels, outputHeight, outputWidth}

	// Weight tensor: [outputChannels, inputChannels, kernelSize, kernelSize]
	paramShapes := [][]int{{outputChannels, inputChannels, kernelSize, kernelSize}}
	paramCount := int64(outputChannels * inputChannels * kernelSize * kernelSize)

	if useBias {
		paramShapes = append(paramShapes, []int{outputChannels})
		paramCount += int64(outputChannels)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeMaxPoolInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) != 4 {
		return nil, nil, 0, fmt.Errorf("MaxPool2D layer requires 4D input [batch, channels, height, width]")
	}
	poolSize := IntParam(layer.Parameters, "pool_size", 2)
	stride := IntParam(layer.Parameters, "stride", poolSize)
	if poolSize <= 0 || stride <= 0 {
		return nil, nil, 0, fmt.Errorf("invalid pooling window %d stride %d", poolSize, stride)
	}

	outputHeight := (inputShape[2]-poolSize)/stride + 1
	outputWidth := (inputShape[3]-poolSize)/stride + 1
	if outputHeight <= 0 || outputWidth <= 0 {
		return nil, nil, 0, fmt.Errorf("pool %d does not fit input %dx%d", poolSize, inputShape[2], inputShape[3])
	}

	return []int{inputShape[0], inputShape[1], outputHeight, outputWidth}, [][]int{}, 0, nil
}

func computeBatchNormInfo(layer *LayerSpec, inputShape []int) ([]int, [][]int, int64, error) {
	if len(inputShape) < 2 {
		return nil, nil, 0, fmt.Errorf("batch norm layer requires at least 2D input")
	}

	numFeatures := IntParam(layer.Parameters, "num_features", 0)
	if numFeatures != inputShape[1] {
		return nil, nil, 0, fmt.Errorf("num_features (%d) doesn't match input feature dimension (%d)", numFeatures, inputShape[1])
	}

	outputShape := append([]int(nil), inputShape...)

	var paramShapes [][]int
	var paramCount int64
	if BoolParam(layer.Parameters, "affine", true) {
		// gamma (scale) and beta (shift)
		paramShapes = append(paramShapes, []int{numFeatures}, []int{numFeatures})
		paramCount = int64(numFeatures * 2)
	}

	return outputShape, paramShapes, paramCount, nil
}

func computeActivationInfo(inputShape []int) ([]int, [][]int, int64, error) {
	// Activation layers don't change shape and have no parameters
	return append([]int(nil), inputShape...), [][]int{}, 0, nil
}

// PerturbableLayers returns the layers whose parameters take part in
// perturbation, in model order.
func (ms *ModelSpec) PerturbableLayers() []LayerSpec {
	var out []LayerSpec
	for _, layer := range ms.Layers {
		if layer.Type.Perturbable() {
			out = append(out, layer)
		}
	}
	return out
}

// Summary returns a human-readable model summary
func (ms *ModelSpec) Summary() string {
	if !ms.Compiled {
		return "Model not compiled"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Model Summary:\n")
	fmt.Fprintf(&b, "Input Shape: %v\n", ms.InputShape)
	fmt.Fprintf(&b, "Output Shape: %v\n", ms.OutputShape)
	fmt.Fprintf(&b, "Total Parameters: %d\n", ms.TotalParameters)
	fmt.Fprintf(&b, "Layers: %d\n\n", len(ms.Layers))

	for i, layer := range ms.Layers {
		marker := ""
		if layer.Type.Perturbable() {
			marker = " *"
		}
		fmt.Fprintf(&b, "Layer %d: %s (%s)%s\n", i+1, layer.Name, layer.Type.String(), marker)
		fmt.Fprintf(&b, "  Input:  %v\n", layer.InputShape)
		fmt.Fprintf(&b, "  Output: %v\n", layer.OutputShape)
		fmt.Fprintf(&b, "  Params: %d\n", layer.ParameterCount)
	}

	return b.String()
}

// IntParam reads an integer layer parameter. Values decoded from JSON arrive
// as float64 and are converted.
func IntParam(params map[string]interface{}, key string, defaultValue int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return defaultValue
}

// BoolParam reads a boolean layer parameter.
func BoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return defaultValue
}

// FloatParam reads a floating point layer parameter.
func FloatParam(params map[string]interface{}, key string, defaultValue float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return defaultValue
}
