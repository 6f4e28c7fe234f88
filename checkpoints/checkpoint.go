package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tsawler/go-landscape/layers"
)

// Checkpoint represents a trained model: its architecture and weights
type Checkpoint struct {
	ModelSpec *layers.ModelSpec `json:"model_spec"`
	Weights   []WeightTensor    `json:"weights"`

	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "bias", "gamma", "beta", "running_mean", "running_var"
}

// TrainingState captures where training stopped when the checkpoint was written
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         int     `json:"step"`
	BestLoss     float32 `json:"best_loss"`
	BestAccuracy float32 `json:"best_accuracy"`
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// Parameter type names used in WeightTensor.Type
const (
	TypeWeight = "weight"
	TypeBias   = "bias"
	TypeGamma  = "gamma"
	TypeBeta   = "beta"

	// BatchNorm running statistics; not learnable and never validated
	// against ParameterShapes.
	TypeRunningMean = "running_mean"
	TypeRunningVar  = "running_var"
)

// Save writes a checkpoint as indented JSON. The file is written to a
// temporary sibling and renamed into place.
func Save(checkpoint *Checkpoint, path string) error {
	if checkpoint == nil || checkpoint.ModelSpec == nil {
		return fmt.Errorf("checkpoint has no model spec")
	}
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-landscape"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load reads a JSON checkpoint, recompiles its model spec and checks that
// every parameterised layer has correctly sized weights.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.ModelSpec == nil {
		return nil, fmt.Errorf("checkpoint %s has no model spec", path)
	}
	if err := checkpoint.ModelSpec.Recompile(); err != nil {
		return nil, fmt.Errorf("failed to compile model spec: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, err
	}

	return &checkpoint, nil
}

// Find returns the tensor for a layer and parameter type.
func (c *Checkpoint) Find(layer, paramType string) (WeightTensor, bool) {
	for _, w := range c.Weights {
		if w.Layer == layer && w.Type == paramType {
			return w, true
		}
	}
	return WeightTensor{}, false
}

// Validate checks that the weights match the compiled parameter shapes
func (c *Checkpoint) Validate() error {
	for _, layer := range c.ModelSpec.Layers {
		types := ParameterTypes(layer)
		if len(types) != len(layer.ParameterShapes) {
			return fmt.Errorf("layer %s: expected %d parameter tensors, spec has %d", layer.Name, len(types), len(layer.ParameterShapes))
		}
		for i, paramType := range types {
			w, ok := c.Find(layer.Name, paramType)
			if !ok {
				return fmt.Errorf("missing %s tensor for layer %s", paramType, layer.Name)
			}
			if want := elementCount(layer.ParameterShapes[i]); len(w.Data) != want {
				return fmt.Errorf("%s: expected %d values, got %d", w.Name, want, len(w.Data))
			}
		}
	}
	return nil
}

// NewWeightTensor builds a WeightTensor using the "<layer>.<param>" naming
// convention.
func NewWeightTensor(layer, paramType string, shape []int, data []float32) WeightTensor {
	suffix := paramType
	switch paramType {
	case TypeGamma:
		suffix = TypeWeight
	case TypeBeta:
		suffix = TypeBias
	}
	return WeightTensor{
		Name:  fmt.Sprintf("%s.%s", layer, suffix),
		Shape: append([]int(nil), shape...),
		Data:  data,
		Layer: layer,
		Type:  paramType,
	}
}

// ParameterTypes lists the tensor types a layer owns, in ParameterShapes order.
func ParameterTypes(layer layers.LayerSpec) []string {
	switch layer.Type {
	case layers.Dense, layers.Conv2D:
		if layers.BoolParam(layer.Parameters, "use_bias", true) {
			return []string{TypeWeight, TypeBias}
		}
		return []string{TypeWeight}
	case layers.BatchNorm:
		if layers.BoolParam(layer.Parameters, "affine", true) {
			return []string{TypeGamma, TypeBeta}
		}
	}
	return nil
}

func elementCount(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
