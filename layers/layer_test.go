package layers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLayerTypeString(t *testing.T) {
	tests := []struct {
		layerType LayerType
		expected  string
	}{
		{Dense, "Dense"},
		{Conv2D, "Conv2D"},
		{ReLU, "ReLU"},
		{Softmax, "Softmax"},
		{MaxPool2D, "MaxPool2D"},
		{Dropout, "Dropout"},
		{BatchNorm, "BatchNorm"},
		{LeakyReLU, "LeakyReLU"},
		{ELU, "ELU"},
		{LayerType(99), "Unknown"},
	}

	for _, test := range tests {
		if got := test.layerType.String(); got != test.expected {
			t.Errorf("LayerType(%d).String() = %s, expected %s", test.layerType, got, test.expected)
		}
	}
}

func TestPerturbable(t *testing.T) {
	for _, lt := range []LayerType{Dense, Conv2D, ReLU, Softmax, MaxPool2D, Dropout, BatchNorm, LeakyReLU, ELU} {
		want := lt == Dense || lt == Conv2D
		if lt.Perturbable() != want {
			t.Errorf("%s.Perturbable() = %v, expected %v", lt, lt.Perturbable(), want)
		}
	}
}

func TestCompileCNN(t *testing.T) {
	model, err := NewModelBuilder([]int{1, 3, 32, 32}).
		AddConv2D(8, 3, 1, 1, true, "conv1").
		AddReLU("relu1").
		AddMaxPool2D(2, 2, "pool1").
		AddBatchNorm(8, 1e-5, true, "bn1").
		AddDense(10, true, "fc1").
		AddSoftmax(-1, "prob").
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}

	if got := model.Layers[0].OutputShape; len(got) != 4 || got[1] != 8 || got[2] != 32 || got[3] != 32 {
		t.Errorf("conv1 output shape = %v, expected [1 8 32 32]", got)
	}
	if got := model.Layers[2].OutputShape; got[2] != 16 || got[3] != 16 {
		t.Errorf("pool1 output shape = %v, expected 16x16 spatial", got)
	}

	convParams := int64(8*3*3*3 + 8)
	bnParams := int64(16)
	denseParams := int64(8*16*16*10 + 10)
	if model.TotalParameters != convParams+bnParams+denseParams {
		t.Errorf("TotalParameters = %d, expected %d", model.TotalParameters, convParams+bnParams+denseParams)
	}
	if len(model.OutputShape) != 2 || model.OutputShape[1] != 10 {
		t.Errorf("OutputShape = %v, expected [1 10]", model.OutputShape)
	}

	perturbable := model.PerturbableLayers()
	if len(perturbable) != 2 || perturbable[0].Name != "conv1" || perturbable[1].Name != "fc1" {
		t.Errorf("PerturbableLayers = %v, expected conv1 and fc1", perturbable)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := NewModelBuilder([]int{1, 4}).Compile(); err == nil {
		t.Error("expected error compiling empty model")
	}

	_, err := NewModelBuilder([]int{1, 4}).
		AddDense(3, true, "fc").
		AddDense(2, true, "fc").
		Compile()
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate name error, got %v", err)
	}

	_, err = NewModelBuilder([]int{1, 4}).AddConv2D(2, 3, 1, 0, true, "conv").Compile()
	if err == nil {
		t.Error("expected error for Conv2D on 2D input")
	}

	_, err = NewModelBuilder([]int{1, 1, 2, 2}).AddConv2D(2, 5, 1, 0, true, "conv").Compile()
	if err == nil {
		t.Error("expected error for kernel larger than input")
	}
}

func TestRecompileAfterJSON(t *testing.T) {
	model, err := NewModelBuilder([]int{1, 1, 6, 6}).
		AddConv2D(2, 3, 1, 0, false, "conv").
		AddDense(3, true, "fc").
		Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}

	data, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("Failed to marshal model: %v", err)
	}

	var decoded ModelSpec
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal model: %v", err)
	}
	if err := decoded.Recompile(); err != nil {
		t.Fatalf("Failed to recompile decoded model: %v", err)
	}

	if decoded.TotalParameters != model.TotalParameters {
		t.Errorf("TotalParameters after round trip = %d, expected %d", decoded.TotalParameters, model.TotalParameters)
	}
	if BoolParam(decoded.Layers[0].Parameters, "use_bias", true) {
		t.Error("expected use_bias=false to survive JSON decoding")
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]interface{}{
		"i":  3,
		"f":  float64(4),
		"f3": float32(0.5),
		"b":  true,
	}

	if IntParam(params, "i", 0) != 3 || IntParam(params, "f", 0) != 4 || IntParam(params, "missing", 7) != 7 {
		t.Error("IntParam returned unexpected values")
	}
	if FloatParam(params, "f3", 0) != 0.5 || FloatParam(params, "i", 0) != 3 || FloatParam(params, "missing", 1.5) != 1.5 {
		t.Error("FloatParam returned unexpected values")
	}
	if !BoolParam(params, "b", false) || BoolParam(params, "missing", false) {
		t.Error("BoolParam returned unexpected values")
	}
}

func TestSummary(t *testing.T) {
	model, err := NewModelBuilder([]int{1, 4}).AddDense(2, true, "fc").AddSoftmax(-1, "prob").Compile()
	if err != nil {
		t.Fatalf("Failed to compile model: %v", err)
	}
	summary := model.Summary()
	if !strings.Contains(summary, "fc (Dense) *") {
		t.Errorf("summary should mark perturbable layers:\n%s", summary)
	}
	if !strings.Contains(summary, "Total Parameters: 10") {
		t.Errorf("summary should report 10 parameters:\n%s", summary)
	}

	var uncompiled ModelSpec
	if uncompiled.Summary() != "Model not compiled" {
		t.Error("expected uncompiled summary message")
	}
}
