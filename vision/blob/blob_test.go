package blob

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestBlobLegacyGeometry(t *testing.T) {
	b := &Blob{Num: 1, Channels: 3, Height: 2, Width: 2, Data: make([]float32, 12)}
	for i := range b.Data {
		b.Data[i] = float32(i) * 0.5
	}

	decoded, err := UnmarshalBlob(b.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalBlob failed: %v", err)
	}

	if diff := cmp.Diff([]int{1, 3, 2, 2}, decoded.Dims()); diff != "" {
		t.Errorf("Dims mismatch (-want +got):\n%s", diff)
	}
	if decoded.Len() != 12 {
		t.Errorf("Expected Len 12, got %d", decoded.Len())
	}
	if diff := cmp.Diff(b.Data, decoded.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	if got := decoded.Values()[5]; got != 2.5 {
		t.Errorf("Expected Values()[5] = 2.5, got %f", got)
	}
}

func TestBlobMatrixIsBitExact(t *testing.T) {
	data := []float64{math.Pi, -1e-300, 0, math.Inf(1), 1.0 / 3.0, -7}
	b := NewMatrix(2, 3, data)

	decoded, err := UnmarshalBlob(b.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalBlob failed: %v", err)
	}
	if diff := cmp.Diff([]int{2, 3}, decoded.Dims()); diff != "" {
		t.Errorf("Dims mismatch (-want +got):\n%s", diff)
	}
	for i, v := range decoded.Values() {
		if math.Float64bits(v) != math.Float64bits(data[i]) {
			t.Errorf("value %d: expected %v, got %v", i, data[i], v)
		}
	}
}

func TestBlobAcceptsUnpackedFloats(t *testing.T) {
	var buf []byte
	buf = protowire.AppendTag(buf, blobChannels, protowire.VarintType)
	buf = protowire.AppendVarint(buf, 2)
	for _, v := range []float32{1.5, -2} {
		buf = protowire.AppendTag(buf, blobData, protowire.Fixed32Type)
		buf = protowire.AppendFixed32(buf, math.Float32bits(v))
	}
	// unknown field must be skipped
	buf = protowire.AppendTag(buf, 42, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte("ignored"))

	decoded, err := UnmarshalBlob(buf)
	if err != nil {
		t.Fatalf("UnmarshalBlob failed: %v", err)
	}
	if decoded.Channels != 2 {
		t.Errorf("Expected channels 2, got %d", decoded.Channels)
	}
	if diff := cmp.Diff([]float32{1.5, -2}, decoded.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
}

func TestBlobTruncated(t *testing.T) {
	full := NewMatrix(1, 2, []float64{1, 2}).Marshal()
	if _, err := UnmarshalBlob(full[:len(full)-3]); err == nil {
		t.Error("Expected error for truncated blob")
	}
}

func TestDatumRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		datum Datum
	}{
		{"raw bytes", Datum{Channels: 1, Height: 2, Width: 2, Data: []byte{0, 64, 128, 255}, Label: 7}},
		{"float data", Datum{Channels: 1, Height: 1, Width: 3, FloatData: []float32{0.25, -1, 3}, Label: 0}},
		{"encoded", Datum{Data: []byte{0xff, 0xd8, 0xff}, Label: 2, Encoded: true}},
		{"negative label", Datum{Channels: 1, Height: 1, Width: 1, Data: []byte{1}, Label: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalDatum(tt.datum.Marshal())
			if err != nil {
				t.Fatalf("UnmarshalDatum failed: %v", err)
			}
			if diff := cmp.Diff(tt.datum, *decoded); diff != "" {
				t.Errorf("Datum mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDatumLen(t *testing.T) {
	d := Datum{Channels: 3, Height: 32, Width: 32}
	if d.Len() != 3072 {
		t.Errorf("Expected 3072, got %d", d.Len())
	}
}
