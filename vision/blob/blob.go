// Package blob reads and writes the two protobuf messages used by image
// record stores: Blob (an N-d float array, used for mean images and for
// persisted matrices) and Datum (one labelled image record).
//
// Messages are encoded with protowire directly so no generated code is
// needed. Repeated numeric fields are accepted both packed and unpacked.
package blob

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Blob field numbers
const (
	blobNum        protowire.Number = 1
	blobChannels   protowire.Number = 2
	blobHeight     protowire.Number = 3
	blobWidth      protowire.Number = 4
	blobData       protowire.Number = 5
	blobShape      protowire.Number = 7
	blobDoubleData protowire.Number = 8

	shapeDim protowire.Number = 1
)

// ErrTruncated is returned when a message ends in the middle of a field.
var ErrTruncated = errors.New("blob: truncated message")

// Blob is an N-d array of floats with either a legacy 4-d geometry
// (num, channels, height, width) or an explicit shape.
type Blob struct {
	Num      int32
	Channels int32
	Height   int32
	Width    int32
	Shape    []int64

	Data       []float32
	DoubleData []float64
}

// NewMatrix builds a blob holding a rows×cols float64 matrix in row-major order.
func NewMatrix(rows, cols int, data []float64) *Blob {
	return &Blob{
		Shape:      []int64{int64(rows), int64(cols)},
		DoubleData: data,
	}
}

// Dims returns the blob's dimensions, preferring the explicit shape.
func (b *Blob) Dims() []int {
	if len(b.Shape) > 0 {
		dims := make([]int, len(b.Shape))
		for i, d := range b.Shape {
			dims[i] = int(d)
		}
		return dims
	}
	return []int{int(b.Num), int(b.Channels), int(b.Height), int(b.Width)}
}

// Len returns the number of values the dimensions describe.
func (b *Blob) Len() int {
	n := 1
	for _, d := range b.Dims() {
		n *= d
	}
	return n
}

// Values returns the blob contents as float64, preferring double data.
func (b *Blob) Values() []float64 {
	if len(b.DoubleData) > 0 {
		out := make([]float64, len(b.DoubleData))
		copy(out, b.DoubleData)
		return out
	}
	out := make([]float64, len(b.Data))
	for i, v := range b.Data {
		out[i] = float64(v)
	}
	return out
}

// Marshal encodes the blob in protobuf wire format.
func (b *Blob) Marshal() []byte {
	var buf []byte
	buf = appendInt32(buf, blobNum, b.Num)
	buf = appendInt32(buf, blobChannels, b.Channels)
	buf = appendInt32(buf, blobHeight, b.Height)
	buf = appendInt32(buf, blobWidth, b.Width)

	if len(b.Data) > 0 {
		packed := make([]byte, 0, 4*len(b.Data))
		for _, v := range b.Data {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		buf = protowire.AppendTag(buf, blobData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}

	if len(b.Shape) > 0 {
		var dims []byte
		for _, d := range b.Shape {
			dims = protowire.AppendVarint(dims, uint64(d))
		}
		var shape []byte
		shape = protowire.AppendTag(shape, shapeDim, protowire.BytesType)
		shape = protowire.AppendBytes(shape, dims)
		buf = protowire.AppendTag(buf, blobShape, protowire.BytesType)
		buf = protowire.AppendBytes(buf, shape)
	}

	if len(b.DoubleData) > 0 {
		packed := make([]byte, 0, 8*len(b.DoubleData))
		for _, v := range b.DoubleData {
			packed = protowire.AppendFixed64(packed, math.Float64bits(v))
		}
		buf = protowire.AppendTag(buf, blobDoubleData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, packed)
	}

	return buf
}

// UnmarshalBlob decodes a Blob message. Unknown fields and the gradient
// (diff) fields are skipped.
func UnmarshalBlob(data []byte) (*Blob, error) {
	b := &Blob{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("blob: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		var err error
		switch {
		case num == blobNum && typ == protowire.VarintType:
			b.Num, n = consumeInt32(data)
		case num == blobChannels && typ == protowire.VarintType:
			b.Channels, n = consumeInt32(data)
		case num == blobHeight && typ == protowire.VarintType:
			b.Height, n = consumeInt32(data)
		case num == blobWidth && typ == protowire.VarintType:
			b.Width, n = consumeInt32(data)
		case num == blobData:
			b.Data, n, err = consumeFloats(data, typ, b.Data)
		case num == blobDoubleData:
			b.DoubleData, n, err = consumeDoubles(data, typ, b.DoubleData)
		case num == blobShape && typ == protowire.BytesType:
			var msg []byte
			msg, n = protowire.ConsumeBytes(data)
			if n >= 0 {
				b.Shape, err = unmarshalShape(msg)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("blob: field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return b, nil
}

func unmarshalShape(data []byte) ([]int64, error) {
	var dims []int64
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("blob: bad shape tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num != shapeDim {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, ErrTruncated
			}
			data = data[n:]
			continue
		}
		switch typ {
		case protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, ErrTruncated
				}
				dims = append(dims, int64(v))
				packed = packed[m:]
			}
			data = data[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, ErrTruncated
			}
			dims = append(dims, int64(v))
			data = data[n:]
		default:
			return nil, fmt.Errorf("blob: unexpected wire type %d for shape dim", typ)
		}
	}
	return dims, nil
}

func appendInt32(buf []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	return protowire.AppendVarint(buf, uint64(int64(v)))
}

func consumeInt32(data []byte) (int32, int) {
	v, n := protowire.ConsumeVarint(data)
	return int32(v), n
}

func consumeFloats(data []byte, typ protowire.Type, dst []float32) ([]float32, int, error) {
	switch typ {
	case protowire.Fixed32Type:
		v, n := protowire.ConsumeFixed32(data)
		if n < 0 {
			return dst, n, nil
		}
		return append(dst, math.Float32frombits(v)), n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return dst, n, nil
		}
		if len(packed)%4 != 0 {
			return dst, n, fmt.Errorf("blob: packed float field has %d bytes", len(packed))
		}
		for len(packed) > 0 {
			v, _ := protowire.ConsumeFixed32(packed)
			dst = append(dst, math.Float32frombits(v))
			packed = packed[4:]
		}
		return dst, n, nil
	}
	return dst, -1, fmt.Errorf("blob: unexpected wire type %d for float field", typ)
}

func consumeDoubles(data []byte, typ protowire.Type, dst []float64) ([]float64, int, error) {
	switch typ {
	case protowire.Fixed64Type:
		v, n := protowire.ConsumeFixed64(data)
		if n < 0 {
			return dst, n, nil
		}
		return append(dst, math.Float64frombits(v)), n, nil
	case protowire.BytesType:
		packed, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return dst, n, nil
		}
		if len(packed)%8 != 0 {
			return dst, n, fmt.Errorf("blob: packed double field has %d bytes", len(packed))
		}
		for len(packed) > 0 {
			v, _ := protowire.ConsumeFixed64(packed)
			dst = append(dst, math.Float64frombits(v))
			packed = packed[8:]
		}
		return dst, n, nil
	}
	return dst, -1, fmt.Errorf("blob: unexpected wire type %d for double field", typ)
}
