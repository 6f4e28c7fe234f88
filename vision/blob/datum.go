package blob

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Datum field numbers
const (
	datumChannels  protowire.Number = 1
	datumHeight    protowire.Number = 2
	datumWidth     protowire.Number = 3
	datumData      protowire.Number = 4
	datumLabel     protowire.Number = 5
	datumFloatData protowire.Number = 6
	datumEncoded   protowire.Number = 7
)

// Datum is a single labelled image record. Pixels are either raw CHW bytes
// in Data, CHW floats in FloatData, or (when Encoded is set) a compressed
// image file in Data.
type Datum struct {
	Channels  int32
	Height    int32
	Width     int32
	Data      []byte
	Label     int32
	FloatData []float32
	Encoded   bool
}

// Marshal encodes the datum in protobuf wire format.
func (d *Datum) Marshal() []byte {
	var buf []byte
	buf = appendInt32(buf, datumChannels, d.Channels)
	buf = appendInt32(buf, datumHeight, d.Height)
	buf = appendInt32(buf, datumWidth, d.Width)
	if len(d.Data) > 0 {
		buf = protowire.AppendTag(buf, datumData, protowire.BytesType)
		buf = protowire.AppendBytes(buf, d.Data)
	}
	buf = appendInt32(buf, datumLabel, d.Label)
	for _, v := range d.FloatData {
		buf = protowire.AppendTag(buf, datumFloatData, protowire.Fixed32Type)
		buf = protowire.AppendFixed32(buf, math.Float32bits(v))
	}
	if d.Encoded {
		buf = protowire.AppendTag(buf, datumEncoded, protowire.VarintType)
		buf = protowire.AppendVarint(buf, protowire.EncodeBool(true))
	}
	return buf
}

// UnmarshalDatum decodes a Datum message.
func UnmarshalDatum(data []byte) (*Datum, error) {
	d := &Datum{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("datum: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		var err error
		switch {
		case num == datumChannels && typ == protowire.VarintType:
			d.Channels, n = consumeInt32(data)
		case num == datumHeight && typ == protowire.VarintType:
			d.Height, n = consumeInt32(data)
		case num == datumWidth && typ == protowire.VarintType:
			d.Width, n = consumeInt32(data)
		case num == datumLabel && typ == protowire.VarintType:
			d.Label, n = consumeInt32(data)
		case num == datumData && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(data)
			d.Data = append([]byte(nil), raw...)
		case num == datumFloatData:
			d.FloatData, n, err = consumeFloats(data, typ, d.FloatData)
		case num == datumEncoded && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(data)
			d.Encoded = protowire.DecodeBool(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("datum: field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return d, nil
}

// Len returns channels*height*width.
func (d *Datum) Len() int {
	return int(d.Channels) * int(d.Height) * int(d.Width)
}
