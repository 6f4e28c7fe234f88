package landscape

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Field names the half of a layer's parameters a Slot covers
type Field int

const (
	FieldWeights Field = iota
	FieldBias
)

func (f Field) String() string {
	if f == FieldBias {
		return "bias"
	}
	return "weights"
}

// Slot is a contiguous run of a ParameterVector owned by one layer field
type Slot struct {
	Layer  string
	Field  Field
	Offset int
	Length int
}

// Layout is the ordered list of slots making up a ParameterVector: for each
// perturbable layer in model order, its weights then its bias. Sampling,
// capture, apply and norm computation all walk the same Layout.
type Layout struct {
	slots  []Slot
	layers []string
	size   int
}

// NewLayout builds the layout of model's perturbable layers.
func NewLayout(model Model) (*Layout, error) {
	l := &Layout{}
	for _, info := range model.Layers() {
		if !info.Kind.Perturbable() {
			continue
		}
		w, b, err := model.Parameters(info.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read parameters of layer %s: %w", info.Name, err)
		}
		l.add(info.Name, len(w), len(b))
	}
	return l, nil
}

func (l *Layout) add(layer string, weights, bias int) {
	l.layers = append(l.layers, layer)
	l.slots = append(l.slots, Slot{Layer: layer, Field: FieldWeights, Offset: l.size, Length: weights})
	l.size += weights
	l.slots = append(l.slots, Slot{Layer: layer, Field: FieldBias, Offset: l.size, Length: bias})
	l.size += bias
}

// Size returns the ParameterVector length
func (l *Layout) Size() int {
	return l.size
}

// Slots returns the slots in order
func (l *Layout) Slots() []Slot {
	return l.slots
}

// Layers returns the perturbable layer names in order
func (l *Layout) Layers() []string {
	return l.layers
}

// slotsFor returns the weights and bias slots of the i-th layer
func (l *Layout) slotsFor(i int) (Slot, Slot) {
	return l.slots[2*i], l.slots[2*i+1]
}

// Hash identifies the layout by its slot sequence
func (l *Layout) Hash() string {
	h := sha256.New()
	var buf [8]byte
	for _, s := range l.slots {
		h.Write([]byte(s.Layer))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Field))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Length))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
