package rnn

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Unroll returns count clones of proto, one per timestep.
//
// The prototype's parameters must already be flattened: clones share the
// Parameter objects, so they read and write the flat buffers directly. Each
// clone remembers that binding; if the parameters are flattened again the
// clones report ErrStaleClone from BoundTo and must be rebuilt.
func Unroll(proto Cell, count int) ([]Cell, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: clone count %d", ErrInvalidConfig, count)
	}
	flat, err := bindingOf(proto)
	if err != nil {
		return nil, err
	}
	if g, ok := proto.(*graph); ok {
		g.flat = flat
	}

	clones := make([]Cell, count)
	for t := range clones {
		clones[t] = proto.Clone()
	}
	return clones, nil
}

// OneHot encodes ids as a [len(ids), size] float32 matrix.
func OneHot(ids []int32, size int, device tensor.Device) *tensor.RawTensor {
	out := tensor.Zeros(tensor.Shape{len(ids), size}, device)
	data := out.AsFloat32()
	for row, id := range ids {
		if id < 0 || int(id) >= size {
			panic(fmt.Sprintf("one_hot: id %d out of range [0, %d)", id, size))
		}
		data[row*size+int(id)] = 1
	}
	return out
}
