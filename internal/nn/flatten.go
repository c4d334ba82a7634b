package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Flattening errors.
var (
	ErrEmptyModules   = errors.New("nn: no parameters to flatten")
	ErrPartialOverlap = errors.New("nn: parameters partially overlap")
	ErrLengthMismatch = errors.New("nn: flat vector length mismatch")
)

// FlatParams owns one contiguous value buffer and one gradient buffer for a
// set of parameters. Every parameter's value and grad is a view into a
// disjoint slice of these buffers, so the optimizer can update the whole
// model as a single vector.
type FlatParams struct {
	values  *tensor.RawTensor
	grads   *tensor.RawTensor
	params  []*Parameter // unique parameters in flatten order
	offsets map[*Parameter]int
	stale   bool
}

type placement struct {
	key    tensor.StorageKey
	value  *tensor.RawTensor
	grad   *tensor.RawTensor
	offset int
}

// Flatten moves the parameters of modules into freshly allocated flat buffers.
//
// Parameters are visited module by module in their declared order. A
// parameter reached twice (the same *Parameter, or two Parameters whose
// values cover the same memory) occupies one slice, and all aliases are
// bound to the same views. Current values are copied in; gradients start
// at zero.
//
// Parameters that were already flattened are moved to the new buffers and
// their previous FlatParams is marked stale.
func Flatten(modules ...Module) (*FlatParams, error) {
	var ordered []*Parameter
	seen := make(map[*Parameter]bool)
	for _, m := range modules {
		for _, p := range m.Parameters() {
			if p == nil || seen[p] {
				continue
			}
			seen[p] = true
			ordered = append(ordered, p)
		}
	}
	if len(ordered) == 0 {
		return nil, ErrEmptyModules
	}

	// Group storage aliases; the first parameter of each group owns the slice.
	var places []*placement
	groupOf := make(map[*Parameter]*placement, len(ordered))
	total := 0
	device := ordered[0].Tensor().Device()
	for _, p := range ordered {
		key := p.Tensor().StorageKey()
		var match *placement
		for _, pl := range places {
			if pl.key == key {
				match = pl
				break
			}
			if pl.key.Overlaps(key) {
				return nil, fmt.Errorf("%w: %s", ErrPartialOverlap, p.Name())
			}
		}
		if match == nil {
			match = &placement{key: key, offset: total}
			places = append(places, match)
			total += p.Tensor().NumElements()
		}
		groupOf[p] = match
	}

	flat := &FlatParams{
		values:  tensor.Zeros(tensor.Shape{total}, device),
		grads:   tensor.Zeros(tensor.Shape{total}, device),
		offsets: make(map[*Parameter]int, len(ordered)),
	}

	for _, p := range ordered {
		pl := groupOf[p]
		if pl.value == nil {
			value, err := flat.values.View(pl.offset, p.Shape())
			if err != nil {
				return nil, fmt.Errorf("nn: flatten %s: %w", p.Name(), err)
			}
			grad, err := flat.grads.View(pl.offset, p.Shape())
			if err != nil {
				return nil, fmt.Errorf("nn: flatten %s: %w", p.Name(), err)
			}
			copy(value.AsFloat32(), p.Tensor().AsFloat32())
			pl.value, pl.grad = value, grad
			flat.params = append(flat.params, p)
		}
		if p.owner != nil && p.owner != flat {
			p.owner.stale = true
		}
		p.bind(pl.value, pl.grad, flat)
		flat.offsets[p] = pl.offset
	}

	return flat, nil
}

// Len returns the number of scalars in the flat vector.
func (f *FlatParams) Len() int {
	return f.values.NumElements()
}

// Values returns the flat parameter vector. Writes are seen by every parameter.
func (f *FlatParams) Values() []float32 {
	return f.values.AsFloat32()
}

// Grads returns the flat gradient vector.
func (f *FlatParams) Grads() []float32 {
	return f.grads.AsFloat32()
}

// ValuesTensor returns the flat values as a 1D tensor.
func (f *FlatParams) ValuesTensor() *tensor.RawTensor {
	return f.values
}

// GradsTensor returns the flat gradients as a 1D tensor.
func (f *FlatParams) GradsTensor() *tensor.RawTensor {
	return f.grads
}

// ZeroGrad clears the whole gradient vector.
func (f *FlatParams) ZeroGrad() {
	f.grads.Zero()
}

// Offset returns the position of p's first element in the flat vector.
func (f *FlatParams) Offset(p *Parameter) (int, bool) {
	off, ok := f.offsets[p]
	return off, ok
}

// Parameters returns one parameter per slice of the flat vector, in order.
// Aliases of an already listed parameter are omitted.
func (f *FlatParams) Parameters() []*Parameter {
	return f.params
}

// Stale reports whether the parameters have since been flattened again.
func (f *FlatParams) Stale() bool {
	return f.stale
}

// CopyValuesFrom overwrites the flat vector, e.g. with values from a checkpoint.
func (f *FlatParams) CopyValuesFrom(values []float32) error {
	if len(values) != f.Len() {
		return fmt.Errorf("%w: got %d values, want %d", ErrLengthMismatch, len(values), f.Len())
	}
	copy(f.Values(), values)
	return nil
}
