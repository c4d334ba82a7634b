package nn

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Parameter represents a trainable tensor and its gradient.
//
// After Flatten, value and grad are views into the FlatParams buffers: the
// optimizer writes the flat vector and the layer reads the new weights
// through the same memory.
//
// Example:
//
//	weight := nn.NewParameter("decoder.weight", tensor.Zeros(tensor.Shape{v, h}, tensor.CPU))
//	w := weight.Tensor()
//	weight.AccumulateGrad(dW)
type Parameter struct {
	name  string
	value *tensor.RawTensor
	grad  *tensor.RawTensor
	owner *FlatParams // set by Flatten
}

// NewParameter creates a new trainable parameter with a zeroed gradient.
func NewParameter(name string, value *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:  name,
		value: value,
		grad:  tensor.Zeros(value.Shape(), value.Device()),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter value.
//
// Layers must call Tensor on every forward pass: flattening replaces the
// tensor with a view.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.value
}

// Grad returns the gradient tensor.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// Shape returns the parameter shape.
func (p *Parameter) Shape() tensor.Shape {
	return p.value.Shape()
}

// Owner returns the FlatParams the parameter is bound to, or nil.
func (p *Parameter) Owner() *FlatParams {
	return p.owner
}

// ZeroGrad clears the gradient in place.
func (p *Parameter) ZeroGrad() {
	p.grad.Zero()
}

// AccumulateGrad adds g to the gradient (grad += g).
func (p *Parameter) AccumulateGrad(g *tensor.RawTensor) {
	if g.NumElements() != p.grad.NumElements() {
		panic(fmt.Sprintf("%s: gradient has %d elements, want %d", p.name, g.NumElements(), p.grad.NumElements()))
	}
	dst := p.grad.AsFloat32()
	blas32.Axpy(1,
		blas32.Vector{N: len(dst), Data: g.AsFloat32(), Inc: 1},
		blas32.Vector{N: len(dst), Data: dst, Inc: 1})
}

// bind replaces value and grad with views owned by flat.
func (p *Parameter) bind(value, grad *tensor.RawTensor, flat *FlatParams) {
	p.value = value
	p.grad = grad
	p.owner = flat
}
