package ops

import "github.com/born-ml/charrnn/internal/tensor"

// AddOp represents element-wise addition: output = a + b.
// b may be a row vector broadcast over the rows of a.
type AddOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.RawTensor) *AddOp {
	return &AddOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward passes the gradient through to both inputs, summing over the
// broadcast rows for b.
func (op *AddOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	b := op.inputs[1]
	gradB := outputGrad
	if !b.Shape().Equal(outputGrad.Shape()) {
		gradB = reshape(backend.SumDim(outputGrad, 0), b.Shape())
	}
	return []*tensor.RawTensor{outputGrad, gradB}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a + b.
func (op *AddOp) Output() *tensor.RawTensor { return op.output }

// MulOp represents element-wise multiplication of equally shaped tensors.
//
// Backward pass:
//   - d(a*b)/da = grad * b
//   - d(a*b)/db = grad * a
type MulOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.RawTensor) *MulOp {
	return &MulOp{inputs: []*tensor.RawTensor{a, b}, output: output}
}

// Backward computes input gradients for multiplication.
func (op *MulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.RawTensor{
		backend.Mul(outputGrad, b),
		backend.Mul(outputGrad, a),
	}
}

// Inputs returns [a, b].
func (op *MulOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns a * b.
func (op *MulOp) Output() *tensor.RawTensor { return op.output }

// OneMinusOp represents output = 1 - x, used by the GRU update gate.
type OneMinusOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewOneMinusOp creates a new OneMinusOp.
func NewOneMinusOp(input, output *tensor.RawTensor) *OneMinusOp {
	return &OneMinusOp{input: input, output: output}
}

// Backward negates the gradient.
func (op *OneMinusOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, -1)}
}

// Inputs returns [x].
func (op *OneMinusOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.input} }

// Output returns 1 - x.
func (op *OneMinusOp) Output() *tensor.RawTensor { return op.output }

func reshape(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if t.Shape().Equal(shape) {
		return t
	}
	out, err := t.Reshape(shape)
	if err != nil {
		panic("ops: " + err.Error())
	}
	return out
}
