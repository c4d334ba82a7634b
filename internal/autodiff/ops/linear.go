package ops

import "github.com/born-ml/charrnn/internal/tensor"

// LinearOp represents an affine transform: output = x @ W^T + b.
//
// x is [batch, in], W is [out, in], b is [out] (optional).
//
// Backward pass:
//   - dx = grad @ W
//   - dW = grad^T @ x
//   - db = sum(grad, dim=0)
type LinearOp struct {
	inputs []*tensor.RawTensor // [x, W] or [x, W, b]
	output *tensor.RawTensor
}

// NewLinearOp creates a new LinearOp. bias may be nil.
func NewLinearOp(x, weight, bias, output *tensor.RawTensor) *LinearOp {
	inputs := []*tensor.RawTensor{x, weight}
	if bias != nil {
		inputs = append(inputs, bias)
	}
	return &LinearOp{inputs: inputs, output: output}
}

// Backward computes gradients for x, W and (if present) b.
func (op *LinearOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x, w := op.inputs[0], op.inputs[1]

	grads := make([]*tensor.RawTensor, len(op.inputs))
	grads[0] = backend.MatMul(outputGrad, w)
	grads[1] = backend.MatMul(backend.Transpose(outputGrad), x)
	if len(op.inputs) == 3 {
		grads[2] = backend.SumDim(outputGrad, 0)
	}
	return grads
}

// Inputs returns [x, W] or [x, W, b].
func (op *LinearOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns x @ W^T + b.
func (op *LinearOp) Output() *tensor.RawTensor {
	return op.output
}
