package ops

import "github.com/born-ml/charrnn/internal/tensor"

// DropoutOp represents inverted dropout: output = x * mask, where mask holds
// 0 for dropped units and 1/(1-p) for kept ones.
type DropoutOp struct {
	input  *tensor.RawTensor
	mask   *tensor.RawTensor
	output *tensor.RawTensor
}

// NewDropoutOp creates a new dropout operation.
func NewDropoutOp(input, mask, output *tensor.RawTensor) *DropoutOp {
	return &DropoutOp{input: input, mask: mask, output: output}
}

// Inputs returns the input tensor.
func (op *DropoutOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *DropoutOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward applies the same mask to the gradient.
func (op *DropoutOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.mask)}
}
