package ops

import (
	"github.com/born-ml/charrnn/internal/tensor"
)

// CatOp represents column concatenation of 2D tensors.
//
// Backward splits the output gradient at the input boundaries:
//
//	inputs: x [B, V], h [B, H]
//	output: [B, V+H]
//	gradX: grad[:, :V], gradH: grad[:, V:]
type CatOp struct {
	inputs []*tensor.RawTensor
	sizes  []int // Column count of each input
	output *tensor.RawTensor
}

// NewCatOp creates a new cat operation.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor) *CatOp {
	sizes := make([]int, len(inputs))
	for i, in := range inputs {
		sizes[i] = in.Shape().Cols()
	}
	return &CatOp{inputs: inputs, sizes: sizes, output: output}
}

// Inputs returns the input tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor.
func (op *CatOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward returns one column slice of the gradient per input.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	rows, total := outputGrad.Shape()[0], outputGrad.Shape()[1]
	src := outputGrad.AsFloat32()

	grads := make([]*tensor.RawTensor, len(op.inputs))
	col := 0
	for i, size := range op.sizes {
		grad := tensor.Zeros(tensor.Shape{rows, size}, backend.Device())
		dst := grad.AsFloat32()
		for r := 0; r < rows; r++ {
			copy(dst[r*size:(r+1)*size], src[r*total+col:r*total+col+size])
		}
		grads[i] = grad
		col += size
	}
	return grads
}
