package ops

import "github.com/born-ml/charrnn/internal/tensor"

// SigmoidOp represents the sigmoid activation operation: σ(x) = 1 / (1 + exp(-x)).
type SigmoidOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSigmoidOp creates a new sigmoid operation.
func NewSigmoidOp(input, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{input: input, output: output}
}

// Inputs returns the input tensors.
func (op *SigmoidOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *SigmoidOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes grad * σ(x) * (1 - σ(x)) from the stored output.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	y := op.output.AsFloat32()
	grad := tensor.Zeros(op.output.Shape(), backend.Device())
	dst := grad.AsFloat32()
	for i, v := range y {
		dst[i] = g[i] * v * (1 - v)
	}
	return []*tensor.RawTensor{grad}
}

// TanhOp represents the hyperbolic tangent activation.
type TanhOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTanhOp creates a new tanh operation.
func NewTanhOp(input, output *tensor.RawTensor) *TanhOp {
	return &TanhOp{input: input, output: output}
}

// Inputs returns the input tensors.
func (op *TanhOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the output tensor.
func (op *TanhOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes grad * (1 - tanh²(x)).
func (op *TanhOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	g := outputGrad.AsFloat32()
	y := op.output.AsFloat32()
	grad := tensor.Zeros(op.output.Shape(), backend.Device())
	dst := grad.AsFloat32()
	for i, v := range y {
		dst[i] = g[i] * (1 - v*v)
	}
	return []*tensor.RawTensor{grad}
}
