// Package ops defines the differentiable operations recorded by the gradient tape.
//
// Each operation keeps references to the tensors it read and produced during
// the forward pass and computes input gradients from the output gradient:
//   - LinearOp: y = x @ W^T + b
//   - AddOp, MulOp, OneMinusOp: element-wise arithmetic
//   - SigmoidOp, TanhOp: gate activations
//   - CatOp, ChunkOp: column concatenation and splitting
//   - DropoutOp: inverted dropout with a fixed mask
//   - LogSoftmaxOp: row-wise log-probabilities
package ops

import "github.com/born-ml/charrnn/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns one gradient per input; nil means no gradient flows there.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// MultiOutputOperation represents an operation that produces multiple outputs.
//
// The tape collects gradients for ALL outputs (zero-filling the missing ones)
// before calling BackwardMulti.
type MultiOutputOperation interface {
	Operation

	// Outputs returns all output tensors produced by this operation.
	Outputs() []*tensor.RawTensor

	// BackwardMulti computes input gradients given gradients for every output.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}
