package ops

import (
	"github.com/born-ml/charrnn/internal/tensor"
)

// ChunkOp represents splitting a 2D tensor into n equal column blocks.
// LSTM and GRU cells use it to separate gate pre-activations.
//
// Backward concatenates the gradients of all chunks:
//
//	gradInput = Cat([gradOutput1, gradOutput2, ...], 1)
type ChunkOp struct {
	input   *tensor.RawTensor
	outputs []*tensor.RawTensor
}

// NewChunkOp creates a new chunk operation.
func NewChunkOp(input *tensor.RawTensor, outputs []*tensor.RawTensor) *ChunkOp {
	return &ChunkOp{input: input, outputs: outputs}
}

// Inputs returns the input tensor.
func (op *ChunkOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the first chunk.
func (op *ChunkOp) Output() *tensor.RawTensor {
	return op.outputs[0]
}

// Outputs returns all chunks (implements MultiOutputOperation).
func (op *ChunkOp) Outputs() []*tensor.RawTensor {
	return op.outputs
}

// Backward is not used for multi-output operations; the tape calls BackwardMulti.
func (op *ChunkOp) Backward(_ *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	panic("ChunkOp.Backward: multi-output operations require BackwardMulti")
}

// BackwardMulti concatenates the gradients of every chunk.
func (op *ChunkOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	if len(outputGrads) != len(op.outputs) {
		panic("ChunkOp.BackwardMulti: expected one gradient per chunk")
	}
	return []*tensor.RawTensor{backend.Cat(outputGrads, 1)}
}
