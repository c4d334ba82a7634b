package ops

import (
	"math"

	"github.com/born-ml/charrnn/internal/tensor"
)

// LogSoftmaxOp represents row-wise log-softmax over a [batch, classes] tensor.
//
// Backward pass, per row:
//
//	dx = grad - softmax(x) * sum(grad)
type LogSoftmaxOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewLogSoftmaxOp creates a new log-softmax operation.
func NewLogSoftmaxOp(input, output *tensor.RawTensor) *LogSoftmaxOp {
	return &LogSoftmaxOp{input: input, output: output}
}

// Inputs returns the input tensor.
func (op *LogSoftmaxOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the log-probabilities.
func (op *LogSoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes the input gradient from the stored log-probabilities.
func (op *LogSoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	rows, cols := op.output.Shape()[0], op.output.Shape()[1]
	logp := op.output.AsFloat32()
	g := outputGrad.AsFloat32()

	grad := tensor.Zeros(op.output.Shape(), backend.Device())
	dst := grad.AsFloat32()
	for r := 0; r < rows; r++ {
		base := r * cols
		var sum float32
		for c := 0; c < cols; c++ {
			sum += g[base+c]
		}
		for c := 0; c < cols; c++ {
			p := float32(math.Exp(float64(logp[base+c])))
			dst[base+c] = g[base+c] - p*sum
		}
	}
	return []*tensor.RawTensor{grad}
}
