package nn

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/tensor"
)

// NLLLoss is the negative log-likelihood criterion over log-probabilities.
//
// For log-probabilities logp [batch, classes] and integer targets:
//
//	loss = -mean_b logp[b, target[b]]
//
// The gradient is -1/batch at each target position and zero elsewhere.
type NLLLoss struct{}

// Forward returns the mean negative log-likelihood of targets.
func (NLLLoss) Forward(logProbs *tensor.RawTensor, targets []int32) float32 {
	rows, cols := checkNLL(logProbs, targets)
	data := logProbs.AsFloat32()
	var sum float64
	for b, y := range targets {
		sum -= float64(data[b*cols+int(y)])
	}
	return float32(sum / float64(rows))
}

// Backward returns d(loss)/d(logProbs).
func (NLLLoss) Backward(logProbs *tensor.RawTensor, targets []int32) *tensor.RawTensor {
	rows, cols := checkNLL(logProbs, targets)
	grad := tensor.Zeros(logProbs.Shape(), logProbs.Device())
	data := grad.AsFloat32()
	scale := -1 / float32(rows)
	for b, y := range targets {
		data[b*cols+int(y)] = scale
	}
	return grad
}

func checkNLL(logProbs *tensor.RawTensor, targets []int32) (int, int) {
	shape := logProbs.Shape()
	if len(shape) != 2 || shape[0] != len(targets) {
		panic(fmt.Sprintf("NLLLoss: log-probs %v do not match %d targets", shape, len(targets)))
	}
	for _, y := range targets {
		if y < 0 || int(y) >= shape[1] {
			panic(fmt.Sprintf("NLLLoss: target %d out of range [0, %d)", y, shape[1]))
		}
	}
	return shape[0], shape[1]
}
