package cpu

import (
	"math"

	"github.com/born-ml/charrnn/internal/parallel"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Sigmoid computes σ(x) = 1 / (1 + exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, func(v float32) float32 {
		return float32(1.0 / (1.0 + math.Exp(-float64(v))))
	})
}

// Tanh computes the hyperbolic tangent element-wise.
func (cpu *CPUBackend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("tanh", x, func(v float32) float32 {
		return float32(math.Tanh(float64(v)))
	})
}

// Exp computes e^x element-wise.
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, func(v float32) float32 {
		return float32(math.Exp(float64(v)))
	})
}

// LogSoftmax computes log(softmax(x)) for every row of a 2D tensor.
//
// Numerically stable via log-sum-exp:
//
//	log_softmax(x)_i = x_i - max(x) - log(sum(exp(x - max(x))))
func (cpu *CPUBackend) LogSoftmax(x *tensor.RawTensor) *tensor.RawTensor {
	checkFloat32("log_softmax", x)
	check2D("log_softmax", x)

	rows, cols := x.Shape()[0], x.Shape()[1]
	result := newResult("log_softmax", x.Shape(), cpu.device)
	src := x.AsFloat32()
	dst := result.AsFloat32()

	parallel.Range(rows, func(start, end int) {
		for r := start; r < end; r++ {
			logSoftmaxRow(src[r*cols:(r+1)*cols], dst[r*cols:(r+1)*cols])
		}
	}, cpu.rowConfig(cols))
	return result
}

func logSoftmaxRow(row, out []float32) {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sumExp float64
	for _, v := range row {
		sumExp += math.Exp(float64(v - maxVal))
	}
	logSum := float32(math.Log(sumExp))
	for i, v := range row {
		out[i] = v - maxVal - logSum
	}
}

func (cpu *CPUBackend) unary(op string, x *tensor.RawTensor, f func(float32) float32) *tensor.RawTensor {
	checkFloat32(op, x)
	result := newResult(op, x.Shape(), cpu.device)
	src := x.AsFloat32()
	dst := result.AsFloat32()
	parallel.For(len(dst), func(i int) {
		dst[i] = f(src[i])
	}, cpu.par)
	return result
}
