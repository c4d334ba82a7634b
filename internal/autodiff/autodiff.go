// Package autodiff implements reverse-mode differentiation for recurrent cells.
//
// Backend wraps a tensor.Backend (CPU or WebGPU) and records every
// differentiable operation on its own GradientTape. Each time-unrolled clone
// of a cell owns one Backend, so clones share parameter tensors but never
// share recorded activations.
//
// Usage:
//
//	ad := autodiff.New(cpu.New())
//	ad.Tape().StartRecording()
//	h := ad.Tanh(ad.Linear(x, w, b))
//	grads := ad.Tape().Backward(map[*tensor.RawTensor]*tensor.RawTensor{h: dh}, ad.Inner())
package autodiff

import (
	"math/rand"

	"github.com/born-ml/charrnn/internal/autodiff/ops"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Backend decorates a compute backend with operation recording.
type Backend struct {
	inner tensor.Backend
	tape  *GradientTape
}

// New creates a recording backend around inner with a fresh tape.
func New(inner tensor.Backend) *Backend {
	return &Backend{
		inner: inner,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
func (b *Backend) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend.
func (b *Backend) Inner() tensor.Backend {
	return b.inner
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return b.inner.Device()
}

// Linear computes x @ W^T + bias. bias may be nil.
func (b *Backend) Linear(x, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.MatMul(x, b.inner.Transpose(weight))
	if bias != nil {
		result = b.inner.Add(result, bias)
	}
	b.tape.Record(ops.NewLinearOp(x, weight, bias, result))
	return result
}

// Add performs element-wise addition (c may be a broadcast row vector).
func (b *Backend) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Add(a, c)
	b.tape.Record(ops.NewAddOp(a, c, result))
	return result
}

// Mul performs element-wise multiplication.
func (b *Backend) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Mul(a, c)
	b.tape.Record(ops.NewMulOp(a, c, result))
	return result
}

// OneMinus computes 1 - x.
func (b *Backend) OneMinus(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.AddScalar(b.inner.MulScalar(x, -1), 1)
	b.tape.Record(ops.NewOneMinusOp(x, result))
	return result
}

// Sigmoid applies the logistic function.
func (b *Backend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Sigmoid(x)
	b.tape.Record(ops.NewSigmoidOp(x, result))
	return result
}

// Tanh applies the hyperbolic tangent.
func (b *Backend) Tanh(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Tanh(x)
	b.tape.Record(ops.NewTanhOp(x, result))
	return result
}

// Cat concatenates 2D tensors along columns.
func (b *Backend) Cat(tensors ...*tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.Cat(tensors, 1)
	b.tape.Record(ops.NewCatOp(tensors, result))
	return result
}

// Chunk splits a 2D tensor into n equal column blocks.
func (b *Backend) Chunk(x *tensor.RawTensor, n int) []*tensor.RawTensor {
	parts := b.inner.Chunk(x, n, 1)
	b.tape.Record(ops.NewChunkOp(x, parts))
	return parts
}

// LogSoftmax computes row-wise log-probabilities.
func (b *Backend) LogSoftmax(x *tensor.RawTensor) *tensor.RawTensor {
	result := b.inner.LogSoftmax(x)
	b.tape.Record(ops.NewLogSoftmaxOp(x, result))
	return result
}

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p). With p == 0 the input is returned unchanged and nothing is recorded.
func (b *Backend) Dropout(x *tensor.RawTensor, p float32, rng *rand.Rand) *tensor.RawTensor {
	if p <= 0 {
		return x
	}
	mask := tensor.Zeros(x.Shape(), b.inner.Device())
	scale := 1 / (1 - p)
	m := mask.AsFloat32()
	for i := range m {
		if rng.Float32() >= p {
			m[i] = scale
		}
	}
	result := b.inner.Mul(x, mask)
	b.tape.Record(ops.NewDropoutOp(x, mask, result))
	return result
}
