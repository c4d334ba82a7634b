package ops_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/charrnn/internal/autodiff/ops"
	"github.com/born-ml/charrnn/internal/backend/cpu"
	"github.com/born-ml/charrnn/internal/tensor"
)

func raw(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape, tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestAddOp_BackwardBroadcastBias(t *testing.T) {
	backend := cpu.New()
	a := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	b := raw(t, []float32{1, 1, 1}, tensor.Shape{3})
	out := backend.Add(a, b)

	grad := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	grads := ops.NewAddOp(a, b, out).Backward(grad, backend)

	assert.Equal(t, grad.AsFloat32(), grads[0].AsFloat32())
	assert.True(t, grads[1].Shape().Equal(tensor.Shape{3}))
	assert.Equal(t, []float32{5, 7, 9}, grads[1].AsFloat32())
}

func TestLinearOp_BackwardShapes(t *testing.T) {
	backend := cpu.New()
	x := raw(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}) // [batch, in]
	w := raw(t, []float32{1, 0, 0, 0, 1, 0}, tensor.Shape{2, 3}) // [out, in]
	out := backend.MatMul(x, backend.Transpose(w))

	grad := raw(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2})
	grads := ops.NewLinearOp(x, w, nil, out).Backward(grad, backend)

	assert.Len(t, grads, 2)
	assert.True(t, grads[0].Shape().Equal(x.Shape()))
	assert.True(t, grads[1].Shape().Equal(w.Shape()))
	// dW = grad^T @ x
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, grads[1].AsFloat32())
	// dx = grad @ W
	assert.Equal(t, []float32{1, 0, 0, 0, 1, 0}, grads[0].AsFloat32())
}

func TestCatOp_BackwardSplitsColumns(t *testing.T) {
	backend := cpu.New()
	x := raw(t, []float32{1, 2}, tensor.Shape{2, 1})
	h := raw(t, []float32{3, 4, 5, 6}, tensor.Shape{2, 2})
	out := backend.Cat([]*tensor.RawTensor{x, h}, 1)

	grad := raw(t, []float32{10, 11, 12, 20, 21, 22}, tensor.Shape{2, 3})
	grads := ops.NewCatOp([]*tensor.RawTensor{x, h}, out).Backward(grad, backend)

	assert.Equal(t, []float32{10, 20}, grads[0].AsFloat32())
	assert.Equal(t, []float32{11, 12, 21, 22}, grads[1].AsFloat32())
}

func TestChunkOp_BackwardPanicsOnSingle(t *testing.T) {
	backend := cpu.New()
	x := raw(t, []float32{1, 2}, tensor.Shape{1, 2})
	op := ops.NewChunkOp(x, backend.Chunk(x, 2, 1))

	assert.Panics(t, func() { op.Backward(x, backend) })
	assert.Len(t, op.Outputs(), 2)
}
