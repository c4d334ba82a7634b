package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/charrnn/internal/tensor"
)

// MatMul performs matrix multiplication C = A @ B.
// A is [M, K], B is [K, N], C is [M, N].
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	checkFloat32("matmul", a)
	checkFloat32("matmul", b)
	check2D("matmul", a)
	check2D("matmul", b)

	m, k := a.Shape()[0], a.Shape()[1]
	k2, n := b.Shape()[0], b.Shape()[1]
	if k != k2 {
		panic(fmt.Sprintf("matmul: shape mismatch: [%d,%d] @ [%d,%d]", m, k, k2, n))
	}

	result := newResult("matmul", tensor.Shape{m, n}, cpu.device)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(a), general(b), 0, general(result))
	return result
}

// Transpose returns the transpose of a 2D tensor.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor) *tensor.RawTensor {
	checkFloat32("transpose", t)
	check2D("transpose", t)

	rows, cols := t.Shape()[0], t.Shape()[1]
	result := newResult("transpose", tensor.Shape{cols, rows}, cpu.device)
	src := t.AsFloat32()
	dst := result.AsFloat32()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst[j*rows+i] = src[i*cols+j]
		}
	}
	return result
}

// general wraps a contiguous row-major 2D tensor for gonum BLAS.
func general(t *tensor.RawTensor) blas32.General {
	shape := t.Shape()
	return blas32.General{
		Rows:   shape[0],
		Cols:   shape[1],
		Stride: shape[1],
		Data:   t.AsFloat32(),
	}
}
