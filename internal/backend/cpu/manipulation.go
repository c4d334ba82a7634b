package cpu

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/tensor"
)

// Cat concatenates 2D tensors along dim 1. All inputs must have the same
// number of rows.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}
	if dim != 1 {
		panic(fmt.Sprintf("cat: only dim 1 is supported, got %d", dim))
	}

	rows := tensors[0].Shape()[0]
	total := 0
	for _, t := range tensors {
		checkFloat32("cat", t)
		check2D("cat", t)
		if t.Shape()[0] != rows {
			panic(fmt.Sprintf("cat: row mismatch %d vs %d", t.Shape()[0], rows))
		}
		total += t.Shape()[1]
	}

	result := newResult("cat", tensor.Shape{rows, total}, cpu.device)
	dst := result.AsFloat32()
	col := 0
	for _, t := range tensors {
		cols := t.Shape()[1]
		src := t.AsFloat32()
		for r := 0; r < rows; r++ {
			copy(dst[r*total+col:r*total+col+cols], src[r*cols:(r+1)*cols])
		}
		col += cols
	}
	return result
}

// Chunk splits a 2D tensor into n equal parts along dim 1.
func (cpu *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	checkFloat32("chunk", x)
	check2D("chunk", x)
	if dim != 1 {
		panic(fmt.Sprintf("chunk: only dim 1 is supported, got %d", dim))
	}

	rows, cols := x.Shape()[0], x.Shape()[1]
	if n <= 0 || cols%n != 0 {
		panic(fmt.Sprintf("chunk: cannot split %d columns into %d parts", cols, n))
	}

	size := cols / n
	src := x.AsFloat32()
	parts := make([]*tensor.RawTensor, n)
	for p := 0; p < n; p++ {
		part := newResult("chunk", tensor.Shape{rows, size}, cpu.device)
		dst := part.AsFloat32()
		for r := 0; r < rows; r++ {
			copy(dst[r*size:(r+1)*size], src[r*cols+p*size:r*cols+(p+1)*size])
		}
		parts[p] = part
	}
	return parts
}
