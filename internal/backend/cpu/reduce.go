package cpu

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/tensor"
)

// SumDim sums a 2D tensor along dim and drops that dimension.
//
//	SumDim([M, N], 0) -> [N]   (column sums, used for bias gradients)
//	SumDim([M, N], 1) -> [M]   (row sums)
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	checkFloat32("sum_dim", x)
	check2D("sum_dim", x)

	rows, cols := x.Shape()[0], x.Shape()[1]
	src := x.AsFloat32()

	switch dim {
	case 0:
		result := newResult("sum_dim", tensor.Shape{cols}, cpu.device)
		dst := result.AsFloat32()
		for r := 0; r < rows; r++ {
			row := src[r*cols : (r+1)*cols]
			for c, v := range row {
				dst[c] += v
			}
		}
		return result
	case 1:
		result := newResult("sum_dim", tensor.Shape{rows}, cpu.device)
		dst := result.AsFloat32()
		for r := 0; r < rows; r++ {
			var sum float32
			for _, v := range src[r*cols : (r+1)*cols] {
				sum += v
			}
			dst[r] = sum
		}
		return result
	default:
		panic(fmt.Sprintf("sum_dim: dimension %d out of range for tensor of rank 2", dim))
	}
}
