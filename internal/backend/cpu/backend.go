// Package cpu implements the CPU backend with gonum BLAS integration.
package cpu

import (
	"fmt"

	"github.com/born-ml/charrnn/internal/parallel"
	"github.com/born-ml/charrnn/internal/tensor"
)

// minParallelElements keeps small element-wise kernels on the calling goroutine.
const minParallelElements = 4096

// CPUBackend implements tensor operations on CPU.
//
// Matrix products go through gonum's float32 BLAS; element-wise kernels are
// split across goroutines with internal/parallel once tensors are large enough.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend.
func New() *CPUBackend {
	cfg := parallel.DefaultConfig()
	cfg.MinChunkSize = minParallelElements
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// NewWithConfig creates a CPU backend with an explicit parallelism config.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{device: tensor.CPU, par: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition (b may be a broadcast row vector).
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs element-wise subtraction (b may be a broadcast row vector).
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs element-wise multiplication (b may be a broadcast row vector).
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

// binary applies f element-wise. b must either match a's shape or be a row
// vector whose length equals a's last dimension.
func (cpu *CPUBackend) binary(op string, a, b *tensor.RawTensor, f func(x, y float32) float32) *tensor.RawTensor {
	checkFloat32(op, a)
	checkFloat32(op, b)

	result := newResult(op, a.Shape(), cpu.device)
	src := a.AsFloat32()
	other := b.AsFloat32()
	dst := result.AsFloat32()

	switch {
	case a.Shape().Equal(b.Shape()):
		parallel.For(len(dst), func(i int) {
			dst[i] = f(src[i], other[i])
		}, cpu.par)
	case isRowVector(b.Shape(), a.Shape()):
		cols := len(other)
		parallel.For(len(dst), func(i int) {
			dst[i] = f(src[i], other[i%cols])
		}, cpu.par)
	default:
		panic(fmt.Sprintf("%s: shapes not compatible: %v vs %v", op, a.Shape(), b.Shape()))
	}

	return result
}

// isRowVector reports whether b ([N] or [1, N]) broadcasts over the rows of a.
func isRowVector(b, a tensor.Shape) bool {
	if len(a) == 0 || b.NumElements() != a.Cols() {
		return false
	}
	return len(b) == 1 || (len(b) == 2 && b[0] == 1)
}

// rowConfig converts the element threshold into a row threshold for kernels
// that hand whole rows of width cols to each goroutine.
func (cpu *CPUBackend) rowConfig(cols int) parallel.Config {
	cfg := cpu.par
	if cols > 0 {
		cfg.MinChunkSize = max(cfg.MinChunkSize/cols, 1)
	}
	return cfg
}

func newResult(op string, shape tensor.Shape, device tensor.Device) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

func checkFloat32(op string, x *tensor.RawTensor) {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("%s: unsupported dtype %s (only float32 supported)", op, x.DType()))
	}
}

func check2D(op string, x *tensor.RawTensor) {
	if len(x.Shape()) != 2 {
		panic(fmt.Sprintf("%s: expected 2D tensor, got shape %v", op, x.Shape()))
	}
}
