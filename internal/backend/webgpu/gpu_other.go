//go:build !windows

package webgpu

import (
	"github.com/born-ml/charrnn/internal/backend/cpu"
)

// Backend is the GPU-accelerated backend. Without WebGPU support it is never
// constructed; the type exists so callers compile on every platform.
type Backend struct {
	*cpu.CPUBackend
}

// New reports ErrUnavailable on platforms without WebGPU support.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() bool {
	return false
}

// AdapterName returns a description of the GPU adapter.
func (b *Backend) AdapterName() string {
	return ""
}

// Release frees GPU resources.
func (b *Backend) Release() {}
