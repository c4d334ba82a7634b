// Package webgpu offloads matrix multiplication to the GPU through WebGPU.
//
// The backend embeds the CPU backend and replaces only MatMul, which is where
// LSTM training spends most of its time. Every other kernel, and MatMul itself
// whenever a GPU dispatch fails, runs on the CPU. Uses go-webgpu
// (github.com/go-webgpu/webgpu) for zero-CGO bindings; GPU support is only
// compiled on Windows, elsewhere New reports ErrUnavailable.
package webgpu

import (
	"errors"

	"github.com/born-ml/charrnn/internal/tensor"
)

// ErrUnavailable is returned by New when no usable GPU adapter exists.
var ErrUnavailable = errors.New("webgpu: not available")

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)
