// Package device picks the compute backend for a training run.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/charrnn/internal/backend/cpu"
	"github.com/born-ml/charrnn/internal/backend/webgpu"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Device names accepted by Select.
const (
	NameCPU    = "cpu"
	NameWebGPU = "webgpu"
)

// ErrUnavailable reports that a requested device cannot be used.
var ErrUnavailable = errors.New("device: unavailable")

// ErrUnknown reports an unrecognized device name.
var ErrUnknown = errors.New("device: unknown device")

// gpuBackend wraps webgpu.New so tests can simulate a missing adapter.
var gpuBackend = func() (tensor.Backend, func(), error) {
	b, err := webgpu.New()
	if err != nil {
		return nil, nil, err
	}
	return b, b.Release, nil
}

// Selection is the backend chosen for a run.
type Selection struct {
	Backend  tensor.Backend
	Fallback bool // requested device was unavailable, CPU used instead
	release  func()
}

// Release frees device resources. Safe to call on a CPU selection.
func (s *Selection) Release() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// Select returns the backend for name ("cpu" or "webgpu").
//
// An unavailable GPU is not fatal: a warning is logged and the CPU backend
// is returned with Fallback set.
func Select(name string, log logrus.FieldLogger) (*Selection, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameCPU:
		return &Selection{Backend: cpu.New()}, nil
	case NameWebGPU, "gpu":
		b, release, err := gpuBackend()
		if err != nil {
			log.WithError(fmt.Errorf("%w: %w", ErrUnavailable, err)).
				WithField("requested", NameWebGPU).
				Warn("GPU device unavailable, falling back to CPU")
			return &Selection{Backend: cpu.New(), Fallback: true}, nil
		}
		return &Selection{Backend: b, release: release}, nil
	default:
		return nil, fmt.Errorf("%w %q (want %s or %s)", ErrUnknown, name, NameCPU, NameWebGPU)
	}
}
