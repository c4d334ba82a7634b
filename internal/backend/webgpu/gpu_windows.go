//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/charrnn/internal/backend/cpu"
	"github.com/born-ml/charrnn/internal/tensor"
)

// minGPUWork is the smallest M*K*N product worth a GPU round trip.
const minGPUWork = 1 << 15

// Backend runs matrix multiplication on the GPU and everything else on the CPU.
type Backend struct {
	*cpu.CPUBackend

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	pool     *bufferPool

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	adapterName string
}

// New creates a WebGPU-accelerated backend.
// Returns ErrUnavailable (wrapped) if the native library or an adapter is missing.
func New() (backend *Backend, err error) {
	// wgpu panics when the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: native library: %v", ErrUnavailable, r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %w", ErrUnavailable, err)
	}

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %w", ErrUnavailable, err)
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %w", ErrUnavailable, err)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: no queue", ErrUnavailable)
	}

	return &Backend{
		CPUBackend:  cpu.New(),
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		pool:        newBufferPool(device),
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterName: "WebGPU adapter",
	}, nil
}

// IsAvailable reports whether a WebGPU adapter can be acquired.
func IsAvailable() bool {
	b, err := New()
	if err != nil {
		return false
	}
	b.Release()
	return true
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// AdapterName returns a description of the GPU adapter.
func (b *Backend) AdapterName() string {
	return b.adapterName
}

// MatMul computes a @ other on the GPU. Small products and failed dispatches
// fall back to the CPU kernel.
func (b *Backend) MatMul(a, other *tensor.RawTensor) *tensor.RawTensor {
	if len(a.Shape()) != 2 || len(other.Shape()) != 2 ||
		a.Shape()[0]*a.Shape()[1]*other.Shape()[1] < minGPUWork {
		return b.CPUBackend.MatMul(a, other)
	}
	result, err := b.runMatMul(a, other)
	if err != nil {
		return b.CPUBackend.MatMul(a, other)
	}
	return result
}

// Release releases all WebGPU resources.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	for _, s := range b.shaders {
		s.Release()
	}
	b.pipelines = map[string]*wgpu.ComputePipeline{}
	b.shaders = map[string]*wgpu.ShaderModule{}
	if b.pool != nil {
		b.pool.clear()
		b.pool = nil
	}

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}
