//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/charrnn/internal/tensor"
)

// matmulShader performs C = A @ B with A [M, K], B [K, N], C [M, N].
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    M: u32,
    K: u32,
    N: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.M || col >= params.N) {
        return;
    }

    var sum: f32 = 0.0;
    for (var k: u32 = 0u; k < params.K; k = k + 1u) {
        sum = sum + a[row * params.K + k] * b[k * params.N + col];
    }
    result[row * params.N + col] = sum;
}
`

// compileShader compiles WGSL code once per name.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, ok := b.shaders[name]; ok {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()
	return shader
}

// pipeline returns a cached ComputePipeline with auto layout.
func (b *Backend) pipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if p, ok := b.pipelines[name]; ok {
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	p := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = p
	b.mu.Unlock()
	return p
}

// upload creates a GPU buffer initialized with data.
// Sizes are rounded up to 16 bytes to satisfy uniform alignment.
func (b *Backend) upload(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := (uint64(len(data)) + 15) &^ 15
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(unsafe.Slice((*byte)(mapped), size), data)
	buffer.Unmap()
	return buffer
}

// download copies a storage buffer back to host memory through a staging buffer.
func (b *Backend) download(src *wgpu.Buffer, size uint64) ([]byte, error) {
	const stagingUsage = wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst
	staging := b.pool.acquire(size, stagingUsage)
	defer b.pool.release(staging, size, stagingUsage)

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: map staging buffer: %w", err)
	}
	mapped := staging.GetMappedRange(0, size)
	out := make([]byte, size)
	//nolint:gosec // unsafe.Slice over the mapped range
	copy(out, unsafe.Slice((*byte)(mapped), size))
	staging.Unmap()
	return out, nil
}

func (b *Backend) runMatMul(a, other *tensor.RawTensor) (*tensor.RawTensor, error) {
	if a.DType() != tensor.Float32 || other.DType() != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: matmul requires float32")
	}
	m, k := a.Shape()[0], a.Shape()[1]
	k2, n := other.Shape()[0], other.Shape()[1]
	if k != k2 {
		return nil, fmt.Errorf("webgpu: matmul shape mismatch: [%d,%d] @ [%d,%d]", m, k, k2, n)
	}

	p := b.pipeline("matmul", b.compileShader("matmul", matmulShader))

	bufA := b.upload(a.Data(), wgpu.BufferUsageStorage)
	defer bufA.Release()
	bufB := b.upload(other.Data(), wgpu.BufferUsageStorage)
	defer bufB.Release()

	const resultUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc
	resultSize := uint64(m * n * 4)
	bufC := b.pool.acquire(resultSize, resultUsage)
	defer b.pool.release(bufC, resultSize, resultUsage)

	params := make([]byte, 16)
	//nolint:gosec // G115: shape dimensions are positive
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	//nolint:gosec // G115: shape dimensions are positive
	binary.LittleEndian.PutUint32(params[4:8], uint32(k))
	//nolint:gosec // G115: shape dimensions are positive
	binary.LittleEndian.PutUint32(params[8:12], uint32(n))
	bufParams := b.upload(params, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	defer bufParams.Release()

	bindGroup := b.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufA, 0, uint64(a.ByteSize())),
		wgpu.BufferBindingEntry(1, bufB, 0, uint64(other.ByteSize())),
		wgpu.BufferBindingEntry(2, bufC, 0, resultSize),
		wgpu.BufferBindingEntry(3, bufParams, 0, 16),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bindGroup, nil)
	//nolint:gosec // G115: workgroup counts are small positive values
	pass.DispatchWorkgroups(uint32((n+15)/16), uint32((m+15)/16), 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	data, err := b.download(bufC, resultSize)
	if err != nil {
		return nil, err
	}

	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(result.Data(), data)
	return result, nil
}
