//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxPooledPerKey caps the free list of one (size, usage) pair.
const maxPooledPerKey = 8

type poolKey struct {
	size  uint64
	usage wgpu.BufferUsage
}

// bufferPool recycles GPU buffers by exact size and usage.
// Training repeats the same matmul shapes every timestep, so exact keys hit
// almost always after the first step.
type bufferPool struct {
	device *wgpu.Device

	mu   sync.Mutex
	free map[poolKey][]*wgpu.Buffer

	hits, misses uint64
}

func newBufferPool(device *wgpu.Device) *bufferPool {
	return &bufferPool{device: device, free: make(map[poolKey][]*wgpu.Buffer)}
}

// acquire returns an unmapped buffer of exactly size bytes with usage.
func (p *bufferPool) acquire(size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	key := poolKey{size, usage}

	p.mu.Lock()
	if list := p.free[key]; len(list) > 0 {
		buf := list[len(list)-1]
		p.free[key] = list[:len(list)-1]
		p.hits++
		p.mu.Unlock()
		return buf
	}
	p.misses++
	p.mu.Unlock()

	return p.device.CreateBuffer(&wgpu.BufferDescriptor{Usage: usage, Size: size})
}

// release hands buf back for reuse, or frees it when the list is full.
func (p *bufferPool) release(buf *wgpu.Buffer, size uint64, usage wgpu.BufferUsage) {
	key := poolKey{size, usage}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[key]) >= maxPooledPerKey {
		buf.Release()
		return
	}
	p.free[key] = append(p.free[key], buf)
}

// stats returns pool hits, misses and the number of idle buffers.
func (p *bufferPool) stats() (hits, misses uint64, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, list := range p.free {
		idle += len(list)
	}
	return p.hits, p.misses, idle
}

// clear frees every idle buffer.
func (p *bufferPool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, list := range p.free {
		for _, buf := range list {
			buf.Release()
		}
		delete(p.free, key)
	}
}
