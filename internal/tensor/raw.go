package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is the byte storage shared by a tensor and all of its views.
type tensorBuffer struct {
	data []byte
}

func newTensorBuffer(size int) *tensorBuffer {
	return &tensorBuffer{data: make([]byte, size)}
}

// RawTensor is the low-level tensor representation.
//
// Several RawTensors may share one buffer: a view created with View reads
// and writes a window of its parent's bytes, so updates made through either
// side are observed by the other. Flattened model parameters rely on this.
type RawTensor struct {
	buffer *tensorBuffer // Shared buffer
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides (row-major)
	dtype  DataType      // Runtime type information
	device Device        // Compute device
	offset int           // Byte offset of the first element inside buffer
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	numElements := shape.NumElements()
	byteSize := numElements * dtype.Size()

	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
		offset: 0,
	}, nil
}

// Zeros allocates a float32 tensor filled with zeros.
// Panics on an invalid shape, like the backend kernels do.
func Zeros(shape Shape, device Device) *RawTensor {
	raw, err := NewRaw(shape, Float32, device)
	if err != nil {
		panic(fmt.Sprintf("zeros: %v", err))
	}
	return raw
}

// FromFloat32 creates a float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, Float32, device)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return raw, nil
}

// FromInt32 creates an int32 tensor holding a copy of data.
func FromInt32(data []int32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, Int32, device)
	if err != nil {
		return nil, err
	}
	copy(raw.AsInt32(), data)
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the bytes covered by this tensor.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.buffer.data[r.offset : r.offset+r.ByteSize()]
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	data := r.buffer.data[r.offset:]
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	data := r.buffer.data[r.offset:]
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// View returns a tensor that aliases numElements(shape) elements of r,
// starting at element index start. No data is copied.
//
// Example:
//
//	flat := tensor.Zeros(tensor.Shape{10}, tensor.CPU)
//	w, _ := flat.View(4, tensor.Shape{2, 3}) // elements 4..9
//	w.AsFloat32()[0] = 1                      // flat.AsFloat32()[4] == 1
func (r *RawTensor) View(start int, shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid view shape: %w", err)
	}
	if start < 0 || start+shape.NumElements() > r.NumElements() {
		return nil, fmt.Errorf("view [%d, %d) out of range for %d elements",
			start, start+shape.NumElements(), r.NumElements())
	}
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset + start*r.dtype.Size(),
	}, nil
}

// SharesStorage reports whether r and other read the same buffer.
func (r *RawTensor) SharesStorage(other *RawTensor) bool {
	return other != nil && r.buffer == other.buffer
}

// StorageKey identifies the exact memory window of a tensor.
// Two tensors with equal keys alias each other element for element.
type StorageKey struct {
	buffer *tensorBuffer
	offset int
	size   int
}

// StorageKey returns the identity of the memory window covered by r.
func (r *RawTensor) StorageKey() StorageKey {
	return StorageKey{buffer: r.buffer, offset: r.offset, size: r.ByteSize()}
}

// Clone returns a deep copy of r with its own buffer.
func (r *RawTensor) Clone() *RawTensor {
	out := &RawTensor{
		buffer: newTensorBuffer(r.ByteSize()),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
	copy(out.buffer.data, r.Data())
	return out
}

// Reshape returns a view of r with a new shape and the same element count.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v into %v", r.shape, shape)
	}
	return r.View(0, shape)
}

// Fill sets every float32 element to value.
func (r *RawTensor) Fill(value float32) {
	data := r.AsFloat32()
	for i := range data {
		data[i] = value
	}
}

// Zero clears the tensor's bytes.
func (r *RawTensor) Zero() {
	clear(r.Data())
}

// Overlaps reports whether two windows share at least one byte of the same buffer.
func (k StorageKey) Overlaps(other StorageKey) bool {
	if k.buffer != other.buffer {
		return false
	}
	return k.offset < other.offset+other.size && other.offset < k.offset+k.size
}
