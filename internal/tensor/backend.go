package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Every operation allocates its result; inputs are never modified, so the
// autodiff tape can keep references to them for the backward pass.
//
// Implementations:
//   - CPU: pure Go kernels, matmul through gonum BLAS
//   - WebGPU: CPU kernels with matrix multiplication offloaded to the GPU
type Backend interface {
	// Element-wise binary operations.
	// b may also be a row vector [N] or [1, N] broadcast over the rows of a [M, N].
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Matrix operations (2D only)
	MatMul(a, b *RawTensor) *RawTensor
	Transpose(t *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	// Math operations (element-wise)
	Exp(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor

	// LogSoftmax normalizes each row of a 2D tensor in log space.
	LogSoftmax(x *RawTensor) *RawTensor

	// Reduction operations
	SumDim(x *RawTensor, dim int) *RawTensor // sum along dimension, dimension dropped

	// Manipulation operations (2D, along dim 1)
	Cat(tensors []*RawTensor, dim int) *RawTensor
	Chunk(x *RawTensor, n, dim int) []*RawTensor

	// Metadata
	Name() string
	Device() Device
}
