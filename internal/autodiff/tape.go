package autodiff

import (
	"github.com/born-ml/charrnn/internal/autodiff/ops"
	"github.com/born-ml/charrnn/internal/tensor"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Every time-unrolled clone owns one tape, so each timestep can be
// backpropagated on its own.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations ...
//	grads := tape.Backward(map[*tensor.RawTensor]*tensor.RawTensor{out: dOut}, backend)
type GradientTape struct {
	operations []ops.Operation // Recorded operations (in execution order)
	recording  bool            // Whether tape is currently recording
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 64),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape.
// Only records if the tape is currently recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear removes all recorded operations. Recording state is preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward walks the tape in reverse starting from the seed gradients.
//
// seeds maps output tensors (log-probabilities, next states) to the gradient
// of the loss with respect to them. Outputs without a seed contribute nothing.
// Gradients of tensors read by several operations are summed.
//
// Returns a map from RawTensor to its accumulated gradient.
func (t *GradientTape) Backward(
	seeds map[*tensor.RawTensor]*tensor.RawTensor,
	backend tensor.Backend,
) map[*tensor.RawTensor]*tensor.RawTensor {
	grads := make(map[*tensor.RawTensor]*tensor.RawTensor, len(t.operations)+len(seeds))
	for out, g := range seeds {
		if g != nil {
			grads[out] = g
		}
	}
	if len(t.operations) == 0 {
		return grads
	}

	// Gradient kernels must not land on the tape.
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		inputGrads := t.computeInputGrads(op, grads, backend)
		if inputGrads == nil {
			continue
		}
		accumulateGrads(op, inputGrads, grads, backend)
	}

	return grads
}

// computeInputGrads returns nil if no gradient flows to op.
func (t *GradientTape) computeInputGrads(
	op ops.Operation,
	grads map[*tensor.RawTensor]*tensor.RawTensor,
	backend tensor.Backend,
) []*tensor.RawTensor {
	if multiOp, ok := op.(ops.MultiOutputOperation); ok {
		outputs := multiOp.Outputs()
		outputGrads := make([]*tensor.RawTensor, len(outputs))
		hasAny := false
		for j, out := range outputs {
			if g, exists := grads[out]; exists {
				outputGrads[j] = g
				hasAny = true
			}
		}
		if !hasAny {
			return nil
		}
		for j, out := range outputs {
			if outputGrads[j] == nil {
				outputGrads[j] = tensor.Zeros(out.Shape(), backend.Device())
			}
		}
		return multiOp.BackwardMulti(outputGrads, backend)
	}

	outputGrad, ok := grads[op.Output()]
	if !ok {
		return nil
	}
	return op.Backward(outputGrad, backend)
}

func accumulateGrads(
	op ops.Operation,
	inputGrads []*tensor.RawTensor,
	grads map[*tensor.RawTensor]*tensor.RawTensor,
	backend tensor.Backend,
) {
	for j, input := range op.Inputs() {
		if j >= len(inputGrads) || inputGrads[j] == nil {
			continue
		}
		if existing, ok := grads[input]; ok {
			grads[input] = backend.Add(existing, inputGrads[j])
		} else {
			grads[input] = inputGrads[j]
		}
	}
}
