package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/charrnn/internal/nn"
)

// RMSProp divides each gradient by a running root mean square of its history.
//
// Update rule, per element:
//
//	m = alpha * m + (1 - alpha) * g²
//	x = x - lr * g / (sqrt(m) + eps)
//
// The accumulator m has the same length as the flat vector and starts at zero.
//
// Example:
//
//	opt := optim.NewRMSProp(flat, optim.RMSPropConfig{LR: 2e-3, Alpha: 0.95})
//	opt.Step()
type RMSProp struct {
	flat  *nn.FlatParams
	lr    float32
	alpha float32
	eps   float32
	sqAvg []float32
}

// RMSPropConfig holds configuration for RMSProp.
type RMSPropConfig struct {
	LR    float32 // Learning rate (default: 2e-3)
	Alpha float32 // Decay rate of the squared-gradient average (default: 0.95)
	Eps   float32 // Term for numerical stability (default: 1e-8)
}

// NewRMSProp creates an RMSProp optimizer over flat. Zero fields take defaults.
func NewRMSProp(flat *nn.FlatParams, config RMSPropConfig) *RMSProp {
	if config.LR == 0 {
		config.LR = 2e-3
	}
	if config.Alpha == 0 {
		config.Alpha = 0.95
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &RMSProp{
		flat:  flat,
		lr:    config.LR,
		alpha: config.Alpha,
		eps:   config.Eps,
		sqAvg: make([]float32, flat.Len()),
	}
}

// Step updates the flat values in place from the flat gradients.
func (o *RMSProp) Step() {
	x := o.flat.Values()
	g := o.flat.Grads()
	m := o.sqAvg
	for i := range x {
		gi := g[i]
		m[i] = o.alpha*m[i] + (1-o.alpha)*gi*gi
		x[i] -= o.lr * gi / (float32(math.Sqrt(float64(m[i]))) + o.eps)
	}
}

// GetLR returns the current learning rate.
func (o *RMSProp) GetLR() float32 {
	return o.lr
}

// SetLR replaces the learning rate.
func (o *RMSProp) SetLR(lr float32) {
	o.lr = lr
}

// Alpha returns the squared-gradient decay rate.
func (o *RMSProp) Alpha() float32 {
	return o.alpha
}

// Eps returns the stability term.
func (o *RMSProp) Eps() float32 {
	return o.eps
}

// SqAvg returns the running average of squared gradients.
func (o *RMSProp) SqAvg() []float32 {
	return o.sqAvg
}

// LoadSqAvg restores the accumulator, e.g. from a checkpoint.
func (o *RMSProp) LoadSqAvg(state []float32) error {
	if len(state) != len(o.sqAvg) {
		return fmt.Errorf("optim: accumulator has %d elements, want %d", len(state), len(o.sqAvg))
	}
	copy(o.sqAvg, state)
	return nil
}
