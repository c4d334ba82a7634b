// Package optim updates the flat parameter vector of a recurrent model.
//
// This package provides:
//   - Optimizer interface
//   - RMSProp: running average of squared gradients
//   - ClipGradNorm: global L2 gradient-norm clipping
//   - Decay: step learning-rate decay by epoch
//
// Example usage:
//
//	opt := optim.NewRMSProp(flat, optim.RMSPropConfig{LR: 2e-3, Alpha: 0.95})
//	for iter := range iterations {
//	    flat.ZeroGrad()
//	    // ... forward and backward through the unrolled clones ...
//	    optim.ClipGradNorm(flat, 5)
//	    opt.Step()
//	}
package optim

// Optimizer updates parameters in place from their accumulated gradients.
type Optimizer interface {
	// Step applies one update using the current gradient vector.
	Step()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR replaces the learning rate (used by decay and resume).
	SetLR(lr float32)
}
