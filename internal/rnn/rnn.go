// Package rnn builds the recurrent cell graphs (LSTM, GRU, vanilla RNN) and
// unrolls them through time.
//
// A Cell maps (x, states...) to (states..., log-probabilities) for one
// timestep. Unroll produces one clone per timestep; clones share the
// prototype's parameters and keep private tapes, so each timestep can be
// backpropagated independently while gradients land in the shared flat
// gradient vector.
package rnn

import (
	"errors"
	"fmt"

	"github.com/born-ml/charrnn/internal/nn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Kind selects the recurrent cell variant.
type Kind string

// Supported cell variants.
const (
	LSTM Kind = "lstm"
	GRU  Kind = "gru"
	RNN  Kind = "rnn"
)

// Errors returned by this package.
var (
	ErrInvalidConfig = errors.New("rnn: invalid configuration")
	ErrNotFlattened  = errors.New("rnn: parameters are not flattened")
	ErrStaleClone    = errors.New("rnn: clone bound to stale parameter storage")
)

// initRange bounds the uniform weight initialization.
const initRange = 0.08

// Config describes the shape of a cell.
type Config struct {
	InputSize  int     // vocabulary size (one-hot input width, decoder output width)
	HiddenSize int     // units per layer
	NumLayers  int     // stacked recurrent layers
	Dropout    float32 // applied to layer outputs in training mode, in [0, 1)
	Seed       int64   // initialization and dropout seed
}

// Validate checks sizes and dropout.
func (c Config) Validate() error {
	switch {
	case c.InputSize <= 0:
		return fmt.Errorf("%w: input size %d", ErrInvalidConfig, c.InputSize)
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden size %d", ErrInvalidConfig, c.HiddenSize)
	case c.NumLayers <= 0:
		return fmt.Errorf("%w: layer count %d", ErrInvalidConfig, c.NumLayers)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout %v not in [0, 1)", ErrInvalidConfig, c.Dropout)
	}
	return nil
}

// ParseKind converts a model name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case LSTM, GRU, RNN:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown model %q (want lstm, gru or rnn)", ErrInvalidConfig, s)
	}
}

// StatesPerLayer returns how many state tensors one layer carries.
func (k Kind) StatesPerLayer() int {
	if k == LSTM {
		return 2 // c, h
	}
	return 1 // h
}

// Cell is one timestep of the recurrent network.
type Cell interface {
	nn.Module

	// Kind returns the cell variant.
	Kind() Kind

	// Config returns the cell hyperparameters.
	Config() Config

	// NumStates returns the number of state tensors, ordered layer by layer
	// (c then h per layer for LSTM).
	NumStates() int

	// ZeroState allocates zeroed states for batchSize sequences.
	ZeroState(batchSize int) []*tensor.RawTensor

	// Forward runs one timestep. x is the one-hot input [batch, InputSize].
	// In training mode dropout is active and the graph is recorded for
	// Backward; otherwise nothing is recorded.
	Forward(x *tensor.RawTensor, prev []*tensor.RawTensor, training bool) (next []*tensor.RawTensor, logProbs *tensor.RawTensor)

	// Backward backpropagates the last training Forward. dNext holds the
	// gradients for the returned states (nil entries mean zero). Parameter
	// gradients are added to the parameters' gradient buffers. Returns the
	// gradients for prev.
	Backward(dNext []*tensor.RawTensor, dLogProbs *tensor.RawTensor) []*tensor.RawTensor

	// Clone returns a graph sharing this cell's parameters with private
	// activations.
	Clone() Cell

	// BoundTo reports whether the cell reads the parameters owned by flat.
	BoundTo(flat *nn.FlatParams) error
}
