package rnn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/charrnn/internal/autodiff"
	"github.com/born-ml/charrnn/internal/nn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// New builds and initializes a prototype cell of the given kind.
//
// Weights are drawn from U(-0.08, 0.08); biases start at zero except the
// LSTM forget gate, which starts at 1.
func New(kind Kind, cfg Config, backend tensor.Backend) (Cell, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	device := backend.Device()
	g := &graph{
		kind:    kind,
		cfg:     cfg,
		backend: backend,
		layers:  make([]layer, cfg.NumLayers),
		decoder: nn.NewLinear("decoder", cfg.HiddenSize, cfg.InputSize, true, device),
		ad:      autodiff.New(backend),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}

	for i := range g.layers {
		in := cfg.HiddenSize
		if i == 0 {
			in = cfg.InputSize
		}
		name := fmt.Sprintf("layer%d", i)
		switch kind {
		case LSTM:
			g.layers[i] = newLSTMLayer(name, in, cfg.HiddenSize, device)
		case GRU:
			g.layers[i] = newGRULayer(name, in, cfg.HiddenSize, device)
		case RNN:
			g.layers[i] = newVanillaLayer(name, in, cfg.HiddenSize, device)
		}
	}

	initRNG := rand.New(rand.NewSource(cfg.Seed))
	for _, l := range g.layers {
		l.initialize(initRNG)
	}
	initLinear(g.decoder, initRNG)

	return g, nil
}

// NumParameters returns the number of scalars across the cell's unique parameters.
func NumParameters(c Cell) int {
	seen := make(map[tensor.StorageKey]bool)
	n := 0
	for _, p := range c.Parameters() {
		key := p.Tensor().StorageKey()
		if !seen[key] {
			seen[key] = true
			n += p.Tensor().NumElements()
		}
	}
	return n
}
