package rnn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/charrnn/internal/autodiff"
	"github.com/born-ml/charrnn/internal/nn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// graph is the Cell implementation shared by all variants.
type graph struct {
	kind    Kind
	cfg     Config
	backend tensor.Backend

	// Shared with every clone.
	layers  []layer
	decoder *nn.Linear

	// Private to this graph.
	ad   *autodiff.Backend
	rng  *rand.Rand
	flat *nn.FlatParams // storage the graph was unrolled against

	// Cached by the last training Forward.
	prev     []*tensor.RawTensor
	next     []*tensor.RawTensor
	logProbs *tensor.RawTensor
	clones   int64 // clones produced, used to derive dropout seeds
}

func (g *graph) Kind() Kind     { return g.kind }
func (g *graph) Config() Config { return g.cfg }

func (g *graph) NumStates() int {
	return g.cfg.NumLayers * g.kind.StatesPerLayer()
}

// Parameters returns layer parameters bottom-up followed by the decoder.
func (g *graph) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range g.layers {
		params = append(params, l.parameters()...)
	}
	return append(params, g.decoder.Parameters()...)
}

func (g *graph) ZeroState(batchSize int) []*tensor.RawTensor {
	states := make([]*tensor.RawTensor, g.NumStates())
	for i := range states {
		states[i] = tensor.Zeros(tensor.Shape{batchSize, g.cfg.HiddenSize}, g.backend.Device())
	}
	return states
}

func (g *graph) Forward(x *tensor.RawTensor, prev []*tensor.RawTensor, training bool) ([]*tensor.RawTensor, *tensor.RawTensor) {
	if len(prev) != g.NumStates() {
		panic(fmt.Sprintf("rnn: %s forward got %d states, want %d", g.kind, len(prev), g.NumStates()))
	}

	tape := g.ad.Tape()
	tape.Clear()
	if training {
		tape.StartRecording()
	} else {
		tape.StopRecording()
	}

	per := g.kind.StatesPerLayer()
	next := make([]*tensor.RawTensor, 0, len(prev))
	input := x
	for i, l := range g.layers {
		if i > 0 && training {
			input = g.ad.Dropout(input, g.cfg.Dropout, g.rng)
		}
		h, states := l.step(g.ad, input, prev[i*per:(i+1)*per])
		next = append(next, states...)
		input = h
	}
	if training {
		input = g.ad.Dropout(input, g.cfg.Dropout, g.rng)
	}
	logProbs := g.ad.LogSoftmax(g.decoder.Forward(g.ad, input))

	if training {
		g.prev, g.next, g.logProbs = prev, next, logProbs
	} else {
		g.prev, g.next, g.logProbs = nil, nil, nil
	}
	return next, logProbs
}

func (g *graph) Backward(dNext []*tensor.RawTensor, dLogProbs *tensor.RawTensor) []*tensor.RawTensor {
	if g.logProbs == nil {
		panic("rnn: Backward without a recorded training Forward")
	}

	seeds := make(map[*tensor.RawTensor]*tensor.RawTensor, len(g.next)+1)
	seeds[g.logProbs] = dLogProbs
	for i, d := range dNext {
		if d != nil {
			if existing, ok := seeds[g.next[i]]; ok {
				seeds[g.next[i]] = g.backend.Add(existing, d)
			} else {
				seeds[g.next[i]] = d
			}
		}
	}
	grads := g.ad.Tape().Backward(seeds, g.backend)

	// Aliased parameters share one value tensor, so its gradient is added once.
	done := make(map[*tensor.RawTensor]bool)
	for _, p := range g.Parameters() {
		v := p.Tensor()
		if done[v] {
			continue
		}
		done[v] = true
		if grad, ok := grads[v]; ok {
			p.AccumulateGrad(grad)
		}
	}

	dPrev := make([]*tensor.RawTensor, len(g.prev))
	for i, s := range g.prev {
		if grad, ok := grads[s]; ok {
			dPrev[i] = grad
		} else {
			dPrev[i] = tensor.Zeros(s.Shape(), g.backend.Device())
		}
	}
	return dPrev
}

func (g *graph) Clone() Cell {
	g.clones++
	return &graph{
		kind:    g.kind,
		cfg:     g.cfg,
		backend: g.backend,
		layers:  g.layers,
		decoder: g.decoder,
		ad:      autodiff.New(g.backend),
		rng:     rand.New(rand.NewSource(g.cfg.Seed + g.clones)),
		flat:    g.flat,
	}
}

func (g *graph) BoundTo(flat *nn.FlatParams) error {
	if g.flat == nil {
		return ErrNotFlattened
	}
	if g.flat != flat || flat.Stale() {
		return ErrStaleClone
	}
	for _, p := range g.Parameters() {
		if p.Owner() != flat {
			return fmt.Errorf("%w: %s", ErrStaleClone, p.Name())
		}
	}
	return nil
}

// bindingOf returns the FlatParams owning every parameter of c.
func bindingOf(c Cell) (*nn.FlatParams, error) {
	var flat *nn.FlatParams
	for _, p := range c.Parameters() {
		owner := p.Owner()
		if owner == nil || owner.Stale() {
			return nil, fmt.Errorf("%w: %s", ErrNotFlattened, p.Name())
		}
		if flat != nil && owner != flat {
			return nil, fmt.Errorf("%w: %s belongs to a different vector", ErrNotFlattened, p.Name())
		}
		flat = owner
	}
	if flat == nil {
		return nil, ErrNotFlattened
	}
	return flat, nil
}
