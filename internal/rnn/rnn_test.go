package rnn_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/charrnn/internal/backend/cpu"
	"github.com/born-ml/charrnn/internal/nn"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/tensor"
)

func smallConfig() rnn.Config {
	return rnn.Config{InputSize: 4, HiddenSize: 3, NumLayers: 2, Seed: 11}
}

func newFlattened(t *testing.T, kind rnn.Kind, cfg rnn.Config) (rnn.Cell, *nn.FlatParams) {
	t.Helper()
	cell, err := rnn.New(kind, cfg, cpu.New())
	require.NoError(t, err)
	flat, err := nn.Flatten(cell)
	require.NoError(t, err)
	return cell, flat
}

// sequence runs clones over inputs/targets and returns the summed NLL.
// With backward set it also backpropagates through every clone.
func sequence(clones []rnn.Cell, vocab int, inputs, targets [][]int32, backward bool) float64 {
	var crit nn.NLLLoss
	states := clones[0].ZeroState(len(inputs[0]))
	outs := make([][]*tensor.RawTensor, len(clones))
	logps := make([]*tensor.RawTensor, len(clones))

	var loss float64
	for step, c := range clones {
		x := rnn.OneHot(inputs[step], vocab, tensor.CPU)
		states, logps[step] = c.Forward(x, states, backward)
		outs[step] = states
		loss += float64(crit.Forward(logps[step], targets[step]))
	}
	if backward {
		var dNext []*tensor.RawTensor
		for step := len(clones) - 1; step >= 0; step-- {
			dLogp := crit.Backward(logps[step], targets[step])
			dNext = clones[step].Backward(dNext, dLogp)
		}
	}
	return loss
}

func TestNew_InvalidConfig(t *testing.T) {
	backend := cpu.New()
	cases := []rnn.Config{
		{InputSize: 0, HiddenSize: 3, NumLayers: 1},
		{InputSize: 4, HiddenSize: -1, NumLayers: 1},
		{InputSize: 4, HiddenSize: 3, NumLayers: 0},
		{InputSize: 4, HiddenSize: 3, NumLayers: 1, Dropout: 1},
		{InputSize: 4, HiddenSize: 3, NumLayers: 1, Dropout: -0.1},
	}
	for _, cfg := range cases {
		_, err := rnn.New(rnn.LSTM, cfg, backend)
		assert.ErrorIs(t, err, rnn.ErrInvalidConfig, "config %+v", cfg)
	}

	_, err := rnn.New(rnn.Kind("transformer"), smallConfig(), backend)
	assert.ErrorIs(t, err, rnn.ErrInvalidConfig)
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"lstm", "gru", "rnn"} {
		k, err := rnn.ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, rnn.Kind(s), k)
	}
	_, err := rnn.ParseKind("LSTM2")
	assert.Error(t, err)
}

func TestNew_LSTMInitialization(t *testing.T) {
	cfg := smallConfig()
	cell, err := rnn.New(rnn.LSTM, cfg, cpu.New())
	require.NoError(t, err)

	assert.Equal(t, 4, cell.NumStates())
	h := cfg.HiddenSize
	for _, p := range cell.Parameters() {
		data := p.Tensor().AsFloat32()
		switch p.Name() {
		case "layer0.gates.bias", "layer1.gates.bias":
			for i, v := range data {
				if i >= h && i < 2*h {
					assert.Equal(t, float32(1), v, "%s[%d] forget bias", p.Name(), i)
				} else {
					assert.Equal(t, float32(0), v, "%s[%d]", p.Name(), i)
				}
			}
		case "decoder.bias":
			assert.Equal(t, make([]float32, cfg.InputSize), data)
		default:
			for _, v := range data {
				assert.LessOrEqual(t, math.Abs(float64(v)), 0.08)
			}
		}
	}

	// Gates of layer 0 read [x; h]; layer 1 reads [h_below; h].
	assert.Equal(t, tensor.Shape{4 * h, cfg.InputSize + h}, cell.Parameters()[0].Shape())
	assert.Equal(t, tensor.Shape{4 * h, 2 * h}, cell.Parameters()[2].Shape())
	// 12*7+12 + 12*6+12 + 4*3+4
	assert.Equal(t, 196, rnn.NumParameters(cell))
}

func TestForward_ShapesAndNormalization(t *testing.T) {
	for _, kind := range []rnn.Kind{rnn.LSTM, rnn.GRU, rnn.RNN} {
		t.Run(string(kind), func(t *testing.T) {
			cell, err := rnn.New(kind, smallConfig(), cpu.New())
			require.NoError(t, err)

			states := cell.ZeroState(2)
			x := rnn.OneHot([]int32{1, 3}, 4, tensor.CPU)
			next, logp := cell.Forward(x, states, false)

			assert.Len(t, next, cell.NumStates())
			for _, s := range next {
				assert.Equal(t, tensor.Shape{2, 3}, s.Shape())
			}
			require.Equal(t, tensor.Shape{2, 4}, logp.Shape())
			for r := 0; r < 2; r++ {
				var sum float64
				for _, v := range logp.AsFloat32()[r*4 : (r+1)*4] {
					sum += math.Exp(float64(v))
				}
				assert.InDelta(t, 1, sum, 1e-5)
			}
		})
	}
}

func TestForward_EvalDoesNotRecord(t *testing.T) {
	cell, _ := newFlattened(t, rnn.LSTM, smallConfig())
	x := rnn.OneHot([]int32{0}, 4, tensor.CPU)
	_, logp := cell.Forward(x, cell.ZeroState(1), false)

	assert.Panics(t, func() { cell.Backward(nil, logp) })
}

// Finite differences on the flat vector agree with BPTT gradients.
func TestBackward_GradientCheck(t *testing.T) {
	inputs := [][]int32{{0, 2}, {1, 3}, {3, 0}}
	targets := [][]int32{{1, 3}, {3, 0}, {2, 1}}

	for _, kind := range []rnn.Kind{rnn.LSTM, rnn.GRU, rnn.RNN} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := smallConfig()
			cell, flat := newFlattened(t, kind, cfg)
			clones, err := rnn.Unroll(cell, len(inputs))
			require.NoError(t, err)

			// Move off the symmetric initialization.
			vals := flat.Values()
			for i := range vals {
				vals[i] += float32(math.Sin(float64(i))) * 0.3
			}

			flat.ZeroGrad()
			sequence(clones, cfg.InputSize, inputs, targets, true)
			analytic := append([]float32(nil), flat.Grads()...)

			const eps = 1e-2
			for i := 0; i < flat.Len(); i += 3 {
				orig := vals[i]
				vals[i] = orig + eps
				plus := sequence(clones, cfg.InputSize, inputs, targets, false)
				vals[i] = orig - eps
				minus := sequence(clones, cfg.InputSize, inputs, targets, false)
				vals[i] = orig

				numeric := (plus - minus) / (2 * eps)
				assert.InDelta(t, numeric, float64(analytic[i]), 2e-3+2e-2*math.Abs(numeric),
					"flat[%d]", i)
			}
		})
	}
}

func TestUnroll_ClonesShareParameters(t *testing.T) {
	cell, flat := newFlattened(t, rnn.GRU, smallConfig())
	clones, err := rnn.Unroll(cell, 5)
	require.NoError(t, err)
	require.Len(t, clones, 5)

	protoParams := cell.Parameters()
	for _, c := range clones {
		params := c.Parameters()
		require.Len(t, params, len(protoParams))
		for i := range params {
			assert.Same(t, protoParams[i], params[i])
			assert.Same(t, protoParams[i].Tensor(), params[i].Tensor())
		}
		assert.NoError(t, c.BoundTo(flat))
	}

	// An optimizer write to the flat vector reaches every clone.
	flat.Values()[0] = 123
	assert.Equal(t, float32(123), clones[4].Parameters()[0].Tensor().AsFloat32()[0])
}

func TestUnroll_RequiresFlattening(t *testing.T) {
	cell, err := rnn.New(rnn.LSTM, smallConfig(), cpu.New())
	require.NoError(t, err)

	_, err = rnn.Unroll(cell, 3)
	assert.ErrorIs(t, err, rnn.ErrNotFlattened)

	assert.ErrorIs(t, cell.Clone().BoundTo(nil), rnn.ErrNotFlattened)
}

func TestUnroll_StaleAfterReflatten(t *testing.T) {
	cell, _ := newFlattened(t, rnn.RNN, smallConfig())
	clones, err := rnn.Unroll(cell, 2)
	require.NoError(t, err)

	flat2, err := nn.Flatten(cell)
	require.NoError(t, err)

	assert.ErrorIs(t, clones[0].BoundTo(flat2), rnn.ErrStaleClone)

	fresh, err := rnn.Unroll(cell, 2)
	require.NoError(t, err)
	assert.NoError(t, fresh[1].BoundTo(flat2))
}

// Two clones backpropagated into one buffer give the sum of their separate
// contributions.
func TestBackward_AccumulatesAcrossClones(t *testing.T) {
	cfg := smallConfig()
	cell, flat := newFlattened(t, rnn.LSTM, cfg)
	clones, err := rnn.Unroll(cell, 2)
	require.NoError(t, err)

	var crit nn.NLLLoss
	xA := rnn.OneHot([]int32{0, 1}, 4, tensor.CPU)
	xB := rnn.OneHot([]int32{2, 3}, 4, tensor.CPU)
	y := []int32{3, 2}

	run := func(c rnn.Cell, x *tensor.RawTensor) {
		_, logp := c.Forward(x, c.ZeroState(2), true)
		c.Backward(nil, crit.Backward(logp, y))
	}

	flat.ZeroGrad()
	run(clones[0], xA)
	gA := append([]float32(nil), flat.Grads()...)

	flat.ZeroGrad()
	run(clones[1], xB)
	gB := append([]float32(nil), flat.Grads()...)

	flat.ZeroGrad()
	run(clones[0], xA)
	run(clones[1], xB)
	for i, v := range flat.Grads() {
		assert.InDelta(t, gA[i]+gB[i], v, 1e-5, "grad[%d]", i)
	}
}

func TestOneHot(t *testing.T) {
	x := rnn.OneHot([]int32{2, 0}, 3, tensor.CPU)
	assert.Equal(t, []float32{0, 0, 1, 1, 0, 0}, x.AsFloat32())
	assert.Panics(t, func() { rnn.OneHot([]int32{3}, 3, tensor.CPU) })
}
