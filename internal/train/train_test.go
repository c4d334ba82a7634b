package train

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/charrnn/internal/backend/cpu"
	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/optim"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// fourSymbols is 64 characters over "abcd": ten 2 x 3 batches once truncated.
var fourSymbols = strings.Repeat("abcdbadc", 8)

func testConfig(kind rnn.Kind) SessionConfig {
	return SessionConfig{
		Kind:      kind,
		Cell:      rnn.Config{HiddenSize: 8, NumLayers: 1, Seed: 123},
		SeqLength: 3,
		BatchSize: 2,
		GradClip:  5,
		RMSProp:   optim.RMSPropConfig{LR: 2e-3, Alpha: 0.95},
	}
}

func newTestSession(t *testing.T, cfg SessionConfig, fracs corpus.Fractions) (*Session, *corpus.Loader) {
	t.Helper()
	loader, err := corpus.LoadString(fourSymbols, cfg.BatchSize, cfg.SeqLength, fracs)
	require.NoError(t, err)
	s, err := NewSession(cfg, loader.Vocab(), cpu.New())
	require.NoError(t, err)
	return s, loader
}

var defaultFracs = corpus.Fractions{Train: 0.8, Val: 0.2}

func TestStep_EndToEndLSTM(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	require.Equal(t, 4, loader.Vocab().Size())

	before := append([]float32(nil), s.Params().Values()...)
	n := s.Params().Len()

	batch, _, ok := loader.NextBatch(corpus.Train)
	require.True(t, ok)
	res, err := s.Step(batch)
	require.NoError(t, err)

	assert.False(t, math.IsNaN(float64(res.Loss)) || math.IsInf(float64(res.Loss), 0), "loss %v", res.Loss)
	assert.Greater(t, res.Loss, float32(0))
	assert.Greater(t, res.GradNorm, float32(0))
	assert.Equal(t, n, s.Params().Len(), "parameter count changed")

	changed := false
	for i, v := range s.Params().Values() {
		if v != before[i] {
			changed = true
			break
		}
	}
	assert.True(t, changed, "no parameter moved")
}

func TestStep_AllKindsLearn(t *testing.T) {
	for _, kind := range []rnn.Kind{rnn.LSTM, rnn.GRU, rnn.RNN} {
		t.Run(string(kind), func(t *testing.T) {
			cfg := testConfig(kind)
			cfg.Cell.NumLayers = 2
			cfg.RMSProp.LR = 1e-2
			s, loader := newTestSession(t, cfg, defaultFracs)
			ntrain := loader.SplitSize(corpus.Train)

			for epoch := 0; epoch < 8; epoch++ {
				for i := 0; i < ntrain; i++ {
					batch, _, _ := loader.NextBatch(corpus.Train)
					res, err := s.Step(batch)
					require.NoError(t, err)
					s.History().RecordTrain(epoch*ntrain+i+1, float64(epoch), res.Loss)
				}
			}
			losses := s.History().TrainLosses
			first := mean(losses[:ntrain])
			last := mean(losses[len(losses)-ntrain:])
			assert.Less(t, last, first, "loss did not decrease on a periodic corpus")
		})
	}
}

// recordingCell remembers the states handed to Forward.
type recordingCell struct {
	rnn.Cell
	prev []*tensor.RawTensor
	next []*tensor.RawTensor
}

func (c *recordingCell) Forward(x *tensor.RawTensor, prev []*tensor.RawTensor, training bool) ([]*tensor.RawTensor, *tensor.RawTensor) {
	next, logProbs := c.Cell.Forward(x, prev, training)
	c.prev, c.next = prev, next
	return next, logProbs
}

func TestStep_CarriesFinalStateIntoNextBatch(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	first := &recordingCell{Cell: s.clones[0]}
	last := &recordingCell{Cell: s.clones[len(s.clones)-1]}
	s.clones[0], s.clones[len(s.clones)-1] = first, last

	batch, _, _ := loader.NextBatch(corpus.Train)
	_, err := s.Step(batch)
	require.NoError(t, err)

	carried := s.States()
	require.Len(t, carried, len(last.next))
	for i := range carried {
		assert.Same(t, last.next[i], carried[i], "state %d is not the final state of the batch", i)
	}

	batch, _, _ = loader.NextBatch(corpus.Train)
	_, err = s.Step(batch)
	require.NoError(t, err)
	for i := range carried {
		assert.Same(t, carried[i], first.prev[i], "state %d was not fed to the next batch", i)
	}

	nonZero := false
	for _, v := range carried[len(carried)-1].AsFloat32() {
		if v != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero, "carried hidden state is all zeros")

	s.ResetState()
	for _, st := range s.States() {
		for _, v := range st.AsFloat32() {
			require.Zero(t, v)
		}
	}
}

func TestStep_NonFiniteLossLeavesParametersUntouched(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	values := s.Params().Values()
	values[len(values)-1] = float32(math.NaN()) // last decoder bias

	before := make([]uint32, len(values))
	for i, v := range values {
		before[i] = math.Float32bits(v)
	}

	batch, _, _ := loader.NextBatch(corpus.Train)
	_, err := s.Step(batch)
	require.ErrorIs(t, err, ErrNumericalDivergence)

	for i, v := range s.Params().Values() {
		require.Equal(t, before[i], math.Float32bits(v), "value %d changed", i)
	}
	for _, m := range s.Optimizer().SqAvg() {
		require.Zero(t, m)
	}
}

func TestStep_RejectsMismatchedBatch(t *testing.T) {
	s, _ := newTestSession(t, testConfig(rnn.GRU), defaultFracs)
	_, err := s.Step(corpus.Batch{Inputs: [][]int32{{0, 1}}, Targets: [][]int32{{1, 2}}})
	assert.ErrorIs(t, err, ErrBatchShape)
}

func TestStep_ClipsGradient(t *testing.T) {
	cfg := testConfig(rnn.RNN)
	cfg.GradClip = 1e-3
	s, loader := newTestSession(t, cfg, defaultFracs)

	batch, _, _ := loader.NextBatch(corpus.Train)
	res, err := s.Step(batch)
	require.NoError(t, err)
	require.True(t, res.Clipped)
	assert.InDelta(t, 1e-3, optim.GradNorm(s.Params()), 1e-6)
}

func TestEvaluate(t *testing.T) {
	cfg := testConfig(rnn.LSTM)
	cfg.Cell.NumLayers = 2
	cfg.Cell.Dropout = 0.5
	s, loader := newTestSession(t, cfg, defaultFracs)
	require.Equal(t, 2, loader.SplitSize(corpus.Val))

	batch, _, _ := loader.NextBatch(corpus.Train)
	_, err := s.Step(batch)
	require.NoError(t, err)
	carried := s.States()

	a, ok, err := s.Evaluate(loader, corpus.Val)
	require.NoError(t, err)
	require.True(t, ok)
	b, _, err := s.Evaluate(loader, corpus.Val)
	require.NoError(t, err)

	assert.Equal(t, a, b, "evaluation is not deterministic with dropout configured")
	assert.InDelta(t, math.Log(4), a, 1, "untrained model should be near uniform")
	for i := range carried {
		assert.Same(t, carried[i], s.States()[i], "evaluation replaced the training state")
	}
}

func TestEvaluate_EmptySplit(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), corpus.Fractions{Train: 1})
	_, ok, err := s.Evaluate(loader, corpus.Val)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointName(t *testing.T) {
	assert.Equal(t, "lm_lstm_epoch1.50_1.2346.born", CheckpointName("lstm", 1.5, 1.23456))
}

type memoryRecorder struct {
	iterations  []IterationRecord
	validations []ValidationRecord
}

func (m *memoryRecorder) RecordIteration(_ context.Context, rec IterationRecord) error {
	m.iterations = append(m.iterations, rec)
	return nil
}

func (m *memoryRecorder) RecordValidation(_ context.Context, rec ValidationRecord) error {
	m.validations = append(m.validations, rec)
	return nil
}

func TestTrainer_Run(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	dir := t.TempDir()
	rec := &memoryRecorder{}

	tr, err := NewTrainer(s, loader, TrainerConfig{
		MaxEpochs:     2,
		EvalValEvery:  5,
		Decay:         optim.Decay{Rate: 0.5, After: 1},
		CheckpointDir: dir,
		Savefile:      "test",
	}, WithRecorder(rec))
	require.NoError(t, err)
	require.Equal(t, 16, tr.TotalIterations())

	sum, err := tr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Converged, sum.State)
	assert.Equal(t, 16, sum.Iterations)
	assert.Equal(t, 16, sum.LastIteration)
	assert.InDelta(t, 2.0, sum.Epoch, 1e-9)
	assert.InDelta(t, 2e-3*0.25, sum.LearningRate, 1e-9, "decay at the ends of epochs 1 and 2")
	assert.Len(t, s.History().TrainLosses, 16)
	assert.Len(t, rec.iterations, 16)

	// Evaluations at 5, 10, 15 and the final iteration.
	require.Len(t, rec.validations, 4)
	assert.Equal(t, []int{5, 10, 15, 16}, []int{
		rec.validations[0].Iteration, rec.validations[1].Iteration,
		rec.validations[2].Iteration, rec.validations[3].Iteration,
	})
	for _, v := range rec.validations {
		_, err := os.Stat(v.Checkpoint)
		assert.NoError(t, err)
	}
	assert.Equal(t, rec.validations[3].Checkpoint, sum.LastCheckpoint)
	assert.True(t, strings.HasPrefix(filepath.Base(sum.LastCheckpoint), "lm_test_epoch2.00_"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestTrainer_CheckpointRoundTripAppendsHistory(t *testing.T) {
	cfg := testConfig(rnn.GRU)
	s, loader := newTestSession(t, cfg, defaultFracs)
	dir := t.TempDir()

	tr, err := NewTrainer(s, loader, TrainerConfig{MaxEpochs: 1, CheckpointDir: dir, Savefile: "gru"})
	require.NoError(t, err)
	first, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, first.LastCheckpoint)
	saved := append([]float32(nil), s.History().TrainLosses...)
	require.Len(t, saved, 8)

	ckpt, err := LoadCheckpoint(first.LastCheckpoint)
	require.NoError(t, err)
	assert.Equal(t, "gru", ckpt.Meta.Model)
	assert.Equal(t, 8, ckpt.Meta.RNNSize)
	assert.Equal(t, 1, ckpt.Meta.NumLayers)
	assert.Equal(t, 4, ckpt.Meta.InputSize)
	assert.Equal(t, 8, ckpt.Meta.Iteration)
	assert.Equal(t, s.Params().Values(), ckpt.Params)
	assert.Equal(t, s.Optimizer().SqAvg(), ckpt.SqAvg)

	loader2, err := corpus.LoadString(fourSymbols, cfg.BatchSize, cfg.SeqLength, defaultFracs)
	require.NoError(t, err)
	resumed, err := Resume(ckpt, cfg, loader2.Vocab(), cpu.New())
	require.NoError(t, err)

	assert.Equal(t, s.Config().Kind, resumed.Config().Kind)
	assert.Equal(t, s.Config().Cell, resumed.Config().Cell)
	assert.Equal(t, s.Params().Values(), resumed.Params().Values())
	assert.Equal(t, saved, resumed.History().TrainLosses)

	tr2, err := NewTrainer(resumed, loader2, TrainerConfig{MaxEpochs: 2, CheckpointDir: dir, Savefile: "gru"})
	require.NoError(t, err)
	second, err := tr2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, second.Iterations)
	assert.Equal(t, 16, second.LastIteration)
	losses := resumed.History().TrainLosses
	require.Len(t, losses, 16)
	assert.Equal(t, saved, losses[:8], "history was reset instead of appended")
	assert.Contains(t, resumed.History().ValLosses, 8)
	assert.Contains(t, resumed.History().ValLosses, 16)
}

func TestResume_VocabMismatch(t *testing.T) {
	s, _ := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	ckpt, err := s.Snapshot(nil)
	require.NoError(t, err)

	other, err := corpus.LoadString(strings.Repeat("abce", 16), 2, 3, defaultFracs)
	require.NoError(t, err)
	_, err = Resume(ckpt, testConfig(rnn.LSTM), other.Vocab(), cpu.New())
	assert.ErrorIs(t, err, ErrVocabMismatch)
}

func TestTrainer_LossExplodingAborts(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	tr, err := NewTrainer(s, loader, TrainerConfig{MaxEpochs: 1})
	require.NoError(t, err)
	tr.firstLoss, tr.haveFirst = 0.01, true

	sum, err := tr.Run(context.Background())
	require.ErrorIs(t, err, ErrLossExploding)
	assert.Equal(t, Aborted, sum.State)
	assert.Equal(t, Aborted, tr.State())
	assert.Equal(t, 1, sum.Iterations)
}

func TestTrainer_DivergenceAborts(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	s.Params().Values()[0] = float32(math.NaN()) // the first input symbol reads it
	dir := t.TempDir()

	tr, err := NewTrainer(s, loader, TrainerConfig{MaxEpochs: 1, EvalValEvery: 1, CheckpointDir: dir})
	require.NoError(t, err)
	sum, err := tr.Run(context.Background())
	require.ErrorIs(t, err, ErrNumericalDivergence)
	assert.Equal(t, Aborted, sum.State)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a diverged model was checkpointed")
}

func TestTrainer_CancelledBeforeFirstIteration(t *testing.T) {
	s, loader := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	tr, err := NewTrainer(s, loader, TrainerConfig{MaxEpochs: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := tr.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Aborted, sum.State)
	assert.Zero(t, sum.Iterations)
	assert.Empty(t, s.History().TrainLosses)
}

func TestNewTrainer_RejectsMismatchedLoader(t *testing.T) {
	s, _ := newTestSession(t, testConfig(rnn.LSTM), defaultFracs)
	loader, err := corpus.LoadString(fourSymbols, 4, 3, defaultFracs)
	require.NoError(t, err)
	_, err = NewTrainer(s, loader, TrainerConfig{})
	assert.ErrorIs(t, err, ErrBatchShape)
}
