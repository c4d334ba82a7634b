// Package train runs truncated backpropagation through time over an unrolled
// recurrent cell.
//
// A Session owns everything that changes while training: the prototype cell,
// its flattened parameter and gradient vectors, the per-timestep clones, the
// RMSProp state, the recurrent state carried between minibatches and the loss
// history. Step trains on one minibatch; a Trainer drives Steps over epochs,
// evaluates the validation split and writes checkpoints.
package train

import (
	"fmt"
	"math"
	"time"

	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/nn"
	"github.com/born-ml/charrnn/internal/optim"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/tensor"
)

// SessionConfig describes the model and the optimizer of a Session.
type SessionConfig struct {
	Kind      rnn.Kind
	Cell      rnn.Config // InputSize 0 means the vocabulary size
	SeqLength int
	BatchSize int
	GradClip  float32 // maximum gradient L2 norm; 0 disables clipping
	RMSProp   optim.RMSPropConfig
}

// StepResult summarizes one training step.
type StepResult struct {
	Loss     float32 // mean per-timestep NLL
	GradNorm float32 // gradient norm before clipping
	Clipped  bool
	Duration time.Duration
}

// Session is the mutable training state of one run.
type Session struct {
	cfg     SessionConfig
	backend tensor.Backend
	vocab   *corpus.Vocab

	proto  rnn.Cell
	flat   *nn.FlatParams
	clones []rnn.Cell
	opt    *optim.RMSProp
	loss   nn.NLLLoss

	states  []*tensor.RawTensor // carried into the next Step
	history History
}

// NewSession builds a freshly initialized model for vocab.
func NewSession(cfg SessionConfig, vocab *corpus.Vocab, backend tensor.Backend) (*Session, error) {
	if cfg.Cell.InputSize == 0 {
		cfg.Cell.InputSize = vocab.Size()
	}
	if cfg.Cell.InputSize != vocab.Size() {
		return nil, fmt.Errorf("%w: model input size %d, vocabulary size %d",
			rnn.ErrInvalidConfig, cfg.Cell.InputSize, vocab.Size())
	}
	if cfg.SeqLength <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: seq_length %d, batch_size %d",
			rnn.ErrInvalidConfig, cfg.SeqLength, cfg.BatchSize)
	}

	proto, err := rnn.New(cfg.Kind, cfg.Cell, backend)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		backend: backend,
		vocab:   vocab,
		proto:   proto,
		history: History{ValLosses: map[int]float32{}},
	}
	if err := s.flatten(); err != nil {
		return nil, err
	}
	s.opt = optim.NewRMSProp(s.flat, cfg.RMSProp)
	s.ResetState()
	return s, nil
}

// flatten moves the prototype's parameters into a new flat vector and
// rebuilds the clones against it.
func (s *Session) flatten() error {
	flat, err := nn.Flatten(s.proto)
	if err != nil {
		return fmt.Errorf("flatten parameters: %w", err)
	}
	clones, err := rnn.Unroll(s.proto, s.cfg.SeqLength)
	if err != nil {
		return fmt.Errorf("unroll %d timesteps: %w", s.cfg.SeqLength, err)
	}
	for t, c := range clones {
		if err := c.BoundTo(flat); err != nil {
			return fmt.Errorf("clone %d: %w", t, err)
		}
	}
	s.flat, s.clones = flat, clones
	return nil
}

// Config returns the session configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

// Vocab returns the vocabulary the model was built for.
func (s *Session) Vocab() *corpus.Vocab { return s.vocab }

// Cell returns the prototype cell.
func (s *Session) Cell() rnn.Cell { return s.proto }

// Params returns the flat parameter and gradient vectors.
func (s *Session) Params() *nn.FlatParams { return s.flat }

// Clones returns the per-timestep graphs.
func (s *Session) Clones() []rnn.Cell { return s.clones }

// Optimizer returns the RMSProp optimizer.
func (s *Session) Optimizer() *optim.RMSProp { return s.opt }

// History returns the loss history, shared with the session.
func (s *Session) History() *History { return &s.history }

// States returns the recurrent state the next Step starts from.
func (s *Session) States() []*tensor.RawTensor { return s.states }

// ResetState sets the carried state back to zeros.
func (s *Session) ResetState() {
	s.states = s.proto.ZeroState(s.cfg.BatchSize)
}

// Step trains on one minibatch: forward through every clone, backward in
// reverse time order, gradient clipping and one RMSProp update. The final
// states of the batch become the initial states of the next Step.
//
// The reported loss is the mean over timesteps of the batch-mean NLL. Each
// timestep contributes its batch-mean NLL gradient, so the gradient is that
// of the summed per-step losses. On a non-finite loss or gradient norm the
// parameters are left untouched and ErrNumericalDivergence is returned.
func (s *Session) Step(batch corpus.Batch) (StepResult, error) {
	start := time.Now()
	steps := batch.SeqLength()
	if steps != len(s.clones) || batch.BatchSize() != s.cfg.BatchSize {
		return StepResult{}, fmt.Errorf("%w: got %d x %d, want %d x %d",
			ErrBatchShape, steps, batch.BatchSize(), len(s.clones), s.cfg.BatchSize)
	}

	s.flat.ZeroGrad()

	states := make([][]*tensor.RawTensor, steps+1)
	states[0] = s.states
	logProbs := make([]*tensor.RawTensor, steps)
	var total float64
	for t := 0; t < steps; t++ {
		x := rnn.OneHot(batch.Inputs[t], s.vocab.Size(), s.backend.Device())
		states[t+1], logProbs[t] = s.clones[t].Forward(x, states[t], true)
		total += float64(s.loss.Forward(logProbs[t], batch.Targets[t]))
	}
	result := StepResult{Loss: float32(total / float64(steps))}
	if !finite(result.Loss) {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%w: loss %v", ErrNumericalDivergence, result.Loss)
	}

	dState := make([]*tensor.RawTensor, s.proto.NumStates()) // no gradient flows in from the future
	for t := steps - 1; t >= 0; t-- {
		dLogProbs := s.loss.Backward(logProbs[t], batch.Targets[t])
		dState = s.clones[t].Backward(dState, dLogProbs)
	}

	result.GradNorm, result.Clipped = optim.ClipGradNorm(s.flat, s.cfg.GradClip)
	if !finite(result.GradNorm) {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("%w: gradient norm %v", ErrNumericalDivergence, result.GradNorm)
	}

	s.opt.Step()
	s.states = states[steps]
	result.Duration = time.Since(start)
	return result, nil
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
