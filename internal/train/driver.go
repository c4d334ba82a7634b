package train

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/optim"
)

// explosionFactor bounds the training loss relative to the first loss of a run.
const explosionFactor = 3

// State is the lifecycle state of a Trainer.
type State int

// Trainer states.
const (
	Idle State = iota
	Running
	Decaying // running with learning-rate decay in effect
	Converged
	Aborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Decaying:
		return "decaying"
	case Converged:
		return "converged"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IterationRecord is what a Recorder receives after every training step.
type IterationRecord struct {
	Iteration int
	Epoch     float64
	Loss      float32
	GradNorm  float32
	Clipped   bool
	LR        float32
	Duration  time.Duration
}

// ValidationRecord is what a Recorder receives after every evaluation.
type ValidationRecord struct {
	Iteration  int
	Epoch      float64
	ValLoss    float32
	Checkpoint string // path of the checkpoint written, if any
}

// Recorder persists training metrics outside the checkpoint files.
type Recorder interface {
	RecordIteration(ctx context.Context, rec IterationRecord) error
	RecordValidation(ctx context.Context, rec ValidationRecord) error
}

// TrainerConfig controls the epoch loop.
type TrainerConfig struct {
	MaxEpochs     int
	EvalValEvery  int // evaluate and checkpoint every N iterations and on the last one
	PrintEvery    int // log progress every N iterations
	Decay         optim.Decay
	CheckpointDir string // empty disables checkpoints
	Savefile      string
	RunConfig     any // stored in every checkpoint
}

// Summary describes a finished run.
type Summary struct {
	State          State
	Iterations     int // steps taken by this run
	LastIteration  int
	Epoch          float64
	TrainLoss      float32
	ValLoss        float32
	LearningRate   float32
	LastCheckpoint string
}

// Option customizes a Trainer.
type Option func(*Trainer)

// WithLogger sets the progress logger. The default discards output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Trainer) { t.log = log }
}

// WithRecorder sends per-iteration and validation metrics to r.
func WithRecorder(r Recorder) Option {
	return func(t *Trainer) { t.recorder = r }
}

// Trainer drives a Session over the training split for a number of epochs.
type Trainer struct {
	session  *Session
	loader   *corpus.Loader
	cfg      TrainerConfig
	log      logrus.FieldLogger
	recorder Recorder
	state    State

	start      int // first iteration of this run
	firstLoss  float32
	haveFirst  bool
	warnedVal  bool
	checkpoint string
}

// NewTrainer creates a Trainer for session over loader.
func NewTrainer(session *Session, loader *corpus.Loader, cfg TrainerConfig, opts ...Option) (*Trainer, error) {
	if loader.SplitSize(corpus.Train) == 0 {
		return nil, fmt.Errorf("%w: training split is empty", corpus.ErrTooSmall)
	}
	if loader.BatchSize() != session.cfg.BatchSize || loader.SeqLength() != session.cfg.SeqLength {
		return nil, fmt.Errorf("%w: loader is %d x %d, session is %d x %d", ErrBatchShape,
			loader.SeqLength(), loader.BatchSize(), session.cfg.SeqLength, session.cfg.BatchSize)
	}
	if cfg.MaxEpochs <= 0 {
		cfg.MaxEpochs = 1
	}
	if cfg.EvalValEvery <= 0 {
		cfg.EvalValEvery = 1000
	}
	if cfg.PrintEvery <= 0 {
		cfg.PrintEvery = 1
	}
	if cfg.Savefile == "" {
		cfg.Savefile = string(session.cfg.Kind)
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)
	t := &Trainer{session: session, loader: loader, cfg: cfg, log: discard}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// State returns the current lifecycle state.
func (t *Trainer) State() State { return t.state }

// TotalIterations returns max_epochs times the number of training batches.
func (t *Trainer) TotalIterations() int {
	return t.cfg.MaxEpochs * t.loader.SplitSize(corpus.Train)
}

// Run trains until the last iteration, a fatal error or cancellation of ctx.
// ctx is checked between iterations only. A resumed session continues from
// its recorded iteration.
func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	ntrain := t.loader.SplitSize(corpus.Train)
	total := t.TotalIterations()
	hist := t.session.History()
	start := hist.Iteration + 1
	t.start = start

	if t.cfg.CheckpointDir != "" {
		if err := os.MkdirAll(t.cfg.CheckpointDir, 0o750); err != nil {
			return t.abort(fmt.Errorf("create checkpoint dir: %w", err))
		}
	}

	t.state = Running
	if t.cfg.Decay.Enabled() && hist.Iteration > 0 && hist.Iteration/ntrain >= t.cfg.Decay.After {
		t.state = Decaying
	}
	t.loader.SetCursor(corpus.Train, hist.Iteration)
	t.log.WithFields(logrus.Fields{
		"start": start,
		"total": total,
		"lr":    t.session.opt.GetLR(),
	}).Info("training started")

	for i := start; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			t.log.WithField("iteration", i).Warn("training cancelled")
			return t.abort(err)
		}

		batch, _, _ := t.loader.NextBatch(corpus.Train)
		res, err := t.session.Step(batch)
		if err != nil {
			return t.abort(fmt.Errorf("iteration %d: %w", i, err))
		}

		epoch := float64(i) / float64(ntrain)
		hist.RecordTrain(i, epoch, res.Loss)
		if err := t.recordIteration(ctx, i, epoch, res); err != nil {
			return t.abort(err)
		}
		if i%t.cfg.PrintEvery == 0 {
			t.log.WithFields(logrus.Fields{
				"iteration": i,
				"total":     total,
				"epoch":     fmt.Sprintf("%.3f", epoch),
				"loss":      res.Loss,
				"grad_norm": res.GradNorm,
				"lr":        t.session.opt.GetLR(),
				"ms":        res.Duration.Milliseconds(),
			}).Info("iteration")
		}

		if !t.haveFirst {
			t.firstLoss, t.haveFirst = res.Loss, true
		} else if res.Loss > explosionFactor*t.firstLoss {
			return t.abort(fmt.Errorf("iteration %d: %w: %.4f > %d x %.4f",
				i, ErrLossExploding, res.Loss, explosionFactor, t.firstLoss))
		}

		if i%ntrain == 0 {
			t.endEpoch(i / ntrain)
		}

		if i%t.cfg.EvalValEvery == 0 || i == total {
			if err := t.validate(ctx, i, epoch, res.Loss); err != nil {
				return t.abort(err)
			}
		}
	}

	t.state = Converged
	t.log.WithField("iterations", hist.Iteration).Info("training finished")
	return t.summary(), nil
}

// endEpoch resets the carried state and applies the learning-rate schedule.
func (t *Trainer) endEpoch(epoch int) {
	t.session.ResetState()
	if lr, changed := t.cfg.Decay.Apply(t.session.opt, epoch); changed {
		t.state = Decaying
		t.log.WithFields(logrus.Fields{"epoch": epoch, "lr": lr}).Info("decayed learning rate")
	}
}

// validate evaluates the validation split and writes a checkpoint.
func (t *Trainer) validate(ctx context.Context, iteration int, epoch float64, trainLoss float32) error {
	valLoss, ok, err := t.session.Evaluate(t.loader, corpus.Val)
	if err != nil {
		return fmt.Errorf("iteration %d: validation: %w", iteration, err)
	}
	if !ok {
		if !t.warnedVal {
			t.log.Warn("validation split is empty, using training loss")
			t.warnedVal = true
		}
		valLoss = trainLoss
	}
	t.session.History().RecordVal(iteration, valLoss)

	var path string
	if t.cfg.CheckpointDir != "" {
		ckpt, err := t.session.Snapshot(t.cfg.RunConfig)
		if err != nil {
			return err
		}
		path = filepath.Join(t.cfg.CheckpointDir, CheckpointName(t.cfg.Savefile, epoch, valLoss))
		if err := ckpt.Save(path); err != nil {
			return err
		}
		t.checkpoint = path
	}

	t.log.WithFields(logrus.Fields{
		"iteration":  iteration,
		"val_loss":   valLoss,
		"checkpoint": path,
	}).Info("validation")

	if t.recorder != nil {
		rec := ValidationRecord{Iteration: iteration, Epoch: epoch, ValLoss: valLoss, Checkpoint: path}
		if err := t.recorder.RecordValidation(ctx, rec); err != nil {
			return fmt.Errorf("record validation: %w", err)
		}
	}
	return nil
}

func (t *Trainer) recordIteration(ctx context.Context, i int, epoch float64, res StepResult) error {
	if t.recorder == nil {
		return nil
	}
	err := t.recorder.RecordIteration(ctx, IterationRecord{
		Iteration: i,
		Epoch:     epoch,
		Loss:      res.Loss,
		GradNorm:  res.GradNorm,
		Clipped:   res.Clipped,
		LR:        t.session.opt.GetLR(),
		Duration:  res.Duration,
	})
	if err != nil {
		return fmt.Errorf("record iteration %d: %w", i, err)
	}
	return nil
}

func (t *Trainer) abort(err error) (Summary, error) {
	t.state = Aborted
	t.log.WithError(err).Error("training aborted")
	return t.summary(), err
}

func (t *Trainer) summary() Summary {
	hist := t.session.History()
	s := Summary{
		State:          t.state,
		LastIteration:  hist.Iteration,
		Epoch:          hist.Epoch,
		ValLoss:        hist.ValLoss,
		LearningRate:   t.session.opt.GetLR(),
		LastCheckpoint: t.checkpoint,
	}
	if t.start > 0 {
		s.Iterations = hist.Iteration - t.start + 1
	}
	if n := len(hist.TrainLosses); n > 0 {
		s.TrainLoss = hist.TrainLosses[n-1]
	}
	return s
}
