package train

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/optim"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/serialization"
	"github.com/born-ml/charrnn/internal/tensor"
)

// Tensor names inside a checkpoint file.
const (
	paramsTensor = "params"
	sqAvgTensor  = "optimizer.sq_avg"
)

// CheckpointMeta is the JSON training state stored next to the tensors.
type CheckpointMeta struct {
	Model     string           `json:"model"`
	RNNSize   int              `json:"rnn_size"`
	NumLayers int              `json:"num_layers"`
	Dropout   float32          `json:"dropout"`
	InputSize int              `json:"input_size"`
	Seed      int64            `json:"seed"`
	SeqLength int              `json:"seq_length"`
	BatchSize int              `json:"batch_size"`
	GradClip  float32          `json:"grad_clip"`
	Vocab     map[string]int32 `json:"vocab"`

	Iteration   int             `json:"iteration"`
	Epoch       float64         `json:"epoch"`
	TrainLosses []float32       `json:"train_losses"`
	ValLosses   map[int]float32 `json:"val_losses"`
	ValLoss     float32         `json:"val_loss"`

	LearningRate float32 `json:"learning_rate"`
	DecayRate    float32 `json:"decay_rate"` // RMSProp alpha
	Epsilon      float32 `json:"epsilon"`

	// Config is the run configuration, kept for reference only.
	Config json.RawMessage `json:"config,omitempty"`
}

// Checkpoint is a decoded checkpoint file.
type Checkpoint struct {
	Meta   CheckpointMeta
	Params []float32
	SqAvg  []float32
}

// CheckpointName returns the file name used for a checkpoint written at
// epoch with validation loss valLoss.
func CheckpointName(savefile string, epoch float64, valLoss float32) string {
	return fmt.Sprintf("lm_%s_epoch%.2f_%.4f.born", savefile, epoch, valLoss)
}

// Snapshot captures the current session state. runConfig, if not nil, is
// stored as JSON alongside it.
func (s *Session) Snapshot(runConfig any) (*Checkpoint, error) {
	meta := CheckpointMeta{
		Model:        string(s.cfg.Kind),
		RNNSize:      s.cfg.Cell.HiddenSize,
		NumLayers:    s.cfg.Cell.NumLayers,
		Dropout:      s.cfg.Cell.Dropout,
		InputSize:    s.cfg.Cell.InputSize,
		Seed:         s.cfg.Cell.Seed,
		SeqLength:    s.cfg.SeqLength,
		BatchSize:    s.cfg.BatchSize,
		GradClip:     s.cfg.GradClip,
		Vocab:        s.vocab.Mapping(),
		Iteration:    s.history.Iteration,
		Epoch:        s.history.Epoch,
		TrainLosses:  append([]float32(nil), s.history.TrainLosses...),
		ValLosses:    make(map[int]float32, len(s.history.ValLosses)),
		ValLoss:      s.history.ValLoss,
		LearningRate: s.opt.GetLR(),
		DecayRate:    s.opt.Alpha(),
		Epsilon:      s.opt.Eps(),
	}
	for it, l := range s.history.ValLosses {
		meta.ValLosses[it] = l
	}
	if runConfig != nil {
		raw, err := json.Marshal(runConfig)
		if err != nil {
			return nil, fmt.Errorf("encode run config: %w", err)
		}
		meta.Config = raw
	}
	return &Checkpoint{
		Meta:   meta,
		Params: append([]float32(nil), s.flat.Values()...),
		SqAvg:  append([]float32(nil), s.opt.SqAvg()...),
	}, nil
}

// Save writes ckpt to path.
func (ckpt *Checkpoint) Save(path string) error {
	meta, err := json.Marshal(ckpt.Meta)
	if err != nil {
		return fmt.Errorf("encode checkpoint meta: %w", err)
	}
	params, err := tensor.FromFloat32(ckpt.Params, tensor.Shape{len(ckpt.Params)}, tensor.CPU)
	if err != nil {
		return fmt.Errorf("%w: params: %v", ErrInvalidCheckpoint, err)
	}
	sqAvg, err := tensor.FromFloat32(ckpt.SqAvg, tensor.Shape{len(ckpt.SqAvg)}, tensor.CPU)
	if err != nil {
		return fmt.Errorf("%w: optimizer state: %v", ErrInvalidCheckpoint, err)
	}

	err = serialization.WriteFile(path, []serialization.Tensor{
		{Name: paramsTensor, Data: params},
		{Name: sqAvgTensor, Data: sqAvg},
	}, serialization.Header{
		ModelType:  ckpt.Meta.Model,
		Metadata:   map[string]string{"file": filepath.Base(path)},
		Checkpoint: meta,
	})
	if err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpoint reads and verifies a checkpoint file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	r, err := serialization.Open(path, serialization.ReaderOptions{})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer r.Close()

	h := r.Header()
	if len(h.Checkpoint) == 0 {
		return nil, fmt.Errorf("%w: %s has no training state", ErrInvalidCheckpoint, path)
	}
	ckpt := &Checkpoint{}
	if err := json.Unmarshal(h.Checkpoint, &ckpt.Meta); err != nil {
		return nil, fmt.Errorf("%w: decode meta: %v", ErrInvalidCheckpoint, err)
	}

	params, err := r.LoadTensor(paramsTensor, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	sqAvg, err := r.LoadTensor(sqAvgTensor, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	ckpt.Params = params.AsFloat32()
	ckpt.SqAvg = sqAvg.AsFloat32()
	if ckpt.Meta.ValLosses == nil {
		ckpt.Meta.ValLosses = make(map[int]float32)
	}
	return ckpt, nil
}

// SessionConfig returns the model configuration recorded in the checkpoint.
// Training settings not stored in the checkpoint are taken from base.
func (ckpt *Checkpoint) SessionConfig(base SessionConfig) (SessionConfig, error) {
	kind, err := rnn.ParseKind(ckpt.Meta.Model)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	cfg := base
	cfg.Kind = kind
	cfg.Cell = rnn.Config{
		InputSize:  ckpt.Meta.InputSize,
		HiddenSize: ckpt.Meta.RNNSize,
		NumLayers:  ckpt.Meta.NumLayers,
		Dropout:    ckpt.Meta.Dropout,
		Seed:       ckpt.Meta.Seed,
	}
	cfg.RMSProp = optim.RMSPropConfig{
		LR:    ckpt.Meta.LearningRate,
		Alpha: ckpt.Meta.DecayRate,
		Eps:   ckpt.Meta.Epsilon,
	}
	return cfg, nil
}

// Resume builds a session from ckpt for training on vocab.
//
// The vocabulary must be identical to the checkpoint's. Model
// hyperparameters and optimizer state come from the checkpoint; seq_length,
// batch_size and grad_clip come from base. The loss history continues from
// the checkpoint.
func Resume(ckpt *Checkpoint, base SessionConfig, vocab *corpus.Vocab, backend tensor.Backend) (*Session, error) {
	saved, err := corpus.FromMapping(ckpt.Meta.Vocab)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if !saved.Equal(vocab) {
		return nil, fmt.Errorf("%w: checkpoint has %d symbols, corpus has %d",
			ErrVocabMismatch, saved.Size(), vocab.Size())
	}

	cfg, err := ckpt.SessionConfig(base)
	if err != nil {
		return nil, err
	}
	s, err := NewSession(cfg, vocab, backend)
	if err != nil {
		return nil, err
	}
	if err := s.Restore(ckpt); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore loads parameters, optimizer state and history from ckpt.
func (s *Session) Restore(ckpt *Checkpoint) error {
	if err := s.flat.CopyValuesFrom(ckpt.Params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if err := s.opt.LoadSqAvg(ckpt.SqAvg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if ckpt.Meta.LearningRate > 0 {
		s.opt.SetLR(ckpt.Meta.LearningRate)
	}

	s.history = History{
		Iteration:   ckpt.Meta.Iteration,
		Epoch:       ckpt.Meta.Epoch,
		TrainLosses: append([]float32(nil), ckpt.Meta.TrainLosses...),
		ValLosses:   make(map[int]float32, len(ckpt.Meta.ValLosses)),
		ValLoss:     ckpt.Meta.ValLoss,
	}
	for it, l := range ckpt.Meta.ValLosses {
		s.history.ValLosses[it] = l
	}
	s.ResetState()
	return nil
}
