package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/charrnn/internal/rnn"
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks every field and returns the first problem found.
func (c Config) Validate() error {
	positive := []struct {
		field string
		value int
	}{
		{"rnn_size", c.RNNSize},
		{"num_layers", c.NumLayers},
		{"seq_length", c.SeqLength},
		{"batch_size", c.BatchSize},
		{"max_epochs", c.MaxEpochs},
		{"print_every", c.PrintEvery},
		{"eval_val_every", c.EvalValEvery},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ConfigError{Field: p.field, Reason: fmt.Sprintf("must be positive, got %d", p.value)}
		}
	}

	if _, err := rnn.ParseKind(c.Model); err != nil {
		return &ConfigError{Field: "model", Reason: fmt.Sprintf("unknown model %q (want lstm, gru or rnn)", c.Model)}
	}

	switch {
	case c.DataDir == "":
		return &ConfigError{Field: "data_dir", Reason: "must be set"}
	case c.Dropout < 0 || c.Dropout >= 1:
		return &ConfigError{Field: "dropout", Reason: fmt.Sprintf("must be in [0, 1), got %v", c.Dropout)}
	case c.LearningRate <= 0:
		return &ConfigError{Field: "learning_rate", Reason: fmt.Sprintf("must be positive, got %v", c.LearningRate)}
	case c.LearningRateDecay <= 0 || c.LearningRateDecay > 1:
		return &ConfigError{Field: "learning_rate_decay", Reason: fmt.Sprintf("must be in (0, 1], got %v", c.LearningRateDecay)}
	case c.LearningRateDecayAfter < 0:
		return &ConfigError{Field: "learning_rate_decay_after", Reason: "must not be negative"}
	case c.DecayRate <= 0 || c.DecayRate >= 1:
		return &ConfigError{Field: "decay_rate", Reason: fmt.Sprintf("must be in (0, 1), got %v", c.DecayRate)}
	case c.GradClip < 0:
		return &ConfigError{Field: "grad_clip", Reason: "must not be negative"}
	case c.TrainFrac <= 0 || c.TrainFrac > 1:
		return &ConfigError{Field: "train_frac", Reason: fmt.Sprintf("must be in (0, 1], got %v", c.TrainFrac)}
	case c.ValFrac < 0 || c.ValFrac >= 1:
		return &ConfigError{Field: "val_frac", Reason: fmt.Sprintf("must be in [0, 1), got %v", c.ValFrac)}
	case c.TrainFrac+c.ValFrac > 1+1e-9:
		return &ConfigError{Field: "val_frac", Reason: fmt.Sprintf("train_frac + val_frac = %v exceeds 1", c.TrainFrac+c.ValFrac)}
	case c.Savefile == "":
		return &ConfigError{Field: "savefile", Reason: "must be set"}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Reason: err.Error()}
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "log_format", Reason: fmt.Sprintf("unknown format %q (want text or json)", c.LogFormat)}
	}
	return nil
}
