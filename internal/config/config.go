// Package config holds the run configuration of the charrnn trainer.
//
// A Config starts from Default, is optionally overlaid by a YAML file with
// Load, and is finally overridden by command-line flags. Validate must pass
// before the config is turned into session and trainer settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/optim"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/train"
)

// InputFile is the corpus file name expected inside DataDir.
const InputFile = "input.txt"

// rmspropEps is the RMSProp denominator epsilon.
const rmspropEps = 1e-8

// Config is the complete set of run options.
type Config struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Model.
	RNNSize   int     `yaml:"rnn_size" json:"rnn_size"`
	NumLayers int     `yaml:"num_layers" json:"num_layers"`
	Model     string  `yaml:"model" json:"model"`
	Dropout   float32 `yaml:"dropout" json:"dropout"`

	// Optimization.
	LearningRate           float32 `yaml:"learning_rate" json:"learning_rate"`
	LearningRateDecay      float32 `yaml:"learning_rate_decay" json:"learning_rate_decay"`
	LearningRateDecayAfter int     `yaml:"learning_rate_decay_after" json:"learning_rate_decay_after"`
	DecayRate              float32 `yaml:"decay_rate" json:"decay_rate"`
	SeqLength              int     `yaml:"seq_length" json:"seq_length"`
	BatchSize              int     `yaml:"batch_size" json:"batch_size"`
	MaxEpochs              int     `yaml:"max_epochs" json:"max_epochs"`
	GradClip               float32 `yaml:"grad_clip" json:"grad_clip"`
	TrainFrac              float64 `yaml:"train_frac" json:"train_frac"`
	ValFrac                float64 `yaml:"val_frac" json:"val_frac"`
	InitFrom               string  `yaml:"init_from" json:"init_from,omitempty"`

	// Bookkeeping.
	Seed          int64  `yaml:"seed" json:"seed"`
	PrintEvery    int    `yaml:"print_every" json:"print_every"`
	EvalValEvery  int    `yaml:"eval_val_every" json:"eval_val_every"`
	CheckpointDir string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	Savefile      string `yaml:"savefile" json:"savefile"`
	Device        string `yaml:"device" json:"device"`
	Journal       string `yaml:"journal" json:"journal,omitempty"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogFormat     string `yaml:"log_format" json:"log_format"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		DataDir:                filepath.Join("data", "tinyshakespeare"),
		RNNSize:                128,
		NumLayers:              2,
		Model:                  string(rnn.LSTM),
		Dropout:                0,
		LearningRate:           2e-3,
		LearningRateDecay:      0.97,
		LearningRateDecayAfter: 10,
		DecayRate:              0.95,
		SeqLength:              50,
		BatchSize:              50,
		MaxEpochs:              50,
		GradClip:               5,
		TrainFrac:              0.95,
		ValFrac:                0.05,
		Seed:                   123,
		PrintEvery:             1,
		EvalValEvery:           1000,
		CheckpointDir:          "cv",
		Savefile:               "lstm",
		Device:                 "cpu",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// Load returns Default overlaid with the YAML document at path.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode returns Default overlaid with the YAML document read from r.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// InputPath returns the corpus file path.
func (c Config) InputPath() string {
	return filepath.Join(c.DataDir, InputFile)
}

// Fractions returns the split fractions.
func (c Config) Fractions() corpus.Fractions {
	return corpus.Fractions{Train: c.TrainFrac, Val: c.ValFrac}
}

// Session returns the model and optimizer settings.
func (c Config) Session() train.SessionConfig {
	return train.SessionConfig{
		Kind: rnn.Kind(c.Model),
		Cell: rnn.Config{
			HiddenSize: c.RNNSize,
			NumLayers:  c.NumLayers,
			Dropout:    c.Dropout,
			Seed:       c.Seed,
		},
		SeqLength: c.SeqLength,
		BatchSize: c.BatchSize,
		GradClip:  c.GradClip,
		RMSProp: optim.RMSPropConfig{
			LR:    c.LearningRate,
			Alpha: c.DecayRate,
			Eps:   rmspropEps,
		},
	}
}

// Trainer returns the epoch loop settings.
func (c Config) Trainer() train.TrainerConfig {
	return train.TrainerConfig{
		MaxEpochs:     c.MaxEpochs,
		EvalValEvery:  c.EvalValEvery,
		PrintEvery:    c.PrintEvery,
		Decay:         optim.Decay{Rate: c.LearningRateDecay, After: c.LearningRateDecayAfter},
		CheckpointDir: c.CheckpointDir,
		Savefile:      c.Savefile,
		RunConfig:     c,
	}
}

// Logger builds the logger described by LogLevel and LogFormat, writing to w.
func (c Config) Logger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, &ConfigError{Field: "log_level", Reason: err.Error()}
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	switch c.LogFormat {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, &ConfigError{Field: "log_format", Reason: fmt.Sprintf("unknown format %q (want text or json)", c.LogFormat)}
	}
	return log, nil
}
