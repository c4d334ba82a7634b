package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/charrnn/internal/rnn"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 128, cfg.RNNSize)
	assert.Equal(t, 2, cfg.NumLayers)
	assert.Equal(t, "lstm", cfg.Model)
	assert.Equal(t, float32(2e-3), cfg.LearningRate)
	assert.Equal(t, float32(0.97), cfg.LearningRateDecay)
	assert.Equal(t, 10, cfg.LearningRateDecayAfter)
	assert.Equal(t, float32(0.95), cfg.DecayRate)
	assert.Equal(t, 50, cfg.SeqLength)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 1000, cfg.EvalValEvery)
	assert.Equal(t, "cv", cfg.CheckpointDir)
}

func TestDecode_OverlaysDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
model: gru
rnn_size: 256
dropout: 0.5
train_frac: 0.9
val_frac: 0.1
log_format: json
`))
	require.NoError(t, err)

	assert.Equal(t, "gru", cfg.Model)
	assert.Equal(t, 256, cfg.RNNSize)
	assert.Equal(t, float32(0.5), cfg.Dropout)
	assert.InDelta(t, 0.9, cfg.TrainFrac, 1e-12)
	assert.Equal(t, "json", cfg.LogFormat)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.NumLayers)
	assert.Equal(t, 50, cfg.SeqLength)
	require.NoError(t, cfg.Validate())
}

func TestDecode_EmptyDocument(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("rnn_sise: 64\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rnn_sise")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_epochs: 3\nsavefile: tiny\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxEpochs)
	assert.Equal(t, "tiny", cfg.Savefile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Model = "rnn"
	cfg.Journal = "runs.sqlite3"

	data, err := cfg.Marshal()
	require.NoError(t, err)
	back, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero rnn size", func(c *Config) { c.RNNSize = 0 }, "rnn_size"},
		{"negative layers", func(c *Config) { c.NumLayers = -1 }, "num_layers"},
		{"zero seq length", func(c *Config) { c.SeqLength = 0 }, "seq_length"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"unknown model", func(c *Config) { c.Model = "transformer" }, "model"},
		{"dropout one", func(c *Config) { c.Dropout = 1 }, "dropout"},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }, "learning_rate"},
		{"decay above one", func(c *Config) { c.LearningRateDecay = 1.5 }, "learning_rate_decay"},
		{"alpha one", func(c *Config) { c.DecayRate = 1 }, "decay_rate"},
		{"negative clip", func(c *Config) { c.GradClip = -1 }, "grad_clip"},
		{"fractions above one", func(c *Config) { c.TrainFrac, c.ValFrac = 0.9, 0.2 }, "val_frac"},
		{"zero train", func(c *Config) { c.TrainFrac = 0 }, "train_frac"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestValidate_DecayOneDisables(t *testing.T) {
	cfg := Default()
	cfg.LearningRateDecay = 1
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Trainer().Decay.Enabled())
}

func TestSessionAndTrainer(t *testing.T) {
	cfg := Default()
	cfg.Model = "gru"
	cfg.GradClip = 1

	s := cfg.Session()
	assert.Equal(t, rnn.GRU, s.Kind)
	assert.Equal(t, 128, s.Cell.HiddenSize)
	assert.Zero(t, s.Cell.InputSize)
	assert.Equal(t, int64(123), s.Cell.Seed)
	assert.Equal(t, float32(1), s.GradClip)
	assert.Equal(t, float32(2e-3), s.RMSProp.LR)
	assert.Equal(t, float32(0.95), s.RMSProp.Alpha)

	tc := cfg.Trainer()
	assert.Equal(t, 50, tc.MaxEpochs)
	assert.Equal(t, float32(0.97), tc.Decay.Rate)
	assert.Equal(t, 10, tc.Decay.After)
	assert.Equal(t, "lstm", tc.Savefile)
	assert.Equal(t, cfg, tc.RunConfig)

	assert.Equal(t, filepath.Join(cfg.DataDir, "input.txt"), cfg.InputPath())
	assert.InDelta(t, 0.95, cfg.Fractions().Train, 1e-12)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	log.WithField("iteration", 7).Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"iteration":7`)

	cfg.LogFormat = "xml"
	_, err = cfg.Logger(&buf)
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "log_format", cerr.Field)
}
