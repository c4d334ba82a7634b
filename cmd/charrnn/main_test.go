package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/charrnn/internal/journal"
	"github.com/born-ml/charrnn/internal/train"
)

func TestParseConfig_FlagsOnly(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseConfig(fs, []string{"-model", "gru", "-dropout", "0.25", "-rnn_size", "64"})
	require.NoError(t, err)

	assert.Equal(t, "gru", cfg.Model)
	assert.Equal(t, float32(0.25), cfg.Dropout)
	assert.Equal(t, 64, cfg.RNNSize)
	assert.Equal(t, 2, cfg.NumLayers)
}

func TestParseConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: rnn\nrnn_size: 32\nlearning_rate: 0.01\n"), 0o600))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseConfig(fs, []string{"-rnn_size", "16", "-config", path})
	require.NoError(t, err)

	assert.Equal(t, "rnn", cfg.Model, "from file")
	assert.Equal(t, float32(0.01), cfg.LearningRate, "from file")
	assert.Equal(t, 16, cfg.RNNSize, "flag wins")
	assert.Equal(t, 50, cfg.SeqLength, "default")
}

func TestParseConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hidden_size: 32\n"), 0o600))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err := parseConfig(fs, []string{"-config", path})
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, run([]string{"version"}, &out, &errOut))
	assert.Contains(t, out.String(), version)

	assert.Equal(t, 2, run([]string{"serve"}, &out, &errOut))
	assert.Contains(t, errOut.String(), `unknown command "serve"`)
}

func TestRun_InvalidConfig(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"train", "-model", "transformer"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "model")
}

func TestTrainModel_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "input.txt"),
		[]byte(strings.Repeat("abcdbadc", 8)), 0o600))

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseConfig(fs, []string{
		"-data_dir", dataDir,
		"-rnn_size", "8",
		"-num_layers", "1",
		"-seq_length", "3",
		"-batch_size", "2",
		"-max_epochs", "1",
		"-train_frac", "0.8",
		"-val_frac", "0.2",
		"-eval_val_every", "4",
		"-checkpoint_dir", filepath.Join(dir, "cv"),
		"-savefile", "tiny",
		"-journal", filepath.Join(dir, "runs.sqlite3"),
		"-log_level", "error",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	var logs bytes.Buffer
	log, err := cfg.Logger(&logs)
	require.NoError(t, err)

	ctx := context.Background()
	summary, err := trainModel(ctx, cfg, log)
	require.NoError(t, err)
	assert.Equal(t, train.Converged, summary.State)
	assert.Equal(t, 8, summary.Iterations)
	require.NotEmpty(t, summary.LastCheckpoint)

	matches, err := filepath.Glob(filepath.Join(dir, "cv", "lm_tiny_epoch*.born"))
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	j, err := journal.Open(ctx, cfg.Journal, "tiny", "")
	require.NoError(t, err)
	defer j.Close()
	its, err := j.Iterations(ctx, "tiny")
	require.NoError(t, err)
	assert.Len(t, its, 8)
	vals, err := j.Validations(ctx, "tiny")
	require.NoError(t, err)
	assert.Len(t, vals, 2)

	// resume for a second epoch from the last checkpoint
	cfg.InitFrom = summary.LastCheckpoint
	cfg.MaxEpochs = 2
	summary, err = trainModel(ctx, cfg, log)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Iterations)
	assert.Equal(t, 16, summary.LastIteration)
}
