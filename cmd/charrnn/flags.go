package main

import (
	"flag"
	"strconv"

	"github.com/born-ml/charrnn/internal/config"
)

// float32Value adapts a float32 field to flag.Value.
type float32Value struct{ p *float32 }

func (v float32Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatFloat(float64(*v.p), 'g', -1, 32)
}

func (v float32Value) Set(s string) error {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*v.p = float32(f)
	return nil
}

// bindFlags registers one flag per config field, writing into cfg.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.DataDir, "data_dir", cfg.DataDir, "directory containing input.txt")

	fs.IntVar(&cfg.RNNSize, "rnn_size", cfg.RNNSize, "hidden units per layer")
	fs.IntVar(&cfg.NumLayers, "num_layers", cfg.NumLayers, "number of recurrent layers")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "cell type: lstm, gru or rnn")
	fs.Var(float32Value{&cfg.Dropout}, "dropout", "dropout between layers, 0 disables")

	fs.Var(float32Value{&cfg.LearningRate}, "learning_rate", "RMSProp learning rate")
	fs.Var(float32Value{&cfg.LearningRateDecay}, "learning_rate_decay", "learning rate multiplier per epoch")
	fs.IntVar(&cfg.LearningRateDecayAfter, "learning_rate_decay_after", cfg.LearningRateDecayAfter, "first epoch that decays the learning rate")
	fs.Var(float32Value{&cfg.DecayRate}, "decay_rate", "RMSProp squared-gradient decay")
	fs.IntVar(&cfg.SeqLength, "seq_length", cfg.SeqLength, "timesteps to unroll")
	fs.IntVar(&cfg.BatchSize, "batch_size", cfg.BatchSize, "sequences per minibatch")
	fs.IntVar(&cfg.MaxEpochs, "max_epochs", cfg.MaxEpochs, "passes over the training split")
	fs.Var(float32Value{&cfg.GradClip}, "grad_clip", "maximum gradient L2 norm, 0 disables")
	fs.Float64Var(&cfg.TrainFrac, "train_frac", cfg.TrainFrac, "fraction of batches used for training")
	fs.Float64Var(&cfg.ValFrac, "val_frac", cfg.ValFrac, "fraction of batches used for validation")
	fs.StringVar(&cfg.InitFrom, "init_from", cfg.InitFrom, "checkpoint to resume from")

	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fs.IntVar(&cfg.PrintEvery, "print_every", cfg.PrintEvery, "log progress every N iterations")
	fs.IntVar(&cfg.EvalValEvery, "eval_val_every", cfg.EvalValEvery, "validate and checkpoint every N iterations")
	fs.StringVar(&cfg.CheckpointDir, "checkpoint_dir", cfg.CheckpointDir, "checkpoint output directory")
	fs.StringVar(&cfg.Savefile, "savefile", cfg.Savefile, "checkpoint file name stem")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "compute device: cpu or webgpu")
	fs.StringVar(&cfg.Journal, "journal", cfg.Journal, "SQLite metrics journal, empty disables")
	fs.StringVar(&cfg.LogLevel, "log_level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log_format", cfg.LogFormat, "log format: text or json")
}

// parseConfig parses args into a Config. A YAML file named by -config is
// applied first and explicitly set flags override it.
func parseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg := config.Default()
	bindFlags(fs, &cfg)
	var path string
	fs.StringVar(&path, "config", "", "YAML config file")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if path == "" {
		return cfg, nil
	}

	type setFlag struct{ name, value string }
	var explicit []setFlag
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			explicit = append(explicit, setFlag{f.Name, f.Value.String()})
		}
	})

	loaded, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	// The flags point into cfg, so replaying them overrides the file values.
	cfg = loaded
	for _, f := range explicit {
		if err := fs.Set(f.name, f.value); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}
