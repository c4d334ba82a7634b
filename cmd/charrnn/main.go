// Package main provides the charrnn command, a character-level recurrent
// language model trainer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/charrnn/internal/config"
	"github.com/born-ml/charrnn/internal/corpus"
	"github.com/born-ml/charrnn/internal/device"
	"github.com/born-ml/charrnn/internal/journal"
	"github.com/born-ml/charrnn/internal/rnn"
	"github.com/born-ml/charrnn/internal/train"
)

const version = "v0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "charrnn %s\n", version)
		return 0
	case "train":
		return runTrain(args[1:], stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "charrnn: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: charrnn <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  train      Train a character-level language model")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'charrnn train -h' for training flags.")
}

func runTrain(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("charrnn train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := parseConfig(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "charrnn: %v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "charrnn: %v\n", err)
		return 2
	}
	log, err := cfg.Logger(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "charrnn: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := trainModel(ctx, cfg, log)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"state":      summary.State,
			"iteration":  summary.LastIteration,
			"checkpoint": summary.LastCheckpoint,
		}).Error("training failed")
		return 1
	}
	log.WithFields(logrus.Fields{
		"iterations": summary.Iterations,
		"epoch":      fmt.Sprintf("%.2f", summary.Epoch),
		"train_loss": summary.TrainLoss,
		"val_loss":   summary.ValLoss,
		"checkpoint": summary.LastCheckpoint,
	}).Info("done")
	return 0
}

// trainModel wires the device, corpus, session, journal and trainer for cfg
// and runs training.
func trainModel(ctx context.Context, cfg config.Config, log *logrus.Logger) (train.Summary, error) {
	sel, err := device.Select(cfg.Device, log)
	if err != nil {
		return train.Summary{}, err
	}
	defer sel.Release()

	loader, err := corpus.Load(cfg.InputPath(), cfg.BatchSize, cfg.SeqLength, cfg.Fractions())
	if err != nil {
		return train.Summary{}, err
	}
	log.WithFields(logrus.Fields{
		"path":  cfg.InputPath(),
		"vocab": loader.Vocab().Size(),
		"train": loader.SplitSize(corpus.Train),
		"val":   loader.SplitSize(corpus.Val),
		"test":  loader.SplitSize(corpus.Test),
	}).Info("loaded corpus")

	session, err := newSession(cfg, loader.Vocab(), sel, log)
	if err != nil {
		return train.Summary{}, err
	}
	log.WithFields(logrus.Fields{
		"model":      session.Cell().Kind(),
		"parameters": rnn.NumParameters(session.Cell()),
		"clones":     len(session.Clones()),
	}).Info("model ready")

	opts := []train.Option{train.WithLogger(log)}
	if cfg.Journal != "" {
		raw, err := cfg.Marshal()
		if err != nil {
			return train.Summary{}, err
		}
		j, err := journal.Open(ctx, cfg.Journal, cfg.Savefile, string(raw))
		if err != nil {
			return train.Summary{}, err
		}
		defer j.Close()
		opts = append(opts, train.WithRecorder(j))
	}

	trainer, err := train.NewTrainer(session, loader, cfg.Trainer(), opts...)
	if err != nil {
		return train.Summary{}, err
	}
	return trainer.Run(ctx)
}

func newSession(cfg config.Config, vocab *corpus.Vocab, sel *device.Selection, log logrus.FieldLogger) (*train.Session, error) {
	if cfg.InitFrom == "" {
		return train.NewSession(cfg.Session(), vocab, sel.Backend)
	}
	ckpt, err := train.LoadCheckpoint(cfg.InitFrom)
	if err != nil {
		return nil, err
	}
	session, err := train.Resume(ckpt, cfg.Session(), vocab, sel.Backend)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"checkpoint": cfg.InitFrom,
		"iteration":  ckpt.Meta.Iteration,
		"lr":         ckpt.Meta.LearningRate,
	}).Info("resumed from checkpoint")
	return session, nil
}
