package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/manningwu07/charRNN/IO"
	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/sampler"
	"github.com/manningwu07/charRNN/train"
	"github.com/manningwu07/charRNN/vocab"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "charrnn",
		Short:        "Character-level vanilla RNN trainer and sampler",
		SilenceUsage: true,
	}
	root.AddCommand(newTrainCmd(&trainFlags{cfg: params.Config}), newSampleCmd())
	return root
}

func newLogger(level string) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

type trainFlags struct {
	corpus   string
	config   string
	resume   string
	out      string
	logCSV   string
	logLevel string

	cfg params.TrainingConfig
}

func newTrainCmd(f *trainFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train on a text corpus; Ctrl-C pauses into an interactive prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f)
			if err != nil {
				return err
			}
			return runTrain(cmd.Context(), f, cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.corpus, "corpus", "input.txt", "Path to the training text")
	fl.StringVar(&f.config, "config", "", "JSON file overriding the default hyperparameters")
	fl.StringVar(&f.resume, "resume", "", "Checkpoint to resume from")
	fl.StringVar(&f.out, "out", "checkpoints", "Directory for checkpoints and tensor dumps")
	fl.StringVar(&f.logCSV, "log-csv", "", "Append progress rows to this CSV file")
	fl.StringVar(&f.logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")
	fl.IntVar(&f.cfg.HiddenSize, "hidden", f.cfg.HiddenSize, "Hidden layer size")
	fl.IntVar(&f.cfg.SeqLength, "seq", f.cfg.SeqLength, "Unroll length")
	fl.Float64Var(&f.cfg.LearningRate, "lr", f.cfg.LearningRate, "Adagrad learning rate")
	fl.Uint64Var(&f.cfg.Seed, "seed", f.cfg.Seed, "RNG seed")
	fl.StringVar(&f.cfg.Policy, "policy", f.cfg.Policy, "Sampling policy: categorical, thresholded, greedy, topkp")
	fl.BoolVar(&f.cfg.Normalize, "normalize", f.cfg.Normalize, "NFKC-normalise the corpus")
	fl.BoolVar(&f.cfg.RotateOffset, "rotate", f.cfg.RotateOffset, "Restart each pass at a rotating offset")
	return cmd
}

// resolveConfig layers defaults, then the --config file, then any flags the
// user set explicitly.
func resolveConfig(cmd *cobra.Command, f *trainFlags) (params.TrainingConfig, error) {
	cfg := params.Config
	if f.config != "" {
		var err error
		if cfg, err = params.LoadConfig(f.config, cfg); err != nil {
			return cfg, err
		}
	}
	fl := cmd.Flags()
	if fl.Changed("hidden") {
		cfg.HiddenSize = f.cfg.HiddenSize
	}
	if fl.Changed("seq") {
		cfg.SeqLength = f.cfg.SeqLength
	}
	if fl.Changed("lr") {
		cfg.LearningRate = f.cfg.LearningRate
	}
	if fl.Changed("seed") {
		cfg.Seed = f.cfg.Seed
	}
	if fl.Changed("policy") {
		cfg.Policy = f.cfg.Policy
	}
	if fl.Changed("normalize") {
		cfg.Normalize = f.cfg.Normalize
	}
	if fl.Changed("rotate") {
		cfg.RotateOffset = f.cfg.RotateOffset
	}
	return cfg, cfg.Validate()
}

func runTrain(ctx context.Context, f *trainFlags, cfg params.TrainingConfig) error {
	logger, err := newLogger(f.logLevel)
	if err != nil {
		return err
	}
	corpus, err := IO.ReadCorpus(f.corpus, cfg.Normalize)
	if err != nil {
		return err
	}

	var snap *train.Snapshot
	var v *vocab.Vocabulary
	if f.resume != "" {
		s, err := train.LoadSnapshot(f.resume)
		if err != nil {
			return err
		}
		if v, err = s.Vocabulary(); err != nil {
			return err
		}
		cfg.HiddenSize = s.Hiddens
		snap = &s
	} else if v, err = vocab.Build(corpus); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"characters": len(corpus), "unique": v.Size()}).Info("corpus loaded")

	var progress *IO.ProgressCSV
	if f.logCSV != "" {
		if progress, err = IO.CreateProgressCSV(f.logCSV); err != nil {
			return err
		}
		defer progress.Close()
	}
	repl := NewPauseREPL(os.Stdin, os.Stdout, f.out, logger)
	report := func(p train.Progress) {
		repl.Record(p)
		fmt.Printf("----\n %s \n----\n", p.Sample)
		logger.WithFields(logrus.Fields{"iter": p.Iteration, "loss": p.SmoothLoss}).Info("progress")
		if progress != nil {
			if err := progress.Write(p.Iteration, p.SmoothLoss, p.Sample); err != nil {
				logger.WithError(err).Warn("progress log write failed")
			}
		}
	}

	tr, err := train.New(cfg, v, corpus, train.WithLogger(logger), train.WithReporter(report))
	if err != nil {
		return err
	}
	if snap != nil {
		if err := tr.Restore(*snap); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"iter": tr.Iteration(), "checkpoint": f.resume}).Info("resumed")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()
	interrupts := forwardInterrupts(ctx)

	err = tr.Run(ctx, interrupts, repl.Pause)
	if errors.Is(err, context.Canceled) {
		path := filepath.Join(f.out, "checkpoint_final.gob")
		if err := tr.SaveCheckpoint(path); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"iter": tr.Iteration(), "checkpoint": path}).Info("terminated, checkpoint saved")
		return nil
	}
	return err
}

// forwardInterrupts turns SIGINT into pause requests.
func forwardInterrupts(ctx context.Context) <-chan struct{} {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-ctx.Done()
		signal.Stop(sig)
	}()
	return coalesce(ctx, sig)
}

// coalesce forwards each value from in as a pause request. At most one
// request is pending, so repeated Ctrl-C while paused collapses into a
// single extra pause rather than stopping training.
func coalesce(ctx context.Context, in <-chan os.Signal) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-in:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

type sampleFlags struct {
	checkpoint string
	n          int
	prime      string
	policy     string
	seed       uint64
}

func newSampleCmd() *cobra.Command {
	f := &sampleFlags{}
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate text from a saved checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := runSample(f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.checkpoint, "checkpoint", "", "Checkpoint written by train")
	fl.IntVar(&f.n, "n", params.Config.SampleLength, "Number of symbols to generate")
	fl.StringVar(&f.prime, "prime", "", "Text to condition on before sampling")
	fl.StringVar(&f.policy, "policy", params.Config.Policy, "Sampling policy")
	fl.Uint64Var(&f.seed, "seed", params.Config.Seed, "RNG seed")
	_ = cmd.MarkFlagRequired("checkpoint")
	return cmd
}

// runSample primes a zero hidden state with all but the last symbol of
// the prime text, then samples seeded with that last symbol. Without a
// prime the first vocabulary symbol seeds generation.
func runSample(f *sampleFlags) (string, error) {
	s, err := train.LoadSnapshot(f.checkpoint)
	if err != nil {
		return "", err
	}
	m, err := s.Model()
	if err != nil {
		return "", err
	}
	v, err := s.Vocabulary()
	if err != nil {
		return "", err
	}
	cfg := params.Config
	cfg.Policy = f.policy
	policy, err := sampler.PolicyByName(cfg)
	if err != nil {
		return "", err
	}

	seed := 0
	h := m.ZeroHidden()
	if f.prime != "" {
		ids, err := v.EncodeAll([]rune(f.prime))
		if err != nil {
			return "", err
		}
		if h, err = sampler.Prime(m, h, ids[:len(ids)-1]); err != nil {
			return "", err
		}
		seed = ids[len(ids)-1]
	}
	rng := rand.New(rand.NewPCG(f.seed, f.seed^0x9e3779b97f4a7c15))
	out, err := sampler.Sample(m, h, seed, f.n, policy, rng)
	if err != nil {
		return "", err
	}
	text, err := v.DecodeAll(out)
	if err != nil {
		return "", err
	}
	return f.prime + text, nil
}
