// Package train drives truncated-BPTT training of an rnn.RNN over a
// character corpus.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/charRNN/optimizations"
	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/rnn"
	"github.com/manningwu07/charRNN/sampler"
	"github.com/manningwu07/charRNN/vocab"
)

var (
	ErrInvalidWindow = errors.New("invalid window")
	// ErrStop is returned by a PauseFunc to end Run cleanly.
	ErrStop = errors.New("stop requested")
)

// Progress is emitted on every diagnostic tick.
type Progress struct {
	Iteration  int
	SmoothLoss float64
	Sample     string
}

// PauseFunc runs between iterations when Run receives an interrupt. It may
// inspect or snapshot the trainer.
type PauseFunc func(t *Trainer) error

type Trainer struct {
	cfg    params.TrainingConfig
	vocab  *vocab.Vocabulary
	data   []int
	model  *rnn.RNN
	opt    *optimizations.Adagrad
	policy sampler.Policy
	rng    *rand.Rand
	probe  *rand.Rand // used only by Probe
	logger *logrus.Logger
	report func(Progress)

	hprev      *mat.Dense
	pos        int // cursor into data
	iter       int
	rotation   int // rotating restart offset accumulator
	smoothLoss float64
}

type Option func(*Trainer)

func WithLogger(l *logrus.Logger) Option { return func(t *Trainer) { t.logger = l } }

func WithReporter(fn func(Progress)) Option { return func(t *Trainer) { t.report = fn } }

func WithPolicy(p sampler.Policy) Option { return func(t *Trainer) { t.policy = p } }

func WithRand(r *rand.Rand) Option { return func(t *Trainer) { t.rng = r } }

// WithModel replaces the freshly initialised model, e.g. with restored weights.
func WithModel(m *rnn.RNN) Option { return func(t *Trainer) { t.model = m } }

// New encodes corpus with v and prepares a model sized (cfg.HiddenSize, v.Size()).
func New(cfg params.TrainingConfig, v *vocab.Vocabulary, corpus []rune, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(corpus) < cfg.SeqLength+2 {
		return nil, fmt.Errorf("train.New: corpus of %d symbols is too short for seq_length %d: %w",
			len(corpus), cfg.SeqLength, ErrInvalidWindow)
	}
	data, err := v.EncodeAll(corpus)
	if err != nil {
		return nil, fmt.Errorf("train.New: %w", err)
	}

	t := &Trainer{
		cfg:   cfg,
		vocab: v,
		data:  data,
		opt:   optimizations.NewAdagrad(cfg.LearningRate, cfg.AdagradEps),
	}
	for _, o := range opts {
		o(t)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	t.probe = rand.New(rand.NewPCG(cfg.Seed+1, cfg.Seed))
	if t.logger == nil {
		t.logger = logrus.New()
	}
	if t.policy == nil {
		if t.policy, err = sampler.PolicyByName(cfg); err != nil {
			return nil, err
		}
	}
	if t.model == nil {
		t.model = rnn.NewRNN(cfg.HiddenSize, v.Size(), cfg.InitScale, t.rng)
	} else if t.model.Hiddens != cfg.HiddenSize || t.model.Vocab != v.Size() {
		return nil, fmt.Errorf("train.New: model is H=%d V=%d, want H=%d V=%d: %w",
			t.model.Hiddens, t.model.Vocab, cfg.HiddenSize, v.Size(), rnn.ErrShapeMismatch)
	}
	t.model.GradClip = cfg.GradClip
	t.hprev = t.model.ZeroHidden()
	t.smoothLoss = -math.Log(1.0/float64(v.Size())) * float64(cfg.SeqLength)

	t.logger.WithFields(logrus.Fields{
		"symbols":     len(data),
		"vocab_size":  v.Size(),
		"hidden_size": cfg.HiddenSize,
		"seq_length":  cfg.SeqLength,
	}).Info("trainer ready")
	return t, nil
}

// window repositions the cursor when the next window would run off the end
// of the corpus, or on the very first iteration.
func (t *Trainer) window() (inputs, targets []int) {
	L := t.cfg.SeqLength
	if t.pos+L+1 >= len(t.data) || t.iter == 0 {
		t.hprev = t.model.ZeroHidden()
		if t.iter == 0 || !t.cfg.RotateOffset {
			t.pos = 0
		} else {
			t.rotation += t.cfg.RotateStride
			t.pos = t.rotation % L
			if t.pos+L+1 > len(t.data) {
				t.pos = 0
			}
			t.logger.WithField("index", t.rotation).Info("restarting corpus at rotated offset")
		}
		if t.iter > 0 {
			t.logger.WithFields(logrus.Fields{"iter": t.iter, "pos": t.pos}).Debug("corpus pass complete, hidden state reset")
		}
	}
	return t.data[t.pos : t.pos+L], t.data[t.pos+1 : t.pos+L+1]
}

// Step runs one full training iteration (window, forward/backward, update)
// and returns the window loss.
func (t *Trainer) Step() (float64, error) {
	inputs, targets := t.window()

	var sample string
	tick := t.cfg.SampleEvery > 0 && t.iter%t.cfg.SampleEvery == 0
	if tick {
		ids, err := sampler.Sample(t.model, t.hprev, inputs[0], t.cfg.SampleLength, t.policy, t.rng)
		if err != nil {
			return 0, err
		}
		if sample, err = t.vocab.DecodeAll(ids); err != nil {
			return 0, err
		}
	}

	res, err := t.model.Step(inputs, targets, t.hprev)
	if err != nil {
		return 0, err
	}
	t.hprev = res.Hidden
	t.smoothLoss = t.smoothLoss*t.cfg.LossDecay + res.Loss*(1-t.cfg.LossDecay)

	if err := t.opt.Apply(t.model.Params(), res.Grads.List()); err != nil {
		return 0, err
	}

	if tick {
		t.logger.WithFields(logrus.Fields{
			"iter":     t.iter,
			"Wxh_norm": mat.Norm(t.model.Wxh, 2),
			"Whh_norm": mat.Norm(t.model.Whh, 2),
			"Why_norm": mat.Norm(t.model.Why, 2),
		}).Debug("parameter norms")
		if t.report != nil {
			t.report(Progress{Iteration: t.iter, SmoothLoss: t.smoothLoss, Sample: sample})
		}
	}

	t.pos += t.cfg.SeqLength
	t.iter++
	return res.Loss, nil
}

// Run trains until ctx is cancelled or onPause returns ErrStop. Interrupts
// are only observed at the top of an iteration, so onPause always sees the
// state after the last complete window.
func (t *Trainer) Run(ctx context.Context, interrupts <-chan struct{}, onPause PauseFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-interrupts:
			if onPause != nil {
				if err := onPause(t); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
			}
			continue
		default:
		}
		if _, err := t.Step(); err != nil {
			return err
		}
	}
}

// Probe samples count symbols seeded with the first symbol of window, from
// a copy of the current hidden state. Training state is not modified.
func (t *Trainer) Probe(window []rune, count int) (string, error) {
	if len(window) != t.cfg.SeqLength {
		return "", fmt.Errorf("train.Probe: window of %d symbols, want %d: %w", len(window), t.cfg.SeqLength, ErrInvalidWindow)
	}
	ids, err := t.vocab.EncodeAll(window)
	if err != nil {
		return "", fmt.Errorf("train.Probe: %w", err)
	}
	out, err := sampler.Sample(t.model, t.hprev, ids[0], count, t.policy, t.probe)
	if err != nil {
		return "", err
	}
	return t.vocab.DecodeAll(out)
}

func (t *Trainer) Iteration() int { return t.iter }
func (t *Trainer) SmoothLoss() float64 { return t.smoothLoss }
func (t *Trainer) Position() int { return t.pos }
func (t *Trainer) Config() params.TrainingConfig { return t.cfg }
func (t *Trainer) Vocabulary() *vocab.Vocabulary { return t.vocab }
func (t *Trainer) Model() *rnn.RNN { return t.model }
func (t *Trainer) Optimizer() *optimizations.Adagrad { return t.opt }

// Hidden returns a copy of the current hidden state.
func (t *Trainer) Hidden() *mat.Dense { return mat.DenseCopyOf(t.hprev) }

func (t *Trainer) SetHidden(h mat.Matrix) error {
	if r, c := h.Dims(); r != t.model.Hiddens || c != 1 {
		return fmt.Errorf("train.SetHidden: have %dx%d, want %dx1: %w", r, c, t.model.Hiddens, rnn.ErrShapeMismatch)
	}
	t.hprev = mat.DenseCopyOf(h)
	return nil
}
