// Package rnn implements a single-layer tanh recurrent network with a linear
// softmax output, trained by truncated backpropagation through time.
package rnn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/mat"
)

// DefaultGradClip bounds every gradient element after backprop.
const DefaultGradClip = 5.0

type RNN struct {
	Hiddens int // H
	Vocab   int // V

	Wxh *mat.Dense // (H x V) input to hidden
	Whh *mat.Dense // (H x H) hidden to hidden
	Why *mat.Dense // (V x H) hidden to output
	Bh  *mat.Dense // (H x 1) hidden bias
	By  *mat.Dense // (V x 1) output bias

	GradClip float64
}

// Gradients mirrors the parameter tensors of an RNN.
type Gradients struct {
	DWxh, DWhh, DWhy *mat.Dense
	DBh, DBy         *mat.Dense
}

// List returns the gradients in canonical parameter order.
func (g *Gradients) List() []*mat.Dense {
	return []*mat.Dense{g.DWxh, g.DWhh, g.DWhy, g.DBh, g.DBy}
}

type StepResult struct {
	Loss       float64   // summed over the window
	StepLosses []float64 // per time step
	Grads      *Gradients
	Hidden     *mat.Dense // hidden state after the last input
}

// stepCache holds every forward activation of one window; the backward pass
// walks it in reverse. hs[0] is the incoming state, hs[t+1] follows xs[t].
type stepCache struct {
	xs []*mat.Dense
	hs []*mat.Dense
	ps []*mat.Dense
}

// NewRNN initialises weights from N(0, initScale^2) and biases to zero.
func NewRNN(hidden, vocab int, initScale float64, src rand.Source) *RNN {
	return &RNN{
		Hiddens:  hidden,
		Vocab:    vocab,
		Wxh:      utils.RandomNormal(hidden, vocab, initScale, src),
		Whh:      utils.RandomNormal(hidden, hidden, initScale, src),
		Why:      utils.RandomNormal(vocab, hidden, initScale, src),
		Bh:       mat.NewDense(hidden, 1, nil),
		By:       mat.NewDense(vocab, 1, nil),
		GradClip: DefaultGradClip,
	}
}

func (r *RNN) ZeroHidden() *mat.Dense {
	return mat.NewDense(r.Hiddens, 1, nil)
}

func (r *RNN) checkHidden(h mat.Matrix) error {
	if hr, hc := h.Dims(); hr != r.Hiddens || hc != 1 {
		return fmt.Errorf("hidden state is %dx%d, want %dx1: %w", hr, hc, r.Hiddens, ErrShapeMismatch)
	}
	return nil
}

func (r *RNN) checkIndex(idx int) error {
	if idx < 0 || idx >= r.Vocab {
		return fmt.Errorf("index %d outside [0,%d): %w", idx, r.Vocab, ErrIndexOutOfRange)
	}
	return nil
}

// forwardOne advances the recurrence by one input vector.
func (r *RNN) forwardOne(x, hPrev *mat.Dense) (h, probs *mat.Dense) {
	h = mat.NewDense(r.Hiddens, 1, nil)
	h.Product(r.Wxh, x)
	var rec mat.Dense
	rec.Mul(r.Whh, hPrev)
	h.Add(h, &rec)
	h.Add(h, r.Bh)
	h.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, h)

	logits := mat.NewDense(r.Vocab, 1, nil)
	logits.Mul(r.Why, h)
	logits.Add(logits, r.By)
	return h, utils.ColVectorSoftmax(logits)
}

// Step runs the forward pass over one window, backpropagates the summed
// cross-entropy loss through time, and clips the gradients. The model's
// parameters are not modified.
func (r *RNN) Step(inputs, targets []int, hprev *mat.Dense) (StepResult, error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return StepResult{}, fmt.Errorf("rnn.Step: %d inputs, %d targets: %w", len(inputs), len(targets), ErrInvalidWindow)
	}
	if err := r.checkHidden(hprev); err != nil {
		return StepResult{}, fmt.Errorf("rnn.Step: %w", err)
	}
	for t := range inputs {
		if err := r.checkIndex(inputs[t]); err != nil {
			return StepResult{}, fmt.Errorf("rnn.Step input %d: %w", t, err)
		}
		if err := r.checkIndex(targets[t]); err != nil {
			return StepResult{}, fmt.Errorf("rnn.Step target %d: %w", t, err)
		}
	}

	L := len(inputs)
	cache := stepCache{
		xs: make([]*mat.Dense, L),
		hs: make([]*mat.Dense, L+1),
		ps: make([]*mat.Dense, L),
	}
	cache.hs[0] = mat.DenseCopyOf(hprev)

	res := StepResult{StepLosses: make([]float64, L)}
	for t := 0; t < L; t++ {
		cache.xs[t] = utils.OneHot(r.Vocab, inputs[t])
		cache.hs[t+1], cache.ps[t] = r.forwardOne(cache.xs[t], cache.hs[t])
		res.StepLosses[t] = utils.CrossEntropyWithIndex(cache.ps[t], targets[t])
		res.Loss += res.StepLosses[t]
	}

	g := &Gradients{
		DWxh: utils.ZerosLike(r.Wxh),
		DWhh: utils.ZerosLike(r.Whh),
		DWhy: utils.ZerosLike(r.Why),
		DBh:  utils.ZerosLike(r.Bh),
		DBy:  utils.ZerosLike(r.By),
	}
	dhNext := mat.NewDense(r.Hiddens, 1, nil)
	for t := L - 1; t >= 0; t-- {
		h, hPrev := cache.hs[t+1], cache.hs[t]

		dy := utils.CrossEntropyGrad(cache.ps[t], targets[t])
		var dWhy mat.Dense
		dWhy.Mul(dy, h.T())
		g.DWhy.Add(g.DWhy, &dWhy)
		g.DBy.Add(g.DBy, dy)

		dh := mat.NewDense(r.Hiddens, 1, nil)
		dh.Mul(r.Why.T(), dy)
		dh.Add(dh, dhNext)

		dhRaw := utils.TanhPrimeFromOutput(h, dh)
		g.DBh.Add(g.DBh, dhRaw)

		var dWxh, dWhh mat.Dense
		dWxh.Mul(dhRaw, cache.xs[t].T())
		g.DWxh.Add(g.DWxh, &dWxh)
		dWhh.Mul(dhRaw, hPrev.T())
		g.DWhh.Add(g.DWhh, &dWhh)

		dhNext = mat.NewDense(r.Hiddens, 1, nil)
		dhNext.Mul(r.Whh.T(), dhRaw)
	}

	clip := r.GradClip
	if clip <= 0 {
		clip = DefaultGradClip
	}
	utils.ClipInPlace(clip, g.List()...)

	res.Grads = g
	res.Hidden = cache.hs[L]
	return res, nil
}

// Transition applies one recurrence step to a one-hot (V x 1) input and
// returns the next-symbol distribution with the next hidden state.
func (r *RNN) Transition(x, h *mat.Dense) (probs, next *mat.Dense, err error) {
	if xr, xc := x.Dims(); xr != r.Vocab || xc != 1 {
		return nil, nil, fmt.Errorf("rnn.Transition: input is %dx%d, want %dx1: %w", xr, xc, r.Vocab, ErrShapeMismatch)
	}
	if err := r.checkHidden(h); err != nil {
		return nil, nil, fmt.Errorf("rnn.Transition: %w", err)
	}
	next, probs = r.forwardOne(x, h)
	return probs, next, nil
}

// TransitionIndex is Transition on the one-hot encoding of idx.
func (r *RNN) TransitionIndex(idx int, h *mat.Dense) (probs, next *mat.Dense, err error) {
	if err := r.checkIndex(idx); err != nil {
		return nil, nil, fmt.Errorf("rnn.Transition: %w", err)
	}
	return r.Transition(utils.OneHot(r.Vocab, idx), h)
}
