package optimizations

import (
	"errors"
	"fmt"
	"math"

	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/mat"
)

var ErrShapeMismatch = errors.New("shape mismatch")

// AdagradUpdateInPlace applies
//
//	m += g*g
//	p -= lr * g / sqrt(m + eps)
//
// elementwise.
func AdagradUpdateInPlace(p, g, m *mat.Dense, lr, eps float64) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("AdagradUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("AdagradUpdateInPlace: mem shape mismatch")
	}
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := m.At(i, j) + gij*gij
			m.Set(i, j, mij)
			p.Set(i, j, p.At(i, j)-lr*gij/math.Sqrt(mij+eps))
		}
	}
}

// Adagrad owns one squared-gradient accumulator per parameter tensor. The
// accumulators are created on the first Apply and never decay.
type Adagrad struct {
	LearningRate float64
	Eps          float64

	mem []*mat.Dense
}

func NewAdagrad(lr, eps float64) *Adagrad {
	return &Adagrad{LearningRate: lr, Eps: eps}
}

func (a *Adagrad) initIfNeeded(params []*mat.Dense) {
	if a.mem != nil {
		return
	}
	a.mem = make([]*mat.Dense, len(params))
	for i, p := range params {
		a.mem[i] = utils.ZerosLike(p)
	}
}

// Apply updates params in place from grads. Both slices must be in the same
// order and shape on every call.
func (a *Adagrad) Apply(params, grads []*mat.Dense) error {
	if len(params) != len(grads) {
		return fmt.Errorf("Adagrad.Apply: %d params, %d grads: %w", len(params), len(grads), ErrShapeMismatch)
	}
	a.initIfNeeded(params)
	if len(a.mem) != len(params) {
		return fmt.Errorf("Adagrad.Apply: optimizer tracks %d tensors, got %d: %w", len(a.mem), len(params), ErrShapeMismatch)
	}
	for i := range params {
		if !utils.SameShape(params[i], grads[i]) || !utils.SameShape(params[i], a.mem[i]) {
			pr, pc := params[i].Dims()
			gr, gc := grads[i].Dims()
			return fmt.Errorf("Adagrad.Apply tensor %d: param %dx%d, grad %dx%d: %w", i, pr, pc, gr, gc, ErrShapeMismatch)
		}
	}
	for i := range params {
		AdagradUpdateInPlace(params[i], grads[i], a.mem[i], a.LearningRate, a.Eps)
	}
	return nil
}

// Memory returns copies of the accumulators, or nil before the first Apply.
func (a *Adagrad) Memory() []*mat.Dense {
	if a.mem == nil {
		return nil
	}
	out := make([]*mat.Dense, len(a.mem))
	for i, m := range a.mem {
		out[i] = mat.DenseCopyOf(m)
	}
	return out
}

// SetMemory restores accumulators saved by Memory. They must match the
// shapes of params.
func (a *Adagrad) SetMemory(params, mem []*mat.Dense) error {
	if len(mem) == 0 {
		a.mem = nil
		return nil
	}
	if len(mem) != len(params) {
		return fmt.Errorf("Adagrad.SetMemory: %d accumulators for %d params: %w", len(mem), len(params), ErrShapeMismatch)
	}
	restored := make([]*mat.Dense, len(mem))
	for i, m := range mem {
		if !utils.SameShape(m, params[i]) {
			return fmt.Errorf("Adagrad.SetMemory tensor %d: %w", i, ErrShapeMismatch)
		}
		restored[i] = mat.DenseCopyOf(m)
	}
	a.mem = restored
	return nil
}
