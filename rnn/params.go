package rnn

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnknownParam    = errors.New("unknown parameter")
)

// Parameter names in canonical order. Gradients.List and Params share it.
const (
	ParamWxh = "Wxh"
	ParamWhh = "Whh"
	ParamWhy = "Why"
	ParamBh  = "bh"
	ParamBy  = "by"
)

var ParamNames = []string{ParamWxh, ParamWhh, ParamWhy, ParamBh, ParamBy}

// Params returns the live parameter tensors in canonical order. The
// optimizer updates them in place.
func (r *RNN) Params() []*mat.Dense {
	return []*mat.Dense{r.Wxh, r.Whh, r.Why, r.Bh, r.By}
}

// Shape returns the required dimensions of the named parameter.
func (r *RNN) Shape(name string) (rows, cols int, err error) {
	switch name {
	case ParamWxh:
		return r.Hiddens, r.Vocab, nil
	case ParamWhh:
		return r.Hiddens, r.Hiddens, nil
	case ParamWhy:
		return r.Vocab, r.Hiddens, nil
	case ParamBh:
		return r.Hiddens, 1, nil
	case ParamBy:
		return r.Vocab, 1, nil
	}
	return 0, 0, fmt.Errorf("%q: %w", name, ErrUnknownParam)
}

func (r *RNN) slot(name string) **mat.Dense {
	switch name {
	case ParamWxh:
		return &r.Wxh
	case ParamWhh:
		return &r.Whh
	case ParamWhy:
		return &r.Why
	case ParamBh:
		return &r.Bh
	case ParamBy:
		return &r.By
	}
	return nil
}

// Param returns a copy of the named parameter tensor.
func (r *RNN) Param(name string) (*mat.Dense, error) {
	p := r.slot(name)
	if p == nil {
		return nil, fmt.Errorf("rnn.Param %q: %w", name, ErrUnknownParam)
	}
	return mat.DenseCopyOf(*p), nil
}

// SetParam replaces the named parameter with a copy of m. The shape must
// match the model's (H, V) exactly.
func (r *RNN) SetParam(name string, m mat.Matrix) error {
	rows, cols, err := r.Shape(name)
	if err != nil {
		return fmt.Errorf("rnn.SetParam: %w", err)
	}
	if mr, mc := m.Dims(); mr != rows || mc != cols {
		return fmt.Errorf("rnn.SetParam %s: have %dx%d, want %dx%d: %w", name, mr, mc, rows, cols, ErrShapeMismatch)
	}
	*r.slot(name) = mat.DenseCopyOf(m)
	return nil
}

// Clone deep-copies the model.
func (r *RNN) Clone() *RNN {
	return &RNN{
		Hiddens:  r.Hiddens,
		Vocab:    r.Vocab,
		Wxh:      mat.DenseCopyOf(r.Wxh),
		Whh:      mat.DenseCopyOf(r.Whh),
		Why:      mat.DenseCopyOf(r.Why),
		Bh:       mat.DenseCopyOf(r.Bh),
		By:       mat.DenseCopyOf(r.By),
		GradClip: r.GradClip,
	}
}
