package optimizations

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/manningwu07/charRNN/rnn"
	"gonum.org/v1/gonum/mat"
)

func TestAdagradUpdateInPlace(t *testing.T) {
	p := mat.NewDense(1, 2, []float64{1, 1})
	g := mat.NewDense(1, 2, []float64{2, -0.5})
	m := mat.NewDense(1, 2, []float64{0, 0})

	AdagradUpdateInPlace(p, g, m, 0.1, 1e-8)

	if m.At(0, 0) != 4 || m.At(0, 1) != 0.25 {
		t.Fatalf("mem = %v", m.RawMatrix().Data)
	}
	// First step moves every element by almost exactly lr against the sign of g.
	if math.Abs(p.At(0, 0)-0.9) > 1e-8 || math.Abs(p.At(0, 1)-1.1) > 1e-8 {
		t.Fatalf("p = %v", p.RawMatrix().Data)
	}

	first := p.At(0, 0)
	AdagradUpdateInPlace(p, g, m, 0.1, 1e-8)
	if m.At(0, 0) != 8 {
		t.Fatalf("mem after two steps = %v", m.At(0, 0))
	}
	want := first - 0.1*2/math.Sqrt(8+1e-8)
	if math.Abs(p.At(0, 0)-want) > 1e-12 {
		t.Fatalf("p after two steps = %v, want %v", p.At(0, 0), want)
	}
}

func TestAdagradZeroGradLeavesParam(t *testing.T) {
	p := mat.NewDense(2, 1, []float64{0.3, -0.7})
	opt := NewAdagrad(0.1, 1e-8)
	if err := opt.Apply([]*mat.Dense{p}, []*mat.Dense{mat.NewDense(2, 1, nil)}); err != nil {
		t.Fatal(err)
	}
	if p.At(0, 0) != 0.3 || p.At(1, 0) != -0.7 {
		t.Fatalf("zero gradient changed params: %v", p.RawMatrix().Data)
	}
}

func TestAdagradShapeMismatch(t *testing.T) {
	opt := NewAdagrad(0.1, 1e-8)
	p := mat.NewDense(2, 2, nil)
	if err := opt.Apply([]*mat.Dense{p}, []*mat.Dense{mat.NewDense(2, 1, nil)}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if err := opt.Apply([]*mat.Dense{p}, nil); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestAdagradMemoryRoundTrip(t *testing.T) {
	p := mat.NewDense(1, 1, []float64{1})
	g := mat.NewDense(1, 1, []float64{3})
	opt := NewAdagrad(0.1, 1e-8)
	if opt.Memory() != nil {
		t.Fatal("memory before first Apply should be nil")
	}
	if err := opt.Apply([]*mat.Dense{p}, []*mat.Dense{g}); err != nil {
		t.Fatal(err)
	}
	mem := opt.Memory()
	if mem[0].At(0, 0) != 9 {
		t.Fatalf("mem = %v", mem[0].At(0, 0))
	}

	other := NewAdagrad(0.1, 1e-8)
	if err := other.SetMemory([]*mat.Dense{p}, mem); err != nil {
		t.Fatal(err)
	}
	q := mat.DenseCopyOf(p)
	if err := opt.Apply([]*mat.Dense{p}, []*mat.Dense{g}); err != nil {
		t.Fatal(err)
	}
	if err := other.Apply([]*mat.Dense{q}, []*mat.Dense{g}); err != nil {
		t.Fatal(err)
	}
	if p.At(0, 0) != q.At(0, 0) {
		t.Fatalf("restored optimizer diverged: %v vs %v", p.At(0, 0), q.At(0, 0))
	}
	if err := other.SetMemory([]*mat.Dense{p}, []*mat.Dense{mat.NewDense(2, 1, nil)}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

// Two-symbol vocabulary, three hidden units, a two-step window.
func TestTwoSymbolScenario(t *testing.T) {
	model := rnn.NewRNN(3, 2, 0.01, rand.NewPCG(42, 42))
	before := model.Clone()

	res, err := model.Step([]int{0, 1}, []int{1, 0}, model.ZeroHidden())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.StepLosses[0]+res.StepLosses[1]-res.Loss) > 1e-12 {
		t.Fatalf("step losses %v do not sum to %v", res.StepLosses, res.Loss)
	}
	if r, c := res.Grads.DWhy.Dims(); r != 2 || c != 3 {
		t.Fatalf("DWhy is %dx%d", r, c)
	}

	opt := NewAdagrad(0.1, 1e-8)
	if err := opt.Apply(model.Params(), res.Grads.List()); err != nil {
		t.Fatal(err)
	}
	for k, p := range model.Params() {
		old := before.Params()[k]
		g := res.Grads.List()[k]
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				delta := p.At(i, j) - old.At(i, j)
				gij := g.At(i, j)
				if gij == 0 {
					if delta != 0 {
						t.Fatalf("%s[%d,%d] moved with zero gradient", rnn.ParamNames[k], i, j)
					}
					continue
				}
				if math.Signbit(delta) == math.Signbit(-gij) {
					continue
				}
				t.Fatalf("%s[%d,%d]: delta %v has the sign of grad %v", rnn.ParamNames[k], i, j, delta, gij)
			}
		}
	}
}
