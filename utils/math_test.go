package utils

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestColVectorSoftmaxSumsToOne(t *testing.T) {
	v := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	p := ColVectorSoftmax(v)
	if s := mat.Sum(p); math.Abs(s-1) > 1e-12 {
		t.Fatalf("sum = %v", s)
	}
	if !(p.At(3, 0) > p.At(2, 0) && p.At(2, 0) > p.At(1, 0)) {
		t.Fatalf("softmax not monotone: %v", mat.Formatted(p))
	}
}

func TestColVectorSoftmaxLargeLogits(t *testing.T) {
	v := mat.NewDense(3, 1, []float64{1000, 999, -1000})
	p := ColVectorSoftmax(v)
	for i := 0; i < 3; i++ {
		if math.IsNaN(p.At(i, 0)) || math.IsInf(p.At(i, 0), 0) {
			t.Fatalf("non-finite probability at %d: %v", i, p.At(i, 0))
		}
	}
	want := 1 / (1 + math.Exp(-1))
	if math.Abs(p.At(0, 0)-want) > 1e-9 {
		t.Fatalf("p[0] = %v, want %v", p.At(0, 0), want)
	}
}

func TestCrossEntropyGrad(t *testing.T) {
	p := mat.NewDense(3, 1, []float64{0.2, 0.5, 0.3})
	g := CrossEntropyGrad(p, 1)
	want := []float64{0.2, -0.5, 0.3}
	for i, w := range want {
		if math.Abs(g.At(i, 0)-w) > 1e-12 {
			t.Fatalf("grad[%d] = %v, want %v", i, g.At(i, 0), w)
		}
	}
	if p.At(1, 0) != 0.5 {
		t.Fatal("CrossEntropyGrad mutated its input")
	}
	if l := CrossEntropyWithIndex(p, 1); math.Abs(l-math.Log(2)) > 1e-12 {
		t.Fatalf("loss = %v", l)
	}
}

func TestClipInPlace(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{-10, 4, 5.5, 0})
	b := mat.NewDense(1, 1, []float64{-5})
	ClipInPlace(5, a, nil, b)
	want := []float64{-5, 4, 5, 0}
	if !floats.Equal(a.RawMatrix().Data, want) {
		t.Fatalf("clipped = %v, want %v", a.RawMatrix().Data, want)
	}
	if b.At(0, 0) != -5 {
		t.Fatalf("b = %v", b.At(0, 0))
	}
}

func TestRandomNormalScale(t *testing.T) {
	src := rand.NewPCG(7, 7)
	m := RandomNormal(50, 40, 0.01, src)
	data := m.RawMatrix().Data
	var sumSq float64
	for _, v := range data {
		sumSq += v * v
	}
	std := math.Sqrt(sumSq / float64(len(data)))
	if std < 0.008 || std > 0.012 {
		t.Fatalf("std = %v, want about 0.01", std)
	}
}

func TestNormalize(t *testing.T) {
	w := []float64{1, 3}
	if !Normalize(w) || w[0] != 0.25 || w[1] != 0.75 {
		t.Fatalf("Normalize = %v", w)
	}
	if Normalize([]float64{0, 0}) {
		t.Fatal("expected false for zero weights")
	}
}

func TestTanhPrimeFromOutput(t *testing.T) {
	h := mat.NewDense(2, 1, []float64{0.5, -1})
	up := mat.NewDense(2, 1, []float64{2, 3})
	d := TanhPrimeFromOutput(h, up)
	if d.At(0, 0) != 1.5 || d.At(1, 0) != 0 {
		t.Fatalf("got %v", mat.Formatted(d))
	}
}

func TestColumnData(t *testing.T) {
	v := mat.NewDense(3, 1, []float64{0.2, 0.3, 0.5})
	got := ColumnData(v)
	if !floats.Equal(got, []float64{0.2, 0.3, 0.5}) {
		t.Fatalf("ColumnData = %v", got)
	}
	m := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	col := m.Slice(0, 3, 1, 2).(*mat.Dense)
	if got := ColumnData(col); !floats.Equal(got, []float64{2, 4, 6}) {
		t.Fatalf("strided ColumnData = %v", got)
	}
}
