package sampler

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/rnn"
	"gonum.org/v1/gonum/mat"
)

func newRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func TestSampleLengthAndRange(t *testing.T) {
	m := rnn.NewRNN(8, 5, 0.5, rand.NewPCG(3, 4))
	policies := []Policy{Categorical{}, Thresholded{Ratio: 0.5}, Greedy{}, TopKP{K: 3, P: 0.9}}
	for _, p := range policies {
		out, err := Sample(m, m.ZeroHidden(), 2, 50, p, newRand())
		if err != nil {
			t.Fatalf("%T: %v", p, err)
		}
		if len(out) != 50 {
			t.Fatalf("%T: got %d indices", p, len(out))
		}
		for _, idx := range out {
			if idx < 0 || idx >= 5 {
				t.Fatalf("%T: index %d out of range", p, idx)
			}
		}
	}
}

func TestSampleLeavesStateAlone(t *testing.T) {
	m := rnn.NewRNN(4, 3, 0.5, rand.NewPCG(5, 6))
	before := m.Clone()
	h := mat.NewDense(4, 1, []float64{0.1, 0.2, 0.3, 0.4})
	hCopy := mat.DenseCopyOf(h)
	if _, err := Sample(m, h, 0, 20, nil, newRand()); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(h, hCopy) {
		t.Fatal("Sample mutated the caller's hidden state")
	}
	for i, p := range m.Params() {
		if !mat.Equal(p, before.Params()[i]) {
			t.Fatalf("Sample mutated %s", rnn.ParamNames[i])
		}
	}
}

func TestSampleDeterministicWithSeed(t *testing.T) {
	m := rnn.NewRNN(6, 4, 0.8, rand.NewPCG(7, 8))
	a, _ := Sample(m, m.ZeroHidden(), 1, 30, Categorical{}, newRand())
	b, _ := Sample(m, m.ZeroHidden(), 1, 30, Categorical{}, newRand())
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("samples diverge at %d", i)
		}
	}
}

func TestSampleErrors(t *testing.T) {
	m := rnn.NewRNN(2, 2, 0.1, rand.NewPCG(1, 1))
	if _, err := Sample(m, m.ZeroHidden(), 0, -1, nil, newRand()); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
	if _, err := Sample(m, m.ZeroHidden(), 5, 1, nil, newRand()); !errors.Is(err, rnn.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	out, err := Sample(m, m.ZeroHidden(), 0, 0, nil, newRand())
	if err != nil || len(out) != 0 {
		t.Fatalf("count 0: %v, %v", out, err)
	}
}

func TestThresholdedSkipsLowMass(t *testing.T) {
	probs := []float64{0.5, 0.3, 0.15, 0.05}
	rng := newRand()
	p := Thresholded{Ratio: 0.5}
	for i := 0; i < 500; i++ {
		idx := p.Select(probs, rng)
		if idx != 0 && idx != 1 {
			t.Fatalf("picked %d below half of the max", idx)
		}
	}
	if probs[2] != 0.15 {
		t.Fatal("Select modified probs")
	}
}

func TestGreedyAndTopK(t *testing.T) {
	probs := []float64{0.1, 0.6, 0.3}
	if got := (Greedy{}).Select(probs, nil); got != 1 {
		t.Fatalf("greedy = %d", got)
	}
	rng := newRand()
	for i := 0; i < 100; i++ {
		if got := (TopKP{K: 1}).Select(probs, rng); got != 1 {
			t.Fatalf("top-1 = %d", got)
		}
		if got := (TopKP{P: 0.5}).Select(probs, rng); got != 1 {
			t.Fatalf("top-p 0.5 = %d", got)
		}
	}
}

func TestCategoricalFollowsDistribution(t *testing.T) {
	probs := []float64{0.8, 0.2}
	rng := newRand()
	counts := [2]int{}
	for i := 0; i < 5000; i++ {
		counts[(Categorical{}).Select(probs, rng)]++
	}
	frac := float64(counts[0]) / 5000
	if frac < 0.76 || frac > 0.84 {
		t.Fatalf("index 0 drawn %.3f of the time, want about 0.8", frac)
	}
}

func TestPrime(t *testing.T) {
	m := rnn.NewRNN(3, 3, 0.5, rand.NewPCG(9, 9))
	h := m.ZeroHidden()
	got, err := Prime(m, h, []int{0, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	want := h
	for _, idx := range []int{0, 2, 1} {
		_, want, _ = m.TransitionIndex(idx, want)
	}
	if !mat.Equal(got, want) {
		t.Fatal("Prime disagrees with manual recurrence")
	}
	if mat.Sum(h) != 0 {
		t.Fatal("Prime mutated h")
	}
}

func TestPolicyByName(t *testing.T) {
	cfg := params.Config
	for name, want := range map[string]Policy{
		"":            Categorical{},
		"categorical": Categorical{},
		"thresholded": Thresholded{Ratio: 0.5},
		"greedy":      Greedy{},
		"topkp":       TopKP{},
	} {
		cfg.Policy = name
		got, err := PolicyByName(cfg)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if got != want {
			t.Fatalf("%q: got %#v, want %#v", name, got, want)
		}
	}
	cfg.Policy = "beam"
	if _, err := PolicyByName(cfg); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
