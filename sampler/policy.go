package sampler

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/manningwu07/charRNN/params"
	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Policy picks the next index from a probability distribution. Select must
// not modify probs.
type Policy interface {
	Select(probs []float64, rng *rand.Rand) int
}

func source(rng *rand.Rand) rand.Source {
	if rng == nil {
		return nil
	}
	return rng
}

// draw samples from unnormalised non-negative weights.
func draw(weights []float64, rng *rand.Rand) int {
	return int(distuv.NewCategorical(weights, source(rng)).Rand())
}

// Categorical draws from the full distribution.
type Categorical struct{}

func (Categorical) Select(probs []float64, rng *rand.Rand) int {
	return draw(probs, rng)
}

// Thresholded zeroes every probability below Ratio*max(probs), renormalises
// and draws. It trades diversity for confidence.
type Thresholded struct {
	Ratio float64
}

func (p Thresholded) Select(probs []float64, rng *rand.Rand) int {
	cut := floats.Max(probs) * p.Ratio
	w := make([]float64, len(probs))
	for i, v := range probs {
		if v >= cut {
			w[i] = v
		}
	}
	if !utils.Normalize(w) {
		return floats.MaxIdx(probs)
	}
	return draw(w, rng)
}

// Greedy always takes the most likely index.
type Greedy struct{}

func (Greedy) Select(probs []float64, _ *rand.Rand) int {
	return floats.MaxIdx(probs)
}

// TopKP keeps the K most likely indices (K <= 0 keeps all), then the
// smallest prefix whose mass reaches P (P outside (0,1) keeps all), and
// draws from what is left.
type TopKP struct {
	K int
	P float64
}

func (p TopKP) Select(probs []float64, rng *rand.Rand) int {
	type kv struct {
		id  int
		val float64
	}
	arr := make([]kv, len(probs))
	sum := floats.Sum(probs)
	for i, v := range probs {
		arr[i] = kv{id: i, val: v / sum}
	}
	sort.SliceStable(arr, func(i, j int) bool { return arr[i].val > arr[j].val })

	if p.K > 0 && p.K < len(arr) {
		arr = arr[:p.K]
	}
	if p.P > 0 && p.P < 1 {
		cum := 0.0
		cut := len(arr)
		for i, e := range arr {
			cum += e.val
			if cum >= p.P {
				cut = i + 1
				break
			}
		}
		arr = arr[:cut]
	}

	w := make([]float64, len(arr))
	for i, e := range arr {
		w[i] = e.val
	}
	if !utils.Normalize(w) {
		return arr[0].id
	}
	return arr[draw(w, rng)].id
}

// PolicyByName maps a config policy name to a Policy.
func PolicyByName(cfg params.TrainingConfig) (Policy, error) {
	switch cfg.Policy {
	case "", "categorical":
		return Categorical{}, nil
	case "thresholded":
		ratio := cfg.ThresholdRatio
		if ratio <= 0 {
			ratio = 0.5
		}
		return Thresholded{Ratio: ratio}, nil
	case "greedy":
		return Greedy{}, nil
	case "topkp":
		return TopKP{K: cfg.TopK, P: cfg.TopP}, nil
	}
	return nil, fmt.Errorf("unknown sampling policy %q", cfg.Policy)
}
