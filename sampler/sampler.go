// Package sampler generates symbol sequences by feeding a model's own
// predictions back in as the next input.
package sampler

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/manningwu07/charRNN/rnn"
	"github.com/manningwu07/charRNN/utils"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidCount = errors.New("invalid sample count")

// Sample draws count indices starting from seed. The model and h are left
// untouched; the recurrence runs on a private copy of h.
func Sample(m *rnn.RNN, h *mat.Dense, seed, count int, policy Policy, rng *rand.Rand) ([]int, error) {
	if count < 0 {
		return nil, fmt.Errorf("sampler.Sample: count %d: %w", count, ErrInvalidCount)
	}
	if policy == nil {
		policy = Categorical{}
	}
	state := mat.DenseCopyOf(h)
	idx := seed
	out := make([]int, 0, count)
	for t := 0; t < count; t++ {
		probs, next, err := m.TransitionIndex(idx, state)
		if err != nil {
			return nil, fmt.Errorf("sampler.Sample step %d: %w", t, err)
		}
		state = next
		idx = policy.Select(utils.ColumnData(probs), rng)
		out = append(out, idx)
	}
	return out, nil
}

// Prime runs the recurrence over indices and returns the resulting hidden
// state, leaving h untouched.
func Prime(m *rnn.RNN, h *mat.Dense, indices []int) (*mat.Dense, error) {
	state := mat.DenseCopyOf(h)
	for t, idx := range indices {
		_, next, err := m.TransitionIndex(idx, state)
		if err != nil {
			return nil, fmt.Errorf("sampler.Prime step %d: %w", t, err)
		}
		state = next
	}
	return state, nil
}
