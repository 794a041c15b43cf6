package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type TrainingConfig struct {
	// Core recurrence parameters
	HiddenSize int     `json:"hidden_size"` // H
	SeqLength  int     `json:"seq_length"`  // steps to unroll the RNN for
	InitScale  float64 `json:"init_scale"`  // stddev of initial weights

	// Optimization parameters
	LearningRate float64 `json:"learning_rate"`
	AdagradEps   float64 `json:"adagrad_eps"` // default 1e-8
	GradClip     float64 `json:"grad_clip"`   // elementwise clip to [-GradClip, GradClip]
	LossDecay    float64 `json:"loss_decay"`  // smooth loss EMA decay

	// Corpus windowing
	RotateOffset bool `json:"rotate_offset"` // resume at a rotating offset after the first pass
	RotateStride int  `json:"rotate_stride"`

	// Diagnostics / sampling
	SampleEvery    int     `json:"sample_every"`  // sample every N iterations (0 = never)
	SampleLength   int     `json:"sample_length"` // symbols per diagnostic sample
	ProbeLength    int     `json:"probe_length"`  // symbols per interactive probe
	Policy         string  `json:"policy"`        // categorical | thresholded | greedy | topkp
	ThresholdRatio float64 `json:"threshold_ratio"`
	TopK           int     `json:"top_k"`
	TopP           float64 `json:"top_p"`

	Seed      uint64 `json:"seed"`
	Normalize bool   `json:"normalize"` // NFKC-normalize the corpus before building the vocab
}

// Config holds the defaults of the reference min-char-rnn setup.
var Config = TrainingConfig{
	HiddenSize: 100,
	SeqLength:  25,
	InitScale:  0.01,

	LearningRate: 1e-1,
	AdagradEps:   1e-8,
	GradClip:     5,
	LossDecay:    0.999,

	RotateOffset: false,
	RotateStride: 5,

	SampleEvery:    100,
	SampleLength:   200,
	ProbeLength:    25,
	Policy:         "categorical",
	ThresholdRatio: 0.5,
	TopK:           0,
	TopP:           0,

	Seed: 1,
}

var ErrInvalidConfig = errors.New("invalid config")

func (c TrainingConfig) Validate() error {
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: hidden_size must be positive, got %d", ErrInvalidConfig, c.HiddenSize)
	case c.SeqLength <= 0:
		return fmt.Errorf("%w: seq_length must be positive, got %d", ErrInvalidConfig, c.SeqLength)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate must be positive, got %g", ErrInvalidConfig, c.LearningRate)
	case c.AdagradEps < 0:
		return fmt.Errorf("%w: adagrad_eps must be non-negative, got %g", ErrInvalidConfig, c.AdagradEps)
	case c.GradClip <= 0:
		return fmt.Errorf("%w: grad_clip must be positive, got %g", ErrInvalidConfig, c.GradClip)
	case c.LossDecay < 0 || c.LossDecay >= 1:
		return fmt.Errorf("%w: loss_decay must be in [0,1), got %g", ErrInvalidConfig, c.LossDecay)
	case c.SampleEvery < 0 || c.SampleLength < 0 || c.ProbeLength < 0:
		return fmt.Errorf("%w: sampling lengths must be non-negative", ErrInvalidConfig)
	case c.RotateOffset && c.RotateStride <= 0:
		return fmt.Errorf("%w: rotate_stride must be positive when rotate_offset is set", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig overlays the JSON file at path on top of base.
func LoadConfig(path string, base TrainingConfig) (TrainingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	cfg := base
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("LoadConfig %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
