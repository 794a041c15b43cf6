package train

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/charRNN/rnn"
	"github.com/manningwu07/charRNN/vocab"
)

// Tensor is a dense matrix flattened for gob.
type Tensor struct {
	R, C int
	Data []float64
}

func flatten(m *mat.Dense) Tensor {
	r, c := m.Dims()
	return Tensor{R: r, C: c, Data: append([]float64(nil), mat.DenseCopyOf(m).RawMatrix().Data...)}
}

func (d Tensor) valid() bool {
	return d.R > 0 && d.C > 0 && len(d.Data) == d.R*d.C
}

func (d Tensor) Dense() *mat.Dense {
	return mat.NewDense(d.R, d.C, append([]float64(nil), d.Data...))
}

// Snapshot is a consistent copy of everything a Trainer needs to resume:
// the five parameter tensors, the hidden state, the Adagrad memory, the
// cursor and counters, and the vocabulary ordering the tensors are indexed by.
type Snapshot struct {
	Hiddens, Vocab int

	Params map[string]Tensor
	Memory []Tensor // Adagrad accumulators in rnn.ParamNames order
	Hidden Tensor

	Iteration  int
	Position   int
	Rotation   int
	SmoothLoss float64

	Symbols []rune
}

// Param returns the named parameter tensor from the snapshot.
func (s Snapshot) Param(name string) (*mat.Dense, bool) {
	d, ok := s.Params[name]
	if !ok || !d.valid() {
		return nil, false
	}
	return d.Dense(), true
}

func (s Snapshot) HiddenState() *mat.Dense { return s.Hidden.Dense() }

// Model rebuilds a standalone model from the snapshot.
func (s Snapshot) Model() (*rnn.RNN, error) {
	m := &rnn.RNN{Hiddens: s.Hiddens, Vocab: s.Vocab, GradClip: rnn.DefaultGradClip}
	for _, name := range rnn.ParamNames {
		p, ok := s.Param(name)
		if !ok {
			return nil, fmt.Errorf("snapshot is missing %s: %w", name, rnn.ErrShapeMismatch)
		}
		if err := m.SetParam(name, p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (s Snapshot) Vocabulary() (*vocab.Vocabulary, error) { return vocab.FromSymbols(s.Symbols) }

// Snapshot copies the trainer state as of the last completed iteration.
func (t *Trainer) Snapshot() Snapshot {
	s := Snapshot{
		Hiddens:    t.model.Hiddens,
		Vocab:      t.model.Vocab,
		Params:     make(map[string]Tensor, len(rnn.ParamNames)),
		Hidden:     flatten(t.hprev),
		Iteration:  t.iter,
		Position:   t.pos,
		Rotation:   t.rotation,
		SmoothLoss: t.smoothLoss,
		Symbols:    t.vocab.Symbols(),
	}
	for i, p := range t.model.Params() {
		s.Params[rnn.ParamNames[i]] = flatten(p)
	}
	for _, m := range t.opt.Memory() {
		s.Memory = append(s.Memory, flatten(m))
	}
	return s
}

// Restore replaces the trainer state with s. Dimensions and vocabulary must
// match the trainer exactly; on error the trainer is left unchanged.
func (t *Trainer) Restore(s Snapshot) error {
	if s.Hiddens != t.model.Hiddens || s.Vocab != t.model.Vocab {
		return fmt.Errorf("train.Restore: snapshot is H=%d V=%d, trainer is H=%d V=%d: %w",
			s.Hiddens, s.Vocab, t.model.Hiddens, t.model.Vocab, rnn.ErrShapeMismatch)
	}
	if len(s.Symbols) > 0 && string(s.Symbols) != string(t.vocab.Symbols()) {
		return fmt.Errorf("train.Restore: vocabulary ordering differs: %w", rnn.ErrShapeMismatch)
	}
	model, err := s.Model()
	if err != nil {
		return fmt.Errorf("train.Restore: %w", err)
	}
	if !s.Hidden.valid() || s.Hidden.R != s.Hiddens || s.Hidden.C != 1 {
		return fmt.Errorf("train.Restore: hidden state is %dx%d: %w", s.Hidden.R, s.Hidden.C, rnn.ErrShapeMismatch)
	}
	hidden := s.HiddenState()
	mem := make([]*mat.Dense, len(s.Memory))
	for i, d := range s.Memory {
		if !d.valid() {
			return fmt.Errorf("train.Restore: adagrad memory %d is malformed: %w", i, rnn.ErrShapeMismatch)
		}
		mem[i] = d.Dense()
	}
	if err := t.opt.SetMemory(model.Params(), mem); err != nil {
		return fmt.Errorf("train.Restore: %w", err)
	}

	model.GradClip = t.cfg.GradClip
	t.model = model
	t.hprev = hidden
	t.iter = s.Iteration
	t.pos = s.Position
	t.rotation = s.Rotation
	t.smoothLoss = s.SmoothLoss
	return nil
}

// SaveCheckpoint writes a gob-encoded Snapshot to path.
func (t *Trainer) SaveCheckpoint(path string) error {
	return SaveSnapshot(t.Snapshot(), path)
}

func SaveSnapshot(s Snapshot, path string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadSnapshot reads a Snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	var s Snapshot
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return s, fmt.Errorf("LoadSnapshot %s: %w", path, err)
	}
	return s, nil
}

// LoadCheckpoint restores the trainer from a file written by SaveCheckpoint.
func (t *Trainer) LoadCheckpoint(path string) error {
	s, err := LoadSnapshot(path)
	if err != nil {
		return err
	}
	return t.Restore(s)
}
