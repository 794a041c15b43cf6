package IO

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/charRNN/vocab"
)

// ExportTensors writes each tensor to dir/<name>_<tag>.bin in gonum's binary
// matrix format and returns the written paths in name order.
func ExportTensors(dir, tag string, tensors map[string]*mat.Dense) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", name, tag))
		if err := writeTensor(path, tensors[name]); err != nil {
			return paths, fmt.Errorf("ExportTensors %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTensor(path string, m *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := m.MarshalBinaryTo(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ImportTensor reads a matrix written by ExportTensors.
func ImportTensor(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("ImportTensor %s: %w", path, err)
	}
	return &m, nil
}

// vocabFile is the on-disk vocabulary. Symbols are stored as strings so the
// file stays readable; index order is the model's index order.
type vocabFile struct {
	Size    int      `json:"size"`
	Symbols []string `json:"symbols"`
}

func ExportVocabJSON(path string, v *vocab.Vocabulary) error {
	syms := v.Symbols()
	out := vocabFile{Size: len(syms), Symbols: make([]string, len(syms))}
	for i, r := range syms {
		out.Symbols[i] = string(r)
	}
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func ImportVocabJSON(path string) (*vocab.Vocabulary, error) {
	if !fileExists(path) {
		return nil, fmt.Errorf("ImportVocabJSON: %s not found", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in vocabFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("ImportVocabJSON %s: %w", path, err)
	}
	syms := make([]rune, len(in.Symbols))
	for i, s := range in.Symbols {
		r := []rune(s)
		if len(r) != 1 {
			return nil, fmt.Errorf("ImportVocabJSON %s: entry %d is %q, want a single symbol", path, i, s)
		}
		syms[i] = r[0]
	}
	return vocab.FromSymbols(syms)
}
