// Package vocab maps corpus symbols to dense integer indices.
package vocab

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrEmptyCorpus   = errors.New("empty corpus")
)

// Vocabulary is an immutable bijection between symbols and 0..Size()-1.
type Vocabulary struct {
	idToSymbol []rune
	symbolToID map[rune]int
}

// Build deduplicates the symbols of corpus. Indices follow ascending code
// point order so the same corpus always produces the same layout.
func Build(corpus []rune) (*Vocabulary, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	seen := make(map[rune]struct{})
	var symbols []rune
	for _, r := range corpus {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		symbols = append(symbols, r)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })
	return FromSymbols(symbols)
}

// FromSymbols rebuilds a vocabulary with an exact, previously saved ordering.
func FromSymbols(symbols []rune) (*Vocabulary, error) {
	if len(symbols) == 0 {
		return nil, ErrEmptyCorpus
	}
	v := &Vocabulary{
		idToSymbol: append([]rune(nil), symbols...),
		symbolToID: make(map[rune]int, len(symbols)),
	}
	for i, r := range v.idToSymbol {
		if _, dup := v.symbolToID[r]; dup {
			return nil, fmt.Errorf("vocab: duplicate symbol %q at index %d", r, i)
		}
		v.symbolToID[r] = i
	}
	return v, nil
}

func (v *Vocabulary) Size() int { return len(v.idToSymbol) }

// Symbols returns a copy of the index-ordered symbol table.
func (v *Vocabulary) Symbols() []rune {
	return append([]rune(nil), v.idToSymbol...)
}

func (v *Vocabulary) Encode(r rune) (int, error) {
	id, ok := v.symbolToID[r]
	if !ok {
		return 0, fmt.Errorf("encode %q: %w", r, ErrUnknownSymbol)
	}
	return id, nil
}

func (v *Vocabulary) Decode(id int) (rune, error) {
	if id < 0 || id >= len(v.idToSymbol) {
		return 0, fmt.Errorf("decode %d (size %d): %w", id, len(v.idToSymbol), ErrUnknownSymbol)
	}
	return v.idToSymbol[id], nil
}

func (v *Vocabulary) EncodeAll(symbols []rune) ([]int, error) {
	out := make([]int, len(symbols))
	for i, r := range symbols {
		id, err := v.Encode(r)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out[i] = id
	}
	return out, nil
}

func (v *Vocabulary) DecodeAll(ids []int) (string, error) {
	var sb strings.Builder
	sb.Grow(len(ids))
	for _, id := range ids {
		r, err := v.Decode(id)
		if err != nil {
			return "", err
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
