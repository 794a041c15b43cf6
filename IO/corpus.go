package IO

import (
	"fmt"
	"os"

	"github.com/sugarme/tokenizer/normalizer"

	"github.com/manningwu07/charRNN/vocab"
)

// ReadCorpus loads the training text at path as a rune slice. When normalize
// is set the text is NFKC-normalised first, which folds compatibility forms
// (ligatures, full-width letters) into the symbols they stand for.
func ReadCorpus(path string, normalize bool) ([]rune, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(raw)
	if normalize {
		if text, err = NormalizeText(text); err != nil {
			return nil, fmt.Errorf("ReadCorpus %s: %w", path, err)
		}
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("ReadCorpus %s: %w", path, vocab.ErrEmptyCorpus)
	}
	return []rune(text), nil
}

// NormalizeText applies NFKC.
func NormalizeText(text string) (string, error) {
	n, err := normalizer.NewNFKC().Normalize(normalizer.NewNormalizedFrom(text))
	if err != nil {
		return "", err
	}
	return n.GetNormalized(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
