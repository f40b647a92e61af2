package tokenize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/corpusindex/corpusindex/internal/index"
)

// NGram extracts overlapping character n-grams from the normalised document
// text. Useful for robustness against misspellings and morphology-heavy
// corpora.
type NGram struct {
	base
	n int
}

// NewNGram creates an n-gram tokenizer; n defaults to 3 when out of range.
func NewNGram(n int) *NGram {
	if n < 1 {
		n = 3
	}
	return &NGram{base: newBase(), n: n}
}

func (t *NGram) name() string { return fmt.Sprintf("ngram%d", t.n) }

func (t *NGram) Tokenize(doc *index.Document, docFreq map[index.TermID]uint64) error {
	counts, err := t.counts(doc)
	if err != nil {
		return err
	}
	t.assign(doc, t.name(), counts, docFreq)
	return nil
}

func (t *NGram) counts(doc *index.Document) (map[string]uint64, error) {
	// Collapse runs of non-alphanumerics to single separators so grams do
	// not span unrelated words.
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(doc.Content) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSep = false
		} else if !lastSep {
			b.WriteRune('_')
			lastSep = true
		}
	}
	runes := []rune(strings.TrimSuffix(b.String(), "_"))

	counts := make(map[string]uint64)
	for i := 0; i+t.n <= len(runes); i++ {
		counts[string(runes[i:i+t.n])]++
	}
	return counts, nil
}
