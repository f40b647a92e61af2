package tokenize

import (
	"github.com/corpusindex/corpusindex/internal/index"
)

// Multi runs several strategies over the same document and unions their
// term-frequency outputs into one map. Each sub-strategy's terms keep its
// name tag, so IDs from different strategies never collide. All IDs are
// assigned from Multi's own term mapping; the sub-variants' mappings are
// unused.
type Multi struct {
	base
	subs []Variant
}

// NewMulti composes the given variants.
func NewMulti(subs ...Variant) *Multi {
	return &Multi{base: newBase(), subs: subs}
}

func (t *Multi) name() string { return "multi" }

func (t *Multi) Tokenize(doc *index.Document, docFreq map[index.TermID]uint64) error {
	for _, sub := range t.subs {
		counts, err := sub.counts(doc)
		if err != nil {
			return err
		}
		t.assign(doc, sub.name(), counts, docFreq)
	}
	return nil
}

// counts flattens every sub-strategy's output into one tagged map, letting a
// Multi itself serve as a Variant.
func (t *Multi) counts(doc *index.Document) (map[string]uint64, error) {
	merged := make(map[string]uint64)
	for _, sub := range t.subs {
		counts, err := sub.counts(doc)
		if err != nil {
			return nil, err
		}
		for term, n := range counts {
			merged[sub.name()+":"+term] += n
		}
	}
	return merged, nil
}
