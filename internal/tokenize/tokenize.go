// Package tokenize provides the feature-extraction strategies that turn raw
// documents into term-frequency maps: a bag-of-words tokenizer, a character
// n-gram tokenizer, a family of parse-tree structural tokenizers, and a
// composite that unions several strategies over the same document.
//
// Every strategy tags its term strings with its own name before IDs are
// assigned, so terms from different strategies never collide when combined.
package tokenize

import (
	"fmt"

	"github.com/corpusindex/corpusindex/internal/index"
	"github.com/corpusindex/corpusindex/pkg/config"
)

// Variant is a single feature-extraction strategy. It is implemented only
// inside this package; callers pick variants via the constructors or
// FromConfig.
type Variant interface {
	index.Tokenizer

	// name tags the variant's term strings, namespacing them from other
	// strategies.
	name() string

	// counts extracts raw term strings (untagged) with occurrence counts.
	counts(doc *index.Document) (map[string]uint64, error)
}

// base carries the shared term mapping and ID-assignment logic.
type base struct {
	terms *index.TermMap
}

func newBase() base {
	return base{terms: index.NewTermMap()}
}

func (b *base) SetTermMap(m *index.TermMap) {
	b.terms = m
}

func (b *base) TermMap() *index.TermMap {
	return b.terms
}

// assign tags each raw term with prefix, resolves its TermID, and folds the
// counts into the document. When docFreq is non-nil it is incremented once
// per distinct term, accumulating document frequency across a pass.
func (b *base) assign(doc *index.Document, prefix string, counts map[string]uint64, docFreq map[index.TermID]uint64) {
	for term, n := range counts {
		id := b.terms.GetOrAssign(prefix + ":" + term)
		doc.Increment(id, n)
		if docFreq != nil {
			docFreq[id]++
		}
	}
}

// FromConfig builds the tokenizer selected by cfg.
func FromConfig(cfg config.TokenizerConfig) (index.Tokenizer, error) {
	v, err := variantByKind(cfg, cfg.Kind)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func variantByKind(cfg config.TokenizerConfig, kind string) (Variant, error) {
	switch kind {
	case "word":
		return NewWord(), nil
	case "ngram":
		return NewNGram(cfg.NGramSize), nil
	case "subtree":
		return NewTree(Subtree), nil
	case "depth":
		return NewTree(Depth), nil
	case "branch":
		return NewTree(Branch), nil
	case "tag":
		return NewTree(Tag), nil
	case "skeleton":
		return NewTree(Skeleton), nil
	case "semi-skeleton":
		return NewTree(SemiSkeleton), nil
	case "multi":
		if len(cfg.MultiKinds) == 0 {
			return nil, fmt.Errorf("multi tokenizer requires at least one sub-strategy")
		}
		subs := make([]Variant, 0, len(cfg.MultiKinds))
		for _, sub := range cfg.MultiKinds {
			if sub == "multi" {
				return nil, fmt.Errorf("multi tokenizer cannot nest itself")
			}
			v, err := variantByKind(cfg, sub)
			if err != nil {
				return nil, err
			}
			subs = append(subs, v)
		}
		return NewMulti(subs...), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer kind %q", kind)
	}
}
