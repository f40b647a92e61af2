package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	apperrors "github.com/corpusindex/corpusindex/pkg/errors"
)

// BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
	bm25K3 = 500.0
)

// Names of the mapping and statistics tables written next to the lexicon.
const (
	TermMappingFile  = "termid.mapping"
	DocIDMappingFile = "docid.mapping"
	DocLengthsFile   = "docs.lengths"
)

// ScoredResult pairs a matched document with its accumulated BM25 score.
type ScoredResult struct {
	DocID    DocID   `json:"doc_id"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// BuildStats summarises a completed index build.
type BuildStats struct {
	Docs     int
	Terms    int
	Chunks   int
	Duration time.Duration
}

// InvertedIndex orchestrates tokenization, chunked construction, persistence,
// and BM25 scoring; it is the sole entry point exposed to callers.
type InvertedIndex struct {
	lexicon   *Lexicon
	postings  *PostingsStore
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewInvertedIndex opens (or prepares) an index backed by the given lexicon
// and postings file paths. If an index already exists there, the saved term
// mapping is installed into the tokenizer so query-time term IDs match the
// build.
func NewInvertedIndex(lexiconPath, postingsPath string, workers int, tokenizer Tokenizer) (*InvertedIndex, error) {
	lexicon, err := NewLexicon(lexiconPath)
	if err != nil {
		return nil, err
	}
	if !lexicon.IsEmpty() {
		mapping, err := lexicon.TermMapping()
		if err != nil {
			return nil, err
		}
		tokenizer.SetTermMap(mapping)
	}
	return &InvertedIndex{
		lexicon:   lexicon,
		postings:  NewPostingsStore(postingsPath, workers),
		tokenizer: tokenizer,
		logger:    slog.Default().With("component", "inverted-index"),
	}, nil
}

// Lexicon exposes the read-only term dictionary and corpus statistics.
func (ii *InvertedIndex) Lexicon() *Lexicon {
	return ii.lexicon
}

// Close releases the postings read handle.
func (ii *InvertedIndex) Close() error {
	return ii.postings.Close()
}

// IndexDocs builds the index from the given documents and leaves it fully
// durable on return. It fails with ErrAlreadyIndexed when the lexicon is
// non-empty; the existing index is left untouched.
func (ii *InvertedIndex) IndexDocs(ctx context.Context, documents []*Document, chunkSizeLimitBytes int64) (*BuildStats, error) {
	if !ii.lexicon.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrAlreadyIndexed, ii.lexicon.path)
	}

	start := time.Now()
	dir := filepath.Dir(ii.lexicon.path)
	termMappingPath := filepath.Join(dir, TermMappingFile)
	docIDMappingPath := filepath.Join(dir, DocIDMappingFile)
	docLengthsPath := filepath.Join(dir, DocLengthsFile)

	ii.logger.Info("index build started",
		"docs", len(documents),
		"chunk_size_limit", chunkSizeLimitBytes,
	)

	numChunks, err := ii.postings.CreateChunks(ctx, documents, chunkSizeLimitBytes, ii.tokenizer)
	if err != nil {
		return nil, fmt.Errorf("creating chunks: %w", err)
	}
	if err := ii.tokenizer.TermMap().Save(termMappingPath); err != nil {
		return nil, apperrors.StorageIO("saving term mapping", err)
	}
	if err := ii.postings.SaveDocIDMapping(docIDMappingPath); err != nil {
		return nil, err
	}
	if err := ii.postings.CreatePostingsFile(numChunks, ii.lexicon); err != nil {
		return nil, fmt.Errorf("merging chunks: %w", err)
	}
	if err := ii.postings.SaveDocLengths(documents, docLengthsPath); err != nil {
		return nil, err
	}
	if err := ii.lexicon.Save(docLengthsPath, termMappingPath, docIDMappingPath); err != nil {
		return nil, err
	}

	stats := &BuildStats{
		Docs:     len(documents),
		Terms:    ii.lexicon.NumTerms(),
		Chunks:   numChunks,
		Duration: time.Since(start),
	}
	ii.logger.Info("index build complete",
		"docs", stats.Docs,
		"terms", stats.Terms,
		"chunks", stats.Chunks,
		"duration", stats.Duration,
	)
	return stats, nil
}

// Search tokenizes the query document with the same term mapping as the
// build and scores every matching document with BM25. Query terms absent
// from the lexicon are skipped. Results are ordered ascending by score, with
// ascending DocID as the tie-break; callers wanting most-relevant-first
// iterate in reverse. Scoring never mutates index state.
func (ii *InvertedIndex) Search(query *Document) ([]ScoredResult, error) {
	if err := ii.tokenizer.Tokenize(query, nil); err != nil {
		return nil, fmt.Errorf("tokenizing query %q: %w", query.Name, err)
	}

	numDocs := float64(ii.lexicon.NumDocs())
	avgDocLen := ii.lexicon.AvgDocLength()
	scores := make(map[DocID]float64)

	for termID, queryTermFreq := range query.Frequencies {
		if !ii.lexicon.ContainsTermID(termID) {
			continue
		}
		termData, err := ii.lexicon.TermInfo(termID)
		if err != nil {
			return nil, err
		}
		docList, err := ii.postings.Docs(termData)
		if err != nil {
			return nil, err
		}

		docFreq := float64(termData.DocFreq)
		idf := math.Log((numDocs - docFreq + 0.5) / (docFreq + 0.5))
		qtf := float64(queryTermFreq)
		queryWeight := ((bm25K3 + 1.0) * qtf) / (bm25K3 + qtf)

		for _, posting := range docList {
			docLen := ii.lexicon.DocLength(posting.DocID)
			freq := float64(posting.Freq)
			tf := ((bm25K1 + 1.0) * freq) /
				(bm25K1*((1.0-bm25B)+bm25B*docLen/avgDocLen) + freq)
			scores[posting.DocID] += tf * idf * queryWeight
		}
	}

	results := make([]ScoredResult, 0, len(scores))
	for docID, score := range scores {
		record, err := ii.lexicon.Doc(docID)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredResult{
			DocID:    docID,
			Category: record.Category,
			Score:    score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	return results, nil
}
