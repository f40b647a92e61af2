// Package search executes queries against a sealed index for the HTTP
// service, presenting results most-relevant-first.
package search

import (
	"context"
	"log/slog"

	"github.com/corpusindex/corpusindex/internal/index"
)

// Response is the service-level result of one query.
type Response struct {
	Query     string               `json:"query"`
	TotalHits int                  `json:"total_hits"`
	Results   []index.ScoredResult `json:"results"`
}

// Service wraps an InvertedIndex for query execution.
type Service struct {
	idx    *index.InvertedIndex
	logger *slog.Logger
}

// NewService creates a Service over an opened index.
func NewService(idx *index.InvertedIndex) *Service {
	return &Service{
		idx:    idx,
		logger: slog.Default().With("component", "search"),
	}
}

// Execute tokenizes the query text as a transient document, scores it
// against the index, and returns up to limit results in descending score
// order.
func (s *Service) Execute(ctx context.Context, query string, limit int) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryDoc := index.NewDocument(0, "query", "", query)
	scored, err := s.idx.Search(queryDoc)
	if err != nil {
		return nil, err
	}

	// The index returns scores ascending; the service presents them
	// most-relevant-first.
	results := make([]index.ScoredResult, 0, len(scored))
	for i := len(scored) - 1; i >= 0; i-- {
		results = append(results, scored[i])
	}
	totalHits := len(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	s.logger.Debug("query executed",
		"query", query,
		"total_hits", totalHits,
		"returned", len(results),
	)
	return &Response{
		Query:     query,
		TotalHits: totalHits,
		Results:   results,
	}, nil
}
