// Package retrieval ranks stored chunks against natural-language queries.
// It combines vector similarity from the knowledge store with a keyword
// overlap score, so answers that match the user's vocabulary outrank
// semantically adjacent but off-topic passages.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/taxaide/taxaide/internal/knowledge"
	"github.com/taxaide/taxaide/internal/log"
)

// DefaultTopK is the number of chunks returned when the caller does not
// specify one.
const DefaultTopK = 3

// Weights controls how vector and keyword scores combine. They are expected
// to sum to 1 but are not forced to; callers tuning them own the tradeoff.
type Weights struct {
	Vector  float64
	Keyword float64
}

// DefaultWeights favors vector similarity with a keyword correction.
var DefaultWeights = Weights{Vector: 0.7, Keyword: 0.3}

// Searcher is the slice of the knowledge store the retriever depends on.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
}

// Result is a retrieved chunk with its component and combined scores.
type Result struct {
	Chunk        knowledge.Chunk
	Similarity   float32
	KeywordScore float64
	Combined     float64
}

// Retriever performs hybrid search over the knowledge store.
type Retriever struct {
	search  Searcher
	weights Weights
	logger  log.Logger
}

// New creates a Retriever. Zero-valued weights fall back to DefaultWeights.
func New(search Searcher, weights Weights, logger log.Logger) *Retriever {
	if weights.Vector == 0 && weights.Keyword == 0 {
		weights = DefaultWeights
	}
	return &Retriever{
		search:  search,
		weights: weights,
		logger:  logger,
	}
}

// Retrieve returns the top k chunks for a query ranked by hybrid score.
// It over-fetches k*2 candidates from the vector index so keyword re-ranking
// has headroom, then combines scores and keeps the best k. An empty index
// yields an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	candidates, err := r.search.Search(ctx, query, knowledge.WithTopK(k*2))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	keywords := ExtractKeywords(query)
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		ks := KeywordScore(c.Chunk.Content, keywords)
		results[i] = Result{
			Chunk:        c.Chunk,
			Similarity:   c.Similarity,
			KeywordScore: ks,
			Combined:     r.weights.Vector*float64(c.Similarity) + r.weights.Keyword*ks,
		}
	}

	// Stable sort keeps the vector ordering for equal combined scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Combined > results[j].Combined
	})

	if len(results) > k {
		results = results[:k]
	}
	r.logger.Debug("hybrid retrieval",
		"keywords", len(keywords),
		"candidates", len(candidates),
		"returned", len(results))
	return results, nil
}

// RetrieveSemantic returns the top k chunks by vector similarity alone.
func (r *Retriever) RetrieveSemantic(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	candidates, err := r.search.Search(ctx, query, knowledge.WithTopK(k))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{
			Chunk:      c.Chunk,
			Similarity: c.Similarity,
			Combined:   float64(c.Similarity),
		}
	}
	return results, nil
}
