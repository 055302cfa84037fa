package search

import (
	"context"
	"log/slog"
	"sort"
)

// Reranker is an optional cross-encoder that re-scores the top results.
// Implementations live outside the engine; the router only requires
// scores it can normalize.
type Reranker interface {
	// Rerank returns one raw score per (query, document) pair, in input
	// order. Higher is more relevant; the scale is the ranker's own.
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)
}

// rerankTopK bounds how many rows go through the ranker.
const rerankTopK = 20

// applyReranker re-scores the top results, normalizing the ranker's
// output into [0,1] while preserving its descending order. Any ranker
// failure leaves the original ordering untouched.
func applyReranker(ctx context.Context, ranker Reranker, query string, results []*Result) []*Result {
	if ranker == nil || len(results) == 0 {
		return results
	}

	k := rerankTopK
	if k > len(results) {
		k = len(results)
	}
	top := results[:k]

	docs := make([]string, k)
	for i, r := range top {
		docs[i] = r.Symbol.CodePattern() + " " + r.Symbol.DocComment
	}

	scores, err := ranker.Rerank(ctx, query, docs)
	if err != nil || len(scores) != k {
		// Degrade rather than fail: keep the original ordering.
		slog.Warn("reranker failed, keeping original order",
			slog.Any("error", err))
		return results
	}

	min, max := scores[0], scores[0]
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	for i, r := range top {
		if max > min {
			r.Score = (scores[i] - min) / (max - min)
		} else {
			r.Score = 1.0
		}
	}

	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Score > top[j].Score
	})
	return results
}
