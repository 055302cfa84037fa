// Package search is the query router: it executes text, pattern,
// semantic, and hybrid searches against the vector store, enriches hits
// from the metadata store, and applies the ranking-quality pipeline.
package search

import (
	"time"

	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

// Options control one search call.
type Options struct {
	// Method selects the execution strategy; auto routes on pattern
	// characters.
	Method vecstore.SearchMethod

	// Limit caps returned rows. Zero yields an empty list; values above
	// MaxLimit are clamped.
	Limit int

	// Language filters by case-insensitive language equality.
	Language string

	// FilePattern filters by glob match against the workspace-relative
	// path.
	FilePattern string

	// Expand attaches direct callers and callees to each result.
	Expand bool

	// Rerank runs the optional cross-encoder re-ranker over the top
	// results.
	Rerank bool

	// Deadline, when set, bounds the call; on expiry the best results
	// assembled so far return with Truncated set.
	Deadline time.Time
}

// MaxLimit is the hard cap on result counts.
const MaxLimit = 1000

// DefaultLimit applies when the caller does not set one.
const DefaultLimit = 10

// Expansion carries a result's direct graph neighborhood.
type Expansion struct {
	Callers      []*store.Symbol
	Callees      []*store.Symbol
	TotalCallers int
	TotalCallees int
}

// ExpansionCap bounds callers/callees attached per result; the total
// counts are preserved alongside.
const ExpansionCap = 5

// Result is one enriched search hit.
type Result struct {
	Symbol    *store.Symbol
	Score     float64
	Method    vecstore.SearchMethod
	Fallback  bool // true when semantic fallback produced this row
	Expansion *Expansion
}

// Response is a full search answer.
type Response struct {
	Results   []*Result
	Method    vecstore.SearchMethod
	Fallback  bool
	Truncated bool
}
