package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/graph"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

// Router orchestrates search over the dual stores.
type Router struct {
	vectors  *vecstore.Store
	metadata store.MetadataStore
	closure  *graph.Closure
	reranker Reranker

	// semanticFallbackFloor: a text search whose top score lands below
	// this triggers a semantic retry. A policy constant, not a
	// correctness property.
	semanticFallbackFloor float64
}

// NewRouter builds the router. reranker may be nil.
func NewRouter(vectors *vecstore.Store, metadata store.MetadataStore, closure *graph.Closure, reranker Reranker, fallbackFloor float64) *Router {
	if fallbackFloor <= 0 {
		fallbackFloor = 0.35
	}
	return &Router{
		vectors:               vectors,
		metadata:              metadata,
		closure:               closure,
		reranker:              reranker,
		semanticFallbackFloor: fallbackFloor,
	}
}

// Search runs the full pipeline: method dispatch, enrichment, filters,
// boosts, quality floor, semantic fallback, optional expansion and
// re-ranking.
func (r *Router) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	query = strings.TrimSpace(query)
	resp := &Response{Method: opts.Method}

	if query == "" || opts.Limit == 0 {
		resp.Results = []*Result{}
		return resp, nil
	}
	limit := opts.Limit
	if limit < 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if !opts.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, opts.Deadline)
		defer cancel()
	}

	method := opts.Method
	if method == "" || method == vecstore.MethodAuto {
		if vecstore.ContainsPatternChars(query) {
			method = vecstore.MethodPattern
		} else {
			method = vecstore.MethodHybrid
		}
	}
	resp.Method = method

	results, err := r.runMethod(ctx, query, method, limit, opts)
	if err != nil {
		if errors.IsKind(err, errors.KindEmbedder) {
			// Semantic machinery down: degrade to text.
			slog.Warn("semantic search degraded to text", slog.String("error", err.Error()))
			results, err = r.runMethod(ctx, query, vecstore.MethodText, limit, opts)
			resp.Method = vecstore.MethodText
		}
		if err != nil {
			if ctx.Err() != nil {
				resp.Truncated = true
				resp.Results = []*Result{}
				return resp, nil
			}
			return nil, err
		}
	}

	// Semantic fallback: a text search that finds nothing (or nothing
	// confident) retries semantically. Pattern-charged queries are
	// exempt: embedding punctuation idioms produces noise, and the
	// pattern method is the right tool for them.
	if method == vecstore.MethodText && !vecstore.ContainsPatternChars(query) {
		topScore := 0.0
		if len(results) > 0 {
			topScore = results[0].Score
		}
		if len(results) == 0 || topScore < r.semanticFallbackFloor {
			if fallback, fbErr := r.runMethod(ctx, query, vecstore.MethodSemantic, limit, opts); fbErr == nil && len(fallback) > 0 {
				for _, f := range fallback {
					f.Fallback = true
				}
				results = fallback
				resp.Fallback = true
			}
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}

	if opts.Rerank {
		results = applyReranker(ctx, r.reranker, query, results)
	}

	if opts.Expand {
		r.expand(ctx, results)
	}

	if ctx.Err() != nil {
		resp.Truncated = true
	}
	resp.Results = results
	return resp, nil
}

// runMethod executes one method and applies enrichment, filters, boosts,
// the quality floor, and the final sort.
func (r *Router) runMethod(ctx context.Context, query string, method vecstore.SearchMethod, limit int, opts Options) ([]*Result, error) {
	hits, err := r.vectors.Search(ctx, query, method, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(hits))
	for _, hit := range hits {
		sym, symErr := r.metadata.GetSymbol(ctx, hit.ID)
		if symErr != nil {
			// Orphans from lazy deletes are filtered at read time.
			continue
		}

		if opts.Language != "" && !strings.EqualFold(sym.Language, opts.Language) {
			continue
		}
		if opts.FilePattern != "" {
			if ok, _ := doublestar.Match(opts.FilePattern, sym.FilePath); !ok {
				continue
			}
		}

		score := boostByMatchPosition(hit.Score, sym, query)
		score = applyKindWeight(score, sym.Kind)
		if score < qualityFloor {
			continue
		}

		results = append(results, &Result{
			Symbol: sym,
			Score:  score,
			Method: hit.Method,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// expand attaches direct callers and callees from the reachability
// closure (or raw relationships when the closure is absent), capped per
// side with the totals preserved.
func (r *Router) expand(ctx context.Context, results []*Result) {
	for _, result := range results {
		callerIDs, err := r.closure.Callers(ctx, result.Symbol.ID)
		if err != nil {
			continue
		}
		calleeIDs, err := r.closure.Callees(ctx, result.Symbol.ID)
		if err != nil {
			continue
		}

		exp := &Expansion{
			TotalCallers: len(callerIDs),
			TotalCallees: len(calleeIDs),
		}
		exp.Callers = r.resolveSymbols(ctx, capIDs(callerIDs, ExpansionCap))
		exp.Callees = r.resolveSymbols(ctx, capIDs(calleeIDs, ExpansionCap))
		result.Expansion = exp
	}
}

func (r *Router) resolveSymbols(ctx context.Context, ids []string) []*store.Symbol {
	out := make([]*store.Symbol, 0, len(ids))
	for _, id := range ids {
		if sym, err := r.metadata.GetSymbol(ctx, id); err == nil {
			out = append(out, sym)
		}
	}
	return out
}

func capIDs(ids []string, cap int) []string {
	if len(ids) > cap {
		return ids[:cap]
	}
	return ids
}

// WithDeadline returns options with a deadline duration applied.
func (o Options) WithDeadline(d time.Duration) Options {
	o.Deadline = time.Now().Add(d)
	return o
}
