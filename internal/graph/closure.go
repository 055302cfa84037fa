// Package graph maintains the call-reachability closure: the set of
// (from, to, min_distance) triples obtained by transitively following
// Call relationships. Dead-code, hot-spot, and search-expansion queries
// read it instead of re-walking edges.
package graph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ziongh/miller/internal/store"
)

// DefaultMaxDistance caps closure depth to bound cost.
const DefaultMaxDistance = 10

// Closure computes and refreshes the reachability table. Refresh is
// serialized; concurrent callers wait for the in-flight computation.
type Closure struct {
	metadata    store.MetadataStore
	maxDistance int
	mu          sync.Mutex
}

// New creates a closure manager with the default distance cap.
func New(metadata store.MetadataStore) *Closure {
	return &Closure{metadata: metadata, maxDistance: DefaultMaxDistance}
}

// MarkStale flags the closure for recomputation.
func (c *Closure) MarkStale(ctx context.Context) error {
	return c.metadata.SetState(ctx, store.StateKeyReachabilityStale, "1")
}

// IsStale reports whether the closure needs recomputation.
func (c *Closure) IsStale(ctx context.Context) bool {
	v, err := c.metadata.GetState(ctx, store.StateKeyReachabilityStale)
	if err != nil {
		return true
	}
	return v == "1"
}

// EnsureFresh recomputes the closure if it is stale. Queries that depend
// on reachability call this first.
func (c *Closure) EnsureFresh(ctx context.Context) error {
	if !c.IsStale(ctx) {
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh rebuilds the closure from Call relationships by iterative
// frontier expansion: each round extends known paths by one direct edge,
// keeping the first (minimal) distance per pair. Stops when a round adds
// nothing or the distance cap is reached.
func (c *Closure) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rels, err := c.metadata.ListRelationships(ctx, []store.RelationshipKind{store.RelCall})
	if err != nil {
		return err
	}

	// Adjacency over direct call edges.
	adjacency := make(map[string][]string)
	for _, r := range rels {
		if r.FromSymbolID == "" || r.ToSymbolID == "" {
			continue
		}
		adjacency[r.FromSymbolID] = append(adjacency[r.FromSymbolID], r.ToSymbolID)
	}

	type pair struct{ from, to string }
	distances := make(map[pair]int)

	// Distance 1: the direct edges themselves.
	frontier := make(map[pair]struct{})
	for from, targets := range adjacency {
		for _, to := range targets {
			p := pair{from, to}
			if _, seen := distances[p]; !seen {
				distances[p] = 1
				frontier[p] = struct{}{}
			}
		}
	}

	for distance := 2; distance <= c.maxDistance && len(frontier) > 0; distance++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next := make(map[pair]struct{})
		for p := range frontier {
			for _, to := range adjacency[p.to] {
				np := pair{p.from, to}
				if _, seen := distances[np]; seen {
					continue
				}
				distances[np] = distance
				next[np] = struct{}{}
			}
		}
		frontier = next
	}

	entries := make([]store.ReachabilityEntry, 0, len(distances))
	for p, d := range distances {
		entries = append(entries, store.ReachabilityEntry{
			FromSymbolID: p.from,
			ToSymbolID:   p.to,
			MinDistance:  d,
		})
	}

	if err := c.metadata.ReplaceReachability(ctx, entries); err != nil {
		return err
	}
	if err := c.metadata.SetState(ctx, store.StateKeyReachabilityStale, "0"); err != nil {
		return err
	}

	slog.Debug("reachability closure refreshed",
		slog.Int("direct_edges", len(rels)),
		slog.Int("closure_rows", len(entries)))
	return nil
}

// Callers returns direct callers (distance 1) of a symbol, falling back
// to raw relationships when the closure is empty for it.
func (c *Closure) Callers(ctx context.Context, symbolID string) ([]string, error) {
	entries, err := c.metadata.GetReachableTo(ctx, symbolID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.FromSymbolID
		}
		return out, nil
	}

	rels, err := c.metadata.GetRelationshipsTo(ctx, symbolID, []store.RelationshipKind{store.RelCall})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rels))
	for _, r := range rels {
		if r.FromSymbolID != "" {
			out = append(out, r.FromSymbolID)
		}
	}
	return out, nil
}

// Callees returns direct callees (distance 1) of a symbol, with the same
// raw-relationship fallback.
func (c *Closure) Callees(ctx context.Context, symbolID string) ([]string, error) {
	entries, err := c.metadata.GetReachableFrom(ctx, symbolID, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.ToSymbolID
		}
		return out, nil
	}

	rels, err := c.metadata.GetRelationshipsFrom(ctx, symbolID, []store.RelationshipKind{store.RelCall})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rels))
	for _, r := range rels {
		if r.ToSymbolID != "" {
			out = append(out, r.ToSymbolID)
		}
	}
	return out, nil
}
