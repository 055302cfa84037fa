package trace

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/naming"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

// Engine traverses the symbol graph across language boundaries.
type Engine struct {
	metadata store.MetadataStore
	vectors  *vecstore.Store
	embedder embed.Embedder
	variants *naming.Generator

	semanticThreshold float64
	fanOutCap         int
}

// New creates a trace engine.
func New(metadata store.MetadataStore, vectors *vecstore.Store, embedder embed.Embedder) *Engine {
	return &Engine{
		metadata:          metadata,
		vectors:           vectors,
		embedder:          embedder,
		variants:          naming.NewGenerator(),
		semanticThreshold: DefaultSemanticThreshold,
		fanOutCap:         DefaultFanOutCap,
	}
}

// SetSemanticThreshold overrides the cosine floor for semantic edges.
func (e *Engine) SetSemanticThreshold(threshold float64) {
	if threshold > 0 && threshold <= 1 {
		e.semanticThreshold = threshold
	}
}

// SetFanOutCap overrides the per-node child cap.
func (e *Engine) SetFanOutCap(cap int) {
	if cap > 0 {
		e.fanOutCap = cap
	}
}

// traversal carries per-call accumulation state.
type traversal struct {
	engine         *Engine
	direction      Direction
	maxDepth       int
	enableSemantic bool

	nodesVisited    int
	maxDepthReached int
	cycles          bool
	languages       map[string]struct{}
	matchTypes      map[MatchType]int
	relKinds        map[store.RelationshipKind]int
}

// Trace builds the tree rooted at symbolName. Unknown symbols yield an
// empty Path with the Error field set; invalid depth or direction is a
// ValidationError.
func (e *Engine) Trace(ctx context.Context, symbolName string, direction Direction, maxDepth int, contextFile string, enableSemantic bool) (*Path, error) {
	start := time.Now()

	if maxDepth < 1 || maxDepth > MaxAllowedDepth {
		return nil, errors.Validation("max_depth must be between 1 and %d, got %d", MaxAllowedDepth, maxDepth)
	}
	switch direction {
	case DirectionDownstream, DirectionUpstream, DirectionBoth:
	default:
		return nil, errors.Validation("direction must be downstream, upstream, or both, got %q", direction)
	}

	root, err := e.metadata.GetSymbolByName(ctx, symbolName, contextFile)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return &Path{
				QuerySymbol: symbolName,
				Direction:   direction,
				MaxDepth:    maxDepth,
				MatchTypes:  map[MatchType]int{},
				RelationshipKinds: map[store.RelationshipKind]int{},
				Error:       "symbol '" + symbolName + "' not found in workspace",
				ExecutionMS: float64(time.Since(start).Microseconds()) / 1000.0,
			}, nil
		}
		return nil, err
	}

	tr := &traversal{
		engine:         e,
		direction:      direction,
		maxDepth:       maxDepth,
		enableSemantic: enableSemantic,
		languages:      make(map[string]struct{}),
		matchTypes:     make(map[MatchType]int),
		relKinds:       make(map[store.RelationshipKind]int),
	}

	visited := map[string]struct{}{root.ID: {}}
	rootNode := &Node{
		Symbol:    root,
		MatchType: MatchExact,
		Language:  root.Language,
		Depth:     0,
	}
	tr.languages[root.Language] = struct{}{}
	tr.nodesVisited++

	tr.expand(ctx, rootNode, visited, 1)

	path := &Path{
		QuerySymbol:       symbolName,
		Direction:         direction,
		MaxDepth:          maxDepth,
		Root:              rootNode,
		TotalNodes:        tr.nodesVisited,
		MaxDepthReached:   tr.maxDepthReached,
		Truncated:         tr.maxDepthReached >= maxDepth,
		CycleEncountered:  tr.cycles,
		MatchTypes:        tr.matchTypes,
		RelationshipKinds: tr.relKinds,
		ExecutionMS:       float64(time.Since(start).Microseconds()) / 1000.0,
	}
	for lang := range tr.languages {
		path.LanguagesFound = append(path.LanguagesFound, lang)
	}
	sort.Strings(path.LanguagesFound)
	return path, nil
}

// expand grows one node. The visited set travels down each path (copied
// per branch), so a symbol may appear on distinct branches but never
// twice on one root-to-leaf path.
func (tr *traversal) expand(ctx context.Context, node *Node, visited map[string]struct{}, depth int) {
	if depth > tr.maxDepth {
		return
	}
	if ctx.Err() != nil {
		return
	}

	edges := tr.collectEdges(ctx, node)

	for _, edge := range edges {
		if len(node.Children) >= tr.engine.fanOutCap {
			break
		}
		if _, onPath := visited[edge.symbol.ID]; onPath {
			node.CycleDetected = true
			tr.cycles = true
			continue
		}

		child := &Node{
			Symbol:           edge.symbol,
			MatchType:        edge.matchType,
			RelationshipKind: edge.relKind,
			Language:         edge.symbol.Language,
			Confidence:       edge.confidence,
			Depth:            depth,
		}
		node.Children = append(node.Children, child)

		tr.nodesVisited++
		if depth > tr.maxDepthReached {
			tr.maxDepthReached = depth
		}
		tr.languages[edge.symbol.Language] = struct{}{}
		tr.matchTypes[edge.matchType]++
		if edge.relKind != "" {
			tr.relKinds[edge.relKind]++
		}

		branchVisited := make(map[string]struct{}, len(visited)+1)
		for id := range visited {
			branchVisited[id] = struct{}{}
		}
		branchVisited[edge.symbol.ID] = struct{}{}

		tr.expand(ctx, child, branchVisited, depth+1)
	}
}

type edge struct {
	symbol     *store.Symbol
	matchType  MatchType
	relKind    store.RelationshipKind
	confidence float64
}

// collectEdges performs the three searches: direct relationships, then
// naming variants into other languages when direct edges are sparse,
// then semantic neighbors when enabled.
func (tr *traversal) collectEdges(ctx context.Context, node *Node) []edge {
	var edges []edge
	seen := map[string]struct{}{node.Symbol.ID: {}}

	appendEdge := func(e edge) {
		if _, dup := seen[e.symbol.ID]; dup {
			return
		}
		seen[e.symbol.ID] = struct{}{}
		edges = append(edges, e)
	}

	for _, e := range tr.directEdges(ctx, node.Symbol) {
		appendEdge(e)
	}

	directCount := len(edges)
	if directCount < variantProbeThreshold {
		for _, e := range tr.variantEdges(ctx, node.Symbol) {
			appendEdge(e)
		}
	}

	if tr.enableSemantic {
		for _, e := range tr.semanticEdges(ctx, node.Symbol) {
			appendEdge(e)
		}
	}

	return edges
}

// directEdges follows stored relationships in the traversal direction.
func (tr *traversal) directEdges(ctx context.Context, sym *store.Symbol) []edge {
	var out []edge

	if tr.direction == DirectionDownstream || tr.direction == DirectionBoth {
		rels, err := tr.engine.metadata.GetRelationshipsFrom(ctx, sym.ID, nil)
		if err == nil {
			for _, r := range rels {
				if r.ToSymbolID == "" {
					continue
				}
				if target, tErr := tr.engine.metadata.GetSymbol(ctx, r.ToSymbolID); tErr == nil {
					out = append(out, edge{symbol: target, matchType: MatchExact, relKind: r.Kind, confidence: r.Confidence})
				}
			}
		}
	}

	if tr.direction == DirectionUpstream || tr.direction == DirectionBoth {
		rels, err := tr.engine.metadata.GetRelationshipsTo(ctx, sym.ID, nil)
		if err == nil {
			for _, r := range rels {
				if r.FromSymbolID == "" {
					continue
				}
				if source, sErr := tr.engine.metadata.GetSymbol(ctx, r.FromSymbolID); sErr == nil {
					out = append(out, edge{symbol: source, matchType: MatchExact, relKind: r.Kind, confidence: r.Confidence})
				}
			}
		}
	}

	return out
}

// variantEdges probes the symbol table for naming variants declared in a
// different language.
func (tr *traversal) variantEdges(ctx context.Context, sym *store.Symbol) []edge {
	variants := tr.engine.variants.Variants(sym.Name)

	candidates, err := tr.engine.metadata.GetSymbolsByNames(ctx, variants, tr.engine.fanOutCap)
	if err != nil {
		return nil
	}

	var out []edge
	for _, c := range candidates {
		if c.ID == sym.ID || strings.EqualFold(c.Language, sym.Language) {
			continue
		}
		out = append(out, edge{symbol: c, matchType: MatchVariant, confidence: 0.9})
	}
	return out
}

// semanticEdges embeds "name signature doc" and keeps other-language
// neighbors above the cosine threshold.
func (tr *traversal) semanticEdges(ctx context.Context, sym *store.Symbol) []edge {
	text := strings.TrimSpace(sym.Name + " " + sym.Signature + " " + sym.DocComment)
	vec, err := tr.engine.embedder.Embed(ctx, text)
	if err != nil {
		return nil
	}

	hits, err := tr.engine.vectors.SearchVector(ctx, vec, tr.engine.fanOutCap)
	if err != nil {
		return nil
	}

	var out []edge
	for _, hit := range hits {
		similarity := float64(1.0 - hit.Distance)
		if similarity < tr.engine.semanticThreshold {
			continue
		}
		target, tErr := tr.engine.metadata.GetSymbol(ctx, hit.ID)
		if tErr != nil {
			continue
		}
		if target.ID == sym.ID || strings.EqualFold(target.Language, sym.Language) {
			continue
		}
		out = append(out, edge{symbol: target, matchType: MatchSemantic, confidence: similarity})
	}
	return out
}
