// Package explore implements the discovery queries: dead code, hot
// spots, type listings, similar symbols, and directory dependencies.
package explore

import (
	"context"
	"sort"
	"strings"

	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/graph"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

// Mode selects the discovery query.
type Mode string

const (
	ModeTypes        Mode = "types"
	ModeSimilar      Mode = "similar"
	ModeDeadCode     Mode = "dead_code"
	ModeHotSpots     Mode = "hot_spots"
	ModeDependencies Mode = "dependencies"
)

// Params carries mode-specific inputs.
type Params struct {
	// Query names the anchor symbol for similar mode and filters types
	// mode by prefix.
	Query string

	// Limit caps results (default 25).
	Limit int

	// Depth and MinEdges apply to dependencies mode.
	Depth    int
	MinEdges int
}

// DeadSymbol is a dead-code finding.
type DeadSymbol struct {
	Symbol *store.Symbol
}

// HotSpot is a most-referenced symbol.
type HotSpot struct {
	Symbol       *store.Symbol
	InboundCalls int
	RefFileCount int
	TotalRefs    int
}

// SimilarSymbol is a vector-neighborhood finding.
type SimilarSymbol struct {
	Symbol     *store.Symbol
	Similarity float64
}

// Result is the mode-tagged answer.
type Result struct {
	Mode         Mode
	Types        []*store.Symbol
	Similar      []*SimilarSymbol
	DeadCode     []*DeadSymbol
	HotSpots     []*HotSpot
	Dependencies []*store.DirectoryEdge
}

// Explorer runs the discovery queries.
type Explorer struct {
	metadata store.MetadataStore
	vectors  *vecstore.Store
	closure  *graph.Closure
}

// New creates an explorer.
func New(metadata store.MetadataStore, vectors *vecstore.Store, closure *graph.Closure) *Explorer {
	return &Explorer{metadata: metadata, vectors: vectors, closure: closure}
}

// Explore dispatches on mode. Unknown modes are a ValidationError.
func (e *Explorer) Explore(ctx context.Context, mode Mode, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = 25
	}

	switch mode {
	case ModeTypes:
		return e.exploreTypes(ctx, params)
	case ModeSimilar:
		return e.exploreSimilar(ctx, params)
	case ModeDeadCode:
		return e.exploreDeadCode(ctx, params)
	case ModeHotSpots:
		return e.exploreHotSpots(ctx, params)
	case ModeDependencies:
		return e.exploreDependencies(ctx, params)
	default:
		return nil, errors.Validation("unknown explore mode %q", mode)
	}
}

// exploreTypes lists type-shaped symbols, optionally filtered by name
// prefix.
func (e *Explorer) exploreTypes(ctx context.Context, params Params) (*Result, error) {
	kinds := []store.SymbolKind{
		store.KindClass, store.KindInterface, store.KindStruct,
		store.KindEnum, store.KindType,
	}
	symbols, err := e.metadata.ListSymbolsByKinds(ctx, kinds)
	if err != nil {
		return nil, err
	}

	out := make([]*store.Symbol, 0, len(symbols))
	for _, s := range symbols {
		if params.Query != "" && !strings.HasPrefix(strings.ToLower(s.Name), strings.ToLower(params.Query)) {
			continue
		}
		out = append(out, s)
		if len(out) >= params.Limit {
			break
		}
	}
	return &Result{Mode: ModeTypes, Types: out}, nil
}

// exploreSimilar finds the vector neighborhood of a named symbol.
func (e *Explorer) exploreSimilar(ctx context.Context, params Params) (*Result, error) {
	if params.Query == "" {
		return nil, errors.Validation("similar mode requires a symbol name")
	}

	anchor, err := e.metadata.GetSymbolByName(ctx, params.Query, "")
	if err != nil {
		return &Result{Mode: ModeSimilar, Similar: []*SimilarSymbol{}}, nil
	}

	hits, err := e.vectors.Search(ctx, anchor.CodePattern(), vecstore.MethodSemantic, params.Limit+1)
	if err != nil {
		return nil, err
	}

	out := make([]*SimilarSymbol, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == anchor.ID {
			continue
		}
		sym, symErr := e.metadata.GetSymbol(ctx, hit.ID)
		if symErr != nil {
			continue
		}
		out = append(out, &SimilarSymbol{Symbol: sym, Similarity: hit.Score})
		if len(out) >= params.Limit {
			break
		}
	}
	return &Result{Mode: ModeSimilar, Similar: out}, nil
}

// exploreDeadCode finds functions and classes with zero inbound
// reachability, excluding test artifacts, underscore-private names, and
// self-references.
func (e *Explorer) exploreDeadCode(ctx context.Context, params Params) (*Result, error) {
	if err := e.closure.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	candidates, err := e.metadata.ListSymbolsByKinds(ctx,
		[]store.SymbolKind{store.KindFunction, store.KindClass})
	if err != nil {
		return nil, err
	}

	filtered := make([]*store.Symbol, 0, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, s := range candidates {
		if isTestArtifact(s) {
			continue
		}
		filtered = append(filtered, s)
		ids = append(ids, s.ID)
	}

	inbound, err := e.metadata.CountInboundReachability(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*DeadSymbol, 0, params.Limit)
	for _, s := range filtered {
		if inbound[s.ID] > 0 {
			continue
		}
		// Inbound closure rows are absent; references from other files
		// still count as live use.
		if e.hasExternalReferences(ctx, s) {
			continue
		}
		out = append(out, &DeadSymbol{Symbol: s})
		if len(out) >= params.Limit {
			break
		}
	}
	return &Result{Mode: ModeDeadCode, DeadCode: out}, nil
}

// hasExternalReferences checks for identifier use-sites outside the
// symbol's own defining file (self-references do not count).
func (e *Explorer) hasExternalReferences(ctx context.Context, s *store.Symbol) bool {
	groups, err := e.metadata.FindReferences(ctx, s.Name, store.RefOptions{Limit: 50})
	if err != nil {
		return false
	}
	for _, g := range groups {
		if g.FilePath != s.FilePath {
			return true
		}
	}
	return false
}

// exploreHotSpots ranks symbols by inbound closure count and by the
// number of distinct files referencing them. Import-kind symbols are
// down-weighted.
func (e *Explorer) exploreHotSpots(ctx context.Context, params Params) (*Result, error) {
	if err := e.closure.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	symbols, err := e.metadata.ListSymbolsByKinds(ctx, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(symbols))
	names := make([]string, 0, len(symbols))
	nameSeen := make(map[string]bool)
	for _, s := range symbols {
		if isTestArtifact(s) {
			continue
		}
		ids = append(ids, s.ID)
		if !nameSeen[s.Name] {
			nameSeen[s.Name] = true
			names = append(names, s.Name)
		}
	}

	inbound, err := e.metadata.CountInboundReachability(ctx, ids)
	if err != nil {
		return nil, err
	}
	usage, err := e.metadata.CountIdentifiersByName(ctx, names)
	if err != nil {
		return nil, err
	}

	spots := make([]*HotSpot, 0, len(symbols))
	for _, s := range symbols {
		if isTestArtifact(s) {
			continue
		}
		spot := &HotSpot{Symbol: s, InboundCalls: inbound[s.ID]}
		if u, ok := usage[s.Name]; ok {
			spot.RefFileCount = u.FileCount
			spot.TotalRefs = u.Total
		}
		if spot.InboundCalls == 0 && spot.TotalRefs == 0 {
			continue
		}
		spots = append(spots, spot)
	}

	sort.Slice(spots, func(i, j int) bool {
		a, b := spots[i], spots[j]
		aScore := hotSpotScore(a)
		bScore := hotSpotScore(b)
		if aScore != bScore {
			return aScore > bScore
		}
		return a.Symbol.Name < b.Symbol.Name
	})

	if len(spots) > params.Limit {
		spots = spots[:params.Limit]
	}
	return &Result{Mode: ModeHotSpots, HotSpots: spots}, nil
}

// hotSpotScore weights inbound calls and reference spread, discounting
// file-level import symbols.
func hotSpotScore(h *HotSpot) float64 {
	score := float64(h.InboundCalls)*2 + float64(h.RefFileCount)*1.5 + float64(h.TotalRefs)*0.5
	if h.Symbol.Kind == store.KindImport {
		score *= 0.3
	}
	return score
}

// exploreDependencies renders the cross-directory aggregation.
func (e *Explorer) exploreDependencies(ctx context.Context, params Params) (*Result, error) {
	depth := params.Depth
	if depth <= 0 {
		depth = 2
	}
	edges, err := e.metadata.GetCrossDirectoryDependencies(ctx, depth, params.MinEdges)
	if err != nil {
		return nil, err
	}
	return &Result{Mode: ModeDependencies, Dependencies: edges}, nil
}

// isTestArtifact applies the exclusion rules: test directory segments,
// underscore-private names, and test-named symbols.
func isTestArtifact(s *store.Symbol) bool {
	for _, segment := range strings.Split(s.FilePath, "/") {
		if segment == "tests" || segment == "__tests__" || segment == "test" {
			return true
		}
	}
	name := s.Name
	if strings.HasPrefix(name, "_") {
		return true
	}
	if strings.HasPrefix(name, "test_") || strings.HasPrefix(name, "Test") {
		return true
	}
	if strings.HasSuffix(s.FilePath, "_test.go") || strings.HasPrefix(strings.ToLower(lastSegment(s.FilePath)), "test_") {
		return true
	}
	return false
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	return path[idx+1:]
}
