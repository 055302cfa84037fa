// Package trace builds cross-language call trees. Each expansion step
// tries direct relationships first, then naming variants in other
// languages, then (when enabled) semantic neighbors from the vector
// store.
package trace

import (
	"github.com/ziongh/miller/internal/store"
)

// Direction selects which way the tree grows.
type Direction string

const (
	// DirectionDownstream expands callees.
	DirectionDownstream Direction = "downstream"
	// DirectionUpstream expands callers.
	DirectionUpstream Direction = "upstream"
	// DirectionBoth expands both ways from the root.
	DirectionBoth Direction = "both"
)

// MatchType records how an edge was discovered.
type MatchType string

const (
	// MatchExact comes from a stored relationship.
	MatchExact MatchType = "exact"
	// MatchVariant comes from a naming-variant probe into another
	// language.
	MatchVariant MatchType = "variant"
	// MatchSemantic comes from vector similarity above the threshold.
	MatchSemantic MatchType = "semantic"
)

// Depth bounds.
const (
	DefaultMaxDepth = 3
	MaxAllowedDepth = 10
)

// DefaultSemanticThreshold is the minimum cosine similarity for
// semantic edges.
const DefaultSemanticThreshold = 0.7

// DefaultFanOutCap bounds children per node.
const DefaultFanOutCap = 100

// variantProbeThreshold: when a node has fewer direct edges than this,
// the variant probe runs.
const variantProbeThreshold = 3

// Node is one vertex of the trace tree.
type Node struct {
	Symbol           *store.Symbol
	MatchType        MatchType
	RelationshipKind store.RelationshipKind
	Language         string
	Confidence       float64 // cosine similarity for semantic matches
	Depth            int
	CycleDetected    bool
	Children         []*Node
}

// Path is the full trace answer.
type Path struct {
	QuerySymbol       string
	Direction         Direction
	MaxDepth          int
	Root              *Node
	TotalNodes        int
	MaxDepthReached   int
	Truncated         bool
	CycleEncountered  bool
	LanguagesFound    []string
	MatchTypes        map[MatchType]int
	RelationshipKinds map[store.RelationshipKind]int
	Error             string
	ExecutionMS       float64
}
