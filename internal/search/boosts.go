package search

import (
	"strings"

	"github.com/ziongh/miller/internal/store"
)

// Match-position multipliers on the symbol name.
const (
	boostExactMatch     = 3.0
	boostPrefixMatch    = 2.0
	boostSuffixMatch    = 1.5
	boostSubstringMatch = 1.0
)

// Field multipliers when the name carries no match.
const (
	boostNameField      = 3.0
	boostSignatureField = 1.5
	boostDocField       = 1.0
)

// qualityFloor drops rows that survive boosting below it.
const qualityFloor = 0.1

// kindWeights nudge ranking toward what developers actually search for.
var kindWeights = map[store.SymbolKind]float64{
	store.KindFunction:  1.1,
	store.KindClass:     1.1,
	store.KindMethod:    1.05,
	store.KindInterface: 1.05,
	store.KindType:      1.05,
	store.KindStruct:    1.05,
	store.KindVariable:  0.9,
	store.KindField:     0.9,
	store.KindParameter: 0.85,
	store.KindImport:    0.6,
	store.KindNamespace: 0.7,
	store.KindFile:      0.65,
}

// boostByMatchPosition scales the score by where the query matches the
// name: exact > prefix > suffix > substring. When the name has no match
// at all, field boosts take over.
func boostByMatchPosition(score float64, sym *store.Symbol, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	name := strings.ToLower(sym.Name)
	if q == "" || name == "" {
		return score
	}

	switch {
	case name == q:
		return clamp(score * boostExactMatch)
	case strings.HasPrefix(name, q):
		return clamp(score * boostPrefixMatch)
	case strings.HasSuffix(name, q):
		return clamp(score * boostSuffixMatch)
	case strings.Contains(name, q):
		return score * boostSubstringMatch
	default:
		return boostByField(score, sym, q)
	}
}

// boostByField scales by which field carries the query when the name
// does not.
func boostByField(score float64, sym *store.Symbol, q string) float64 {
	switch {
	case strings.Contains(strings.ToLower(sym.Name), q):
		return clamp(score * boostNameField)
	case strings.Contains(strings.ToLower(sym.Signature), q):
		return clamp(score * boostSignatureField)
	case strings.Contains(strings.ToLower(sym.DocComment), q):
		return score * boostDocField
	default:
		return score
	}
}

// applyKindWeight applies the modest kind multiplier.
func applyKindWeight(score float64, kind store.SymbolKind) float64 {
	if w, ok := kindWeights[kind]; ok {
		return clamp(score * w)
	}
	return clamp(score)
}

func clamp(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	return score
}
