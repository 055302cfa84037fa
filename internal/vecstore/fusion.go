package vecstore

import (
	"sort"
)

// DefaultRRFConstant is the standard reciprocal-rank-fusion smoothing
// parameter; k=60 is the empirically validated cross-domain default.
const DefaultRRFConstant = 60

// FusedResult is a single hit after fusing the text and vector rankings.
type FusedResult struct {
	ID          string
	RRFScore    float64 // normalized 0-1
	TextScore   float64
	TextRank    int // 1-indexed, 0 if absent
	VecScore    float64
	VecRank     int // 1-indexed, 0 if absent
	InBothLists bool
}

// rrfFuse combines the two rankings: score(d) = Σ 1/(k + rank_i).
// Documents missing from one list contribute at missing_rank =
// max(len(text), len(vec)) + 1. Output is sorted and normalized to the
// batch maximum.
func rrfFuse(text []*TextResult, vec []*VectorResult, k int) []*FusedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(text) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(text)+len(vec))
	get := func(id string) *FusedResult {
		if r, ok := scores[id]; ok {
			return r
		}
		r := &FusedResult{ID: id}
		scores[id] = r
		return r
	}

	for rank, r := range text {
		f := get(r.ID)
		f.TextScore = r.Score
		f.TextRank = rank + 1
		f.RRFScore += 1.0 / float64(k+rank+1)
	}

	for rank, r := range vec {
		f := get(r.ID)
		f.VecScore = float64(r.Score)
		f.VecRank = rank + 1
		f.RRFScore += 1.0 / float64(k+rank+1)
		if f.TextRank > 0 {
			f.InBothLists = true
		}
	}

	missingRank := len(text)
	if len(vec) > missingRank {
		missingRank = len(vec)
	}
	missingRank++

	for _, f := range scores {
		if f.TextRank == 0 && f.VecRank > 0 {
			f.RRFScore += 1.0 / float64(k+missingRank)
		}
		if f.VecRank == 0 && f.TextRank > 0 {
			f.RRFScore += 1.0 / float64(k+missingRank)
		}
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, f := range scores {
		results = append(results, f)
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		if a.InBothLists != b.InBothLists {
			return a.InBothLists
		}
		if a.TextScore != b.TextScore {
			return a.TextScore > b.TextScore
		}
		return a.ID < b.ID
	})

	if max := results[0].RRFScore; max > 0 {
		for _, f := range results {
			f.RRFScore /= max
		}
	}
	return results
}
