package vecstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/store"
)

// SearchMethod selects how a query is executed.
type SearchMethod string

const (
	MethodAuto     SearchMethod = "auto"
	MethodText     SearchMethod = "text"
	MethodPattern  SearchMethod = "pattern"
	MethodSemantic SearchMethod = "semantic"
	MethodHybrid   SearchMethod = "hybrid"
)

// PatternChars are the characters that carry meaning in code idioms. A
// query containing any of them auto-routes to the pattern method.
const PatternChars = ":<>[](){}=?.,/\\|&^~!+-*@#"

// ContainsPatternChars reports whether the query carries code idiom
// punctuation.
func ContainsPatternChars(query string) bool {
	return strings.ContainsAny(query, PatternChars)
}

// Result is a vecstore search hit: an ID with a score and the method
// that produced it.
type Result struct {
	ID     string
	Score  float64
	Method SearchMethod
}

// Store is the vector store facade: one pattern/text FTS index plus one
// HNSW graph, written together and queried per method. Writes are
// serialized by the owning indexer; reads are concurrent.
type Store struct {
	pattern  *PatternIndex
	vectors  *HNSWStore
	embedder embed.Embedder
	dir      string

	mu sync.Mutex // serializes writes across the two indexes
}

// Open creates or loads the store under dir. An empty dir keeps
// everything in memory for testing.
func Open(dir string, embedder embed.Embedder) (*Store, error) {
	patternPath := ""
	if dir != "" {
		patternPath = filepath.Join(dir, "pattern.bleve")
	}

	pattern, err := NewPatternIndex(patternPath)
	if err != nil {
		return nil, err
	}

	vectors, err := NewHNSWStore(embedder.Dimensions())
	if err != nil {
		_ = pattern.Close()
		return nil, err
	}
	if dir != "" {
		vecPath := filepath.Join(dir, "vectors.hnsw")
		if loadErr := vectors.Load(vecPath); loadErr != nil {
			// A fresh store has no persisted graph; anything else is logged
			// and the graph rebuilt from scratch on the next full index.
			slog.Debug("vector graph not loaded", slog.String("error", loadErr.Error()))
		}
	}

	return &Store{pattern: pattern, vectors: vectors, embedder: embedder, dir: dir}, nil
}

// AddSymbols appends one flush's rows to both indexes. The symbol batch
// and vectors are parallel.
func (s *Store) AddSymbols(ctx context.Context, batch *store.SymbolBatch, vectors [][]float32) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}
	if batch.Len() != len(vectors) {
		return fmt.Errorf("symbols and vectors length mismatch: %d vs %d", batch.Len(), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := batch.Len()
	ids := make([]string, n)
	patterns := make([]string, n)
	contents := make([]string, n)
	paths := make([]string, n)
	languages := make([]string, n)

	for i := 0; i < n; i++ {
		ids[i] = batch.ID[i]
		row := batch.Row(i)
		patterns[i] = row.CodePattern()
		contents[i] = strings.TrimSpace(row.DocComment + " " + patterns[i])
		paths[i] = batch.FilePath[i]
		languages[i] = batch.Language[i]
	}

	if err := s.pattern.IndexRows(ctx, ids, patterns, contents, paths, languages); err != nil {
		return err
	}
	return s.vectors.Add(ctx, ids, vectors)
}

// DeleteFiles removes all rows for the given file paths from both
// indexes in one pass.
func (s *Store) DeleteFiles(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.pattern.IDsForFiles(ctx, paths)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.pattern.Delete(ctx, ids); err != nil {
		return err
	}
	return s.vectors.Delete(ctx, ids)
}

// UpdateFileSymbols replaces a file's rows: delete then append. The
// caller may defer persistence (rebuildIndex=false) to coalesce many
// updates; Flush runs the deferred work.
func (s *Store) UpdateFileSymbols(ctx context.Context, path string, batch *store.SymbolBatch, vectors [][]float32, rebuildIndex bool) error {
	if err := s.DeleteFiles(ctx, []string{path}); err != nil {
		return err
	}
	if err := s.AddSymbols(ctx, batch, vectors); err != nil {
		return err
	}
	if rebuildIndex {
		return s.Flush()
	}
	return nil
}

// Search executes a query with the given method. auto routes to pattern
// when the query carries code punctuation, otherwise hybrid.
func (s *Store) Search(ctx context.Context, query string, method SearchMethod, limit int) ([]*Result, error) {
	if limit <= 0 {
		return []*Result{}, nil
	}

	if method == MethodAuto || method == "" {
		if ContainsPatternChars(query) {
			method = MethodPattern
		} else {
			method = MethodHybrid
		}
	}

	switch method {
	case MethodText:
		hits, err := s.pattern.SearchText(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return textToResults(hits, MethodText), nil

	case MethodPattern:
		hits, err := s.pattern.SearchPattern(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return textToResults(hits, MethodPattern), nil

	case MethodSemantic:
		return s.searchSemantic(ctx, query, limit)

	case MethodHybrid:
		return s.searchHybrid(ctx, query, limit)

	default:
		return nil, errors.Validation("unknown search method %q", method)
	}
}

// SearchVector exposes raw nearest-neighbor search for callers that
// already hold a vector (the trace engine's semantic probe).
func (s *Store) SearchVector(ctx context.Context, vec []float32, limit int) ([]*VectorResult, error) {
	return s.vectors.Search(ctx, vec, limit)
}

func (s *Store) searchSemantic(ctx context.Context, query string, limit int) ([]*Result, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Embedder(err, "embed query")
	}

	hits, err := s.vectors.Search(ctx, vec, overFetch(limit))
	if err != nil {
		return nil, err
	}

	out := make([]*Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, &Result{ID: h.ID, Score: float64(h.Score), Method: MethodSemantic})
	}
	return out, nil
}

// searchHybrid fuses the text and vector rankings with RRF. Either leg
// failing degrades to the other rather than failing the query.
func (s *Store) searchHybrid(ctx context.Context, query string, limit int) ([]*Result, error) {
	textHits, textErr := s.pattern.SearchText(ctx, query, limit)
	if textErr != nil {
		textHits = nil
	}

	var vecHits []*VectorResult
	if vec, err := s.embedder.Embed(ctx, query); err == nil {
		vecHits, _ = s.vectors.Search(ctx, vec, overFetch(limit))
	} else {
		slog.Warn("hybrid search degraded to text",
			slog.String("error", err.Error()))
	}

	fused := rrfFuse(textHits, vecHits, DefaultRRFConstant)
	out := make([]*Result, 0, len(fused))
	for _, f := range fused {
		out = append(out, &Result{ID: f.ID, Score: f.RRFScore, Method: MethodHybrid})
	}
	return out, nil
}

func textToResults(hits []*TextResult, method SearchMethod) []*Result {
	out := make([]*Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, &Result{ID: h.ID, Score: h.Score, Method: method})
	}
	return out
}

// Count returns the number of indexed symbols.
func (s *Store) Count() int {
	n, err := s.pattern.Count()
	if err != nil {
		return 0
	}
	return int(n)
}

// Contains checks membership by symbol ID.
func (s *Store) Contains(id string) bool {
	return s.vectors.Contains(id)
}

// Flush persists the vector graph. The bleve index persists itself
// incrementally; this is the coalescing point batch indexing defers to.
func (s *Store) Flush() error {
	if s.dir == "" {
		return nil
	}
	return s.vectors.Save(filepath.Join(s.dir, "vectors.hnsw"))
}

// Close flushes and closes both indexes.
func (s *Store) Close() error {
	var errs []error
	if s.dir != "" {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.pattern.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.vectors.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
