package vecstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// PatternAnalyzerName is the analyzer for the code_pattern field: a bare
// whitespace tokenizer, no stemming, no case folding. Code punctuation
// (: < > [ ] ( ) { } = ? . , / \ | & ^ ~ ! + - * @ #) survives inside
// tokens, which is the entire point.
const PatternAnalyzerName = "code_pattern"

// TextResult is a single FTS hit.
type TextResult struct {
	ID    string
	Score float64 // normalized to the batch maximum
}

// patternDoc is the indexed projection of a symbol.
type patternDoc struct {
	Pattern  string `json:"pattern"`
	Content  string `json:"content"`
	FilePath string `json:"file_path"`
	Language string `json:"language"`
}

// PatternIndex wraps a bleve index carrying both FTS views of a symbol:
// "content" under the standard analyzer for text queries and "pattern"
// under the whitespace analyzer for code-idiom queries.
type PatternIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewPatternIndex opens or creates the index. An empty path builds an
// in-memory index for testing.
func NewPatternIndex(path string) (*PatternIndex, error) {
	indexMapping, err := createPatternMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create index directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open pattern index: %w", err)
	}

	return &PatternIndex{index: idx, path: path}, nil
}

func createPatternMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(PatternAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{},
	})
	if err != nil {
		return nil, fmt.Errorf("add pattern analyzer: %w", err)
	}

	doc := bleve.NewDocumentMapping()

	patternField := bleve.NewTextFieldMapping()
	patternField.Analyzer = PatternAnalyzerName
	patternField.Store = false
	patternField.IncludeTermVectors = true // positions for phrase queries
	doc.AddFieldMappingsAt("pattern", patternField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	doc.AddFieldMappingsAt("content", contentField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = false
	doc.AddFieldMappingsAt("file_path", pathField)

	langField := bleve.NewTextFieldMapping()
	langField.Analyzer = keyword.Name
	langField.Store = false
	doc.AddFieldMappingsAt("language", langField)

	indexMapping.DefaultMapping = doc
	return indexMapping, nil
}

// IndexRows adds symbol projections in one batch. codePattern is the
// "<signature?> <name> <kind>" string; content additionally carries the
// doc comment for text search.
func (p *PatternIndex) IndexRows(ctx context.Context, ids []string, patterns, contents, filePaths, languages []string) error {
	if len(ids) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pattern index is closed")
	}

	batch := p.index.NewBatch()
	for i, id := range ids {
		doc := patternDoc{
			Pattern:  patterns[i],
			Content:  contents[i],
			FilePath: filePaths[i],
			Language: languages[i],
		}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("index document %s: %w", id, err)
		}
	}
	return p.index.Batch(batch)
}

// Delete removes documents by ID.
func (p *PatternIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("pattern index is closed")
	}

	batch := p.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return p.index.Batch(batch)
}

// IDsForFiles returns document IDs whose file_path is in the set. Used
// by file-level deletion.
func (p *PatternIndex) IDsForFiles(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("pattern index is closed")
	}

	queries := make([]query.Query, len(paths))
	for i, path := range paths {
		tq := bleve.NewTermQuery(path)
		tq.SetField("file_path")
		queries[i] = tq
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = 100000

	result, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query ids for files: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// SearchText runs the raw query through bleve's query-string language on
// the content field. Malformed queries (code punctuation is full of
// query-language metacharacters) yield empty results, never errors.
func (p *PatternIndex) SearchText(ctx context.Context, queryStr string, limit int) ([]*TextResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("pattern index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*TextResult{}, nil
	}

	q := bleve.NewQueryStringQuery(queryStr)
	req := bleve.NewSearchRequest(q)
	req.Size = overFetch(limit)

	result, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		// The query language rejected the string; empty is the contract.
		return []*TextResult{}, nil
	}
	return normalizeHits(result), nil
}

// SearchPattern runs a phrase query against the whitespace-tokenized
// pattern field, treating every character literally. When the phrase
// finds nothing (a trailing partial token like "ILogger<"), it falls
// back to a per-token prefix conjunction.
func (p *PatternIndex) SearchPattern(ctx context.Context, queryStr string, limit int) ([]*TextResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, fmt.Errorf("pattern index is closed")
	}

	trimmed := strings.Trim(strings.TrimSpace(queryStr), `"`)
	if trimmed == "" {
		return []*TextResult{}, nil
	}

	tokens := strings.Fields(trimmed)

	phrase := bleve.NewPhraseQuery(tokens, "pattern")
	req := bleve.NewSearchRequest(phrase)
	req.Size = overFetch(limit)

	result, err := p.index.SearchInContext(ctx, req)
	if err == nil && len(result.Hits) > 0 {
		return normalizeHits(result), nil
	}

	// Prefix fallback: every token must prefix-match some pattern token.
	prefixQueries := make([]query.Query, len(tokens))
	for i, tok := range tokens {
		pq := bleve.NewPrefixQuery(tok)
		pq.SetField("pattern")
		prefixQueries[i] = pq
	}
	req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(prefixQueries...))
	req.Size = overFetch(limit)

	result, err = p.index.SearchInContext(ctx, req)
	if err != nil {
		return []*TextResult{}, nil
	}
	return normalizeHits(result), nil
}

// Count returns the number of indexed documents.
func (p *PatternIndex) Count() (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, fmt.Errorf("pattern index is closed")
	}
	return p.index.DocCount()
}

// Close closes the underlying index.
func (p *PatternIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.index.Close()
}

// overFetch widens the fetch window so re-ranking can reorder before
// truncation.
func overFetch(limit int) int {
	n := 3 * limit
	if n < 50 {
		n = 50
	}
	return n
}

// normalizeHits divides scores by the batch maximum so every batch tops
// out at 1.0.
func normalizeHits(result *bleve.SearchResult) []*TextResult {
	out := make([]*TextResult, 0, len(result.Hits))
	var max float64
	for _, hit := range result.Hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	for _, hit := range result.Hits {
		score := hit.Score
		if max > 0 {
			score /= max
		}
		out = append(out, &TextResult{ID: hit.ID, Score: score})
	}
	return out
}
