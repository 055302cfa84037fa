// Package extract turns file bytes into columnar extraction batches.
// It is a pure transformation: no persistence, no embedding. Grammar
// integration stays behind the Extractor interface so the engine never
// links parser runtimes directly.
package extract

import (
	"github.com/ziongh/miller/internal/store"
)

// Extraction is the per-file output of an Extractor.
type Extraction struct {
	Symbols       []*store.Symbol
	Identifiers   []*store.Identifier
	Relationships []*store.Relationship
}

// Extractor maps file bytes to structural entities. Implementations must
// be safe for concurrent use; the indexer calls them from a worker pool.
type Extractor interface {
	// Extract parses content and returns symbols, identifiers, and
	// intra-file relationships. path is workspace-relative.
	Extract(content []byte, language, path string) (*Extraction, error)

	// Languages lists the languages this extractor handles.
	Languages() []string
}

// Batch is the columnar result of extracting one file group.
type Batch struct {
	Symbols       *store.SymbolBatch
	Identifiers   *store.IdentifierBatch
	Relationships *store.RelationshipBatch
	Files         *store.FileBatch
}

// NewBatch allocates an empty batch.
func NewBatch() *Batch {
	return &Batch{
		Symbols:       &store.SymbolBatch{},
		Identifiers:   &store.IdentifierBatch{},
		Relationships: &store.RelationshipBatch{},
		Files:         &store.FileBatch{},
	}
}

// Append merges another batch into this one.
func (b *Batch) Append(o *Batch) {
	b.Symbols.Append(o.Symbols)
	b.Identifiers.Append(o.Identifiers)
	b.Relationships.Append(o.Relationships)
	b.Files.Append(o.Files)
}
