// Package buffer accumulates columnar extraction batches until a flush
// threshold is crossed. It never materializes per-row structs; the one
// exception is EmbeddingTexts, the single place per-symbol strings are
// built.
package buffer

import (
	"strings"

	"github.com/ziongh/miller/internal/extract"
	"github.com/ziongh/miller/internal/store"
)

// Thresholds trigger a flush when either counter crosses its limit.
type Thresholds struct {
	Symbols int
	Files   int
}

// DefaultThresholds matches the device-independent defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Symbols: 500, Files: 50}
}

// Buffer accumulates batches for one indexing pass. It is owned by that
// pass and never shared, so it carries no lock.
type Buffer struct {
	thresholds Thresholds

	symbols       *store.SymbolBatch
	identifiers   *store.IdentifierBatch
	relationships *store.RelationshipBatch
	files         *store.FileBatch

	// filesToClean lists paths whose old rows must be deleted from both
	// stores before this buffer's rows are inserted.
	filesToClean []string
}

// New creates an empty buffer.
func New(thresholds Thresholds) *Buffer {
	b := &Buffer{thresholds: thresholds}
	b.reset()
	return b
}

func (b *Buffer) reset() {
	b.symbols = &store.SymbolBatch{}
	b.identifiers = &store.IdentifierBatch{}
	b.relationships = &store.RelationshipBatch{}
	b.files = &store.FileBatch{}
	b.filesToClean = nil
}

// AddBatch appends a batch. filesToUpdate lists paths that already exist
// in the index and need their stale rows removed at flush time. The
// identifier noise filter runs here, before rows ever hit a store: it
// drops single-character names, pure-digit names, and language keywords,
// which removes roughly a third of low-value rows.
func (b *Buffer) AddBatch(batch *extract.Batch, filesToUpdate []string) {
	batch.Identifiers.Filter(func(i int) bool {
		name := batch.Identifiers.Name[i]
		if len(name) <= 1 {
			return false
		}
		if isPureDigits(name) {
			return false
		}
		return !extract.IsLanguageKeyword(name)
	})

	b.symbols.Append(batch.Symbols)
	b.identifiers.Append(batch.Identifiers)
	b.relationships.Append(batch.Relationships)
	b.files.Append(batch.Files)
	b.filesToClean = append(b.filesToClean, filesToUpdate...)
}

// ShouldFlush reports whether either counter crossed its threshold.
func (b *Buffer) ShouldFlush() bool {
	return b.symbols.Len() >= b.thresholds.Symbols || b.files.Len() >= b.thresholds.Files
}

// IsEmpty reports whether nothing is buffered.
func (b *Buffer) IsEmpty() bool {
	return b.symbols.Len() == 0 && b.files.Len() == 0
}

// SymbolCount returns the accumulated symbol count.
func (b *Buffer) SymbolCount() int { return b.symbols.Len() }

// FileCount returns the accumulated file count.
func (b *Buffer) FileCount() int { return b.files.Len() }

// Symbols returns the accumulated symbol table.
func (b *Buffer) Symbols() *store.SymbolBatch { return b.symbols }

// Identifiers returns the accumulated identifier table.
func (b *Buffer) Identifiers() *store.IdentifierBatch { return b.identifiers }

// Relationships returns the accumulated relationship table.
func (b *Buffer) Relationships() *store.RelationshipBatch { return b.relationships }

// Files returns the accumulated file table.
func (b *Buffer) Files() *store.FileBatch { return b.files }

// FilesToClean drains the pending deletion list without clearing row
// accumulators. The caller deletes these paths from both stores inside
// the flush transaction, before inserting.
func (b *Buffer) FilesToClean() []string {
	paths := b.filesToClean
	b.filesToClean = nil
	return paths
}

// EmbeddingTexts builds one text per accumulated symbol: doc comment
// followed by the signature, falling back to "kind name" when a symbol
// has no signature. Nothing else goes in; body text would drown the
// declaration signal.
func (b *Buffer) EmbeddingTexts() []string {
	texts := make([]string, b.symbols.Len())
	for i := range texts {
		var sb strings.Builder
		if doc := b.symbols.DocComment[i]; doc != "" {
			sb.WriteString(doc)
			sb.WriteString(" ")
		}
		if sig := b.symbols.Signature[i]; sig != "" {
			sb.WriteString(sig)
		} else {
			sb.WriteString(string(b.symbols.Kind[i]))
			sb.WriteString(" ")
			sb.WriteString(b.symbols.Name[i])
		}
		texts[i] = sb.String()
	}
	return texts
}

// Clear resets all accumulators and drains the files-to-clean list.
func (b *Buffer) Clear() {
	b.reset()
}

func isPureDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
