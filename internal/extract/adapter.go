package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ziongh/miller/internal/store"
)

// textBlobLimit caps the content carried by the File-kind stub symbol for
// files without a grammar. Enough for pattern indexing, cheap to store.
const textBlobLimit = 4096

// Adapter turns groups of paths into columnar batches. It owns language
// detection and the text fallback; actual parsing is delegated per
// language.
type Adapter struct {
	root       string
	extractors map[string]Extractor
	fallback   Extractor
}

// NewAdapter builds an adapter rooted at the workspace. The provided
// extractors are keyed by the languages they report; the built-in regex
// extractor backs the languages it handles that none of them claims, and
// any other language gets the text stub.
func NewAdapter(root string, extractors ...Extractor) *Adapter {
	a := &Adapter{
		root:       root,
		extractors: make(map[string]Extractor),
		fallback:   NewRegexExtractor(),
	}
	for _, e := range extractors {
		for _, lang := range e.Languages() {
			a.extractors[lang] = e
		}
	}
	return a
}

// HashContent produces the fast 128-bit content hash used for hash
// gating: two xxhash64 passes with different seeds, hex-concatenated.
func HashContent(content []byte) string {
	d1 := xxhash.NewWithSeed(0)
	_, _ = d1.Write(content)
	d2 := xxhash.NewWithSeed(0x9e3779b97f4a7c15)
	_, _ = d2.Write(content)
	return fmt.Sprintf("%016x%016x", d1.Sum64(), d2.Sum64())
}

// IsBinary reports whether content looks binary (NUL byte in the first
// 8 KiB).
func IsBinary(content []byte) bool {
	probe := content
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// LoadFiles reads and extracts a group of workspace-relative paths into
// one columnar batch. Unreadable and binary files are skipped; the error
// return covers only systemic failures.
func (a *Adapter) LoadFiles(paths []string) (*Batch, error) {
	batch := NewBatch()

	for _, relPath := range paths {
		absPath := filepath.Join(a.root, filepath.FromSlash(relPath))

		info, err := os.Lstat(absPath)
		if err != nil {
			continue
		}
		// Symlinks are skipped: following them risks loops and duplicate
		// indexing under a second path.
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		content, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}
		if IsBinary(content) {
			continue
		}

		language := DetectLanguage(relPath)

		batch.Files.AddFile(&store.File{
			Path:         relPath,
			Language:     language,
			ContentHash:  HashContent(content),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})

		extraction := a.extractOne(content, language, relPath)
		for _, s := range extraction.Symbols {
			batch.Symbols.AddSymbol(s)
		}
		for _, id := range extraction.Identifiers {
			batch.Identifiers.AddIdentifier(id)
		}
		for _, r := range extraction.Relationships {
			batch.Relationships.AddRelationship(r)
		}
	}

	return batch, nil
}

// ExtractContent extracts already-loaded bytes; used by the watcher path
// where content was just read for hashing.
func (a *Adapter) ExtractContent(content []byte, relPath string) (*Extraction, string) {
	language := DetectLanguage(relPath)
	return a.extractOne(content, language, relPath), language
}

func (a *Adapter) extractOne(content []byte, language, relPath string) *Extraction {
	if language == LanguageText || language == "markdown" || language == "json" || language == "yaml" || language == "toml" {
		return textStub(content, language, relPath)
	}

	extractor, ok := a.extractors[language]
	if !ok {
		extractor = a.fallback
	}
	if !supports(extractor, language) {
		return textStub(content, language, relPath)
	}

	extraction, err := extractor.Extract(content, language, relPath)
	if err != nil || extraction == nil {
		return textStub(content, language, relPath)
	}
	return extraction
}

func supports(e Extractor, language string) bool {
	for _, l := range e.Languages() {
		if l == language {
			return true
		}
	}
	return false
}

// textStub produces the single File-kind symbol for grammarless files.
// The truncated blob rides in the signature so the pattern index can
// still match idioms inside the file.
func textStub(content []byte, language, relPath string) *Extraction {
	blob := string(content)
	if len(blob) > textBlobLimit {
		blob = blob[:textBlobLimit]
	}
	blob = strings.ToValidUTF8(blob, "")

	lineCount := bytes.Count(content, []byte{'\n'}) + 1

	name := filepath.Base(relPath)
	sym := &store.Symbol{
		ID:        store.SymbolID(relPath, name, 0, store.KindFile),
		Name:      name,
		Kind:      store.KindFile,
		Language:  language,
		FilePath:  relPath,
		StartLine: 1,
		EndLine:   lineCount,
		StartByte: 0,
		EndByte:   len(content),
		Signature: blob,
	}
	return &Extraction{Symbols: []*store.Symbol{sym}}
}
