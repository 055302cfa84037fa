package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/buffer"
	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/extract"
	"github.com/ziongh/miller/internal/graph"
	"github.com/ziongh/miller/internal/ignore"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

type harness struct {
	ix       *Indexer
	metadata *store.SQLiteMetadataStore
	vectors  *vecstore.Store
	root     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()

	metadata, err := store.OpenMetadata(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	embedder := embed.NewStaticEmbedder()
	vectors, err := vecstore.Open("", embedder)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	cfg := Config{
		Root:          root,
		Metadata:      metadata,
		Vectors:       vectors,
		Embedder:      embedder,
		Ignore:        ignore.NewEngine(root, nil),
		Closure:       graph.New(metadata),
		FileBatchSize: 4,
		Thresholds:    buffer.Thresholds{Symbols: 100, Files: 10},
		Workers:       2,
	}

	return &harness{
		ix:       New(cfg, extract.NewAdapter(root)),
		metadata: metadata,
		vectors:  vectors,
		root:     root,
	}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(h.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestFullIndexPass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "src/models.py", "class User:\n    def greet(self):\n        pass\n")
	h.write(t, "src/util.py", "def helper():\n    pass\n")

	stats, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Greater(t, stats.Symbols, 2)

	sym, err := h.metadata.GetSymbolByName(ctx, "User", "")
	require.NoError(t, err)
	assert.Equal(t, "src/models.py", sym.FilePath)
	assert.Equal(t, store.KindClass, sym.Kind)
	assert.Equal(t, 1, sym.StartLine)

	// Both stores carry the same rows per file.
	metaSyms, err := h.metadata.GetSymbolsByFile(ctx, "src/models.py")
	require.NoError(t, err)
	for _, s := range metaSyms {
		assert.True(t, h.vectors.Contains(s.ID), "vector row missing for %s", s.Name)
	}
}

func TestHashGatedReindex(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "a.py", "def fn():\n    pass\n")

	stats, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesIndexed)

	// Second pass with no changes: zero files re-indexed, zero flushes.
	stats, err = h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Zero(t, stats.Flushes)
}

func TestReindexAfterChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "a.py", "def old_fn():\n    pass\n")
	_, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	oldSym, err := h.metadata.GetSymbolByName(ctx, "old_fn", "")
	require.NoError(t, err)

	h.write(t, "a.py", "def new_fn():\n    pass\n")
	stats, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.FilesIndexed)

	// Old rows are gone from both stores, new rows present.
	_, err = h.metadata.GetSymbolByName(ctx, "old_fn", "")
	assert.Error(t, err)
	assert.False(t, h.vectors.Contains(oldSym.ID))

	newSym, err := h.metadata.GetSymbolByName(ctx, "new_fn", "")
	require.NoError(t, err)
	assert.True(t, h.vectors.Contains(newSym.ID))
}

func TestRemoveFileDeletesEverywhere(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "a.py", "def fn():\n    x = compute()\n")
	_, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	sym, err := h.metadata.GetSymbolByName(ctx, "fn", "")
	require.NoError(t, err)

	require.NoError(t, h.ix.RemoveFile(ctx, "a.py"))

	_, err = h.metadata.GetFile(ctx, "a.py")
	assert.Error(t, err)

	syms, err := h.metadata.GetSymbolsByFile(ctx, "a.py")
	require.NoError(t, err)
	assert.Empty(t, syms)

	refs, err := h.metadata.FindReferences(ctx, "compute", store.RefOptions{})
	require.NoError(t, err)
	assert.Empty(t, refs)

	assert.False(t, h.vectors.Contains(sym.ID))
}

func TestUpdateFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "a.py", "def fn():\n    pass\n")
	_, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	h.write(t, "a.py", "def fn():\n    pass\n\ndef added():\n    pass\n")
	require.NoError(t, h.ix.UpdateFile(ctx, "a.py"))

	sym, err := h.metadata.GetSymbolByName(ctx, "added", "")
	require.NoError(t, err)
	assert.Equal(t, "a.py", sym.FilePath)
}

func TestUpdateMissingFileRemoves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "a.py", "def fn():\n    pass\n")
	_, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(h.root, "a.py")))
	require.NoError(t, h.ix.UpdateFile(ctx, "a.py"))

	_, err = h.metadata.GetFile(ctx, "a.py")
	assert.Error(t, err)
}

func TestEmptyWorkspace(t *testing.T) {
	h := newHarness(t)

	stats, err := h.ix.IndexWorkspace(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.FilesScanned)
	assert.Zero(t, stats.FilesIndexed)
}

func TestIgnoredDirectoriesSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "src/a.py", "def fn():\n    pass\n")
	h.write(t, "node_modules/pkg/index.js", "function hidden() {}\n")
	h.write(t, ".git/hook.py", "def hook():\n    pass\n")

	stats, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesScanned)
	_, err = h.metadata.GetSymbolByName(ctx, "hidden", "")
	assert.Error(t, err)
}

func TestCrossFileCallResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "lib.py", "def helper():\n    pass\n")
	h.write(t, "main.py", "def main():\n    helper()\n")

	_, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	mainSym, err := h.metadata.GetSymbolByName(ctx, "main", "")
	require.NoError(t, err)
	helperSym, err := h.metadata.GetSymbolByName(ctx, "helper", "")
	require.NoError(t, err)

	rels, err := h.metadata.GetRelationshipsFrom(ctx, mainSym.ID, []store.RelationshipKind{store.RelCall})
	require.NoError(t, err)

	var found bool
	for _, r := range rels {
		if r.ToSymbolID == helperSym.ID {
			found = true
		}
	}
	assert.True(t, found, "cross-file call main -> helper should resolve")
}

func TestClosureMarkedStaleAfterIndex(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.write(t, "a.py", "def fn():\n    pass\n")
	_, err := h.ix.IndexWorkspace(ctx)
	require.NoError(t, err)

	v, err := h.metadata.GetState(ctx, store.StateKeyReachabilityStale)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
