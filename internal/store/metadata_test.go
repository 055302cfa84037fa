package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/errors"
)

func openTestStore(t *testing.T) *SQLiteMetadataStore {
	t.Helper()
	s, err := OpenMetadata(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addTestFile(t *testing.T, s *SQLiteMetadataStore, path, language string) {
	t.Helper()
	require.NoError(t, s.AddFiles(context.Background(), []*File{{
		Path: path, Language: language, ContentHash: "hash-" + path, Size: 10, LastModified: 1,
	}}))
}

func insertSymbol(t *testing.T, s *SQLiteMetadataStore, sym *Symbol) {
	t.Helper()
	batch := &SymbolBatch{}
	batch.AddSymbol(sym)
	require.NoError(t, s.InsertSymbols(context.Background(), batch))
}

func testSymbol(path, name string, kind SymbolKind, line int) *Symbol {
	return &Symbol{
		ID: SymbolID(path, name, line*100, kind), Name: name, Kind: kind,
		Language: "python", FilePath: path,
		StartLine: line, EndLine: line, StartByte: line * 100, EndByte: line*100 + 50,
		Signature: "def " + name + "():", Visibility: "public",
	}
}

func TestFileUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "src/a.py", "python")

	f, err := s.GetFile(ctx, "src/a.py")
	require.NoError(t, err)
	assert.Equal(t, "hash-src/a.py", f.ContentHash)

	// Upsert with a new hash.
	require.NoError(t, s.AddFiles(ctx, []*File{{
		Path: "src/a.py", Language: "python", ContentHash: "newhash", Size: 20, LastModified: 2,
	}}))

	f, err = s.GetFile(ctx, "src/a.py")
	require.NoError(t, err)
	assert.Equal(t, "newhash", f.ContentHash)
	assert.EqualValues(t, 20, f.Size)
}

func TestGetFileNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetFile(context.Background(), "nope.py")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestDeleteCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "src/a.py", "python")
	sym := testSymbol("src/a.py", "fn", KindFunction, 1)
	insertSymbol(t, s, sym)

	idents := &IdentifierBatch{}
	idents.AddIdentifier(&Identifier{
		ID: "ident-1", Name: "fn", Kind: IdentCall, Language: "python",
		FilePath: "src/a.py", StartLine: 5, StartColumn: 1, EndLine: 5, EndColumn: 3,
		Confidence: 1,
	})
	require.NoError(t, s.InsertIdentifiers(ctx, idents))

	rels := &RelationshipBatch{}
	rels.AddRelationship(&Relationship{
		ID: "rel-1", FromSymbolID: sym.ID, ToSymbolID: sym.ID, Kind: RelCall,
		FilePath: "src/a.py", LineNumber: 5, Confidence: 1,
	})
	require.NoError(t, s.InsertRelationships(ctx, rels))

	require.NoError(t, s.DeleteFiles(ctx, []string{"src/a.py"}))

	syms, err := s.GetSymbolsByFile(ctx, "src/a.py")
	require.NoError(t, err)
	assert.Empty(t, syms)

	refs, err := s.FindReferences(ctx, "fn", RefOptions{})
	require.NoError(t, err)
	assert.Empty(t, refs)

	allRels, err := s.ListRelationships(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, allRels)
}

func TestSymbolInsertRejectsMissingFile(t *testing.T) {
	s := openTestStore(t)

	err := s.InsertSymbols(context.Background(), func() *SymbolBatch {
		b := &SymbolBatch{}
		b.AddSymbol(testSymbol("ghost.py", "fn", KindFunction, 1))
		return b
	}())

	require.Error(t, err)
	assert.True(t, errors.IsStoreKind(err, errors.StoreIntegrityViolation))
}

func TestGetSymbolByNameTieBreak(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "deep/nested/pkg/mod.py", "python")
	addTestFile(t, s, "src/a.py", "python")

	// Import row and definition row with the same name: definition wins.
	imp := testSymbol("deep/nested/pkg/mod.py", "User", KindImport, 1)
	def := testSymbol("src/a.py", "User", KindClass, 3)
	insertSymbol(t, s, imp)
	insertSymbol(t, s, def)

	got, err := s.GetSymbolByName(ctx, "User", "")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)

	// Context file preference beats the default ordering.
	got, err = s.GetSymbolByName(ctx, "User", "deep/nested/pkg/mod.py")
	require.NoError(t, err)
	assert.Equal(t, imp.ID, got.ID)
}

func TestGetSymbolByNameShorterPathWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "a/b/c/long.py", "python")
	addTestFile(t, s, "top.py", "python")

	insertSymbol(t, s, testSymbol("a/b/c/long.py", "helper", KindFunction, 1))
	short := testSymbol("top.py", "helper", KindFunction, 1)
	insertSymbol(t, s, short)

	got, err := s.GetSymbolByName(ctx, "helper", "")
	require.NoError(t, err)
	assert.Equal(t, short.ID, got.ID)
}

func TestFindSymbolsByNamePrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "a.py", "python")
	insertSymbol(t, s, testSymbol("a.py", "getUser", KindFunction, 1))
	insertSymbol(t, s, testSymbol("a.py", "getOrder", KindFunction, 2))
	insertSymbol(t, s, testSymbol("a.py", "setUser", KindFunction, 3))

	got, err := s.FindSymbolsByNamePrefix(ctx, "get", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "getOrder", got[0].Name)
	assert.Equal(t, "getUser", got[1].Name)
}

func TestFindReferencesGroupedWithContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"),
		[]byte("counter = 1\nprint(counter)\ncounter += 1\n"), 0o644))

	addTestFile(t, s, "a.py", "python")

	idents := &IdentifierBatch{}
	idents.AddIdentifier(&Identifier{
		ID: "i1", Name: "counter", Kind: IdentReference, Language: "python",
		FilePath: "a.py", StartLine: 2, StartColumn: 7, EndLine: 2, EndColumn: 14, Confidence: 1,
	})
	idents.AddIdentifier(&Identifier{
		ID: "i2", Name: "counter", Kind: IdentReference, Language: "python",
		FilePath: "a.py", StartLine: 3, StartColumn: 1, EndLine: 3, EndColumn: 8, Confidence: 1,
	})
	require.NoError(t, s.InsertIdentifiers(ctx, idents))

	groups, err := s.FindReferences(ctx, "counter", RefOptions{IncludeContext: true, Root: root})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].References, 2)

	assert.Equal(t, AccessRead, groups[0].References[0].Access)
	assert.Equal(t, "print(counter)", groups[0].References[0].Context)
	assert.Equal(t, AccessWrite, groups[0].References[1].Access)
}

func TestCrossDirectoryDependencies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "api/handlers.py", "python")
	addTestFile(t, s, "core/service.py", "python")

	h := testSymbol("api/handlers.py", "handle", KindFunction, 1)
	svc := testSymbol("core/service.py", "serve", KindFunction, 1)
	insertSymbol(t, s, h)
	insertSymbol(t, s, svc)

	rels := &RelationshipBatch{}
	rels.AddRelationship(&Relationship{
		ID: "r1", FromSymbolID: h.ID, ToSymbolID: svc.ID, Kind: RelCall,
		FilePath: "api/handlers.py", LineNumber: 2, Confidence: 1,
	})
	require.NoError(t, s.InsertRelationships(ctx, rels))

	edges, err := s.GetCrossDirectoryDependencies(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "api", edges[0].FromDir)
	assert.Equal(t, "core", edges[0].ToDir)
	assert.Equal(t, 1, edges[0].EdgeCount)
	assert.Equal(t, 1, edges[0].Kinds[RelCall])
}

func TestReachabilityRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []ReachabilityEntry{
		{FromSymbolID: "a", ToSymbolID: "b", MinDistance: 1},
		{FromSymbolID: "a", ToSymbolID: "c", MinDistance: 2},
		{FromSymbolID: "b", ToSymbolID: "c", MinDistance: 1},
	}
	require.NoError(t, s.ReplaceReachability(ctx, entries))

	from, err := s.GetReachableFrom(ctx, "a", 10)
	require.NoError(t, err)
	assert.Len(t, from, 2)

	from, err = s.GetReachableFrom(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "b", from[0].ToSymbolID)

	counts, err := s.CountInboundReachability(ctx, []string{"b", "c", "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts["b"])
	assert.Equal(t, 2, counts["c"])
	assert.Zero(t, counts["a"])

	// Replace drops prior rows.
	require.NoError(t, s.ReplaceReachability(ctx, nil))
	from, err = s.GetReachableFrom(ctx, "a", 10)
	require.NoError(t, err)
	assert.Empty(t, from)
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyReachabilityStale)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, StateKeyReachabilityStale, "1"))
	v, err = s.GetState(ctx, StateKeyReachabilityStale)
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestCountIdentifiersByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "a.py", "python")
	addTestFile(t, s, "b.py", "python")

	idents := &IdentifierBatch{}
	for i, f := range []string{"a.py", "a.py", "b.py"} {
		idents.AddIdentifier(&Identifier{
			ID: SymbolID(f, "target", i, "call"), Name: "target", Kind: IdentCall,
			Language: "python", FilePath: f, StartLine: i + 1, Confidence: 1,
		})
	}
	require.NoError(t, s.InsertIdentifiers(ctx, idents))

	usage, err := s.CountIdentifiersByName(ctx, []string{"target"})
	require.NoError(t, err)
	require.Contains(t, usage, "target")
	assert.Equal(t, 3, usage["target"].Total)
	assert.Equal(t, 2, usage["target"].FileCount)
}

func TestResolveCrossFileCalls(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addTestFile(t, s, "a.py", "python")
	addTestFile(t, s, "b.py", "python")

	caller := testSymbol("a.py", "main", KindFunction, 1)
	callee := testSymbol("b.py", "helper", KindFunction, 1)
	insertSymbol(t, s, caller)
	insertSymbol(t, s, callee)

	idents := &IdentifierBatch{}
	idents.AddIdentifier(&Identifier{
		ID: "call-1", Name: "helper", Kind: IdentCall, Language: "python",
		FilePath: "a.py", StartLine: 2, ContainingSymbolID: caller.ID, Confidence: 0.8,
	})
	require.NoError(t, s.InsertIdentifiers(ctx, idents))

	n, err := s.ResolveCrossFileCalls(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rels, err := s.GetRelationshipsFrom(ctx, caller.ID, []RelationshipKind{RelCall})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, callee.ID, rels[0].ToSymbolID)

	// Idempotent: a second pass inserts nothing.
	n, err = s.ResolveCrossFileCalls(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
