package explore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/graph"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
)

type fixture struct {
	explorer *Explorer
	metadata *store.SQLiteMetadataStore
	vectors  *vecstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	metadata, err := store.OpenMetadata(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = metadata.Close() })

	vectors, err := vecstore.Open("", embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	return &fixture{
		explorer: New(metadata, vectors, graph.New(metadata)),
		metadata: metadata,
		vectors:  vectors,
	}
}

func (f *fixture) addSymbol(t *testing.T, sym *store.Symbol) {
	t.Helper()
	ctx := context.Background()

	if _, err := f.metadata.GetFile(ctx, sym.FilePath); err != nil {
		require.NoError(t, f.metadata.AddFiles(ctx, []*store.File{{
			Path: sym.FilePath, Language: sym.Language, ContentHash: "h", Size: 1, LastModified: 1,
		}}))
	}

	batch := &store.SymbolBatch{}
	batch.AddSymbol(sym)
	require.NoError(t, f.metadata.InsertSymbols(ctx, batch))

	vec, err := embed.NewStaticEmbedder().Embed(ctx, sym.CodePattern())
	require.NoError(t, err)
	require.NoError(t, f.vectors.AddSymbols(ctx, batch, [][]float32{vec}))
}

func mkSym(path, name string, kind store.SymbolKind) *store.Symbol {
	return &store.Symbol{
		ID: store.SymbolID(path, name, 0, kind), Name: name, Kind: kind,
		Language: "python", FilePath: path, StartLine: 1, EndLine: 1,
		Signature: "def " + name + "():", Visibility: "public",
	}
}

func TestDeadCodeExclusions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Genuinely dead function in src/.
	f.addSymbol(t, mkSym("src/main.py", "orphan_func", store.KindFunction))
	// Test helper: excluded by path.
	f.addSymbol(t, mkSym("tests/test_a.py", "test_helper", store.KindFunction))
	// Underscore-private: excluded by name.
	f.addSymbol(t, mkSym("src/util.py", "_internal", store.KindFunction))
	// Test-named symbol in a non-test dir: excluded by name.
	f.addSymbol(t, mkSym("src/checks.py", "TestRunner", store.KindClass))

	result, err := f.explorer.Explore(ctx, ModeDeadCode, Params{})
	require.NoError(t, err)

	names := make([]string, 0, len(result.DeadCode))
	for _, d := range result.DeadCode {
		names = append(names, d.Symbol.Name)
	}
	assert.Contains(t, names, "orphan_func")
	assert.NotContains(t, names, "test_helper")
	assert.NotContains(t, names, "_internal")
	assert.NotContains(t, names, "TestRunner")
}

func TestDeadCodeSelfReferenceDoesNotCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sym := mkSym("src/solo.py", "recurse", store.KindFunction)
	f.addSymbol(t, sym)

	// A self-reference in the defining file only.
	idents := &store.IdentifierBatch{}
	idents.AddIdentifier(&store.Identifier{
		ID: "self-ref", Name: "recurse", Kind: store.IdentCall, Language: "python",
		FilePath: "src/solo.py", StartLine: 2, ContainingSymbolID: sym.ID, Confidence: 1,
	})
	require.NoError(t, f.metadata.InsertIdentifiers(ctx, idents))

	result, err := f.explorer.Explore(ctx, ModeDeadCode, Params{})
	require.NoError(t, err)

	var found bool
	for _, d := range result.DeadCode {
		if d.Symbol.Name == "recurse" {
			found = true
		}
	}
	assert.True(t, found, "self-referenced-only symbol is still dead")
}

func TestDeadCodeExternalReferenceIsAlive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sym := mkSym("src/lib.py", "used_fn", store.KindFunction)
	f.addSymbol(t, sym)
	f.addSymbol(t, mkSym("src/app.py", "caller", store.KindFunction))

	idents := &store.IdentifierBatch{}
	idents.AddIdentifier(&store.Identifier{
		ID: "ext-ref", Name: "used_fn", Kind: store.IdentCall, Language: "python",
		FilePath: "src/app.py", StartLine: 2, Confidence: 1,
	})
	require.NoError(t, f.metadata.InsertIdentifiers(ctx, idents))

	result, err := f.explorer.Explore(ctx, ModeDeadCode, Params{})
	require.NoError(t, err)

	for _, d := range result.DeadCode {
		assert.NotEqual(t, "used_fn", d.Symbol.Name)
	}
}

func TestHotSpots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hot := mkSym("src/core.py", "central", store.KindFunction)
	cold := mkSym("src/cold.py", "rarely_used", store.KindFunction)
	f.addSymbol(t, hot)
	f.addSymbol(t, cold)
	f.addSymbol(t, mkSym("src/a.py", "caller_a", store.KindFunction))
	f.addSymbol(t, mkSym("src/b.py", "caller_b", store.KindFunction))

	idents := &store.IdentifierBatch{}
	for i, file := range []string{"src/a.py", "src/b.py"} {
		idents.AddIdentifier(&store.Identifier{
			ID: store.SymbolID(file, "central", i, "call"), Name: "central",
			Kind: store.IdentCall, Language: "python", FilePath: file, StartLine: 3, Confidence: 1,
		})
	}
	require.NoError(t, f.metadata.InsertIdentifiers(ctx, idents))

	result, err := f.explorer.Explore(ctx, ModeHotSpots, Params{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.HotSpots)

	assert.Equal(t, "central", result.HotSpots[0].Symbol.Name)
	assert.Equal(t, 2, result.HotSpots[0].RefFileCount)
	assert.Equal(t, 2, result.HotSpots[0].TotalRefs)
}

func TestTypesMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSymbol(t, mkSym("src/models.py", "User", store.KindClass))
	f.addSymbol(t, mkSym("src/models.py", "user_factory", store.KindFunction))
	f.addSymbol(t, mkSym("src/types.py", "UserRole", store.KindEnum))

	result, err := f.explorer.Explore(ctx, ModeTypes, Params{})
	require.NoError(t, err)

	names := make([]string, 0, len(result.Types))
	for _, s := range result.Types {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"User", "UserRole"}, names)

	// Prefix filter.
	result, err = f.explorer.Explore(ctx, ModeTypes, Params{Query: "userr"})
	require.NoError(t, err)
	require.Len(t, result.Types, 1)
	assert.Equal(t, "UserRole", result.Types[0].Name)
}

func TestSimilarMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSymbol(t, mkSym("src/a.py", "user_service", store.KindFunction))
	f.addSymbol(t, mkSym("src/b.py", "user_service_helper", store.KindFunction))
	f.addSymbol(t, mkSym("src/c.py", "zebra_painter", store.KindFunction))

	result, err := f.explorer.Explore(ctx, ModeSimilar, Params{Query: "user_service", Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, result.Similar)

	// The anchor itself is excluded.
	for _, s := range result.Similar {
		assert.NotEqual(t, "user_service", s.Symbol.Name)
	}
	assert.Equal(t, "user_service_helper", result.Similar[0].Symbol.Name)
}

func TestDependenciesMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	api := mkSym("api/handlers.py", "handle", store.KindFunction)
	core := mkSym("core/service.py", "serve", store.KindFunction)
	f.addSymbol(t, api)
	f.addSymbol(t, core)

	rels := &store.RelationshipBatch{}
	rels.AddRelationship(&store.Relationship{
		ID: "r1", FromSymbolID: api.ID, ToSymbolID: core.ID, Kind: store.RelCall,
		FilePath: "api/handlers.py", LineNumber: 2, Confidence: 1,
	})
	require.NoError(t, f.metadata.InsertRelationships(ctx, rels))

	result, err := f.explorer.Explore(ctx, ModeDependencies, Params{Depth: 1, MinEdges: 1})
	require.NoError(t, err)
	require.Len(t, result.Dependencies, 1)
	assert.Equal(t, "api", result.Dependencies[0].FromDir)
	assert.Equal(t, "core", result.Dependencies[0].ToDir)
}

func TestUnknownMode(t *testing.T) {
	f := newFixture(t)

	_, err := f.explorer.Explore(context.Background(), Mode("bogus"), Params{})
	assert.Error(t, err)
}
