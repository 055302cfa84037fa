package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/store"
)

func setupGraph(t *testing.T, edges [][2]string) (*Closure, store.MetadataStore) {
	t.Helper()

	s, err := store.OpenMetadata(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.AddFiles(ctx, []*store.File{{
		Path: "g.py", Language: "python", ContentHash: "h", Size: 1, LastModified: 1,
	}}))

	// Every endpoint needs a symbol row.
	seen := make(map[string]bool)
	symbols := &store.SymbolBatch{}
	for _, e := range edges {
		for _, name := range e {
			if !seen[name] {
				seen[name] = true
				symbols.AddSymbol(&store.Symbol{
					ID: name, Name: name, Kind: store.KindFunction, Language: "python",
					FilePath: "g.py", StartLine: 1, EndLine: 1,
				})
			}
		}
	}
	require.NoError(t, s.InsertSymbols(ctx, symbols))

	rels := &store.RelationshipBatch{}
	for i, e := range edges {
		rels.AddRelationship(&store.Relationship{
			ID: store.RelationshipID(e[0], e[1], store.RelCall, "g.py", i),
			FromSymbolID: e[0], ToSymbolID: e[1], Kind: store.RelCall,
			FilePath: "g.py", LineNumber: i + 1, Confidence: 1,
		})
	}
	require.NoError(t, s.InsertRelationships(ctx, rels))

	return New(s), s
}

func TestDirectEdgeHasDistanceOne(t *testing.T) {
	c, s := setupGraph(t, [][2]string{{"a", "b"}})
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	entries, err := s.GetReachableFrom(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ToSymbolID)
	assert.Equal(t, 1, entries[0].MinDistance)
}

func TestTransitiveClosure(t *testing.T) {
	c, s := setupGraph(t, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}})
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	entries, err := s.GetReachableFrom(ctx, "a", 10)
	require.NoError(t, err)

	byTarget := make(map[string]int)
	for _, e := range entries {
		byTarget[e.ToSymbolID] = e.MinDistance
	}
	assert.Equal(t, map[string]int{"b": 1, "c": 2, "d": 3}, byTarget)
}

func TestMinDistanceKeptOnMultiplePaths(t *testing.T) {
	// a → b → c plus a direct a → c shortcut.
	c, s := setupGraph(t, [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	entries, err := s.GetReachableFrom(ctx, "a", 10)
	require.NoError(t, err)

	for _, e := range entries {
		if e.ToSymbolID == "c" {
			assert.Equal(t, 1, e.MinDistance)
		}
	}
}

func TestCycleTerminates(t *testing.T) {
	c, s := setupGraph(t, [][2]string{{"a", "b"}, {"b", "a"}})
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	entries, err := s.GetReachableFrom(ctx, "a", 10)
	require.NoError(t, err)

	byTarget := make(map[string]int)
	for _, e := range entries {
		byTarget[e.ToSymbolID] = e.MinDistance
	}
	// a reaches b directly and itself around the cycle.
	assert.Equal(t, 1, byTarget["b"])
	assert.Equal(t, 2, byTarget["a"])
}

func TestDistanceCap(t *testing.T) {
	// Chain longer than the cap.
	var edges [][2]string
	names := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9", "n10", "n11", "n12"}
	for i := 0; i+1 < len(names); i++ {
		edges = append(edges, [2]string{names[i], names[i+1]})
	}

	c, s := setupGraph(t, edges)
	ctx := context.Background()

	require.NoError(t, c.Refresh(ctx))

	entries, err := s.GetReachableFrom(ctx, "n0", 100)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultMaxDistance)
}

func TestStalenessLifecycle(t *testing.T) {
	c, _ := setupGraph(t, [][2]string{{"a", "b"}})
	ctx := context.Background()

	require.NoError(t, c.MarkStale(ctx))
	assert.True(t, c.IsStale(ctx))

	require.NoError(t, c.EnsureFresh(ctx))
	assert.False(t, c.IsStale(ctx))
}

func TestCallersAndCalleesFallback(t *testing.T) {
	c, _ := setupGraph(t, [][2]string{{"a", "b"}, {"c", "b"}})
	ctx := context.Background()

	// Without a refresh the closure table is empty; raw relationships
	// back the lookups.
	callers, err := c.Callers(ctx, "b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, callers)

	callees, err := c.Callees(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, callees)
}
