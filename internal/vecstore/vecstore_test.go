package vecstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/embed"
	"github.com/ziongh/miller/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", embed.NewStaticEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func symbolBatch(syms ...*store.Symbol) *store.SymbolBatch {
	b := &store.SymbolBatch{}
	for _, s := range syms {
		b.AddSymbol(s)
	}
	return b
}

func testSym(path, name string, kind store.SymbolKind, language, signature string) *store.Symbol {
	return &store.Symbol{
		ID: store.SymbolID(path, name, 0, kind), Name: name, Kind: kind,
		Language: language, FilePath: path, StartLine: 1, EndLine: 1,
		Signature: signature,
	}
}

func embedAll(t *testing.T, texts []string) [][]float32 {
	t.Helper()
	vecs, err := embed.NewStaticEmbedder().EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	return vecs
}

func addSymbols(t *testing.T, s *Store, syms ...*store.Symbol) {
	t.Helper()
	batch := symbolBatch(syms...)
	texts := make([]string, batch.Len())
	for i := range texts {
		texts[i] = batch.Row(i).CodePattern()
	}
	require.NoError(t, s.AddSymbols(context.Background(), batch, embedAll(t, texts)))
}

func TestContainsPatternChars(t *testing.T) {
	assert.True(t, ContainsPatternChars(": BaseService"))
	assert.True(t, ContainsPatternChars("ILogger<"))
	assert.True(t, ContainsPatternChars("[Fact]"))
	assert.False(t, ContainsPatternChars("user service"))
}

func TestPatternSearchPreservesPunctuation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addSymbols(t, s,
		testSym("Services/UserService.cs", "UserService", store.KindClass, "csharp",
			"public class UserService : BaseService"),
		testSym("Services/UserService.cs", "_logger", store.KindField, "csharp",
			"private readonly ILogger<UserService> _logger;"),
		testSym("src/util.py", "format_date", store.KindFunction, "python",
			"def format_date(ts):"),
	)

	results, err := s.Search(ctx, ": BaseService", MethodPattern, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, store.SymbolID("Services/UserService.cs", "UserService", 0, store.KindClass), results[0].ID)

	results, err = s.Search(ctx, "ILogger<", MethodPattern, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, store.SymbolID("Services/UserService.cs", "_logger", 0, store.KindField), results[0].ID)
}

func TestTextSearchRejectsMetacharactersQuietly(t *testing.T) {
	s := openTestStore(t)

	addSymbols(t, s, testSym("Services/UserService.cs", "UserService", store.KindClass, "csharp",
		"public class UserService : BaseService"))

	// ":" is a field separator in the query language; the query is
	// rejected and recovered as empty, never an error.
	results, err := s.Search(context.Background(), ": BaseService", MethodText, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAutoDetection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	addSymbols(t, s, testSym("Services/UserService.cs", "UserService", store.KindClass, "csharp",
		"public class UserService : BaseService"))

	// Pattern chars route to the pattern method.
	results, err := s.Search(ctx, ": BaseService", MethodAuto, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, MethodPattern, results[0].Method)

	// Plain words route to hybrid.
	results, err = s.Search(ctx, "UserService", MethodAuto, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, MethodHybrid, results[0].Method)
}

func TestScoresNormalizedAndOrdered(t *testing.T) {
	s := openTestStore(t)

	addSymbols(t, s,
		testSym("a.py", "user_service", store.KindFunction, "python", "def user_service():"),
		testSym("b.py", "user_repo", store.KindFunction, "python", "def user_repo():"),
		testSym("c.py", "unrelated", store.KindFunction, "python", "def unrelated():"),
	)

	results, err := s.Search(context.Background(), "user_service function", MethodText, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	for i := range results {
		assert.GreaterOrEqual(t, results[i].Score, 0.0)
		assert.LessOrEqual(t, results[i].Score, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		}
	}
}

func TestSemanticSearch(t *testing.T) {
	s := openTestStore(t)

	addSymbols(t, s,
		testSym("auth.ts", "verifyCredentials", store.KindFunction, "typescript",
			"function verifyCredentials(user, password)"),
		testSym("util.py", "format_date", store.KindFunction, "python",
			"def format_date(timestamp):"),
	)

	results, err := s.Search(context.Background(), "verify user credentials password", MethodSemantic, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, store.SymbolID("auth.ts", "verifyCredentials", 0, store.KindFunction), results[0].ID)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestHybridDeduplicates(t *testing.T) {
	s := openTestStore(t)

	addSymbols(t, s,
		testSym("a.py", "user_service", store.KindFunction, "python", "def user_service():"),
		testSym("b.py", "order_service", store.KindFunction, "python", "def order_service():"),
	)

	results, err := s.Search(context.Background(), "user_service", MethodHybrid, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	seen := make(map[string]bool)
	for _, r := range results {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}

func TestDeleteFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testSym("a.py", "keep_me", store.KindFunction, "python", "def keep_me():")
	b := testSym("b.py", "drop_me", store.KindFunction, "python", "def drop_me():")
	addSymbols(t, s, a, b)
	require.Equal(t, 2, s.Count())

	require.NoError(t, s.DeleteFiles(ctx, []string{"b.py"}))

	assert.Equal(t, 1, s.Count())
	assert.True(t, s.Contains(a.ID))
	assert.False(t, s.Contains(b.ID))

	results, err := s.Search(ctx, "drop_me", MethodText, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdateFileSymbols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := testSym("a.py", "old_fn", store.KindFunction, "python", "def old_fn():")
	addSymbols(t, s, old)

	updated := testSym("a.py", "new_fn", store.KindFunction, "python", "def new_fn():")
	batch := symbolBatch(updated)
	require.NoError(t, s.UpdateFileSymbols(ctx, "a.py", batch,
		embedAll(t, []string{"def new_fn():"}), false))

	assert.False(t, s.Contains(old.ID))
	assert.True(t, s.Contains(updated.ID))
}

func TestSearchLimitZero(t *testing.T) {
	s := openTestStore(t)

	results, err := s.Search(context.Background(), "anything", MethodHybrid, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUnknownMethodIsValidationError(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Search(context.Background(), "q", SearchMethod("bogus"), 10)
	assert.Error(t, err)
}

func TestHNSWRoundTrip(t *testing.T) {
	h, err := NewHNSWStore(4)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	hits, err := h.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)

	// Replacing an ID keeps a single live entry.
	require.NoError(t, h.Add(ctx, []string{"a"}, [][]float32{{0, 0, 1, 0}}))
	assert.Equal(t, 2, h.Count())

	hits, err = h.Search(ctx, []float32{0, 0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)
}

func TestHNSWPersistence(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/vectors.hnsw"

	h, err := NewHNSWStore(4)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, h.Add(ctx, []string{"x"}, [][]float32{{0, 1, 0, 0}}))
	require.NoError(t, h.Save(path))
	require.NoError(t, h.Close())

	h2, err := NewHNSWStore(4)
	require.NoError(t, err)
	require.NoError(t, h2.Load(path))

	assert.Equal(t, 1, h2.Count())
	hits, err := h2.Search(ctx, []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "x", hits[0].ID)
}

func TestRRFFusion(t *testing.T) {
	text := []*TextResult{{ID: "a", Score: 1.0}, {ID: "b", Score: 0.5}}
	vec := []*VectorResult{{ID: "b", Score: 0.9}, {ID: "c", Score: 0.8}}

	fused := rrfFuse(text, vec, DefaultRRFConstant)
	require.Len(t, fused, 3)

	// b appears in both lists and must rank first.
	assert.Equal(t, "b", fused[0].ID)
	assert.True(t, fused[0].InBothLists)
	assert.InDelta(t, 1.0, fused[0].RRFScore, 1e-9)

	for i := 1; i < len(fused); i++ {
		assert.LessOrEqual(t, fused[i].RRFScore, fused[i-1].RRFScore)
	}
}

func TestRRFFusionEmpty(t *testing.T) {
	assert.Empty(t, rrfFuse(nil, nil, 60))
}
