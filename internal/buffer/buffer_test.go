package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/extract"
	"github.com/ziongh/miller/internal/store"
)

func makeBatch(symbols []*store.Symbol, idents []*store.Identifier, files []*store.File) *extract.Batch {
	b := extract.NewBatch()
	for _, s := range symbols {
		b.Symbols.AddSymbol(s)
	}
	for _, id := range idents {
		b.Identifiers.AddIdentifier(id)
	}
	for _, f := range files {
		b.Files.AddFile(f)
	}
	return b
}

func sym(name string, kind store.SymbolKind, sig, doc string) *store.Symbol {
	return &store.Symbol{
		ID: store.SymbolID("a.py", name, 0, kind), Name: name, Kind: kind,
		Language: "python", FilePath: "a.py", Signature: sig, DocComment: doc,
	}
}

func ident(name string) *store.Identifier {
	return &store.Identifier{ID: name, Name: name, Kind: store.IdentCall, FilePath: "a.py"}
}

func TestNoiseIdentifierFilter(t *testing.T) {
	b := New(DefaultThresholds())

	batch := makeBatch(nil, []*store.Identifier{
		ident("x"),        // single char: dropped
		ident("42"),       // pure digits: dropped
		ident("return"),   // keyword: dropped
		ident("getUser"),  // kept
		ident("validate"), // kept
	}, nil)

	b.AddBatch(batch, nil)

	require.Equal(t, 2, b.Identifiers().Len())
	assert.Equal(t, "getUser", b.Identifiers().Name[0])
	assert.Equal(t, "validate", b.Identifiers().Name[1])
}

func TestFlushThresholds(t *testing.T) {
	b := New(Thresholds{Symbols: 3, Files: 2})
	assert.False(t, b.ShouldFlush())

	b.AddBatch(makeBatch([]*store.Symbol{sym("a", store.KindFunction, "", "")}, nil,
		[]*store.File{{Path: "a.py"}}), nil)
	assert.False(t, b.ShouldFlush())

	b.AddBatch(makeBatch([]*store.Symbol{sym("b", store.KindFunction, "", "")}, nil,
		[]*store.File{{Path: "b.py"}}), nil)
	// File count reached 2.
	assert.True(t, b.ShouldFlush())
}

func TestSymbolThreshold(t *testing.T) {
	b := New(Thresholds{Symbols: 2, Files: 100})

	b.AddBatch(makeBatch([]*store.Symbol{
		sym("a", store.KindFunction, "", ""),
		sym("b", store.KindFunction, "", ""),
	}, nil, nil), nil)

	assert.True(t, b.ShouldFlush())
}

func TestEmbeddingTexts(t *testing.T) {
	b := New(DefaultThresholds())

	b.AddBatch(makeBatch([]*store.Symbol{
		sym("greet", store.KindMethod, "def greet(self):", "Says hello."),
		sym("helper", store.KindFunction, "def helper():", ""),
		sym("counter", store.KindVariable, "", ""),
	}, nil, nil), nil)

	texts := b.EmbeddingTexts()
	require.Len(t, texts, 3)
	assert.Equal(t, "Says hello. def greet(self):", texts[0])
	assert.Equal(t, "def helper():", texts[1])
	assert.Equal(t, "variable counter", texts[2])
}

func TestFilesToCleanDrains(t *testing.T) {
	b := New(DefaultThresholds())
	b.AddBatch(extract.NewBatch(), []string{"a.py", "b.py"})

	assert.Equal(t, []string{"a.py", "b.py"}, b.FilesToClean())
	assert.Empty(t, b.FilesToClean())
}

func TestClearResetsEverything(t *testing.T) {
	b := New(DefaultThresholds())
	b.AddBatch(makeBatch([]*store.Symbol{sym("a", store.KindFunction, "", "")}, []*store.Identifier{ident("getUser")},
		[]*store.File{{Path: "a.py"}}), []string{"a.py"})

	require.False(t, b.IsEmpty())
	b.Clear()

	assert.True(t, b.IsEmpty())
	assert.Zero(t, b.SymbolCount())
	assert.Zero(t, b.FileCount())
	assert.Empty(t, b.FilesToClean())
}
