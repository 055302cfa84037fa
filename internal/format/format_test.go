package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/search"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/trace"
	"github.com/ziongh/miller/internal/vecstore"
)

func mkResult(name, path string, line int, score float64) *search.Result {
	return &search.Result{
		Symbol: &store.Symbol{
			Name: name, Kind: store.KindFunction, FilePath: path,
			StartLine: line, Signature: "def " + name + "():",
		},
		Score:  score,
		Method: vecstore.MethodHybrid,
	}
}

func TestParseOutput(t *testing.T) {
	for _, valid := range []string{"json", "text", "compact", "auto", ""} {
		_, err := ParseOutput(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseOutput("xml")
	assert.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	out, err := Render(OutputJSON, map[string]int{"count": 3}, 1, func() string { return "text" })
	require.NoError(t, err)
	assert.Contains(t, out, `"count": 3`)
}

func TestRenderAutoSwitchesToCompact(t *testing.T) {
	rows := make([]map[string]any, 25)
	for i := range rows {
		rows[i] = map[string]any{"name": "row", "line": i}
	}

	small, err := Render(OutputAuto, rows[:2], 2, func() string { return "the text layout" })
	require.NoError(t, err)
	assert.Equal(t, "the text layout", small)

	large, err := Render(OutputAuto, rows, len(rows), func() string { return "the text layout" })
	require.NoError(t, err)
	assert.NotEqual(t, "the text layout", large)
}

func TestTOONRoundTrip(t *testing.T) {
	type row struct {
		Name string `json:"name"`
		Line int    `json:"line"`
	}
	in := []row{{"alpha", 1}, {"beta", 2}}

	encoded := MarshalTOON(in)
	require.NotContains(t, encoded, "error:")

	var out []row
	require.NoError(t, UnmarshalTOON(encoded, &out))
	assert.Equal(t, in, out)
}

func TestSearchText(t *testing.T) {
	resp := &search.Response{
		Results: []*search.Result{mkResult("greet", "src/models.py", 2, 0.91)},
		Method:  vecstore.MethodHybrid,
	}

	out := SearchText("greet", resp)
	assert.Contains(t, out, "src/models.py:2")
	assert.Contains(t, out, "def greet():")
	assert.Contains(t, out, "0.91")
}

func TestSearchTextEmpty(t *testing.T) {
	out := SearchText("nothing", &search.Response{Results: []*search.Result{}})
	assert.Contains(t, out, "No results")
}

func TestGotoText(t *testing.T) {
	sym := &store.Symbol{
		Name: "User", Kind: store.KindClass, FilePath: "src/models.py",
		StartLine: 1, Signature: "class User:",
	}
	assert.Equal(t, "src/models.py:1 → class User:", GotoText("User", sym))
	assert.Contains(t, GotoText("Ghost", nil), "not found")
}

func TestRefsText(t *testing.T) {
	groups := []*store.FileReferences{{
		FilePath: "src/app.py",
		References: []store.Reference{
			{FilePath: "src/app.py", Line: 3, Column: 5, Kind: store.IdentCall, Access: store.AccessRead, Context: "user.greet()"},
			{FilePath: "src/app.py", Line: 9, Column: 1, Kind: store.IdentReference, Access: store.AccessWrite},
		},
	}}

	out := RefsText("greet", groups)
	assert.Contains(t, out, "2 references")
	assert.Contains(t, out, "src/app.py")
	assert.Contains(t, out, "[read]")
	assert.Contains(t, out, "[write]")
}

func TestTraceText(t *testing.T) {
	root := &trace.Node{
		Symbol:   &store.Symbol{Name: "UserService", FilePath: "src/user.ts", StartLine: 1},
		Language: "typescript",
	}
	root.Children = []*trace.Node{
		{
			Symbol:    &store.Symbol{Name: "user_service", FilePath: "src/user.py", StartLine: 4},
			Language:  "python",
			MatchType: trace.MatchVariant,
			Depth:     1,
		},
		{
			Symbol:     &store.Symbol{Name: "verifyCredentials", FilePath: "src/auth.ts", StartLine: 8},
			Language:   "typescript",
			MatchType:  trace.MatchSemantic,
			Confidence: 0.84,
			Depth:      1,
		},
	}

	path := &trace.Path{
		QuerySymbol: "UserService",
		Direction:   trace.DirectionDownstream,
		MaxDepth:    3,
		Root:        root,
		TotalNodes:  3,
	}

	out := TraceText(path)
	assert.Contains(t, out, "UserService [typescript]")
	assert.Contains(t, out, "(variant)")
	assert.Contains(t, out, "(semantic 0.84)")
	assert.Contains(t, out, "└── ")
}

func TestTraceTextError(t *testing.T) {
	out := TraceText(&trace.Path{Error: "symbol 'ghost' not found"})
	assert.Contains(t, out, "ghost")
}

func TestArchitectureMermaid(t *testing.T) {
	edges := []*store.DirectoryEdge{
		{FromDir: "api", ToDir: "core", EdgeCount: 4, Kinds: map[store.RelationshipKind]int{store.RelCall: 4}},
	}

	out := ArchitectureMermaid(edges)
	assert.True(t, strings.HasPrefix(out, "graph LR"))
	assert.Contains(t, out, "api")
	assert.Contains(t, out, "core")
	assert.Contains(t, out, "|4|")
}

func TestArchitectureASCII(t *testing.T) {
	edges := []*store.DirectoryEdge{
		{FromDir: "api", ToDir: "core", EdgeCount: 2, Kinds: map[store.RelationshipKind]int{store.RelCall: 2}},
	}

	out := ArchitectureASCII(edges)
	assert.Contains(t, out, "api")
	assert.Contains(t, out, "→ core (2 edges; call:2)")
}
