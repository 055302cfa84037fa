package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziongh/miller/internal/workspace"
)

// newTestServer builds a server over a seeded, indexed workspace.
func newTestServer(t *testing.T, files map[string]string) (*Server, string) {
	t.Helper()
	t.Setenv("MILLER_HOME", t.TempDir())
	root := t.TempDir()

	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}

	manager := workspace.NewManager(workspace.NewRegistry(filepath.Join(t.TempDir(), "reg.json")))
	t.Cleanup(manager.ShutdownAll)

	engine, err := manager.Engine(root)
	require.NoError(t, err)
	_, err = engine.Indexer.IndexWorkspace(context.Background())
	require.NoError(t, err)

	return NewServer(manager, root), root
}

func TestIndexThenGoto(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"src/models.py": "class User:\n    def greet(self):\n        return \"hi\"\n",
	})
	ctx := context.Background()

	_, out, err := s.handleGoto(ctx, nil, GotoInput{SymbolName: "User"})
	require.NoError(t, err)
	require.True(t, out.Found)
	assert.Equal(t, "src/models.py", out.Symbol.FilePath)
	assert.Equal(t, "class", out.Symbol.Kind)
	assert.Equal(t, 1, out.Symbol.StartLine)

	_, out, err = s.handleGoto(ctx, nil, GotoInput{SymbolName: "greet"})
	require.NoError(t, err)
	require.True(t, out.Found)
	assert.Equal(t, 2, out.Symbol.StartLine)
}

func TestGotoUnknownSymbol(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"a.py": "def fn():\n    pass\n"})

	_, out, err := s.handleGoto(context.Background(), nil, GotoInput{SymbolName: "ghost"})
	require.NoError(t, err)
	assert.False(t, out.Found)
	assert.Nil(t, out.Symbol)
}

func TestPatternSearchScenario(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"Services/UserService.cs": "public class UserService : BaseService\n{\n    private readonly ILogger<UserService> _logger;\n}\n",
	})
	ctx := context.Background()

	_, out, err := s.handleSearch(ctx, nil, SearchInput{Query: ": BaseService", Method: "pattern"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "UserService", out.Results[0].Name)

	_, out, err = s.handleSearch(ctx, nil, SearchInput{Query: "ILogger<", Method: "pattern"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "_logger", out.Results[0].Name)

	// The text method's query language rejects the ":" metacharacter and
	// recovers as empty — the contrast case for the pattern tokenizer.
	_, out, err = s.handleSearch(ctx, nil, SearchInput{Query: ": BaseService", Method: "text"})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestRefsWithAccessClassification(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"src/lib.py":  "def counter():\n    pass\n",
		"src/main.py": "def run():\n    counter()\n",
	})

	_, out, err := s.handleRefs(context.Background(), nil, RefsInput{
		SymbolName: "counter", IncludeContext: true,
	})
	require.NoError(t, err)
	require.Positive(t, out.Total)
	assert.Equal(t, "src/main.py", out.References[0].FilePath)
	assert.Contains(t, out.References[0].Context, "counter()")
}

func TestTraceVariantScenario(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"src/user.ts":         "export class UserService {\n}\n",
		"src/user_service.py": "def user_service():\n    pass\n",
	})

	_, out, err := s.handleTrace(context.Background(), nil, TraceInput{
		SymbolName: "UserService", Direction: "downstream", MaxDepth: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, out.Root)

	var variantChild *TraceNodeRow
	for i, c := range out.Root.Children {
		if c.Name == "user_service" {
			variantChild = &out.Root.Children[i]
		}
	}
	require.NotNil(t, variantChild, "variant child expected")
	assert.Equal(t, "variant", variantChild.MatchType)
	assert.Equal(t, "python", variantChild.Language)
}

func TestTraceValidation(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"a.py": "def fn():\n    pass\n"})
	ctx := context.Background()

	_, _, err := s.handleTrace(ctx, nil, TraceInput{SymbolName: "fn", MaxDepth: 11})
	assert.Error(t, err)

	_, _, err = s.handleTrace(ctx, nil, TraceInput{SymbolName: "fn", Direction: "sideways", MaxDepth: 3})
	assert.Error(t, err)
}

func TestDeadCodeScenario(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"tests/test_a.py": "def test_helper():\n    pass\n",
		"src/main.py":     "def orphan_func():\n    pass\n",
	})

	_, out, err := s.handleExplore(context.Background(), nil, ExploreInput{Mode: "dead_code"})
	require.NoError(t, err)

	names := make([]string, 0, len(out.DeadCode))
	for _, d := range out.DeadCode {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "orphan_func")
	assert.NotContains(t, names, "test_helper")
}

func TestGetSymbolsHierarchy(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"src/models.py": "class User:\n    def greet(self):\n        pass\n\ndef top():\n    pass\n",
	})

	_, out, err := s.handleGetSymbols(context.Background(), nil, GetSymbolsInput{
		FilePath: "src/models.py", Mode: "minimal",
	})
	require.NoError(t, err)
	require.Len(t, out.Symbols, 2)

	assert.Equal(t, "User", out.Symbols[0].Name)
	require.Len(t, out.Symbols[0].Children, 1)
	assert.Equal(t, "greet", out.Symbols[0].Children[0].Name)
	assert.NotEmpty(t, out.Symbols[0].Signature)
	assert.Equal(t, "top", out.Symbols[1].Name)
}

func TestGetSymbolsInvalidMode(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{"a.py": "def fn():\n    pass\n"})

	_, _, err := s.handleGetSymbols(context.Background(), nil, GetSymbolsInput{
		FilePath: "a.py", Mode: "everything",
	})
	assert.Error(t, err)
}

func TestValidateImports(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"src/models.py": "class User:\n    pass\n",
	})

	snippet := "from src.models import User\nfrom src.models import Ghost\nimport os\n"
	_, out, err := s.handleValidateImports(context.Background(), nil, ValidateImportsInput{
		CodeSnippet: snippet,
	})
	require.NoError(t, err)
	require.Len(t, out.Verdicts, 3)

	assert.True(t, out.Verdicts[0].Valid, "User import should validate")
	assert.False(t, out.Verdicts[1].Valid, "Ghost import should fail")
	assert.Contains(t, out.Verdicts[1].Reason, "Ghost")
	// Bare stdlib import is treated as external.
	assert.True(t, out.Verdicts[2].Valid)
}

func TestArchitectureMap(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"api/handlers.py":  "def handle():\n    serve()\n",
		"core/service.py":  "def serve():\n    pass\n",
	})

	_, out, err := s.handleArchitecture(context.Background(), nil, ArchitectureInput{
		Depth: 1, OutputFormat: "mermaid",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Edges)
	assert.Contains(t, out.Text, "graph LR")

	_, out, err = s.handleArchitecture(context.Background(), nil, ArchitectureInput{
		Depth: 1, OutputFormat: "ascii",
	})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "api")
}

func TestManageWorkspace(t *testing.T) {
	s, root := newTestServer(t, map[string]string{"a.py": "def fn():\n    pass\n"})
	ctx := context.Background()

	_, out, err := s.handleManageWorkspace(ctx, nil, ManageWorkspaceInput{
		Operation: "add", Workspace: root,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Status, "added")

	_, out, err = s.handleManageWorkspace(ctx, nil, ManageWorkspaceInput{Operation: "list"})
	require.NoError(t, err)
	require.Len(t, out.Workspaces, 1)

	_, out, err = s.handleManageWorkspace(ctx, nil, ManageWorkspaceInput{
		Operation: "health", Workspace: root,
	})
	require.NoError(t, err)
	assert.NotNil(t, out.Health)

	_, out, err = s.handleManageWorkspace(ctx, nil, ManageWorkspaceInput{
		Operation: "refresh", Workspace: root,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Status, "indexed")

	_, _, err = s.handleManageWorkspace(ctx, nil, ManageWorkspaceInput{Operation: "explode"})
	assert.Error(t, err)
}

func TestFastLookupWithBody(t *testing.T) {
	s, _ := newTestServer(t, map[string]string{
		"src/lib.py": "def helper():\n    return 42\n",
	})

	_, out, err := s.handleLookup(context.Background(), nil, LookupInput{
		SymbolNames: []string{"helper", "no_such_thing_xyz"},
		IncludeBody: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)

	assert.True(t, out.Entries[0].Found)
	assert.Contains(t, out.Entries[0].Body, "return 42")
}
