package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/explore"
	"github.com/ziongh/miller/internal/format"
	"github.com/ziongh/miller/internal/search"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/trace"
	"github.com/ziongh/miller/internal/vecstore"
	"github.com/ziongh/miller/internal/workspace"
	"github.com/ziongh/miller/pkg/version"
)

// Server bridges MCP clients with the engine. stdout carries only
// protocol frames; all diagnostics go through slog to stderr or the log
// file.
type Server struct {
	mcp      *mcp.Server
	manager  *workspace.Manager
	rootPath string // default workspace when tools omit one
	logger   *slog.Logger
}

// NewServer creates the MCP server over a workspace manager.
func NewServer(manager *workspace.Manager, rootPath string) *Server {
	s := &Server{
		manager:  manager,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "Miller", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s
}

// MCPServer exposes the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Run serves the stdio transport until the context ends. Broken pipes
// surface as transport errors, not panics.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting",
		slog.String("root", s.rootPath),
		slog.String("version", version.Version))
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_search",
		Description: "Hybrid code search over the workspace index. Code punctuation (: < > [ ] ( ) { }) routes to the pattern index automatically; plain queries fuse keyword and semantic rankings.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_goto",
		Description: "Jump to a symbol's definition. Definitions win over imports; a context file disambiguates duplicates.",
	}, s.handleGoto)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_refs",
		Description: "Find a symbol's use-sites grouped by file, optionally with source context and read/write classification.",
	}, s.handleRefs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_lookup",
		Description: "Resolve a batch of symbol names to definitions, falling back to semantic search for near-miss names.",
	}, s.handleLookup)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_symbols",
		Description: "List a file's symbols hierarchically, with optional signatures, docs, and bodies.",
	}, s.handleGetSymbols)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trace_call_path",
		Description: "Trace call paths across language boundaries using stored edges, naming variants, and optional semantic similarity.",
	}, s.handleTrace)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_architecture_map",
		Description: "Render cross-directory dependency structure as mermaid, ascii, or json.",
	}, s.handleArchitecture)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "validate_imports",
		Description: "Check a snippet's import statements against the indexed workspace.",
	}, s.handleValidateImports)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_explore",
		Description: "Discovery queries: types, similar symbols, dead code, hot spots, and directory dependencies.",
	}, s.handleExplore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "manage_workspace",
		Description: "Register, list, refresh, clean, health-check, or remove workspaces.",
	}, s.handleManageWorkspace)

	s.logger.Debug("mcp tools registered", slog.Int("count", 10))
}

// engineFor resolves the workspace for a tool call.
func (s *Server) engineFor(workspacePath string) (*workspace.Engine, error) {
	if workspacePath == "" {
		workspacePath = s.rootPath
	}
	return s.manager.Engine(workspacePath)
}

func toSymbolRow(sym *store.Symbol, score float64) SymbolRow {
	return SymbolRow{
		Name:      sym.Name,
		Kind:      string(sym.Kind),
		Language:  sym.Language,
		FilePath:  sym.FilePath,
		StartLine: sym.StartLine,
		EndLine:   sym.EndLine,
		Signature: sym.Signature,
		Doc:       sym.DocComment,
		Score:     score,
	}
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	out, err := format.ParseOutput(input.OutputFormat)
	if err != nil {
		return nil, SearchOutput{}, NewInvalidParamsError(err.Error())
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	limit := input.Limit
	if limit == 0 {
		limit = search.DefaultLimit
	}
	resp, err := engine.Router.Search(ctx, input.Query, search.Options{
		Method:      vecstore.SearchMethod(input.Method),
		Limit:       limit,
		Language:    input.Language,
		FilePattern: input.FilePattern,
		Expand:      input.Expand,
		Rerank:      input.Rerank,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{
		Method:    string(resp.Method),
		Fallback:  resp.Fallback,
		Truncated: resp.Truncated,
	}
	for _, r := range resp.Results {
		row := toSymbolRow(r.Symbol, r.Score)
		row.Fallback = r.Fallback
		if r.Expansion != nil {
			for _, c := range r.Expansion.Callers {
				row.Callers = append(row.Callers, c.Name)
			}
			for _, c := range r.Expansion.Callees {
				row.Callees = append(row.Callees, c.Name)
			}
		}
		output.Results = append(output.Results, row)
	}

	if out != format.OutputJSON {
		text, rerr := format.Render(out, output.Results, len(output.Results), func() string {
			return format.SearchText(input.Query, resp)
		})
		if rerr == nil {
			output.Text = text
		}
	}
	return nil, output, nil
}

func (s *Server) handleGoto(ctx context.Context, req *mcp.CallToolRequest, input GotoInput) (*mcp.CallToolResult, GotoOutput, error) {
	if input.SymbolName == "" {
		return nil, GotoOutput{}, NewInvalidParamsError("symbol_name is required")
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, GotoOutput{}, MapError(err)
	}

	sym, err := engine.Metadata.GetSymbolByName(ctx, input.SymbolName, input.ContextFile)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, GotoOutput{Found: false, Text: format.GotoText(input.SymbolName, nil)}, nil
		}
		return nil, GotoOutput{}, MapError(err)
	}

	row := toSymbolRow(sym, 0)
	return nil, GotoOutput{
		Found:  true,
		Symbol: &row,
		Text:   format.GotoText(input.SymbolName, sym),
	}, nil
}

func (s *Server) handleRefs(ctx context.Context, req *mcp.CallToolRequest, input RefsInput) (*mcp.CallToolResult, RefsOutput, error) {
	if input.SymbolName == "" {
		return nil, RefsOutput{}, NewInvalidParamsError("symbol_name is required")
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, RefsOutput{}, MapError(err)
	}

	groups, err := engine.Metadata.FindReferences(ctx, input.SymbolName, store.RefOptions{
		KindFilter:     store.IdentifierKind(input.KindFilter),
		IncludeContext: input.IncludeContext,
		Limit:          input.Limit,
		Root:           engine.Root,
	})
	if err != nil {
		return nil, RefsOutput{}, MapError(err)
	}

	output := RefsOutput{}
	for _, g := range groups {
		for _, ref := range g.References {
			output.Total++
			output.References = append(output.References, RefRow{
				FilePath: g.FilePath,
				Line:     ref.Line,
				Column:   ref.Column,
				Kind:     string(ref.Kind),
				Access:   string(ref.Access),
				Context:  strings.TrimSpace(ref.Context),
			})
		}
	}
	output.Text = format.RefsText(input.SymbolName, groups)
	return nil, output, nil
}

func (s *Server) handleTrace(ctx context.Context, req *mcp.CallToolRequest, input TraceInput) (*mcp.CallToolResult, TraceOutput, error) {
	if input.SymbolName == "" {
		return nil, TraceOutput{}, NewInvalidParamsError("symbol_name is required")
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, TraceOutput{}, MapError(err)
	}

	direction := trace.Direction(input.Direction)
	if input.Direction == "" {
		direction = trace.DirectionDownstream
	}
	maxDepth := input.MaxDepth
	if maxDepth == 0 {
		maxDepth = trace.DefaultMaxDepth
	}

	path, err := engine.Trace.Trace(ctx, input.SymbolName, direction, maxDepth, input.ContextFile, input.EnableSemantic)
	if err != nil {
		return nil, TraceOutput{}, MapError(err)
	}

	output := TraceOutput{
		QuerySymbol:     path.QuerySymbol,
		Direction:       string(path.Direction),
		MaxDepth:        path.MaxDepth,
		TotalNodes:      path.TotalNodes,
		MaxDepthReached: path.MaxDepthReached,
		Truncated:       path.Truncated,
		Languages:       path.LanguagesFound,
		Error:           path.Error,
		ExecutionMS:     path.ExecutionMS,
		Text:            format.TraceText(path),
	}
	output.MatchTypes = make(map[string]int, len(path.MatchTypes))
	for mt, n := range path.MatchTypes {
		output.MatchTypes[string(mt)] = n
	}
	if path.Root != nil {
		root := toTraceRow(path.Root)
		output.Root = &root
	}
	return nil, output, nil
}

func toTraceRow(node *trace.Node) TraceNodeRow {
	row := TraceNodeRow{
		Name:         node.Symbol.Name,
		Kind:         string(node.Symbol.Kind),
		Language:     node.Language,
		FilePath:     node.Symbol.FilePath,
		StartLine:    node.Symbol.StartLine,
		MatchType:    string(node.MatchType),
		Relationship: string(node.RelationshipKind),
		Confidence:   node.Confidence,
		Cycle:        node.CycleDetected,
	}
	for _, child := range node.Children {
		row.Children = append(row.Children, toTraceRow(child))
	}
	return row
}

func (s *Server) handleArchitecture(ctx context.Context, req *mcp.CallToolRequest, input ArchitectureInput) (*mcp.CallToolResult, ArchitectureOutput, error) {
	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, ArchitectureOutput{}, MapError(err)
	}

	depth := input.Depth
	if depth == 0 {
		depth = 2
	}
	edges, err := engine.Metadata.GetCrossDirectoryDependencies(ctx, depth, input.MinEdgeCount)
	if err != nil {
		return nil, ArchitectureOutput{}, MapError(err)
	}

	output := ArchitectureOutput{}
	for _, e := range edges {
		output.Edges = append(output.Edges, ArchitectureEdge{
			From: e.FromDir, To: e.ToDir, EdgeCount: e.EdgeCount,
		})
	}

	switch input.OutputFormat {
	case "mermaid", "":
		output.Text = format.ArchitectureMermaid(edges)
	case "ascii":
		output.Text = format.ArchitectureASCII(edges)
	case "json":
		// Structured edges only.
	default:
		return nil, ArchitectureOutput{}, NewInvalidParamsError("output_format must be mermaid, ascii, or json")
	}
	return nil, output, nil
}

func (s *Server) handleExplore(ctx context.Context, req *mcp.CallToolRequest, input ExploreInput) (*mcp.CallToolResult, ExploreOutput, error) {
	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, ExploreOutput{}, MapError(err)
	}

	result, err := engine.Explorer.Explore(ctx, explore.Mode(input.Mode), explore.Params{
		Query:    input.Query,
		Limit:    input.Limit,
		Depth:    input.Depth,
		MinEdges: input.MinEdges,
	})
	if err != nil {
		return nil, ExploreOutput{}, MapError(err)
	}

	output := ExploreOutput{Mode: string(result.Mode), Text: format.ExploreText(result)}
	for _, sym := range result.Types {
		output.Types = append(output.Types, toSymbolRow(sym, 0))
	}
	for _, sim := range result.Similar {
		output.Similar = append(output.Similar, toSymbolRow(sim.Symbol, sim.Similarity))
	}
	for _, dead := range result.DeadCode {
		output.DeadCode = append(output.DeadCode, toSymbolRow(dead.Symbol, 0))
	}
	for _, h := range result.HotSpots {
		output.HotSpots = append(output.HotSpots, HotSpotRow{
			Name:         h.Symbol.Name,
			FilePath:     h.Symbol.FilePath,
			StartLine:    h.Symbol.StartLine,
			InboundCalls: h.InboundCalls,
			TotalRefs:    h.TotalRefs,
			RefFileCount: h.RefFileCount,
		})
	}
	for _, e := range result.Dependencies {
		output.Dependencies = append(output.Dependencies, ArchitectureEdge{
			From: e.FromDir, To: e.ToDir, EdgeCount: e.EdgeCount,
		})
	}
	return nil, output, nil
}

func (s *Server) handleManageWorkspace(ctx context.Context, req *mcp.CallToolRequest, input ManageWorkspaceInput) (*mcp.CallToolResult, ManageWorkspaceOutput, error) {
	registry := s.manager.Registry()

	switch input.Operation {
	case "add":
		if input.Workspace == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace path is required for add")
		}
		rec, err := registry.Add(input.Workspace)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		return nil, ManageWorkspaceOutput{Status: "added " + rec.Name + " (" + rec.ID + ")"}, nil

	case "list":
		records, err := registry.List()
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		output := ManageWorkspaceOutput{Status: "ok"}
		for _, r := range records {
			output.Workspaces = append(output.Workspaces, WorkspaceRow(*r))
		}
		return nil, output, nil

	case "refresh":
		engine, err := s.engineFor(input.Workspace)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		stats, err := engine.Indexer.IndexWorkspace(ctx)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		return nil, ManageWorkspaceOutput{
			Status: formatRefreshStatus(stats.FilesIndexed, stats.FilesSkipped, stats.Symbols),
		}, nil

	case "health":
		engine, err := s.engineFor(input.Workspace)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		return nil, ManageWorkspaceOutput{Status: "ok", Health: engine.Health(ctx)}, nil

	case "clean":
		engine, err := s.engineFor(input.Workspace)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		if err := engine.Clean(); err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		s.manager.Drop(engine.Root)
		return nil, ManageWorkspaceOutput{Status: "cleaned " + engine.Root}, nil

	case "remove":
		if input.Workspace == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace id is required for remove")
		}
		rec, err := registry.Get(input.Workspace)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		if err := registry.Remove(rec.ID); err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		return nil, ManageWorkspaceOutput{Status: "removed " + rec.Name}, nil

	default:
		return nil, ManageWorkspaceOutput{}, NewInvalidParamsError(
			"operation must be add, list, refresh, clean, health, or remove")
	}
}

func formatRefreshStatus(indexed, skipped, symbols int) string {
	return fmt.Sprintf("indexed %d files (%d unchanged, %d symbols)", indexed, skipped, symbols)
}
