package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ziongh/miller/internal/store"
)

// get_symbols modes.
const (
	symbolsModeStructure = "structure" // names and lines only
	symbolsModeMinimal   = "minimal"   // plus signatures
	symbolsModeFull      = "full"      // plus docs and bodies
)

func (s *Server) handleGetSymbols(ctx context.Context, req *mcp.CallToolRequest, input GetSymbolsInput) (*mcp.CallToolResult, GetSymbolsOutput, error) {
	if input.FilePath == "" {
		return nil, GetSymbolsOutput{}, NewInvalidParamsError("file_path is required")
	}

	mode := input.Mode
	if mode == "" {
		mode = symbolsModeStructure
	}
	switch mode {
	case symbolsModeStructure, symbolsModeMinimal, symbolsModeFull:
	default:
		return nil, GetSymbolsOutput{}, NewInvalidParamsError("mode must be structure, minimal, or full")
	}

	maxDepth := input.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 200
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, GetSymbolsOutput{}, MapError(err)
	}

	symbols, err := engine.Metadata.GetSymbolsByFile(ctx, input.FilePath)
	if err != nil {
		return nil, GetSymbolsOutput{}, MapError(err)
	}

	// Build the containment tree from parent links.
	children := make(map[string][]*store.Symbol)
	var roots []*store.Symbol
	for _, sym := range symbols {
		if sym.ParentID == "" {
			roots = append(roots, sym)
		} else {
			children[sym.ParentID] = append(children[sym.ParentID], sym)
		}
	}

	count := 0
	var build func(sym *store.Symbol, depth int) *SymbolTreeNode
	build = func(sym *store.Symbol, depth int) *SymbolTreeNode {
		if count >= limit {
			return nil
		}
		if input.Target != "" && !strings.Contains(strings.ToLower(sym.Name), strings.ToLower(input.Target)) {
			// A non-matching container still shows when a descendant
			// matches.
			if !subtreeMatches(sym, children, input.Target) {
				return nil
			}
		}
		count++

		node := &SymbolTreeNode{
			Name:      sym.Name,
			Kind:      string(sym.Kind),
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
		}
		if mode != symbolsModeStructure {
			node.Signature = sym.Signature
		}
		if mode == symbolsModeFull {
			node.Doc = sym.DocComment
			node.Body = readBody(engine.Root, sym.FilePath, sym.StartLine, sym.EndLine)
		}

		if depth < maxDepth {
			for _, child := range children[sym.ID] {
				if built := build(child, depth+1); built != nil {
					node.Children = append(node.Children, *built)
				}
			}
		}
		return node
	}

	output := GetSymbolsOutput{FilePath: input.FilePath}
	for _, root := range roots {
		if built := build(root, 1); built != nil {
			output.Symbols = append(output.Symbols, *built)
		}
	}

	output.Text = renderSymbolTree(input.FilePath, output.Symbols)
	return nil, output, nil
}

// subtreeMatches reports whether any descendant name contains target.
func subtreeMatches(sym *store.Symbol, children map[string][]*store.Symbol, target string) bool {
	lower := strings.ToLower(target)
	var walk func(s *store.Symbol) bool
	walk = func(s *store.Symbol) bool {
		if strings.Contains(strings.ToLower(s.Name), lower) {
			return true
		}
		for _, c := range children[s.ID] {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return walk(sym)
}

func renderSymbolTree(filePath string, nodes []SymbolTreeNode) string {
	if len(nodes) == 0 {
		return fmt.Sprintf("No symbols in %s.", filePath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", filePath)
	var render func(node SymbolTreeNode, indent string)
	render = func(node SymbolTreeNode, indent string) {
		label := node.Name
		if node.Signature != "" {
			label = node.Signature
		}
		fmt.Fprintf(&b, "%s%d: %s %s\n", indent, node.StartLine, node.Kind, label)
		for _, child := range node.Children {
			render(child, indent+"  ")
		}
	}
	for _, node := range nodes {
		render(node, "  ")
	}
	return b.String()
}
