package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ziongh/miller/internal/errors"
	"github.com/ziongh/miller/internal/format"
	"github.com/ziongh/miller/internal/search"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/vecstore"
	"github.com/ziongh/miller/internal/workspace"
)

func (s *Server) handleLookup(ctx context.Context, req *mcp.CallToolRequest, input LookupInput) (*mcp.CallToolResult, LookupOutput, error) {
	if len(input.SymbolNames) == 0 {
		return nil, LookupOutput{}, NewInvalidParamsError("symbol_names is required")
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, LookupOutput{}, MapError(err)
	}

	output := LookupOutput{Entries: make([]LookupEntry, 0, len(input.SymbolNames))}
	var lines []string

	for _, name := range input.SymbolNames {
		entry := LookupEntry{Query: name}

		sym, lookupErr := engine.Metadata.GetSymbolByName(ctx, name, input.ContextFile)
		if lookupErr != nil && errors.IsKind(lookupErr, errors.KindNotFound) {
			// Near-miss names resolve through semantic search.
			sym = s.semanticLookup(ctx, engine, name)
			entry.Fallback = sym != nil
		} else if lookupErr != nil {
			return nil, LookupOutput{}, MapError(lookupErr)
		}

		if sym != nil {
			row := toSymbolRow(sym, 0)
			entry.Found = true
			entry.Symbol = &row
			if input.IncludeBody {
				entry.Body = readBody(engine.Root, sym.FilePath, sym.StartLine, sym.EndLine)
			}
			lines = append(lines, format.GotoText(name, sym))
		} else {
			lines = append(lines, format.GotoText(name, nil))
		}

		output.Entries = append(output.Entries, entry)
	}

	output.Text = strings.Join(lines, "\n")
	return nil, output, nil
}

// semanticLookup returns the best vector match for a name nothing
// matched exactly, or nil.
func (s *Server) semanticLookup(ctx context.Context, engine *workspace.Engine, name string) *store.Symbol {
	resp, err := engine.Router.Search(ctx, name, search.Options{
		Method: vecstore.MethodSemantic,
		Limit:  1,
	})
	if err != nil || len(resp.Results) == 0 {
		return nil
	}
	return resp.Results[0].Symbol
}

// readBody extracts a symbol's source span.
func readBody(root, relPath string, startLine, endLine int) string {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relPath)))
	if err != nil {
		return ""
	}
	lines := strings.Split(string(content), "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine > len(lines) {
		endLine = len(lines)
	}
	if startLine > endLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}
