package mcp

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ziongh/miller/internal/workspace"
)

// Import statement shapes per language.
var (
	pyImportRe     = regexp.MustCompile(`^import\s+([A-Za-z_][\w.]*)`)
	pyFromImportRe = regexp.MustCompile(`^from\s+([A-Za-z_][\w.]*)\s+import\s+(.+)`)
	tsImportRe     = regexp.MustCompile(`^import\s+(?:.+\s+from\s+)?['"]([^'"]+)['"]`)
	goImportRe     = regexp.MustCompile(`^(?:import\s+)?(?:[A-Za-z_.]+\s+)?"([^"]+)"`)
)

// parsedImport is one import statement extracted from a snippet.
type parsedImport struct {
	statement string
	module    string
	names     []string
}

func (s *Server) handleValidateImports(ctx context.Context, req *mcp.CallToolRequest, input ValidateImportsInput) (*mcp.CallToolResult, ValidateImportsOutput, error) {
	if strings.TrimSpace(input.CodeSnippet) == "" {
		return nil, ValidateImportsOutput{}, NewInvalidParamsError("code_snippet is required")
	}

	engine, err := s.engineFor(input.Workspace)
	if err != nil {
		return nil, ValidateImportsOutput{}, MapError(err)
	}

	language := input.Language
	imports := parseImports(input.CodeSnippet, &language)

	output := ValidateImportsOutput{Verdicts: make([]ImportVerdict, 0, len(imports))}
	var lines []string

	for _, imp := range imports {
		verdict := s.validateImport(ctx, engine, imp, language)
		output.Verdicts = append(output.Verdicts, verdict)

		mark := "✗"
		if verdict.Valid {
			mark = "✓"
		}
		line := fmt.Sprintf("%s %s", mark, verdict.Statement)
		if verdict.Reason != "" {
			line += " — " + verdict.Reason
		}
		lines = append(lines, line)
	}

	output.Text = strings.Join(lines, "\n")
	return nil, output, nil
}

// parseImports extracts import statements, inferring the language from
// the first matching shape when it was not given.
func parseImports(snippet string, language *string) []parsedImport {
	var out []parsedImport

	for _, raw := range strings.Split(snippet, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}

		if m := pyFromImportRe.FindStringSubmatch(line); m != nil {
			imp := parsedImport{statement: line, module: m[1]}
			for _, name := range strings.Split(m[2], ",") {
				name = strings.TrimSpace(strings.Split(strings.TrimSpace(name), " as ")[0])
				if name != "" && name != "*" {
					imp.names = append(imp.names, name)
				}
			}
			out = append(out, imp)
			setIfEmpty(language, "python")
			continue
		}
		if m := tsImportRe.FindStringSubmatch(line); m != nil {
			imp := parsedImport{statement: line, module: m[1]}
			if braced := regexp.MustCompile(`\{([^}]*)\}`).FindStringSubmatch(line); braced != nil {
				for _, name := range strings.Split(braced[1], ",") {
					name = strings.TrimSpace(strings.Split(strings.TrimSpace(name), " as ")[0])
					if name != "" {
						imp.names = append(imp.names, name)
					}
				}
			}
			out = append(out, imp)
			setIfEmpty(language, "typescript")
			continue
		}
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			out = append(out, parsedImport{statement: line, module: m[1]})
			setIfEmpty(language, "python")
			continue
		}
		if m := goImportRe.FindStringSubmatch(line); m != nil && strings.Contains(line, `"`) {
			out = append(out, parsedImport{statement: line, module: m[1]})
			setIfEmpty(language, "go")
		}
	}
	return out
}

func setIfEmpty(target *string, value string) {
	if *target == "" {
		*target = value
	}
}

// validateImport checks a module against indexed file paths and, when
// the statement names symbols, against exported symbols.
func (s *Server) validateImport(ctx context.Context, engine *workspace.Engine, imp parsedImport, language string) ImportVerdict {
	verdict := ImportVerdict{Statement: imp.statement, Module: imp.module}

	moduleFound := s.moduleExists(ctx, engine, imp.module)

	if !moduleFound && len(imp.names) == 0 {
		// Bare module import with no matching workspace file: likely an
		// external package; report it as such rather than an error.
		verdict.Valid = true
		verdict.Reason = "external module (not in workspace)"
		return verdict
	}

	var missing []string
	for _, name := range imp.names {
		if _, err := engine.Metadata.GetSymbolByName(ctx, name, ""); err != nil {
			missing = append(missing, name)
			// Close names make useful suggestions.
			if near, nErr := engine.Metadata.FindSymbolsByNamePrefix(ctx, prefixOf(name), 3); nErr == nil {
				for _, sym := range near {
					verdict.Suggestions = append(verdict.Suggestions, sym.Name)
				}
			}
		}
	}

	switch {
	case len(imp.names) > 0 && len(missing) == 0:
		verdict.Valid = true
	case len(missing) > 0:
		verdict.Valid = false
		verdict.Reason = "unknown symbols: " + strings.Join(missing, ", ")
	case moduleFound:
		verdict.Valid = true
	}
	return verdict
}

// moduleExists checks whether a module path corresponds to an indexed
// file.
func (s *Server) moduleExists(ctx context.Context, engine *workspace.Engine, module string) bool {
	files, err := engine.Metadata.ListFiles(ctx)
	if err != nil {
		return false
	}

	// "pkg.sub.mod" and "pkg/sub/mod" both address pkg/sub/mod.*.
	slashed := strings.ReplaceAll(module, ".", "/")
	for _, f := range files {
		trimmed := strings.TrimSuffix(f.Path, pathExt(f.Path))
		if trimmed == slashed || strings.HasSuffix(trimmed, "/"+slashed) {
			return true
		}
	}
	return false
}

func pathExt(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 && idx > strings.LastIndex(path, "/") {
		return path[idx:]
	}
	return ""
}

func prefixOf(name string) string {
	if len(name) > 3 {
		return name[:3]
	}
	return name
}
