package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ziongh/miller/internal/explore"
	"github.com/ziongh/miller/internal/search"
	"github.com/ziongh/miller/internal/store"
	"github.com/ziongh/miller/internal/trace"
)

// SearchText renders search results as compact location lines.
func SearchText(query string, resp *search.Response) string {
	if len(resp.Results) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}

	lines := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		detail := fmt.Sprintf("%s %s (%.2f)", r.Symbol.Kind, r.Symbol.Name, r.Score)
		if r.Symbol.Signature != "" {
			detail = fmt.Sprintf("%s (%.2f)", r.Symbol.Signature, r.Score)
		}
		line := Line(r.Symbol.FilePath, r.Symbol.StartLine, detail)
		if r.Fallback {
			line += " [semantic fallback]"
		}
		lines = append(lines, line)

		if r.Expansion != nil {
			for _, c := range r.Expansion.Callers {
				lines = append(lines, fmt.Sprintf("  ← called by %s (%s:%d)", c.Name, c.FilePath, c.StartLine))
			}
			for _, c := range r.Expansion.Callees {
				lines = append(lines, fmt.Sprintf("  → calls %s (%s:%d)", c.Name, c.FilePath, c.StartLine))
			}
		}
	}

	title := fmt.Sprintf("%d results for %q (%s):", len(resp.Results), query, resp.Method)
	return Section(title, lines)
}

// GotoText renders a single definition location.
func GotoText(symbolName string, sym *store.Symbol) string {
	if sym == nil {
		return fmt.Sprintf("Symbol %q not found.", symbolName)
	}
	detail := string(sym.Kind) + " " + sym.Name
	if sym.Signature != "" {
		detail = sym.Signature
	}
	return Line(sym.FilePath, sym.StartLine, detail)
}

// RefsText renders per-file grouped references.
func RefsText(name string, groups []*store.FileReferences) string {
	if len(groups) == 0 {
		return fmt.Sprintf("No references to %q.", name)
	}

	var b strings.Builder
	total := 0
	for _, g := range groups {
		total += len(g.References)
	}
	fmt.Fprintf(&b, "%d references to %q in %d files:\n", total, name, len(groups))

	for _, g := range groups {
		fmt.Fprintf(&b, "  %s:\n", g.FilePath)
		for _, ref := range g.References {
			access := ""
			if ref.Access != store.AccessUnknown {
				access = fmt.Sprintf(" [%s]", ref.Access)
			}
			if ref.Context != "" {
				fmt.Fprintf(&b, "    %d:%d%s %s\n", ref.Line, ref.Column, access, strings.TrimSpace(ref.Context))
			} else {
				fmt.Fprintf(&b, "    %d:%d (%s)%s\n", ref.Line, ref.Column, ref.Kind, access)
			}
		}
	}
	return b.String()
}

// TraceText renders the trace tree with box-drawing connectors.
func TraceText(path *trace.Path) string {
	if path.Error != "" {
		return "Trace failed: " + path.Error
	}
	if path.Root == nil {
		return "Empty trace."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Trace %s (%s, depth ≤ %d): %d nodes",
		path.QuerySymbol, path.Direction, path.MaxDepth, path.TotalNodes)
	if path.Truncated {
		b.WriteString(" [truncated]")
	}
	if path.CycleEncountered {
		b.WriteString(" [cycles]")
	}
	b.WriteString("\n")

	renderTraceNode(&b, path.Root, "", true)
	return b.String()
}

func renderTraceNode(b *strings.Builder, node *trace.Node, prefix string, isLast bool) {
	connector := "├── "
	childPrefix := prefix + "│   "
	if isLast {
		connector = "└── "
		childPrefix = prefix + "    "
	}
	if node.Depth == 0 {
		connector = ""
		childPrefix = ""
	}

	label := fmt.Sprintf("%s [%s] %s:%d", node.Symbol.Name, node.Language, node.Symbol.FilePath, node.Symbol.StartLine)
	switch node.MatchType {
	case trace.MatchVariant:
		label += " (variant)"
	case trace.MatchSemantic:
		label += fmt.Sprintf(" (semantic %.2f)", node.Confidence)
	}
	if node.CycleDetected {
		label += " ↺"
	}

	b.WriteString(prefix + connector + label + "\n")
	for i, child := range node.Children {
		renderTraceNode(b, child, childPrefix, i == len(node.Children)-1)
	}
}

// ArchitectureMermaid renders directory edges as a mermaid flowchart.
func ArchitectureMermaid(edges []*store.DirectoryEdge) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	nodeID := func(dir string) string {
		id := strings.NewReplacer("/", "_", ".", "root", "-", "_").Replace(dir)
		if id == "" {
			id = "root"
		}
		return id
	}

	for _, e := range edges {
		fmt.Fprintf(&b, "    %s[%q] -->|%d| %s[%q]\n",
			nodeID(e.FromDir), e.FromDir, e.EdgeCount, nodeID(e.ToDir), e.ToDir)
	}
	return b.String()
}

// ArchitectureASCII renders directory edges as indented arrows.
func ArchitectureASCII(edges []*store.DirectoryEdge) string {
	if len(edges) == 0 {
		return "No cross-directory dependencies."
	}

	grouped := make(map[string][]*store.DirectoryEdge)
	var order []string
	for _, e := range edges {
		if _, ok := grouped[e.FromDir]; !ok {
			order = append(order, e.FromDir)
		}
		grouped[e.FromDir] = append(grouped[e.FromDir], e)
	}
	sort.Strings(order)

	var b strings.Builder
	for _, from := range order {
		fmt.Fprintf(&b, "%s\n", from)
		for _, e := range grouped[from] {
			kinds := make([]string, 0, len(e.Kinds))
			for k, n := range e.Kinds {
				kinds = append(kinds, fmt.Sprintf("%s:%d", k, n))
			}
			sort.Strings(kinds)
			fmt.Fprintf(&b, "  → %s (%d edges; %s)\n", e.ToDir, e.EdgeCount, strings.Join(kinds, ", "))
		}
	}
	return b.String()
}

// ExploreText renders the mode-specific explore result.
func ExploreText(result *explore.Result) string {
	switch result.Mode {
	case explore.ModeDeadCode:
		if len(result.DeadCode) == 0 {
			return "No dead code found."
		}
		lines := make([]string, 0, len(result.DeadCode))
		for _, d := range result.DeadCode {
			lines = append(lines, Line(d.Symbol.FilePath, d.Symbol.StartLine,
				string(d.Symbol.Kind)+" "+d.Symbol.Name))
		}
		return Section(fmt.Sprintf("%d unreferenced symbols:", len(result.DeadCode)), lines)

	case explore.ModeHotSpots:
		if len(result.HotSpots) == 0 {
			return "No hot spots found."
		}
		lines := make([]string, 0, len(result.HotSpots))
		for _, h := range result.HotSpots {
			lines = append(lines, Line(h.Symbol.FilePath, h.Symbol.StartLine,
				fmt.Sprintf("%s (%d inbound calls, %d refs in %d files)",
					h.Symbol.Name, h.InboundCalls, h.TotalRefs, h.RefFileCount)))
		}
		return Section("Hot spots:", lines)

	case explore.ModeTypes:
		if len(result.Types) == 0 {
			return "No types found."
		}
		lines := make([]string, 0, len(result.Types))
		for _, s := range result.Types {
			lines = append(lines, Line(s.FilePath, s.StartLine, string(s.Kind)+" "+s.Name))
		}
		return Section(fmt.Sprintf("%d types:", len(result.Types)), lines)

	case explore.ModeSimilar:
		if len(result.Similar) == 0 {
			return "No similar symbols found."
		}
		lines := make([]string, 0, len(result.Similar))
		for _, s := range result.Similar {
			lines = append(lines, Line(s.Symbol.FilePath, s.Symbol.StartLine,
				fmt.Sprintf("%s (%.2f)", s.Symbol.Name, s.Similarity)))
		}
		return Section("Similar symbols:", lines)

	case explore.ModeDependencies:
		return ArchitectureASCII(result.Dependencies)

	default:
		return "Unknown explore mode."
	}
}
