package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ziongh/miller/internal/store"
)

// RegexExtractor is the built-in line-oriented extractor. It recognizes
// declarations in a handful of languages well enough to drive lookup,
// reference, and trace queries. Tree-sitter-backed extractors can replace
// it per language through the same interface.
type RegexExtractor struct{}

// NewRegexExtractor creates the built-in extractor.
func NewRegexExtractor() *RegexExtractor { return &RegexExtractor{} }

// Languages lists the handled languages.
func (e *RegexExtractor) Languages() []string {
	return []string{"go", "python", "typescript", "javascript", "csharp", "java"}
}

// Declaration patterns per language. Each yields (kind, name, optional
// parent/base) from a single source line.
var (
	pyClassRe = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?:\(([^)]*)\))?\s*:`)
	pyDefRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

	goFuncRe   = regexp.MustCompile(`^func\s+(?:\(([^)]+)\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	goTypeRe   = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+(struct|interface)\b`)
	goAliasRe  = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+`)
	goConstRe  = regexp.MustCompile(`^(?:const|var)\s+([A-Za-z_][A-Za-z0-9_]*)\b`)

	tsClassRe  = regexp.MustCompile(`^(?:export\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)(?:\s+extends\s+([A-Za-z_$][A-Za-z0-9_$.]*))?(?:\s+implements\s+([A-Za-z_$][A-Za-z0-9_$., ]*))?`)
	tsIfaceRe  = regexp.MustCompile(`^(?:export\s+)?interface\s+([A-Za-z_$][A-Za-z0-9_$]*)(?:\s+extends\s+([A-Za-z_$][A-Za-z0-9_$.]*))?`)
	tsFuncRe   = regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	tsArrowRe  = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s*)?\(`)
	tsMethodRe = regexp.MustCompile(`^(\s+)(?:public\s+|private\s+|protected\s+|static\s+|async\s+)*([A-Za-z_$][A-Za-z0-9_$]*)\s*\([^;]*\)\s*(?::\s*[^{;]+)?\{?\s*$`)

	csClassRe  = regexp.MustCompile(`^(?:\s*)(?:(public|private|protected|internal)\s+)?(?:(?:abstract|sealed|static|partial)\s+)*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*(?:<[^>]*>)?\s*(?::\s*([A-Za-z_][A-Za-z0-9_<>., ]*))?`)
	csIfaceRe  = regexp.MustCompile(`^(?:\s*)(?:(public|private|protected|internal)\s+)?interface\s+([A-Za-z_][A-Za-z0-9_]*)`)
	csFieldRe  = regexp.MustCompile(`^(\s+)(?:(public|private|protected|internal)\s+)(?:(?:readonly|static|const)\s+)*([A-Za-z_][A-Za-z0-9_<>.,\[\] ]*?)\s+(_?[A-Za-z][A-Za-z0-9_]*)\s*(?:=[^;]*)?;`)
	csMethodRe = regexp.MustCompile(`^(\s+)(?:(public|private|protected|internal)\s+)(?:(?:static|async|virtual|override|sealed)\s+)*[A-Za-z_][A-Za-z0-9_<>,.\[\] ]*?\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

	callRe = regexp.MustCompile(`([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
)

// languageKeywords are never treated as call identifiers.
var languageKeywords = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "while": {}, "switch": {}, "case": {},
	"return": {}, "func": {}, "function": {}, "def": {}, "class": {},
	"interface": {}, "struct": {}, "type": {}, "var": {}, "let": {},
	"const": {}, "import": {}, "from": {}, "package": {}, "namespace": {},
	"new": {}, "delete": {}, "try": {}, "catch": {}, "finally": {},
	"throw": {}, "raise": {}, "with": {}, "async": {}, "await": {},
	"yield": {}, "lambda": {}, "print": {}, "super": {}, "this": {},
	"self": {}, "defer": {}, "go": {}, "select": {}, "range": {}, "make": {},
	"append": {}, "len": {}, "cap": {}, "using": {}, "foreach": {}, "in": {},
	"not": {}, "and": {}, "or": {}, "is": {}, "assert": {}, "pass": {},
	"elif": {}, "except": {},
}

// IsLanguageKeyword reports whether name is a reserved word in one of the
// handled languages. The ingestion buffer uses this to drop noise
// identifiers.
func IsLanguageKeyword(name string) bool {
	_, ok := languageKeywords[strings.ToLower(name)]
	return ok
}

// Extract parses content line by line.
func (e *RegexExtractor) Extract(content []byte, language, path string) (*Extraction, error) {
	out := &Extraction{}
	lines := strings.Split(string(content), "\n")

	// byteOffsets[i] is the byte offset of the start of line i.
	byteOffsets := make([]int, len(lines)+1)
	for i, line := range lines {
		byteOffsets[i+1] = byteOffsets[i] + len(line) + 1
	}

	type scopeEntry struct {
		symbol *store.Symbol
		indent int // python scoping; -1 for brace languages
	}
	var scopes []scopeEntry

	currentScope := func() *store.Symbol {
		if len(scopes) == 0 {
			return nil
		}
		return scopes[len(scopes)-1].symbol
	}

	addSymbol := func(s *store.Symbol) {
		out.Symbols = append(out.Symbols, s)
	}

	docFor := func(lineIdx int) string {
		// Contiguous comment lines immediately above the declaration.
		var doc []string
		for j := lineIdx - 1; j >= 0; j-- {
			t := strings.TrimSpace(lines[j])
			if strings.HasPrefix(t, "//") {
				doc = append([]string{strings.TrimSpace(strings.TrimPrefix(t, "//"))}, doc...)
			} else if strings.HasPrefix(t, "#") {
				doc = append([]string{strings.TrimSpace(strings.TrimPrefix(t, "#"))}, doc...)
			} else {
				break
			}
		}
		return strings.Join(doc, " ")
	}

	for i, rawLine := range lines {
		line := strings.TrimRight(rawLine, "\r")
		trimmed := strings.TrimSpace(line)
		lineNo := i + 1
		startByte := byteOffsets[i]
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if trimmed == "" {
			continue
		}

		// Pop python scopes when dedenting back to or above their level.
		if language == "python" {
			for len(scopes) > 0 && scopes[len(scopes)-1].indent >= 0 && indent <= scopes[len(scopes)-1].indent && !strings.HasPrefix(trimmed, "#") {
				scopes = scopes[:len(scopes)-1]
			}
		} else if indent == 0 && trimmed == "}" {
			// Brace languages close their container scope at column zero.
			scopes = scopes[:0]
			continue
		}

		var sym *store.Symbol
		var baseNames []string

		switch language {
		case "python":
			if m := pyClassRe.FindStringSubmatch(trimmed); m != nil {
				sym = e.newSymbol(path, m[1], store.KindClass, language, lineNo, startByte, trimmed)
				if m[2] != "" {
					for _, b := range strings.Split(m[2], ",") {
						b = strings.TrimSpace(b)
						if b != "" && b != "object" {
							baseNames = append(baseNames, b)
						}
					}
				}
			} else if m := pyDefRe.FindStringSubmatch(line); m != nil {
				kind := store.KindFunction
				if parent := currentScope(); parent != nil && parent.Kind == store.KindClass {
					kind = store.KindMethod
				}
				sym = e.newSymbol(path, m[2], kind, language, lineNo, startByte, trimmed)
			}
			if sym != nil {
				if strings.HasPrefix(sym.Name, "_") {
					sym.Visibility = "private"
				} else {
					sym.Visibility = "public"
				}
			}

		case "go":
			if m := goFuncRe.FindStringSubmatch(trimmed); m != nil {
				kind := store.KindFunction
				if m[1] != "" {
					kind = store.KindMethod
				}
				sym = e.newSymbol(path, m[2], kind, language, lineNo, startByte, trimmed)
			} else if m := goTypeRe.FindStringSubmatch(trimmed); m != nil {
				kind := store.KindStruct
				if m[2] == "interface" {
					kind = store.KindInterface
				}
				sym = e.newSymbol(path, m[1], kind, language, lineNo, startByte, trimmed)
			} else if m := goAliasRe.FindStringSubmatch(trimmed); m != nil {
				sym = e.newSymbol(path, m[1], store.KindType, language, lineNo, startByte, trimmed)
			} else if indent == 0 {
				if m := goConstRe.FindStringSubmatch(trimmed); m != nil {
					kind := store.KindVariable
					if strings.HasPrefix(trimmed, "const") {
						kind = store.KindConstant
					}
					sym = e.newSymbol(path, m[1], kind, language, lineNo, startByte, trimmed)
				}
			}
			if sym != nil {
				if unicode.IsUpper(rune(sym.Name[0])) {
					sym.Visibility = "public"
				} else {
					sym.Visibility = "private"
				}
			}

		case "typescript", "javascript":
			if m := tsClassRe.FindStringSubmatch(trimmed); m != nil && strings.Contains(trimmed, "class ") {
				sym = e.newSymbol(path, m[1], store.KindClass, language, lineNo, startByte, trimmed)
				if m[2] != "" {
					baseNames = append(baseNames, m[2])
				}
				if m[3] != "" {
					for _, b := range strings.Split(m[3], ",") {
						if b = strings.TrimSpace(b); b != "" {
							baseNames = append(baseNames, b)
						}
					}
				}
			} else if m := tsIfaceRe.FindStringSubmatch(trimmed); m != nil {
				sym = e.newSymbol(path, m[1], store.KindInterface, language, lineNo, startByte, trimmed)
				if m[2] != "" {
					baseNames = append(baseNames, m[2])
				}
			} else if m := tsFuncRe.FindStringSubmatch(trimmed); m != nil {
				sym = e.newSymbol(path, m[1], store.KindFunction, language, lineNo, startByte, trimmed)
			} else if m := tsArrowRe.FindStringSubmatch(trimmed); m != nil {
				sym = e.newSymbol(path, m[1], store.KindFunction, language, lineNo, startByte, trimmed)
			} else if parent := currentScope(); parent != nil && parent.Kind == store.KindClass {
				if m := tsMethodRe.FindStringSubmatch(line); m != nil && !IsLanguageKeyword(m[2]) {
					sym = e.newSymbol(path, m[2], store.KindMethod, language, lineNo, startByte, trimmed)
					if strings.Contains(trimmed, "private") {
						sym.Visibility = "private"
					} else {
						sym.Visibility = "public"
					}
				}
			}

		case "csharp", "java":
			if m := csClassRe.FindStringSubmatch(line); m != nil {
				sym = e.newSymbol(path, m[2], store.KindClass, language, lineNo, startByte, trimmed)
				sym.Visibility = m[1]
				if m[3] != "" {
					for _, b := range strings.Split(m[3], ",") {
						if b = strings.TrimSpace(b); b != "" {
							baseNames = append(baseNames, strings.TrimSpace(strings.Split(b, "<")[0]))
						}
					}
				}
			} else if m := csIfaceRe.FindStringSubmatch(line); m != nil {
				sym = e.newSymbol(path, m[2], store.KindInterface, language, lineNo, startByte, trimmed)
				sym.Visibility = m[1]
			} else if parent := currentScope(); parent != nil && parent.Kind == store.KindClass {
				if m := csFieldRe.FindStringSubmatch(line); m != nil {
					sym = e.newSymbol(path, m[4], store.KindField, language, lineNo, startByte, trimmed)
					sym.Visibility = m[2]
				} else if m := csMethodRe.FindStringSubmatch(line); m != nil && !IsLanguageKeyword(m[3]) {
					sym = e.newSymbol(path, m[3], store.KindMethod, language, lineNo, startByte, trimmed)
					sym.Visibility = m[2]
				}
			}
		}

		if sym != nil {
			// A fresh top-level declaration in a brace language means any
			// previous container scope has ended.
			if language != "python" && indent == 0 {
				scopes = scopes[:0]
			}
			sym.DocComment = docFor(i)
			if parent := currentScope(); parent != nil {
				sym.ParentID = parent.ID
			}
			addSymbol(sym)

			// Container symbols open a scope.
			if sym.Kind == store.KindClass || sym.Kind == store.KindInterface ||
				(language == "python" && (sym.Kind == store.KindFunction || sym.Kind == store.KindMethod)) {
				scopeIndent := -1
				if language == "python" {
					scopeIndent = indent
				}
				scopes = append(scopes, scopeEntry{symbol: sym, indent: scopeIndent})
			}

			// Inheritance edges. Targets resolve later; the raw base name
			// travels as a type-ref identifier.
			for _, base := range baseNames {
				out.Identifiers = append(out.Identifiers, &store.Identifier{
					ID:                 store.SymbolID(path, base, startByte, "typeref"),
					Name:               base,
					Kind:               store.IdentTypeRef,
					Language:           language,
					FilePath:           path,
					StartLine:          lineNo,
					EndLine:            lineNo,
					StartByte:          startByte,
					EndByte:            startByte + len(line),
					ContainingSymbolID: sym.ID,
					Confidence:         1.0,
				})
			}
			continue
		}

		// Call sites on non-declaration lines.
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, m := range callRe.FindAllStringSubmatchIndex(line, -1) {
			name := line[m[2]:m[3]]
			if IsLanguageKeyword(name) {
				continue
			}
			containing := ""
			if cs := currentScope(); cs != nil {
				containing = cs.ID
			}
			col := m[2] + 1
			out.Identifiers = append(out.Identifiers, &store.Identifier{
				ID:                 store.SymbolID(path, name, startByte+m[2], "call"),
				Name:               name,
				Kind:               store.IdentCall,
				Language:           language,
				FilePath:           path,
				StartLine:          lineNo,
				StartColumn:        col,
				EndLine:            lineNo,
				EndColumn:          col + len(name),
				StartByte:          startByte + m[2],
				EndByte:            startByte + m[3],
				ContainingSymbolID: containing,
				Confidence:         0.8,
			})
		}
	}

	e.setEndBounds(out.Symbols, len(lines), byteOffsets[len(lines)])
	e.resolveLocal(out, path)
	return out, nil
}

// newSymbol builds a symbol with its deterministic ID.
func (e *RegexExtractor) newSymbol(path, name string, kind store.SymbolKind, language string, line, startByte int, signature string) *store.Symbol {
	return &store.Symbol{
		ID:        store.SymbolID(path, name, startByte, kind),
		Name:      name,
		Kind:      kind,
		Language:  language,
		FilePath:  path,
		StartLine: line,
		EndLine:   line,
		StartByte: startByte,
		Signature: signature,
	}
}

// setEndBounds approximates symbol end positions: each symbol ends where
// the next sibling at the same or shallower nesting starts, or at EOF.
func (e *RegexExtractor) setEndBounds(symbols []*store.Symbol, lastLine, lastByte int) {
	for i, s := range symbols {
		s.EndLine = lastLine
		s.EndByte = lastByte
		for _, next := range symbols[i+1:] {
			if next.ParentID == s.ParentID || next.ParentID == "" {
				s.EndLine = next.StartLine - 1
				s.EndByte = next.StartByte
				break
			}
		}
		if s.EndLine < s.StartLine {
			s.EndLine = s.StartLine
		}
	}
}

// resolveLocal links call identifiers and inheritance refs to symbols
// declared in the same file, emitting Call/Extends/Implements
// relationships. Cross-file resolution happens after flush, against the
// metadata store.
func (e *RegexExtractor) resolveLocal(out *Extraction, path string) {
	byName := make(map[string]*store.Symbol, len(out.Symbols))
	for _, s := range out.Symbols {
		if _, exists := byName[s.Name]; !exists {
			byName[s.Name] = s
		}
	}

	for _, id := range out.Identifiers {
		target, ok := byName[id.Name]
		if !ok || target.ID == id.ContainingSymbolID {
			continue
		}
		id.TargetSymbolID = target.ID

		var kind store.RelationshipKind
		switch id.Kind {
		case store.IdentCall:
			kind = store.RelCall
		case store.IdentTypeRef:
			if target.Kind == store.KindInterface {
				kind = store.RelImplements
			} else {
				kind = store.RelExtends
			}
		default:
			continue
		}

		if id.ContainingSymbolID == "" {
			continue
		}
		out.Relationships = append(out.Relationships, &store.Relationship{
			ID:           store.RelationshipID(id.ContainingSymbolID, target.ID, kind, path, id.StartLine),
			FromSymbolID: id.ContainingSymbolID,
			ToSymbolID:   target.ID,
			Kind:         kind,
			FilePath:     path,
			LineNumber:   id.StartLine,
			Confidence:   id.Confidence,
		})
	}
}
