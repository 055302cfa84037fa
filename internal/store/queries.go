package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ziongh/miller/internal/errors"
)

const symbolColumns = `id, name, kind, language, file_path, start_line, end_line,
	start_byte, end_byte, signature, doc_comment, visibility, parent_id`

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	s := &Symbol{}
	var sig, doc, vis, parent sql.NullString
	err := scanner.Scan(&s.ID, &s.Name, &s.Kind, &s.Language, &s.FilePath,
		&s.StartLine, &s.EndLine, &s.StartByte, &s.EndByte, &sig, &doc, &vis, &parent)
	if err != nil {
		return nil, err
	}
	s.Signature = scanNullable(sig)
	s.DocComment = scanNullable(doc)
	s.Visibility = scanNullable(vis)
	s.ParentID = scanNullable(parent)
	return s, nil
}

func (s *SQLiteMetadataStore) querySymbols(ctx context.Context, query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLErr(err, "query symbols")
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, mapSQLErr(err, "scan symbol")
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetSymbol returns the symbol with the given ID.
func (s *SQLiteMetadataStore) GetSymbol(ctx context.Context, id string) (*Symbol, error) {
	sym, err := scanSymbol(s.db.QueryRowContext(ctx,
		`SELECT `+symbolColumns+` FROM symbols WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("symbol %s", id)
	}
	if err != nil {
		return nil, mapSQLErr(err, "get symbol")
	}
	return sym, nil
}

// GetSymbolByName returns the best single match for a name. Tie-break:
// symbols in the context file first, then definitions over imports, then
// shorter file paths.
func (s *SQLiteMetadataStore) GetSymbolByName(ctx context.Context, name, contextFile string) (*Symbol, error) {
	candidates, err := s.GetSymbolsByName(ctx, name, 50)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.NotFound("symbol %q", name)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if contextFile != "" {
			aCtx, bCtx := a.FilePath == contextFile, b.FilePath == contextFile
			if aCtx != bCtx {
				return aCtx
			}
		}
		aImp, bImp := a.Kind == KindImport, b.Kind == KindImport
		if aImp != bImp {
			return bImp
		}
		if len(a.FilePath) != len(b.FilePath) {
			return len(a.FilePath) < len(b.FilePath)
		}
		return a.FilePath < b.FilePath
	})

	return candidates[0], nil
}

// GetSymbolsByName returns symbols with an exact name match.
func (s *SQLiteMetadataStore) GetSymbolsByName(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols WHERE name = ? ORDER BY file_path, start_line LIMIT ?`,
		name, limit)
}

// GetSymbolsByNames returns symbols whose name is in the given set. Used
// by the variant probe in the trace engine.
func (s *SQLiteMetadataStore) GetSymbolsByNames(ctx context.Context, names []string, limit int) ([]*Symbol, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(names)+1)
	for _, n := range names {
		args = append(args, n)
	}
	args = append(args, limit)
	return s.querySymbols(ctx,
		fmt.Sprintf(`SELECT %s FROM symbols WHERE name IN (%s) ORDER BY file_path, start_line LIMIT ?`,
			symbolColumns, placeholders), args...)
}

// GetSymbolsByFile returns a file's symbols in declaration order.
func (s *SQLiteMetadataStore) GetSymbolsByFile(ctx context.Context, path string) ([]*Symbol, error) {
	return s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols WHERE file_path = ? ORDER BY start_byte`, path)
}

// FindSymbolsByNamePrefix supports import validation and completion-style
// lookups.
func (s *SQLiteMetadataStore) FindSymbolsByNamePrefix(ctx context.Context, prefix string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	// Escape LIKE metacharacters in the prefix.
	escaped := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(prefix)
	return s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols WHERE name LIKE ? ESCAPE '\' ORDER BY name, file_path LIMIT ?`,
		escaped+"%", limit)
}

// GetExportedSymbols lists public symbols, optionally filtered by
// language.
func (s *SQLiteMetadataStore) GetExportedSymbols(ctx context.Context, language string, limit int) ([]*Symbol, error) {
	if limit <= 0 {
		limit = 500
	}
	if language != "" {
		return s.querySymbols(ctx,
			`SELECT `+symbolColumns+` FROM symbols
			 WHERE (visibility = 'public' OR visibility IS NULL) AND language = ?
			 ORDER BY name LIMIT ?`, language, limit)
	}
	return s.querySymbols(ctx,
		`SELECT `+symbolColumns+` FROM symbols
		 WHERE visibility = 'public' OR visibility IS NULL
		 ORDER BY name LIMIT ?`, limit)
}

// writeAccessRe matches an assignment or mutation immediately after the
// referenced name on the same line.
var writeAccessRe = regexp.MustCompile(`^\s*(=[^=]|\+=|-=|\*=|/=|\+\+|--)`)

// FindReferences returns use-sites for a name grouped per file. With
// IncludeContext, the source line is attached and the access direction
// classified by a line-local check around the reference column.
func (s *SQLiteMetadataStore) FindReferences(ctx context.Context, name string, opts RefOptions) ([]*FileReferences, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 200
	}

	query := `SELECT file_path, start_line, start_column, end_column, kind
		FROM identifiers WHERE name = ?`
	args := []any{name}
	if opts.KindFilter != "" {
		query += ` AND kind = ?`
		args = append(args, string(opts.KindFilter))
	}
	query += ` ORDER BY file_path, start_line LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLErr(err, "find references")
	}
	defer rows.Close()

	grouped := make(map[string]*FileReferences)
	var order []string
	fileLines := make(map[string][]string)

	for rows.Next() {
		var path string
		var line, startCol, endCol int
		var kind string
		if err := rows.Scan(&path, &line, &startCol, &endCol, &kind); err != nil {
			return nil, mapSQLErr(err, "scan reference")
		}

		ref := Reference{
			FilePath: path,
			Line:     line,
			Column:   startCol,
			Kind:     IdentifierKind(kind),
			Access:   AccessUnknown,
		}

		if opts.IncludeContext && opts.Root != "" {
			lines, ok := fileLines[path]
			if !ok {
				if content, err := os.ReadFile(filepath.Join(opts.Root, filepath.FromSlash(path))); err == nil {
					lines = strings.Split(string(content), "\n")
				}
				fileLines[path] = lines
			}
			if line-1 >= 0 && line-1 < len(lines) {
				src := lines[line-1]
				ref.Context = strings.TrimRight(src, "\r")
				ref.Access = classifyAccess(src, endCol-1)
			}
		}

		g, ok := grouped[path]
		if !ok {
			g = &FileReferences{FilePath: path}
			grouped[path] = g
			order = append(order, path)
		}
		g.References = append(g.References, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLErr(err, "iterate references")
	}

	out := make([]*FileReferences, 0, len(order))
	for _, path := range order {
		out = append(out, grouped[path])
	}
	return out, nil
}

// classifyAccess inspects the text following the reference for an
// assignment operator.
func classifyAccess(line string, afterCol int) AccessKind {
	if afterCol < 0 || afterCol > len(line) {
		return AccessUnknown
	}
	rest := line[afterCol:]
	if writeAccessRe.MatchString(rest) {
		return AccessWrite
	}
	return AccessRead
}

func relKindFilter(kinds []RelationshipKind) (string, []any) {
	if len(kinds) == 0 {
		return "", nil
	}
	placeholders := strings.Repeat("?,", len(kinds))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = string(k)
	}
	return fmt.Sprintf(" AND kind IN (%s)", placeholders), args
}

func (s *SQLiteMetadataStore) queryRelationships(ctx context.Context, query string, args ...any) ([]*Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLErr(err, "query relationships")
	}
	defer rows.Close()

	var out []*Relationship
	for rows.Next() {
		r := &Relationship{}
		var from, to sql.NullString
		if err := rows.Scan(&r.ID, &from, &to, &r.Kind, &r.FilePath, &r.LineNumber, &r.Confidence); err != nil {
			return nil, mapSQLErr(err, "scan relationship")
		}
		r.FromSymbolID = scanNullable(from)
		r.ToSymbolID = scanNullable(to)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRelationshipsFrom returns outgoing edges for a symbol.
func (s *SQLiteMetadataStore) GetRelationshipsFrom(ctx context.Context, symbolID string, kinds []RelationshipKind) ([]*Relationship, error) {
	filter, args := relKindFilter(kinds)
	return s.queryRelationships(ctx,
		`SELECT id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence
		 FROM relationships WHERE from_symbol_id = ?`+filter+` ORDER BY file_path, line_number`,
		append([]any{symbolID}, args...)...)
}

// GetRelationshipsTo returns incoming edges for a symbol.
func (s *SQLiteMetadataStore) GetRelationshipsTo(ctx context.Context, symbolID string, kinds []RelationshipKind) ([]*Relationship, error) {
	filter, args := relKindFilter(kinds)
	return s.queryRelationships(ctx,
		`SELECT id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence
		 FROM relationships WHERE to_symbol_id = ?`+filter+` ORDER BY file_path, line_number`,
		append([]any{symbolID}, args...)...)
}

// ListRelationships returns all edges, optionally filtered by kind.
func (s *SQLiteMetadataStore) ListRelationships(ctx context.Context, kinds []RelationshipKind) ([]*Relationship, error) {
	filter, args := relKindFilter(kinds)
	query := `SELECT id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence
		 FROM relationships WHERE 1=1` + filter
	return s.queryRelationships(ctx, query, args...)
}

// GetCrossDirectoryDependencies aggregates relationships by grouping
// source and target files at a path depth. Edges inside one directory
// and edges below minEdges are dropped.
func (s *SQLiteMetadataStore) GetCrossDirectoryDependencies(ctx context.Context, depth, minEdges int) ([]*DirectoryEdge, error) {
	if depth <= 0 {
		depth = 2
	}
	if minEdges <= 0 {
		minEdges = 1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sf.file_path, st.file_path, r.kind
		FROM relationships r
		JOIN symbols sf ON sf.id = r.from_symbol_id
		JOIN symbols st ON st.id = r.to_symbol_id
		WHERE r.from_symbol_id IS NOT NULL AND r.to_symbol_id IS NOT NULL`)
	if err != nil {
		return nil, mapSQLErr(err, "cross-directory dependencies")
	}
	defer rows.Close()

	type key struct{ from, to string }
	agg := make(map[key]*DirectoryEdge)

	for rows.Next() {
		var fromPath, toPath, kind string
		if err := rows.Scan(&fromPath, &toPath, &kind); err != nil {
			return nil, mapSQLErr(err, "scan dependency")
		}

		fromDir := truncateDir(fromPath, depth)
		toDir := truncateDir(toPath, depth)
		if fromDir == toDir {
			continue
		}

		k := key{fromDir, toDir}
		e, ok := agg[k]
		if !ok {
			e = &DirectoryEdge{FromDir: fromDir, ToDir: toDir, Kinds: make(map[RelationshipKind]int)}
			agg[k] = e
		}
		e.EdgeCount++
		e.Kinds[RelationshipKind(kind)]++
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLErr(err, "iterate dependencies")
	}

	out := make([]*DirectoryEdge, 0, len(agg))
	for _, e := range agg {
		if e.EdgeCount >= minEdges {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EdgeCount != out[j].EdgeCount {
			return out[i].EdgeCount > out[j].EdgeCount
		}
		if out[i].FromDir != out[j].FromDir {
			return out[i].FromDir < out[j].FromDir
		}
		return out[i].ToDir < out[j].ToDir
	})
	return out, nil
}

// truncateDir keeps the first depth path segments of the file's
// directory.
func truncateDir(path string, depth int) string {
	dir := filepath.ToSlash(filepath.Dir(path))
	if dir == "." {
		return "."
	}
	parts := strings.Split(dir, "/")
	if len(parts) > depth {
		parts = parts[:depth]
	}
	return strings.Join(parts, "/")
}

// ReplaceReachability swaps the closure table in one transaction.
func (s *SQLiteMetadataStore) ReplaceReachability(ctx context.Context, entries []ReachabilityEntry) error {
	return s.withTx(ctx, "replace reachability", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reachability`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO reachability (from_symbol_id, to_symbol_id, min_distance)
			VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.FromSymbolID, e.ToSymbolID, e.MinDistance); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteMetadataStore) queryReachability(ctx context.Context, query string, args ...any) ([]ReachabilityEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLErr(err, "query reachability")
	}
	defer rows.Close()

	var out []ReachabilityEntry
	for rows.Next() {
		var e ReachabilityEntry
		if err := rows.Scan(&e.FromSymbolID, &e.ToSymbolID, &e.MinDistance); err != nil {
			return nil, mapSQLErr(err, "scan reachability")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetReachableFrom returns closure rows starting at a symbol.
func (s *SQLiteMetadataStore) GetReachableFrom(ctx context.Context, symbolID string, maxDistance int) ([]ReachabilityEntry, error) {
	return s.queryReachability(ctx, `
		SELECT from_symbol_id, to_symbol_id, min_distance FROM reachability
		WHERE from_symbol_id = ? AND min_distance <= ? ORDER BY min_distance`,
		symbolID, maxDistance)
}

// GetReachableTo returns closure rows ending at a symbol.
func (s *SQLiteMetadataStore) GetReachableTo(ctx context.Context, symbolID string, maxDistance int) ([]ReachabilityEntry, error) {
	return s.queryReachability(ctx, `
		SELECT from_symbol_id, to_symbol_id, min_distance FROM reachability
		WHERE to_symbol_id = ? AND min_distance <= ? ORDER BY min_distance`,
		symbolID, maxDistance)
}

// CountInboundReachability counts inbound closure rows per symbol.
// Symbols absent from the result have zero inbound edges.
func (s *SQLiteMetadataStore) CountInboundReachability(ctx context.Context, symbolIDs []string) (map[string]int, error) {
	if len(symbolIDs) == 0 {
		return map[string]int{}, nil
	}
	placeholders := strings.Repeat("?,", len(symbolIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(symbolIDs))
	for i, id := range symbolIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT to_symbol_id, COUNT(*) FROM reachability
		WHERE to_symbol_id IN (%s) GROUP BY to_symbol_id`, placeholders), args...)
	if err != nil {
		return nil, mapSQLErr(err, "count inbound reachability")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, mapSQLErr(err, "scan inbound count")
		}
		out[id] = count
	}
	return out, rows.Err()
}

// ListSymbolsByKinds returns symbols of the given kinds.
func (s *SQLiteMetadataStore) ListSymbolsByKinds(ctx context.Context, kinds []SymbolKind) ([]*Symbol, error) {
	if len(kinds) == 0 {
		return s.querySymbols(ctx, `SELECT `+symbolColumns+` FROM symbols ORDER BY file_path, start_line`)
	}
	placeholders := strings.Repeat("?,", len(kinds))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = string(k)
	}
	return s.querySymbols(ctx,
		fmt.Sprintf(`SELECT %s FROM symbols WHERE kind IN (%s) ORDER BY file_path, start_line`,
			symbolColumns, placeholders), args...)
}

// CountIdentifiersByName aggregates identifier occurrences (total and
// distinct files) for hot-spot ranking.
func (s *SQLiteMetadataStore) CountIdentifiersByName(ctx context.Context, names []string) (map[string]*IdentifierUsage, error) {
	if len(names) == 0 {
		return map[string]*IdentifierUsage{}, nil
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT name, COUNT(*), COUNT(DISTINCT file_path)
		FROM identifiers WHERE name IN (%s) GROUP BY name`, placeholders), args...)
	if err != nil {
		return nil, mapSQLErr(err, "count identifiers")
	}
	defer rows.Close()

	out := make(map[string]*IdentifierUsage)
	for rows.Next() {
		u := &IdentifierUsage{}
		if err := rows.Scan(&u.Name, &u.Total, &u.FileCount); err != nil {
			return nil, mapSQLErr(err, "scan identifier usage")
		}
		out[u.Name] = u
	}
	return out, rows.Err()
}

// ResolveCrossFileCalls links call identifiers with no target to symbols
// whose name matches exactly one definition elsewhere, inserting Call
// relationships. Runs after a flush so architecture and reachability
// queries see cross-file edges.
func (s *SQLiteMetadataStore) ResolveCrossFileCalls(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO relationships
			(id, from_symbol_id, to_symbol_id, kind, file_path, line_number, confidence)
		SELECT
			i.containing_symbol_id || '>' || sym.id || '@' || i.start_line,
			i.containing_symbol_id,
			sym.id,
			'call',
			i.file_path,
			i.start_line,
			0.6
		FROM identifiers i
		JOIN symbols sym ON sym.name = i.name
			AND sym.kind IN ('function', 'method', 'class')
			AND sym.file_path != i.file_path
		WHERE i.kind = 'call'
			AND i.target_symbol_id IS NULL
			AND i.containing_symbol_id IS NOT NULL
			AND (SELECT COUNT(*) FROM symbols s2
				 WHERE s2.name = i.name AND s2.kind IN ('function', 'method', 'class')) = 1`)
	if err != nil {
		return 0, mapSQLErr(err, "resolve cross-file calls")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
