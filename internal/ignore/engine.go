package ignore

import (
	"os"
	"path/filepath"
	"strings"
)

// defaultPatterns covers VCS internals, build and cache output, virtual
// environments, lockfiles, and minified bundles. These never get indexed.
var defaultPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	".miller/",
	"node_modules/",
	"dist/",
	"build/",
	"target/",
	"out/",
	"bin/",
	"obj/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".mypy_cache/",
	".pytest_cache/",
	".ruff_cache/",
	".cache/",
	".idea/",
	".vscode/",
	"coverage/",
	"*.min.js",
	"*.min.css",
	"*.map",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"poetry.lock",
	"Cargo.lock",
	"go.sum",
	"*.pyc",
	"*.so",
	"*.dylib",
	"*.dll",
	"*.exe",
	"*.o",
	"*.a",
	"*.class",
	"*.jar",
	"*.log",
	".DS_Store",
}

// DefaultMaxFileSize is the size limit for extensions without a specific
// entry.
const DefaultMaxFileSize int64 = 1 * 1024 * 1024 // 1 MiB

// sizeLimits carries per-extension allowances. Documentation-like formats
// get a larger allowance than source files.
var sizeLimits = map[string]int64{
	".md":   5 * 1024 * 1024,
	".json": 5 * 1024 * 1024,
	".txt":  2 * 1024 * 1024,
	".yaml": 2 * 1024 * 1024,
	".yml":  2 * 1024 * 1024,
}

// Engine combines the default set, root .gitignore, and user patterns.
type Engine struct {
	matcher *Matcher
}

// NewEngine builds an engine for a workspace root: defaults, then
// .gitignore at the root if present, then extra user patterns.
func NewEngine(root string, extraPatterns []string) *Engine {
	m := NewMatcher()
	for _, p := range defaultPatterns {
		m.AddPattern(p)
	}

	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		_ = m.AddFromFile(gitignorePath)
	}

	for _, p := range extraPatterns {
		m.AddPattern(p)
	}

	return &Engine{matcher: m}
}

// MaxSizeForPath returns the size allowance for a path's extension.
func MaxSizeForPath(path string) int64 {
	ext := strings.ToLower(filepath.Ext(path))
	if limit, ok := sizeLimits[ext]; ok {
		return limit
	}
	return DefaultMaxFileSize
}

// ShouldIgnore reports whether a workspace-relative path is excluded.
// With checkSize, files whose size exceeds the per-extension limit are
// also rejected (size is read from disk relative to root).
func (e *Engine) ShouldIgnore(relPath, root string, checkSize bool) bool {
	relPath = filepath.ToSlash(relPath)

	isDir := false
	var size int64 = -1
	if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(relPath))); err == nil {
		isDir = info.IsDir()
		size = info.Size()
	}

	if e.matcher.Match(relPath, isDir) {
		return true
	}

	if checkSize && !isDir && size >= 0 && size > MaxSizeForPath(relPath) {
		return true
	}

	return false
}

// FilterFiles is the bulk variant of ShouldIgnore; returns the kept paths.
func (e *Engine) FilterFiles(paths []string, root string, checkSize bool) []string {
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !e.ShouldIgnore(p, root, checkSize) {
			kept = append(kept, p)
		}
	}
	return kept
}

// MatchPattern exposes raw pattern matching for the watcher's filters.
func (e *Engine) MatchPattern(relPath string, isDir bool) bool {
	return e.matcher.Match(relPath, isDir)
}
