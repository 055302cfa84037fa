package extract

import (
	"path/filepath"
	"strings"
)

// LanguageText is the pseudo-language for files without a grammar. They
// still get a single File-kind symbol so pattern search can see them.
const LanguageText = "text"

// languageMap maps file extensions to languages.
var languageMap = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".pyw":  "python",
	".pyi":  "python",
	".cs":   "csharp",
	".java": "java",
	".kt":   "kotlin",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".php":  "php",
	".swift": "swift",
	".sh":   "shell",
	".bash": "shell",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".txt":  LanguageText,
}

// DetectLanguage detects the language from a file path. Unknown
// extensions fall back to the text pseudo-language.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageMap[ext]; ok {
		return lang
	}
	return LanguageText
}
