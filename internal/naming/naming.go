// Package naming generates cross-convention variants of symbol names.
//
// The trace engine uses these to discover cross-language links: a
// TypeScript UserService and a Python user_service share no stored edge,
// but their variant sets intersect.
package naming

import (
	"strings"
	"unicode"
)

// Known affixes carried by typed-language naming conventions.
var (
	typePrefixes = []string{"I", "T", "E", "Base"}
	typeSuffixes = []string{"Dto", "Model", "Entity", "Service", "Repository", "Repo", "Controller", "Manager"}
)

// irregularPlurals maps singular to plural for words the rule set can't
// derive.
var irregularPlurals = map[string]string{
	"child":  "children",
	"person": "people",
	"man":    "men",
	"woman":  "women",
	"tooth":  "teeth",
	"foot":   "feet",
	"mouse":  "mice",
}

// irregularSingulars is the inverse of irregularPlurals.
var irregularSingulars = func() map[string]string {
	m := make(map[string]string, len(irregularPlurals))
	for s, p := range irregularPlurals {
		m[p] = s
	}
	return m
}()

// SplitWords partitions a symbol name into word tokens. Boundaries:
// PascalCase transitions, camelCase humps, uppercase runs (the run ends
// before a trailing lowercase, so HTTPServer is HTTP + Server),
// underscores, hyphens, dots, and digit runs.
func SplitWords(name string) []string {
	if name == "" {
		return []string{}
	}

	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.':
			flush()
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				flush()
			}
			current.WriteRune(r)
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				// New word when the previous rune was lowercase or a digit,
				// or when an uppercase run ends before a lowercase rune.
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			if i > 0 && unicode.IsDigit(runes[i-1]) {
				flush()
			}
			current.WriteRune(r)
		}
	}
	flush()

	if words == nil {
		return []string{}
	}
	return words
}

// titleWord capitalizes the first rune and lowercases the rest.
func titleWord(w string) string {
	if w == "" {
		return w
	}
	runes := []rune(strings.ToLower(w))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// SnakeCase joins words with underscores, lowercased.
func SnakeCase(words []string) string {
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}
	return strings.Join(lower, "_")
}

// CamelCase lowercases the first word and title-cases the rest.
func CamelCase(words []string) string {
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, w := range words[1:] {
		b.WriteString(titleWord(w))
	}
	return b.String()
}

// PascalCase title-cases every word.
func PascalCase(words []string) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(titleWord(w))
	}
	return b.String()
}

// KebabCase joins words with hyphens, lowercased.
func KebabCase(words []string) string {
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(w)
	}
	return strings.Join(lower, "-")
}

// ScreamingSnake joins words with underscores, uppercased.
func ScreamingSnake(words []string) string {
	upper := make([]string, len(words))
	for i, w := range words {
		upper[i] = strings.ToUpper(w)
	}
	return strings.Join(upper, "_")
}

// ScreamingKebab joins words with hyphens, uppercased.
func ScreamingKebab(words []string) string {
	upper := make([]string, len(words))
	for i, w := range words {
		upper[i] = strings.ToUpper(w)
	}
	return strings.Join(upper, "-")
}

// StripPrefixes returns the input plus each progressively prefix-stripped
// form. A single-word input that is itself a prefix is not stripped.
func StripPrefixes(name string) []string {
	out := []string{name}
	words := SplitWords(name)

	for len(words) > 1 {
		stripped := false
		for _, p := range typePrefixes {
			if strings.EqualFold(words[0], p) {
				words = words[1:]
				out = append(out, PascalCase(words))
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return out
}

// StripSuffixes returns the input plus each progressively suffix-stripped
// form. A single-word input that is itself a suffix is not stripped.
func StripSuffixes(name string) []string {
	out := []string{name}
	words := SplitWords(name)

	for len(words) > 1 {
		stripped := false
		for _, s := range typeSuffixes {
			if strings.EqualFold(words[len(words)-1], s) {
				words = words[:len(words)-1]
				out = append(out, PascalCase(words))
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return out
}

// Pluralize applies English pluralization rules to a lowercase word.
// Already-plural words are returned unchanged.
func Pluralize(word string) string {
	if word == "" {
		return word
	}
	if p, ok := irregularPlurals[word]; ok {
		return p
	}
	if isPlural(word) {
		return word
	}

	switch {
	case strings.HasSuffix(word, "s"),
		strings.HasSuffix(word, "sh"),
		strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"):
		return word + "es"
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}

// Singularize reverses Pluralize for a lowercase word.
func Singularize(word string) string {
	if word == "" {
		return word
	}
	if s, ok := irregularSingulars[word]; ok {
		return s
	}

	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "ses"), strings.HasSuffix(word, "shes"),
		strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us"):
		return word[:len(word)-1]
	default:
		return word
	}
}

// isPlural detects words that already look plural.
func isPlural(word string) bool {
	if _, ok := irregularSingulars[word]; ok {
		return true
	}
	return strings.HasSuffix(word, "s") &&
		!strings.HasSuffix(word, "ss") &&
		!strings.HasSuffix(word, "us")
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
