package naming

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// variantCacheSize bounds the memoization cache. Variant generation is
// pure, so stale entries are impossible.
const variantCacheSize = 4096

// Generator produces variant sets with LRU memoization. Safe for
// concurrent use (golang-lru is internally synchronized).
type Generator struct {
	cache *lru.Cache[string, []string]
}

// NewGenerator creates a memoizing variant generator.
func NewGenerator() *Generator {
	cache, _ := lru.New[string, []string](variantCacheSize)
	return &Generator{cache: cache}
}

// Variants returns the memoized variant set for name.
func (g *Generator) Variants(name string) []string {
	if v, ok := g.cache.Get(name); ok {
		return v
	}
	v := Variants(name)
	g.cache.Add(name, v)
	return v
}

// Variants generates the full cross-convention variant set for a symbol
// name: case re-emissions, affix-stripped forms, and plural/singular
// forms of each. The original name is always included. Output is sorted
// and deduplicated, and stays small (under ~30 strings) for any input.
func Variants(name string) []string {
	set := make(map[string]struct{})
	add := func(s string) {
		if s != "" {
			set[s] = struct{}{}
		}
	}

	add(name)

	// Bases: the original plus every affix-stripped form.
	bases := make(map[string]struct{})
	bases[name] = struct{}{}
	for _, b := range StripPrefixes(name) {
		bases[b] = struct{}{}
	}
	for _, b := range StripSuffixes(name) {
		bases[b] = struct{}{}
	}
	// Strip suffixes of prefix-stripped forms too (IBaseUserDto → User).
	for _, b := range StripPrefixes(name) {
		for _, b2 := range StripSuffixes(b) {
			bases[b2] = struct{}{}
		}
	}

	for base := range bases {
		words := SplitWords(base)
		if len(words) == 0 {
			continue
		}

		add(SnakeCase(words))
		add(CamelCase(words))
		add(PascalCase(words))
		add(KebabCase(words))
		add(ScreamingSnake(words))
		add(ScreamingKebab(words))

		// Plural and singular of the last word, re-emitted in the two
		// conventions cross-language code actually uses for lookups.
		last := len(words) - 1
		lower := make([]string, len(words))
		for i, w := range words {
			lower[i] = w
		}

		plural := append(append([]string{}, lower[:last]...), Pluralize(SnakeCase([]string{words[last]})))
		add(SnakeCase(plural))
		add(PascalCase(plural))

		singular := append(append([]string{}, lower[:last]...), Singularize(SnakeCase([]string{words[last]})))
		add(SnakeCase(singular))
		add(PascalCase(singular))
	}

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
