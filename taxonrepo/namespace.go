package taxonrepo

import (
	"reflect"
	"strings"
	"unicode"
)

// entityNamespace derives the cache namespace for an entity type from
// its Go type name, e.g. *taxon.Genus -> "genus". Namespaced keys let a
// full refresh evict one collection's lookups without touching the
// caches that other repositories share the service with.
func entityNamespace[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "record"
	}
	return toSnake(t.Name())
}

// toSnake converts an exported type name to snake_case using
// ASCII-aware rules. Punctuation that can show up in reflected names
// (pointers, generic suffixes) is stripped; leaving it in would break
// prefix-based eviction.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), "_")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return out
}
