package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// NormalizeReference folds an external reference number into its lookup key:
// full-width characters are narrowed, letters upper-cased, whitespace and
// hyphens removed and leading zero padding stripped. "0012-AB" and "12-ab"
// both normalise to "12AB". An all-zero reference keeps a single "0".
func NormalizeReference(reference string) string {
	folded := width.Fold.String(reference)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || r == '-' {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	key := b.String()
	if key == "" {
		return ""
	}
	trimmed := strings.TrimLeft(key, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// SplitReferences splits a compound OE field ("12-AB / 12AB-ALT") into its parts.
func SplitReferences(field string) []string {
	parts := strings.Split(field, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
