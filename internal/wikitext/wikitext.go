// Package wikitext extracts structured information from raw wikitext
// page bodies: category links and title/category slugs.
package wikitext

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var categoryPattern = regexp.MustCompile(`\[\[Category:([^\]]+)\]\]`)

// ParseCategories scans body for category links, returning the category
// names sorted ascending and with duplicates removed.
func ParseCategories(body string) []string {
	matches := categoryPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Slug derives the URL-safe form of a title or category name: runs of
// whitespace collapse to a single underscore, case is preserved, and any
// character outside A-Z a-z 0-9 - _ . : is percent-encoded as UTF-8 bytes.
func Slug(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	inSpace := false
	for _, r := range name {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == ':':
			b.WriteRune(r)
		default:
			for _, c := range []byte(string(r)) {
				b.WriteByte('%')
				b.WriteString(strings.ToUpper(hexByte(c)))
			}
		}
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

func hexByte(c byte) string {
	return string([]byte{hexDigits[c>>4], hexDigits[c&0x0f]})
}
