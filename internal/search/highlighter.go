package search

import (
	"strings"
	"unicode"
)

const (
	// DefaultSnippetLength is the snippet window in characters.
	DefaultSnippetLength = 200

	snippetLeadIn = 50
	ellipsis      = "..."
)

// CreateHighlightedSnippet returns a window of content around the first case-insensitive
// occurrence of query. The window starts up to 50 characters before the match and spans
// maxLength characters, with "..." marking cut ends. When query does not occur the first
// maxLength characters are returned. query is matched as given, surrounding spaces
// included; a blank query matches nothing. Lengths count runes; maxLength <= 0 uses 200.
func CreateHighlightedSnippet(content, query string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultSnippetLength
	}
	runes := []rune(content)
	n := len(runes)

	var q []rune
	if strings.TrimSpace(query) != "" {
		q = []rune(query)
	}
	idx := indexFold(runes, q)
	if idx < 0 {
		if n <= maxLength {
			return content
		}
		return string(runes[:maxLength]) + ellipsis
	}

	qLen := len(q)
	start := max(0, idx-snippetLeadIn)
	end := min(n, start+maxLength)
	if idx+qLen > end && qLen <= maxLength {
		end = min(n, idx+qLen)
		start = max(0, end-maxLength)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < n {
		snippet += ellipsis
	}
	return snippet
}

// indexFold returns the rune index of the first case-insensitive occurrence of sub in s, or -1.
func indexFold(s, sub []rune) int {
	if len(sub) == 0 || len(sub) > len(s) {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j, r := range sub {
			if unicode.ToLower(s[i+j]) != unicode.ToLower(r) {
				continue outer
			}
		}
		return i
	}
	return -1
}
