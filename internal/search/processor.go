package search

import "strings"

// normalizeQuery trims query and collapses inner whitespace runs to one space.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
