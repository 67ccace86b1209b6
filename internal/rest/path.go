package rest

import (
	"net/url"
	"strings"
)

// BuildPath percent-encodes each path segment and appends the encoded query.
// Query keys are sorted, so identical logical requests encode identically.
func BuildPath(path string, query url.Values) string {
	trimmed := strings.Trim(path, "/")
	var b strings.Builder
	if trimmed != "" {
		for _, seg := range strings.Split(trimmed, "/") {
			b.WriteByte('/')
			b.WriteString(url.PathEscape(seg))
		}
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// Join builds a resource path from a collection path and an identifier.
func Join(base string, parts ...string) string {
	elems := append([]string{strings.TrimRight(base, "/")}, parts...)
	return strings.Join(elems, "/")
}
