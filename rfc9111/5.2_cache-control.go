package rfc9111

import "strings"

// §  5.2. Cache-Control
// §
// §  The "Cache-Control" header field is used to list directives for caches along
// §  the request/response chain.
// §
// §    Cache-Control   = #cache-directive
// §
// §    cache-directive = token [ "=" ( token / quoted-string ) ]

// Directives is the ordered list of cache directives of a Cache-Control field.
// Directives are kept verbatim (trimmed only), so callers decide how strictly
// to compare them.
type Directives []string

// SplitDirectives takes Cache-Control field lines and returns the
// comma-separated directives in order of appearance.
// Multiple field lines are treated as if they were joined with a comma.
func SplitDirectives(fieldLines []string) Directives {
	directives := make(Directives, 0)
	// "#" means comma-separated list
	for _, directive := range strings.Split(strings.Join(fieldLines, ","), ",") {
		directives = append(directives, strings.TrimSpace(directive))
	}
	return directives
}

// Has reports whether a directive exactly equal to name is present.
func (d Directives) Has(name string) bool {
	for _, directive := range d {
		if directive == name {
			return true
		}
	}
	return false
}

// First returns the first directive starting with prefix.
func (d Directives) First(prefix string) (string, bool) {
	for _, directive := range d {
		if strings.HasPrefix(directive, prefix) {
			return directive, true
		}
	}
	return "", false
}

// Argument returns the part of directive following "name=".
// Anything shorter than that yields an empty argument.
func Argument(directive, name string) string {
	if len(directive) <= len(name)+1 {
		return ""
	}
	return directive[len(name)+1:]
}
