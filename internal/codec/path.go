package codec

import "strings"

// NormalizePath lowercases p and rewrites backslashes to forward slashes,
// matching the key normalization every BIG archive lookup applies (spec
// §4.2, confirmed byte-for-byte against the libbig original: a
// std::replace('\\','/') followed by ::tolower over the whole string).
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.ToLower(p)
}
