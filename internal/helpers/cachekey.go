package helpers

import (
	"encoding/base64"
	"strings"
)

// CacheKey derives the analysis cache key for a URL. The encoding is
// deliberately reversible rather than a cryptographic hash: two requests
// collide only when they carry the identical URL, and the key doubles as the
// path segment for the connections endpoint.
func CacheKey(url string) string {
	return base64.URLEncoding.EncodeToString([]byte(strings.TrimSpace(url)))
}

// URLFromCacheKey reverses CacheKey. Unknown or malformed keys yield an
// empty string.
func URLFromCacheKey(key string) string {
	b, err := base64.URLEncoding.DecodeString(key)
	if err != nil {
		return ""
	}
	return string(b)
}
