package util

import (
	"net/url"
	"path"
)

// NormaliseBaseURL ensures the base URL ends without a trailing slash
func NormaliseBaseURL(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	if len(baseURL) > 1 && baseURL[len(baseURL)-1] == '/' {
		return baseURL[:len(baseURL)-1]
	}
	return baseURL
}

// ResolveURLPath resolves a path or absolute URL against a base URL.
// If pathOrURL is already an absolute URL (has a scheme like http://), it is
// returned as-is. Otherwise it is joined with the base URL's path, preserving
// any path prefix already present in the base URL. path.Join is used instead
// of url.ResolveReference because the latter treats a leading "/" as an
// absolute reference and replaces the entire base path.
func ResolveURLPath(baseURL, pathOrURL string) string {
	if baseURL == "" {
		return pathOrURL
	}
	if pathOrURL == "" {
		return baseURL
	}

	if parsed, err := url.Parse(pathOrURL); err == nil && parsed.IsAbs() {
		return pathOrURL
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return pathOrURL
	}

	base.Path = path.Join(base.Path, pathOrURL)
	return base.String()
}
