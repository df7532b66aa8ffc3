// Package hrefs resolves the relative references found in EPUB package
// and navigation documents against zip-style paths.
package hrefs

import (
	"net/url"
	"path"
	"strings"
)

// Decode percent-decodes an href. Undecodable input is returned as-is.
func Decode(href string) string {
	if !strings.ContainsRune(href, '%') {
		return href
	}
	decoded, err := url.PathUnescape(href)
	if err != nil {
		return href
	}
	return decoded
}

// BaseDir returns the directory a document's relative references resolve
// against. The archive root is reported as "".
func BaseDir(docPath string) string {
	d := path.Dir(docPath)
	if d == "." || d == "/" {
		return ""
	}
	return d
}

// Resolve joins href against baseDir and normalizes the result to a
// zip-style path. Hrefs starting with "/" are taken as archive-absolute.
func Resolve(baseDir, href string) string {
	href = Decode(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "/") {
		return path.Clean(strings.TrimPrefix(href, "/"))
	}
	if baseDir == "" {
		return path.Clean(href)
	}
	return path.Join(baseDir, href)
}

// ResolveRef resolves a reference that may carry a #fragment, keeping the
// fragment attached to the resolved path.
func ResolveRef(baseDir, ref string) string {
	frag := ""
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		ref, frag = ref[:i], ref[i:]
	}
	return Resolve(baseDir, ref) + frag
}

// StripFragment returns href without its #fragment suffix.
func StripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}
