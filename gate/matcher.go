package gate

import "strings"

// RouteMatcher decides which request paths the gate runs for. Static assets
// carry no session and are skipped.
type RouteMatcher struct {
	excludedPrefixes   []string
	excludedPaths      map[string]struct{}
	excludedExtensions []string
}

func NewRouteMatcher(prefixes, paths, extensions []string) *RouteMatcher {
	m := &RouteMatcher{
		excludedPrefixes:   append([]string(nil), prefixes...),
		excludedPaths:      make(map[string]struct{}, len(paths)),
		excludedExtensions: make([]string, 0, len(extensions)),
	}
	for _, p := range paths {
		m.excludedPaths[p] = struct{}{}
	}
	for _, ext := range extensions {
		m.excludedExtensions = append(m.excludedExtensions, strings.ToLower(ext))
	}
	return m
}

// DefaultRouteMatcher skips build output, image optimisation, the favicon
// and image files.
func DefaultRouteMatcher() *RouteMatcher {
	return NewRouteMatcher(
		[]string{"/_next/static/", "/_next/image"},
		[]string{"/favicon.ico"},
		[]string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp"},
	)
}

func (m *RouteMatcher) Match(path string) bool {
	if _, excluded := m.excludedPaths[path]; excluded {
		return false
	}
	for _, prefix := range m.excludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	lower := strings.ToLower(path)
	for _, ext := range m.excludedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}
