package request

import "strings"

// JoinBaseURL joins a base URL and a resolved path, eliding base path
// segments that repeat as the path's leading segments (base ending in
// /api/v1 plus a path starting api/v1/... contributes the version
// prefix once). This is a best-effort segment heuristic: a resource
// literally named like a trailing base segment can misfire. Known
// limitation, kept as-is.
func JoinBaseURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return base
	}

	baseParts := strings.Split(base, "/")
	// Skip scheme and host ("https:", "", "host").
	if len(baseParts) > 3 {
		baseSegs := baseParts[3:]
		pathSegs := strings.Split(path, "/")
		max := len(baseSegs)
		if len(pathSegs) < max {
			max = len(pathSegs)
		}
		for k := max; k > 0; k-- {
			if segmentsEqual(baseSegs[len(baseSegs)-k:], pathSegs[:k]) {
				path = strings.Join(pathSegs[k:], "/")
				break
			}
		}
	}
	if path == "" {
		return base
	}
	return base + "/" + path
}

func segmentsEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
