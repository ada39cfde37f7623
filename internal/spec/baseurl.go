package spec

import (
	"strings"

	"github.com/yourorg/apiagent/internal/creds"
)

// DefaultBaseURL is the last-resort base URL when neither the document
// nor the environment provides one.
const DefaultBaseURL = "https://petstore.swagger.io"

// BaseURL resolves the base URL for this API: the first HTTPS server,
// then the first listed server, then the API-specific override, then the
// generic override, then fallback (DefaultBaseURL when empty). The
// result always carries an explicit scheme; https:// is synthesized when
// missing. Environment overrides win over document servers.
func (s *Specification) BaseURL(src creds.Source, fallback string) string {
	var base string
	servers := s.Servers()
	for _, u := range servers {
		if strings.HasPrefix(u, "https") {
			base = strings.Trim(u, "/")
			break
		}
	}
	if base == "" && len(servers) > 0 {
		base = strings.Trim(servers[0], "/")
	}
	if base != "" {
		base = ensureScheme(base)
	}

	if src != nil {
		if v, ok := src.Get(creds.BaseURLVar(s.Name)); ok {
			base = strings.Trim(v, "/")
		} else if v, ok := src.Get(creds.GenericBaseURLVar); ok {
			base = strings.Trim(v, "/")
		}
	}

	if base == "" {
		if fallback != "" {
			base = strings.Trim(fallback, "/")
		} else {
			base = DefaultBaseURL
		}
	}
	return ensureScheme(base)
}

func ensureScheme(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}
