// Package auth turns a specification's declared security schemes into
// concrete request headers using externally supplied credentials.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/yourorg/apiagent/internal/creds"
	"github.com/yourorg/apiagent/internal/spec"
)

// Resolver evaluates a spec's security requirement list: alternatives
// are tried in order (OR), every scheme inside one alternative must
// succeed (AND), and the first fully satisfied alternative wins.
type Resolver struct {
	Source         creds.Source
	HTTPClient     *http.Client
	DefaultBaseURL string
	Logger         *slog.Logger
}

// Resolve returns the headers for the first satisfiable requirement set
// plus a deduplicated, sorted list of warnings from every attempted
// branch. A spec with no securitySchemes yields empty headers and no
// warnings: no auth needed. Failures never abort resolution, they just
// move evaluation to the next alternative.
func (r *Resolver) Resolve(ctx context.Context, s *spec.Specification) (map[string]string, []string) {
	headers := map[string]string{}
	var warnings []string

	schemes := s.SecuritySchemes()
	if len(schemes) == 0 {
		return headers, nil
	}
	schemeNames := make([]string, 0, len(schemes))
	for name := range schemes {
		schemeNames = append(schemeNames, name)
	}
	sort.Strings(schemeNames)

	for _, req := range s.SecurityRequirements() {
		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)
		// An empty requirement falls back to the first declared scheme.
		if len(names) == 0 {
			names = schemeNames[:1]
		}

		candidate := map[string]string{}
		satisfied := true
		for _, name := range names {
			sec, ok := schemes[name]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("auth (%s): scheme referenced by security requirement but not declared in components.securitySchemes", name))
				satisfied = false
				break
			}
			if err := r.resolveScheme(ctx, s, name, sec, req[name], candidate); err != nil {
				warnings = append(warnings, err.Error())
				satisfied = false
				break
			}
		}
		if satisfied {
			for k, v := range candidate {
				headers[k] = v
			}
			if r.Logger != nil {
				r.Logger.Debug("auth configured", "api", s.Name, "requirement", strings.Join(names, ","))
			}
			return headers, dedupe(warnings)
		}
	}

	if r.Logger != nil {
		r.Logger.Warn("no security requirement could be satisfied", "api", s.Name)
	}
	return headers, dedupe(warnings)
}

// resolveScheme satisfies one named scheme, writing any produced headers
// into out. Query-placed API keys are verified but intentionally not
// emitted: the request assembler places them in the query string.
func (r *Resolver) resolveScheme(ctx context.Context, s *spec.Specification, name string, sec *openapi3.SecurityScheme, scopes []string, out map[string]string) error {
	switch sec.Type {
	case "apiKey":
		return r.resolveAPIKey(name, sec, out)
	case "http":
		return r.resolveHTTP(name, sec, out)
	case "oauth2":
		if sec.Flows == nil || sec.Flows.ClientCredentials == nil {
			return fmt.Errorf("oauth2 (%s): only the clientCredentials flow is supported", name)
		}
		return r.resolveClientCredentials(ctx, s, name, sec.Flows.ClientCredentials, scopes, out)
	default:
		return fmt.Errorf("auth (%s): unsupported security scheme type %q", name, sec.Type)
	}
}

func (r *Resolver) resolveAPIKey(name string, sec *openapi3.SecurityScheme, out map[string]string) error {
	envKey := creds.APIKeyVar(name)
	key, ok := r.Source.Get(envKey)
	if !ok || key == "" {
		return fmt.Errorf("api key (%s): missing %q", name, envKey)
	}
	switch {
	case sec.In == "header" && sec.Name != "":
		out[sec.Name] = key
	case sec.In == "query" && sec.Name != "":
		// Present and valid; placed during request assembly.
	default:
		return fmt.Errorf("api key (%s): invalid or missing 'in' (%q) or 'name' (%q)", name, sec.In, sec.Name)
	}
	return nil
}

func (r *Resolver) resolveHTTP(name string, sec *openapi3.SecurityScheme, out map[string]string) error {
	switch strings.ToLower(sec.Scheme) {
	case "basic":
		userKey, passKey := creds.BasicUserVar(name), creds.BasicPassVar(name)
		user, okUser := r.Source.Get(userKey)
		pass, okPass := r.Source.Get(passKey)
		if !okUser || !okPass {
			return fmt.Errorf("http basic (%s): missing %q or %q", name, userKey, passKey)
		}
		encoded := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		out["Authorization"] = "Basic " + encoded
	case "bearer":
		tokenKey := creds.BearerTokenVar(name)
		token, ok := r.Source.Get(tokenKey)
		if !ok || token == "" {
			return fmt.Errorf("http bearer (%s): missing %q", name, tokenKey)
		}
		out["Authorization"] = "Bearer " + token
	default:
		return fmt.Errorf("http auth (%s): unsupported scheme %q, only basic and bearer are supported", name, sec.Scheme)
	}
	return nil
}

func (r *Resolver) resolveClientCredentials(ctx context.Context, s *spec.Specification, name string, flow *openapi3.OAuthFlow, requested []string, out map[string]string) error {
	if flow.TokenURL == "" {
		return fmt.Errorf("oauth2 (%s): missing tokenUrl in clientCredentials flow", name)
	}
	tokenURL := flow.TokenURL
	if parsed, err := url.Parse(tokenURL); err != nil || parsed.Scheme == "" {
		base := s.BaseURL(r.Source, r.DefaultBaseURL)
		tokenURL = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(tokenURL, "/")
	}

	idKey, secretKey := creds.OAuthClientIDVar(name), creds.OAuthClientSecretVar(name)
	clientID, okID := r.Source.Get(idKey)
	clientSecret, okSecret := r.Source.Get(secretKey)
	if !okID || clientID == "" || !okSecret || clientSecret == "" {
		return fmt.Errorf("oauth2 (%s): missing %q or %q", name, idKey, secretKey)
	}

	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       intersectScopes(requested, flow.Scopes),
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}
	token, err := cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("oauth2 (%s): token request to %s failed: %w", name, tokenURL, err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("oauth2 (%s): access_token not found in response from %s", name, tokenURL)
	}
	out["Authorization"] = token.Type() + " " + token.AccessToken
	return nil
}

// intersectScopes keeps only the requested scopes the flow declares,
// preserving request order.
func intersectScopes(requested []string, declared map[string]string) []string {
	if len(requested) == 0 || len(declared) == 0 {
		return nil
	}
	var valid []string
	for _, s := range requested {
		if _, ok := declared[s]; ok {
			valid = append(valid, s)
		}
	}
	return valid
}

func dedupe(warnings []string) []string {
	if len(warnings) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, w := range warnings {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// DefaultTTL bounds how long resolved headers are reused before
// credentials are re-read.
const DefaultTTL = 10 * time.Minute

type cacheEntry struct {
	headers  map[string]string
	warnings []string
	expires  time.Time
}

// Cache is a read-through cache of resolved auth keyed by API name.
// The tool is turn-based and single-goroutine, so no locking is needed.
type Cache struct {
	Resolver *Resolver
	TTL      time.Duration

	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(r *Resolver, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{Resolver: r, TTL: ttl, entries: map[string]cacheEntry{}, now: time.Now}
}

// Resolve returns cached headers for the spec when fresh, otherwise
// resolves and caches them until the TTL expires.
func (c *Cache) Resolve(ctx context.Context, s *spec.Specification) (map[string]string, []string) {
	if e, ok := c.entries[s.Name]; ok && c.now().Before(e.expires) {
		return e.headers, e.warnings
	}
	headers, warnings := c.Resolver.Resolve(ctx, s)
	c.entries[s.Name] = cacheEntry{headers: headers, warnings: warnings, expires: c.now().Add(c.TTL)}
	return headers, warnings
}

// Invalidate drops the cached entry for one API.
func (c *Cache) Invalidate(api string) {
	delete(c.entries, api)
}
