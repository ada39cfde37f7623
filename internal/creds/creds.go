// Package creds resolves credentials and base-URL overrides from a
// deterministic naming scheme and masks secret values for display.
package creds

import (
	"os"
	"strings"
)

// Source looks up a credential or override value by key.
type Source interface {
	Get(key string) (string, bool)
}

// EnvSource reads values from process environment variables.
type EnvSource struct{}

func (EnvSource) Get(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if v == "" {
		return "", false
	}
	return v, ok
}

// Static is a fixed in-memory source, mainly for tests.
type Static map[string]string

func (s Static) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// Key naming scheme shared by the auth resolver and request assembler.
// Scheme and API names are upper-cased verbatim, matching how operators
// are told to name their environment variables.

func APIKeyVar(scheme string) string {
	return "APIKEY_" + strings.ToUpper(scheme)
}

func OAuthClientIDVar(scheme string) string {
	return "OAUTH_" + strings.ToUpper(scheme) + "_CLIENT_ID"
}

func OAuthClientSecretVar(scheme string) string {
	return "OAUTH_" + strings.ToUpper(scheme) + "_CLIENT_SECRET"
}

func BasicUserVar(scheme string) string {
	return "HTTP_" + strings.ToUpper(scheme) + "_USER"
}

func BasicPassVar(scheme string) string {
	return "HTTP_" + strings.ToUpper(scheme) + "_PASS"
}

func BearerTokenVar(scheme string) string {
	return "HTTP_" + strings.ToUpper(scheme) + "_TOKEN"
}

func BaseURLVar(api string) string {
	return "API_" + strings.ToUpper(api) + "_BASE_URL"
}

// GenericBaseURLVar overrides the base URL for every loaded API.
const GenericBaseURLVar = "API_BASE_URL"
