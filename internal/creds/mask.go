package creds

import "strings"

var sensitiveKeyFragments = []string{
	"authorization", "api-key", "apikey", "secret", "password", "token",
}

// MaskSecret masks val when its key looks credential-shaped. Values of
// at least 8 characters keep their first and last two characters;
// shorter ones are fully masked.
func MaskSecret(key, val string) string {
	lower := strings.ToLower(key)
	sensitive := false
	for _, frag := range sensitiveKeyFragments {
		if strings.Contains(lower, frag) {
			sensitive = true
			break
		}
	}
	if !sensitive {
		return val
	}
	if len(val) < 8 {
		return "********"
	}
	return val[:2] + "****" + val[len(val)-2:]
}

// MaskHeaders returns a copy of h with credential-shaped values masked.
func MaskHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = MaskSecret(k, v)
	}
	return out
}
