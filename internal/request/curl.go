package request

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// CurlCommand renders an equivalent shell-invokable curl command for
// the plan, for user inspection or export. Header and body values are
// single-quoted with embedded quotes escaped; it never executes
// anything.
func CurlCommand(p *Plan) string {
	parts := []string{"curl -X " + strings.ToUpper(p.Method)}

	target := p.URL
	if len(p.Query) > 0 {
		q := url.Values{}
		for k, v := range p.Query {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + q.Encode()
	}
	parts = append(parts, shellQuote(target))

	names := make([]string, 0, len(p.Headers))
	for k := range p.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	hasContentType := false
	for _, k := range names {
		if strings.EqualFold(k, "Content-Type") {
			hasContentType = true
		}
		parts = append(parts, "-H "+shellQuote(k+": "+p.Headers[k]))
	}

	method := strings.ToLower(p.Method)
	if len(p.Body) > 0 && method != "get" && method != "head" && method != "delete" {
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		if !hasContentType {
			parts = append(parts, "-H "+shellQuote("Content-Type: "+contentType))
		}
		var bodyStr string
		if strings.Contains(contentType, "x-www-form-urlencoded") {
			form := url.Values{}
			for k, v := range p.Body {
				form.Set(k, valueString(v))
			}
			bodyStr = form.Encode()
		} else {
			data, err := json.Marshal(p.Body)
			if err != nil {
				bodyStr = ""
			} else {
				bodyStr = string(data)
			}
		}
		parts = append(parts, "--data "+shellQuote(bodyStr))
	}

	return strings.Join(parts, " \\\n  ")
}

// shellQuote wraps s in single quotes, escaping embedded single quotes
// so the result is safe to paste into a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
