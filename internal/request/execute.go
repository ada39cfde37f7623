package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every outgoing HTTP call.
const DefaultTimeout = 30 * time.Second

// Plan is a fully resolved request ready for execution.
type Plan struct {
	API          string
	Method       string
	PathTemplate string
	URL          string
	Headers      map[string]string
	Query        map[string]string
	Body         map[string]any
	ContentType  string
}

// Outcome is the normalized result of an executed call. Status codes
// are data here, not errors; only transport failures are errors.
type Outcome struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// ErrMissingScheme marks a URL with no explicit http:// or https://
// scheme, rejected before any network attempt.
var ErrMissingScheme = errors.New("url must include an explicit http:// or https:// scheme")

// Execute performs the HTTP call described by the plan. client may be
// nil, in which case a client with DefaultTimeout is used.
func Execute(ctx context.Context, client *http.Client, p *Plan) (*Outcome, error) {
	if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
		return nil, fmt.Errorf("invalid url %q: %w", p.URL, ErrMissingScheme)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

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

	method := strings.ToUpper(p.Method)
	var body io.Reader
	contentType := ""
	if len(p.Body) > 0 && method != http.MethodGet && method != http.MethodHead && method != http.MethodDelete {
		encoded, ct, err := encodeBody(p.Body, p.ContentType)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = strings.NewReader(encoded)
		contentType = ct
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request to %s timed out: %w", p.URL, err)
		}
		return nil, fmt.Errorf("request to %s failed: %w", p.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Outcome{Status: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

func encodeBody(body map[string]any, contentType string) (string, string, error) {
	switch {
	case contentType == "" || strings.Contains(contentType, "json"):
		data, err := json.Marshal(body)
		if err != nil {
			return "", "", err
		}
		if contentType == "" {
			contentType = "application/json"
		}
		return string(data), contentType, nil
	case strings.Contains(contentType, "x-www-form-urlencoded"):
		form := url.Values{}
		for k, v := range body {
			form.Set(k, valueString(v))
		}
		return form.Encode(), contentType, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return "", "", err
		}
		return string(data), contentType, nil
	}
}
