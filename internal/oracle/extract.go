package oracle

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ExtractStatus classifies the outcome of pulling a JSON object out of
// free-form oracle text.
type ExtractStatus int

const (
	ParsedObject ExtractStatus = iota
	NoJSONFound
	MalformedJSON
)

// ExtractJSON finds the first JSON object in text, tolerating markdown
// fences and surrounding prose. It never returns an error: callers
// branch on the status.
func ExtractJSON(text string) (map[string]any, ExtractStatus) {
	candidate := strings.TrimSpace(text)
	if fenced, ok := stripFence(candidate); ok {
		candidate = fenced
	}
	start := strings.IndexByte(candidate, '{')
	if start < 0 {
		return nil, NoJSONFound
	}
	dec := json.NewDecoder(strings.NewReader(candidate[start:]))
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, MalformedJSON
	}
	return obj, ParsedObject
}

func stripFence(s string) (string, bool) {
	if !strings.HasPrefix(s, "```") {
		return s, false
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[idx+1:]
	}
	if end := strings.LastIndex(s, "```"); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s), true
}

var scoreRe = regexp.MustCompile(`\d\.?\d*`)

// ParseScore pulls a bare suitability rating out of oracle text,
// clamped to [0,1]. Anything unparsable scores 0.0.
func ParseScore(text string) float64 {
	match := scoreRe.FindString(text)
	if match == "" {
		return 0.0
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0.0
	}
	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}
