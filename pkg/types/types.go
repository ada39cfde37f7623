package types

import "time"

// Interaction records one natural-language turn: what the user asked,
// the call the agent made, and what came back.
type Interaction struct {
	ID              string         `json:"id"`
	NaturalLanguage string         `json:"natural_language"`
	Request         RequestRecord  `json:"request"`
	Response        ResponseRecord `json:"response"`
	CreatedAt       time.Time      `json:"created_at"`
}

// RequestRecord is the compact summary of an executed request.
// Header values are masked before the record is stored or displayed.
type RequestRecord struct {
	API     string            `json:"api"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseRecord is the compact summary of the outcome. Status is zero
// when the call never reached the transport (Error holds why).
type ResponseRecord struct {
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
	Body   string `json:"body,omitempty"`
}

// OK reports whether the recorded call completed with a 2xx status.
func (r ResponseRecord) OK() bool {
	return r.Error == "" && r.Status >= 200 && r.Status < 300
}
