package spec

import (
	"github.com/getkin/kin-openapi/openapi3"
)

const (
	maxSummaryLen   = 150
	maxParamDescLen = 75
)

// ParameterSummary is the compact parameter shape sent to the oracle.
type ParameterSummary struct {
	Name        string `json:"name"`
	In          string `json:"in"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// EndpointSummary is one entry of the endpoint digest sent to the
// oracle. RequestBody is "Required", "Optional" or empty.
type EndpointSummary struct {
	Path        string             `json:"path"`
	Method      string             `json:"method"`
	Summary     string             `json:"summary"`
	OperationID string             `json:"operationId,omitempty"`
	Parameters  []ParameterSummary `json:"parameters,omitempty"`
	RequestBody string             `json:"requestBody,omitempty"`
}

// Summarize produces at most budget endpoint summaries in sorted
// (path, method) order. The budget caps the payload handed to the
// oracle; budget <= 0 yields nothing.
func (s *Specification) Summarize(budget int) []EndpointSummary {
	var out []EndpointSummary
	for _, path := range s.paths {
		item := s.doc.Paths.Find(path)
		if item == nil {
			continue
		}
		for _, method := range s.Methods(path) {
			if len(out) >= budget {
				return out
			}
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			out = append(out, summarizeOperation(path, method, op))
		}
	}
	return out
}

func summarizeOperation(path, method string, op *openapi3.Operation) EndpointSummary {
	sum := op.Summary
	if sum == "" {
		sum = op.Description
	}
	es := EndpointSummary{
		Path:        path,
		Method:      method,
		Summary:     truncate(sum, maxSummaryLen),
		OperationID: op.OperationID,
	}
	for _, ref := range op.Parameters {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		es.Parameters = append(es.Parameters, ParameterSummary{
			Name:        p.Name,
			In:          p.In,
			Required:    p.Required,
			Type:        SchemaType(p.Schema),
			Description: truncate(p.Description, maxParamDescLen),
		})
	}
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if op.RequestBody.Value.Required {
			es.RequestBody = "Required"
		} else {
			es.RequestBody = "Optional"
		}
	}
	return es
}

// SchemaType returns the primary declared type of a schema, defaulting
// to "string".
func SchemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return "string"
	}
	if types := ref.Value.Type.Slice(); len(types) > 0 {
		return types[0]
	}
	return "string"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
