// Package request assembles, finalizes, executes and renders HTTP
// calls resolved from a specification and an intent decision.
package request

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/yourorg/apiagent/internal/creds"
	"github.com/yourorg/apiagent/internal/spec"
)

// Details holds the routed request pieces produced by Build: parameter
// values bucketed by declared location, auth headers merged in, plus
// the selected body schema and content type.
type Details struct {
	Query       map[string]string
	Headers     map[string]string
	PathParams  map[string]string
	BodySchema  *openapi3.SchemaRef
	ContentType string
}

// Body content types in fixed preference order.
var preferredContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// Build routes each declared parameter value from values into its
// query/header/path bucket (cookie parameters are unsupported and
// skipped), starts headers from authHeaders, injects query-placed API
// keys straight from the security schemes, and selects the request
// body schema and content type. A declared-but-missing value is simply
// omitted here; required path parameters surface later as
// path-substitution errors.
func Build(op *openapi3.Operation, values map[string]any, s *spec.Specification, authHeaders map[string]string, src creds.Source) *Details {
	d := &Details{
		Query:      map[string]string{},
		Headers:    map[string]string{},
		PathParams: map[string]string{},
	}
	for k, v := range authHeaders {
		d.Headers[k] = v
	}

	if op != nil {
		for _, ref := range op.Parameters {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			if p.Name == "" || p.In == "" {
				continue
			}
			v, ok := values[p.Name]
			if !ok || v == nil {
				continue
			}
			switch p.In {
			case "query":
				d.Query[p.Name] = valueString(v)
			case "header":
				d.Headers[p.Name] = valueString(v)
			case "path":
				d.PathParams[p.Name] = valueString(v)
			}
		}
	}

	if name, key, ok := queryAPIKey(s, src); ok {
		d.Query[name] = key
	}

	if op != nil && op.RequestBody != nil && op.RequestBody.Value != nil {
		d.BodySchema, d.ContentType = selectBody(op.RequestBody.Value.Content)
	}
	return d
}

// queryAPIKey finds the first query-placed API key the security
// requirements call for and that a credential exists for. Header-placed
// keys are the auth resolver's business; query keys are never emitted
// as headers.
func queryAPIKey(s *spec.Specification, src creds.Source) (string, string, bool) {
	if src == nil {
		return "", "", false
	}
	schemes := s.SecuritySchemes()
	if len(schemes) == 0 {
		return "", "", false
	}
	for _, req := range s.SecurityRequirements() {
		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sec, ok := schemes[name]
			if !ok || sec.Type != "apiKey" || sec.In != "query" || sec.Name == "" {
				continue
			}
			if key, ok := src.Get(creds.APIKeyVar(name)); ok && key != "" {
				return sec.Name, key, true
			}
		}
	}
	return "", "", false
}

// selectBody scans declared content types in preference order: json,
// form, multipart, then any other declared type, finally a true
// wildcard entry.
func selectBody(content openapi3.Content) (*openapi3.SchemaRef, string) {
	if len(content) == 0 {
		return nil, ""
	}
	for _, ctype := range preferredContentTypes {
		if mt, ok := content[ctype]; ok && mt != nil && mt.Schema != nil {
			return mt.Schema, ctype
		}
	}
	var others []string
	for ctype := range content {
		if ctype != "*/*" {
			others = append(others, ctype)
		}
	}
	sort.Strings(others)
	for _, ctype := range others {
		if mt := content[ctype]; mt != nil && mt.Schema != nil {
			return mt.Schema, ctype
		}
	}
	if mt, ok := content["*/*"]; ok && mt != nil && mt.Schema != nil {
		return mt.Schema, "*/*"
	}
	return nil, ""
}

// BodyPayload extracts the body values from hints. When the selected
// schema declares properties only those keys are taken; otherwise every
// hint not already routed to a parameter bucket is used.
func BodyPayload(d *Details, hints map[string]any) map[string]any {
	if d.BodySchema == nil || len(hints) == 0 {
		return nil
	}
	body := map[string]any{}
	if d.BodySchema.Value != nil && len(d.BodySchema.Value.Properties) > 0 {
		for name := range d.BodySchema.Value.Properties {
			if v, ok := hints[name]; ok && v != nil {
				body[name] = v
			}
		}
	} else {
		for name, v := range hints {
			if v == nil {
				continue
			}
			if _, ok := d.Query[name]; ok {
				continue
			}
			if _, ok := d.Headers[name]; ok {
				continue
			}
			if _, ok := d.PathParams[name]; ok {
				continue
			}
			body[name] = v
		}
	}
	if len(body) == 0 {
		return nil
	}
	return body
}

// MissingParamsError reports unresolved path-template placeholders. A
// request cannot be finalized while any remain.
type MissingParamsError struct {
	Names []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("missing required path parameter(s): %s", strings.Join(e.Names, ", "))
}

var placeholderRe = regexp.MustCompile(`\{(.*?)\}`)

// SubstitutePath replaces every {name} placeholder in the template with
// its value from d.PathParams. Placeholders left unresolved, including
// ones absent from the declared parameter list, come back as a
// *MissingParamsError with a sorted, deduplicated name list.
func SubstitutePath(template string, pathParams map[string]string) (string, error) {
	filled := template
	for name, value := range pathParams {
		filled = strings.ReplaceAll(filled, "{"+name+"}", value)
	}
	var missing []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(filled, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		missing = append(missing, m[1])
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingParamsError{Names: missing}
	}
	return filled, nil
}

func valueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
