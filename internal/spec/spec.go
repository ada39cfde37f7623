// Package spec loads and indexes OpenAPI 3 documents.
package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// Format is the declared serialization of a spec document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromFilename derives the declared format from a file name.
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported spec file format %q: use JSON or YAML", filepath.Ext(name))
	}
}

// ErrEncoding marks input that is not valid UTF-8.
var ErrEncoding = errors.New("spec is not valid UTF-8")

// ValidationError reports a document that parsed but failed OpenAPI
// structural validation. Reason carries the first validation failure
// with its location hint as produced by the validator.
type ValidationError struct {
	Name   string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("spec %q failed OpenAPI validation: %v", e.Name, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// Specification is one validated OpenAPI document plus derived indices.
// Immutable after Load.
type Specification struct {
	Name string

	doc   *openapi3.T
	paths []string // sorted path templates
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Load parses and validates raw spec bytes in the declared format.
// A UTF-8 byte-order mark is tolerated; other encoding problems are
// reported as ErrEncoding, syntax problems as parse errors, and
// structurally invalid documents as *ValidationError.
func Load(name string, data []byte, format Format) (*Specification, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("load spec %q: %w", name, ErrEncoding)
	}

	// Surface syntax errors in terms of the declared format before
	// handing the document to the OpenAPI loader.
	switch format {
	case FormatJSON:
		var probe any
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parse spec %q as JSON: %w", name, err)
		}
	case FormatYAML:
		var probe any
		if err := yaml.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("parse spec %q as YAML: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("load spec %q: unknown format %q", name, format)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load spec %q: %w", name, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, &ValidationError{Name: name, Reason: firstValidationError(err)}
	}

	s := &Specification{Name: name, doc: doc}
	if doc.Paths != nil {
		for p := range doc.Paths.Map() {
			s.paths = append(s.paths, p)
		}
	}
	sort.Strings(s.paths)
	return s, nil
}

// firstValidationError keeps only the first issue of a MultiError so the
// user sees one actionable location hint instead of a wall of text.
func firstValidationError(err error) error {
	var multi openapi3.MultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		return multi[0]
	}
	return err
}

// Title returns the document title, falling back to the spec name.
func (s *Specification) Title() string {
	if s.doc.Info != nil && s.doc.Info.Title != "" {
		return s.doc.Info.Title
	}
	return s.Name
}

// Description returns the document description, possibly empty.
func (s *Specification) Description() string {
	if s.doc.Info != nil {
		return s.doc.Info.Description
	}
	return ""
}

// Paths returns the declared path templates in sorted order.
func (s *Specification) Paths() []string {
	return s.paths
}

// HasPath reports whether the template is declared in the document.
func (s *Specification) HasPath(path string) bool {
	return s.doc.Paths != nil && s.doc.Paths.Find(path) != nil
}

// Operation returns the operation at (path, method). The method match is
// case-insensitive.
func (s *Specification) Operation(path, method string) (*openapi3.Operation, bool) {
	if s.doc.Paths == nil {
		return nil, false
	}
	item := s.doc.Paths.Find(path)
	if item == nil {
		return nil, false
	}
	op := item.GetOperation(strings.ToUpper(method))
	if op == nil {
		return nil, false
	}
	return op, true
}

// Methods returns the sorted HTTP methods declared under path.
func (s *Specification) Methods(path string) []string {
	if s.doc.Paths == nil {
		return nil
	}
	item := s.doc.Paths.Find(path)
	if item == nil {
		return nil
	}
	var methods []string
	for m := range item.Operations() {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// SecuritySchemes returns the declared security schemes by name, or an
// empty map when the document declares none.
func (s *Specification) SecuritySchemes() map[string]*openapi3.SecurityScheme {
	out := map[string]*openapi3.SecurityScheme{}
	if s.doc.Components == nil {
		return out
	}
	for name, ref := range s.doc.Components.SecuritySchemes {
		if ref != nil && ref.Value != nil {
			out[name] = ref.Value
		}
	}
	return out
}

// SecurityRequirements returns the document-level security requirement
// list: alternatives in order, each an AND-set of scheme name to
// required scopes. An absent security section yields a single empty
// requirement so callers still probe the declared schemes.
func (s *Specification) SecurityRequirements() []map[string][]string {
	if len(s.doc.Security) == 0 {
		return []map[string][]string{{}}
	}
	out := make([]map[string][]string, 0, len(s.doc.Security))
	for _, req := range s.doc.Security {
		out = append(out, map[string][]string(req))
	}
	return out
}

// Servers returns the declared server URLs in document order.
func (s *Specification) Servers() []string {
	var urls []string
	for _, srv := range s.doc.Servers {
		if srv != nil && srv.URL != "" {
			urls = append(urls, srv.URL)
		}
	}
	return urls
}
