// Package intent maps natural-language input to a structured decision
// against one API specification, consulting the external oracle.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/yourorg/apiagent/internal/oracle"
	"github.com/yourorg/apiagent/internal/spec"
)

// Kind classifies the purpose of a user turn.
type Kind string

const (
	Discovery    Kind = "discovery"
	EndpointCall Kind = "endpoint_call"
	Unknown      Kind = "unknown"
)

// Decision is the resolver's verdict for one user turn. For
// EndpointCall, Path and Method name a validated operation of the
// queried specification and Hints carries extracted parameter and body
// values. Raw holds the unprocessed oracle reply for diagnostics.
type Decision struct {
	Kind       Kind
	Path       string
	Method     string
	Hints      map[string]any
	Discovery  string
	Confidence float64
	Reasoning  string
	Raw        string
}

// ChatClient is the oracle surface the resolver depends on.
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Resolver turns (spec, user text, history) into a Decision. Every
// failure mode degrades to an Unknown decision; errors never cross this
// boundary.
type Resolver struct {
	Oracle ChatClient
	Logger *slog.Logger
}

const maxHistoryLines = 3

// Resolve consults the oracle with a budget-capped endpoint digest and
// validates the structured reply against the specification.
func (r *Resolver) Resolve(ctx context.Context, s *spec.Specification, userText string, history []string, budget int) Decision {
	summary := s.Summarize(budget)
	if len(summary) == 0 {
		return Decision{Kind: Unknown, Reasoning: "no endpoints available in the specification to query"}
	}

	system := buildSystemPrompt(likelyDiscovery(userText))
	user, err := buildUserPrompt(s, summary, history, userText)
	if err != nil {
		return Decision{Kind: Unknown, Reasoning: fmt.Sprintf("could not build oracle prompt: %v", err)}
	}

	reply, err := r.Oracle.Chat(ctx, system, user)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("oracle call failed", "api", s.Name, "error", err)
		}
		return Decision{Kind: Unknown, Reasoning: fmt.Sprintf("oracle call failed: %v", err), Raw: "Error: " + err.Error()}
	}
	return r.interpret(s, reply)
}

// interpret applies the validation and degradation rules to a raw
// oracle reply.
func (r *Resolver) interpret(s *spec.Specification, reply string) Decision {
	obj, status := oracle.ExtractJSON(reply)
	switch status {
	case oracle.NoJSONFound:
		return Decision{Kind: Unknown, Reasoning: "oracle reply contained no JSON object. Raw hint: " + clip(reply, 200), Raw: reply}
	case oracle.MalformedJSON:
		return Decision{Kind: Unknown, Reasoning: "oracle reply contained malformed JSON. Raw hint: " + clip(reply, 200), Raw: reply}
	}

	confidence := coerceConfidence(obj["confidence"])
	reasoning, _ := obj["reasoning"].(string)
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	hints := mergeHints(obj["requestBodyData"], obj["parameters"])

	kind, _ := obj["intent"].(string)
	switch Kind(kind) {
	case Discovery:
		discovery, _ := obj["discovery_response"].(string)
		return Decision{Kind: Discovery, Discovery: discovery, Confidence: confidence, Reasoning: reasoning, Raw: reply}

	case EndpointCall:
		path, _ := obj["path"].(string)
		method, _ := obj["method"].(string)
		if path == "" || method == "" {
			return Decision{
				Kind: Unknown, Confidence: confidence, Raw: reply,
				Reasoning: "oracle chose endpoint_call but omitted path or method. Reasoning: " + reasoning,
			}
		}
		if !s.HasPath(path) {
			return Decision{
				Kind: Unknown, Confidence: confidence, Raw: reply,
				Reasoning: fmt.Sprintf("oracle suggested path %q which does not exist in API %q. Reasoning: %s", path, s.Name, reasoning),
			}
		}
		if _, ok := s.Operation(path, method); !ok {
			return Decision{
				Kind: Unknown, Confidence: confidence, Raw: reply,
				Reasoning: fmt.Sprintf("oracle suggested method %s which is not declared for path %q. Reasoning: %s", strings.ToUpper(method), path, reasoning),
			}
		}
		return Decision{
			Kind: EndpointCall, Path: path, Method: strings.ToLower(method),
			Hints: hints, Confidence: confidence, Reasoning: reasoning, Raw: reply,
		}

	default:
		return Decision{
			Kind: Unknown, Confidence: confidence, Raw: reply,
			Reasoning: fmt.Sprintf("intent %q reported. Reasoning: %s", kind, reasoning),
		}
	}
}

// mergeHints folds parameter and body hints into one map. Parameters
// are merged last so they win on key collision.
func mergeHints(body, params any) map[string]any {
	hints := map[string]any{}
	if m, ok := body.(map[string]any); ok {
		for k, v := range m {
			hints[k] = v
		}
	}
	if m, ok := params.(map[string]any); ok {
		for k, v := range m {
			hints[k] = v
		}
	}
	return hints
}

func coerceConfidence(v any) float64 {
	var c float64
	switch val := v.(type) {
	case float64:
		c = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0.0
		}
		c = parsed
	default:
		return 0.0
	}
	if c < 0 {
		return 0.0
	}
	if c > 1 {
		return 1.0
	}
	return c
}

var discoveryPhrases = []string{
	"what can you do", "help", "capabilities", "available actions",
	"list endpoints", "tell me about yourself",
}

// likelyDiscovery pre-flags probable discovery intent to bias prompt
// construction. The oracle's own intent field still decides.
func likelyDiscovery(userText string) bool {
	lower := strings.ToLower(userText)
	for _, phrase := range discoveryPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
