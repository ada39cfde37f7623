package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yourorg/apiagent/internal/oracle"
	"github.com/yourorg/apiagent/internal/spec"
)

const systemPromptBase = `You are an AI agent acting as a natural language interface for a REST API.
Your job is to understand the user's request and either map it to the single best matching API call from the endpoint summary, extract parameter and body values for it, or explain the API's capabilities when the user asks for help.

Determine the intent:
- "discovery": the user asks about capabilities, help, what the API can do.
- "endpoint_call": the request maps to a specific API call in the summary.
- "unknown": the request is unrelated, ambiguous, or cannot be fulfilled by the listed endpoints.

For "endpoint_call":
- Pick the single best matching endpoint ("path" and "method").
- Extract values for declared parameters ("parameters") from the user request. Omit parameters the user did not mention unless they have a clear default or are essential.
- Infer request body data ("requestBodyData") as a JSON object when applicable.

For "discovery": provide a concise natural-language summary of the API's purpose and example actions in "discovery_response".

Always provide a confidence score between 0.0 and 1.0 and a brief "reasoning".

Return ONLY a single valid JSON object, with no markdown fences and no text outside it:
{
  "intent": "discovery | endpoint_call | unknown",
  "confidence": 0.9,
  "path": "/path/to/endpoint" or null,
  "method": "GET | POST | PUT | DELETE" or null,
  "parameters": { "param_name_in_spec": "value_from_user_request" } or null,
  "requestBodyData": { "body_key": "value_from_user_request" } or null,
  "reasoning": "Brief explanation.",
  "discovery_response": "Concise API summary and example commands." or null
}

Example - endpoint call:
{"intent":"endpoint_call","confidence":0.95,"path":"/users","method":"GET","parameters":{"status":"active","limit":10},"requestBodyData":null,"reasoning":"User wants to list the first 10 active users, mapping to GET /users with query parameters.","discovery_response":null}

Example - discovery:
{"intent":"discovery","confidence":0.98,"path":null,"method":null,"parameters":null,"requestBodyData":null,"reasoning":"User asked what the API can do.","discovery_response":"This API manages users and widgets. You can ask to 'list users', 'create a new widget', or 'get details for user 123'."}

Example - unknown:
{"intent":"unknown","confidence":0.3,"path":null,"method":null,"parameters":null,"requestBodyData":null,"reasoning":"The request is unrelated to this API's function.","discovery_response":null}`

const discoveryGuidance = `

The current request looks like a capabilities question; lean towards the "discovery" intent if that reading holds.`

const endpointGuidance = `

If the request clearly maps to a specific API call defined in the summary, respond with the "endpoint_call" intent.`

func buildSystemPrompt(likelyDiscovery bool) string {
	if likelyDiscovery {
		return systemPromptBase + discoveryGuidance
	}
	return systemPromptBase + endpointGuidance
}

const maxAPIDescriptionLen = 500

func buildUserPrompt(s *spec.Specification, summary []spec.EndpointSummary, history []string, userText string) (string, error) {
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode endpoint summary: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "API Information:\nName: %s\nTitle: %s\nDescription: %s\n\n", s.Name, s.Title(), clip(s.Description(), maxAPIDescriptionLen))
	fmt.Fprintf(&b, "Available Endpoints Summary:\n%s\n", encoded)

	if len(history) > 0 {
		b.WriteString("\nPrevious Interactions (recent first):\n")
		for i, line := range history {
			if i >= maxHistoryLines {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, line)
		}
		b.WriteString("Use this context to better understand the current request, if relevant.\n")
	}

	fmt.Fprintf(&b, "\nCurrent User Request:\n%q\n\nProcess the user request for API %q. Output only the JSON object.", userText, s.Name)
	return b.String(), nil
}

const suitabilityPrompt = `Rate how likely the API can answer the user's query based ONLY on its title and description.
Ignore previous interactions or specific endpoints. Focus solely on the API's overall purpose versus the query's topic.
Return ONLY a single floating-point number between 0.0 (not suitable) and 1.0 (highly suitable), with no other text.`

// RateSuitability scores how well the API's title and description fit
// the query, clamped to [0,1]. Any failure scores 0.0.
func (r *Resolver) RateSuitability(ctx context.Context, s *spec.Specification, userText string) float64 {
	user := fmt.Sprintf("API Title: %s\nAPI Description: %s\nUser Query: %q\n\nSuitability Rating (0.0-1.0):",
		s.Title(), clip(s.Description(), maxAPIDescriptionLen), userText)
	reply, err := r.Oracle.Chat(ctx, suitabilityPrompt, user)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("suitability rating failed", "api", s.Name, "error", err)
		}
		return 0.0
	}
	return oracle.ParseScore(reply)
}
