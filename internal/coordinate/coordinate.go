// Package coordinate chooses which loaded specification handles a user
// turn when more than one API is available. Three interchangeable
// strategies cover the canonical arbitration patterns: central
// broadcast (Coordinator), primary with escalation (Mesh), and
// directory-based delegation (ServiceDiscovery).
package coordinate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yourorg/apiagent/internal/intent"
	"github.com/yourorg/apiagent/internal/spec"
)

// Default thresholds. They are tunable via config; these values match
// the tool's long-standing behavior.
const (
	DefaultCoordinatorMinConfidence = 0.4
	DefaultMeshConfidenceThreshold  = 0.65
	DefaultMeshSwitchMargin         = 0.1
	DefaultMinSuitability           = 0.4
)

// Resolver is the per-spec intent resolution surface strategies consult.
type Resolver interface {
	Resolve(ctx context.Context, s *spec.Specification, userText string, history []string, budget int) intent.Decision
	RateSuitability(ctx context.Context, s *spec.Specification, userText string) float64
}

// Candidate is one considered (api, decision) pair, kept for
// diagnostics.
type Candidate struct {
	API         string
	Decision    intent.Decision
	Suitability float64
}

// Result is the arbitration outcome for one turn. API is empty when no
// specification could confidently handle the request; Decision then
// carries the best available rationale.
type Result struct {
	API        string
	Decision   intent.Decision
	Considered []Candidate
}

// Strategy selects the specification (and decision) for one user turn.
type Strategy interface {
	Select(ctx context.Context, specs map[string]*spec.Specification, userText string, history []string, budget int) Result
}

func sortedNames(specs map[string]*spec.Specification) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Coordinator queries every loaded specification and keeps the most
// confident discovery or endpoint-call candidate, accepting it only at
// or above MinConfidence.
type Coordinator struct {
	Resolver      Resolver
	MinConfidence float64
	Logger        *slog.Logger
}

func (c *Coordinator) Select(ctx context.Context, specs map[string]*spec.Specification, userText string, history []string, budget int) Result {
	var considered []Candidate
	best := Candidate{Decision: intent.Decision{Kind: intent.Unknown, Confidence: -1}}

	for _, name := range sortedNames(specs) {
		d := c.Resolver.Resolve(ctx, specs[name], userText, history, budget)
		cand := Candidate{API: name, Decision: d}
		considered = append(considered, cand)
		if c.Logger != nil {
			c.Logger.Debug("coordinator evaluated", "api", name, "intent", d.Kind, "confidence", d.Confidence)
		}
		if (d.Kind == intent.EndpointCall || d.Kind == intent.Discovery) && d.Confidence > best.Decision.Confidence {
			best = cand
		}
	}

	if best.API != "" && best.Decision.Confidence >= c.MinConfidence {
		return Result{API: best.API, Decision: best.Decision, Considered: considered}
	}

	// Nothing confident enough; surface the best rationale we have.
	reasoning := "no suitable endpoint found across any API with sufficient confidence"
	var raw string
	if len(considered) > 0 {
		top := considered[0]
		for _, cand := range considered[1:] {
			if cand.Decision.Confidence > top.Decision.Confidence {
				top = cand
			}
		}
		reasoning = top.Decision.Reasoning
		raw = top.Decision.Raw
	}
	return Result{
		Decision:   intent.Decision{Kind: intent.Unknown, Reasoning: reasoning, Raw: raw},
		Considered: considered,
	}
}

// Mesh consults the Primary specification first and accepts its answer
// when it is a discovery result or a sufficiently confident endpoint
// call. Otherwise the remaining specifications are consulted and an
// alternative wins only when its confidence beats the incumbent's by
// more than SwitchMargin, or it is a discovery upgrade. Ties keep the
// primary.
type Mesh struct {
	Resolver            Resolver
	Primary             string
	ConfidenceThreshold float64
	SwitchMargin        float64
	Logger              *slog.Logger
}

func (m *Mesh) Select(ctx context.Context, specs map[string]*spec.Specification, userText string, history []string, budget int) Result {
	primarySpec, ok := specs[m.Primary]
	if !ok {
		return Result{Decision: intent.Decision{
			Kind:      intent.Unknown,
			Reasoning: fmt.Sprintf("primary API %q is not loaded", m.Primary),
		}}
	}

	primary := Candidate{API: m.Primary, Decision: m.Resolver.Resolve(ctx, primarySpec, userText, history, budget)}
	considered := []Candidate{primary}

	sufficient := primary.Decision.Kind == intent.Discovery ||
		(primary.Decision.Kind == intent.EndpointCall && primary.Decision.Confidence >= m.ConfidenceThreshold)
	if sufficient {
		return Result{API: primary.API, Decision: primary.Decision, Considered: considered}
	}

	if m.Logger != nil {
		m.Logger.Debug("mesh primary uncertain, querying peers", "primary", m.Primary, "confidence", primary.Decision.Confidence)
	}

	best := primary
	for _, name := range sortedNames(specs) {
		if name == m.Primary {
			continue
		}
		d := m.Resolver.Resolve(ctx, specs[name], userText, history, budget)
		cand := Candidate{API: name, Decision: d}
		considered = append(considered, cand)

		improved := d.Kind != intent.Unknown && d.Confidence > best.Decision.Confidence+m.SwitchMargin
		discoveryUpgrade := d.Kind == intent.Discovery && best.Decision.Kind != intent.Discovery
		if improved || discoveryUpgrade {
			best = cand
		}
	}

	return Result{API: best.API, Decision: best.Decision, Considered: considered}
}

// ServiceDiscovery ranks every specification by an independent
// suitability score, then delegates intent resolution to the top-ranked
// one when its score clears MinSuitability.
type ServiceDiscovery struct {
	Resolver       Resolver
	MinSuitability float64
	Logger         *slog.Logger
}

func (s *ServiceDiscovery) Select(ctx context.Context, specs map[string]*spec.Specification, userText string, history []string, budget int) Result {
	var considered []Candidate
	for _, name := range sortedNames(specs) {
		score := s.Resolver.RateSuitability(ctx, specs[name], userText)
		considered = append(considered, Candidate{API: name, Suitability: score})
		if s.Logger != nil {
			s.Logger.Debug("suitability scored", "api", name, "score", score)
		}
	}
	// Highest score wins; name order breaks ties.
	sort.SliceStable(considered, func(i, j int) bool {
		return considered[i].Suitability > considered[j].Suitability
	})

	if len(considered) == 0 || considered[0].Suitability < s.MinSuitability {
		reasoning := fmt.Sprintf("no API scored at or above the %.2f suitability threshold", s.MinSuitability)
		var raw string
		if len(considered) > 0 {
			// Resolve the best-scoring candidate anyway, purely to
			// surface its rationale.
			top := considered[0]
			d := s.Resolver.Resolve(ctx, specs[top.API], userText, history, budget)
			considered[0].Decision = d
			reasoning = fmt.Sprintf("suitability low (%.2f). Best guess reasoning: %s", top.Suitability, d.Reasoning)
			raw = d.Raw
		}
		return Result{
			Decision:   intent.Decision{Kind: intent.Unknown, Reasoning: reasoning, Raw: raw},
			Considered: considered,
		}
	}

	top := considered[0]
	d := s.Resolver.Resolve(ctx, specs[top.API], userText, history, budget)
	d.Reasoning = fmt.Sprintf("service discovery chose API %q (suitability %.2f). %s", top.API, top.Suitability, d.Reasoning)
	considered[0].Decision = d
	return Result{API: top.API, Decision: d, Considered: considered}
}
