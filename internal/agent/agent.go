// Package agent orchestrates one user turn end to end: coordination,
// intent resolution, auth, request assembly, execution and recording.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yourorg/apiagent/internal/auth"
	"github.com/yourorg/apiagent/internal/coordinate"
	"github.com/yourorg/apiagent/internal/creds"
	"github.com/yourorg/apiagent/internal/history"
	"github.com/yourorg/apiagent/internal/intent"
	"github.com/yourorg/apiagent/internal/request"
	"github.com/yourorg/apiagent/internal/spec"
	"github.com/yourorg/apiagent/pkg/types"
)

// Session holds the loaded specifications and collaborators for a
// sequence of turns. Turn handling is synchronous and single-goroutine.
type Session struct {
	Specs          map[string]*spec.Specification
	Active         string
	Strategy       coordinate.Strategy // nil selects single-API mode
	Resolver       *intent.Resolver
	Auth           *auth.Cache
	Creds          creds.Source
	History        *history.Log
	Archive        history.Store // optional
	HTTPClient     *http.Client
	DefaultBaseURL string
	EndpointBudget int
	Logger         *slog.Logger
}

// Turn is the outcome of one handled user turn. Plan and Curl are set
// only for endpoint calls that could be finalized; Outcome only when
// the call was executed and reached the transport.
type Turn struct {
	API          string
	Decision     intent.Decision
	Considered   []coordinate.Candidate
	AuthWarnings []string
	Plan         *request.Plan
	Curl         string
	Outcome      *request.Outcome
	ExecError    string
}

// HandleTurn resolves text to a decision and, for endpoint calls,
// assembles the request. When execute is true the call is performed and
// recorded; otherwise the finalized plan is returned for inspection.
// Errors are returned only for turns that cannot proceed to a plan;
// transport failures are data on the Turn.
func (s *Session) HandleTurn(ctx context.Context, text string, execute bool) (*Turn, error) {
	turn := &Turn{}

	if s.Strategy != nil && len(s.Specs) > 1 {
		result := s.Strategy.Select(ctx, s.Specs, text, s.contextLines(), s.EndpointBudget)
		turn.API = result.API
		turn.Decision = result.Decision
		turn.Considered = result.Considered
	} else {
		active, ok := s.Specs[s.Active]
		if !ok {
			return nil, fmt.Errorf("no active API specification %q", s.Active)
		}
		turn.API = s.Active
		turn.Decision = s.Resolver.Resolve(ctx, active, text, s.contextLines(), s.EndpointBudget)
	}

	switch turn.Decision.Kind {
	case intent.Unknown, intent.Discovery:
		return turn, nil
	}

	target, ok := s.Specs[turn.API]
	if !ok {
		return nil, fmt.Errorf("selected API %q is not loaded", turn.API)
	}
	op, ok := target.Operation(turn.Decision.Path, turn.Decision.Method)
	if !ok {
		return nil, fmt.Errorf("operation %s %s not found in API %q", strings.ToUpper(turn.Decision.Method), turn.Decision.Path, turn.API)
	}

	authHeaders, warnings := s.Auth.Resolve(ctx, target)
	turn.AuthWarnings = warnings

	details := request.Build(op, turn.Decision.Hints, target, authHeaders, s.Creds)
	filled, err := request.SubstitutePath(turn.Decision.Path, details.PathParams)
	if err != nil {
		return turn, err
	}
	base := target.BaseURL(s.Creds, s.DefaultBaseURL)

	turn.Plan = &request.Plan{
		API:          turn.API,
		Method:       turn.Decision.Method,
		PathTemplate: turn.Decision.Path,
		URL:          request.JoinBaseURL(base, filled),
		Headers:      details.Headers,
		Query:        details.Query,
		Body:         request.BodyPayload(details, turn.Decision.Hints),
		ContentType:  details.ContentType,
	}
	turn.Curl = request.CurlCommand(turn.Plan)

	if execute {
		s.Execute(ctx, text, turn)
	}
	return turn, nil
}

// Execute performs the turn's finalized plan and records the
// interaction. Callers that resolved with execute=false use this to run
// the plan after the user confirmed it.
func (s *Session) Execute(ctx context.Context, text string, turn *Turn) {
	outcome, execErr := request.Execute(ctx, s.HTTPClient, turn.Plan)
	if execErr != nil {
		turn.ExecError = execErr.Error()
		if s.Logger != nil {
			s.Logger.Warn("api call failed", "api", turn.API, "url", turn.Plan.URL, "error", execErr)
		}
	} else {
		turn.Outcome = outcome
		if s.Logger != nil {
			s.Logger.Info("api call executed", "api", turn.API, "method", strings.ToUpper(turn.Plan.Method), "url", turn.Plan.URL, "status", outcome.Status)
		}
	}

	s.record(text, turn)
}

const maxArchivedBody = 5000

// record appends the executed turn to the in-memory window and, when
// configured, the archive. Credential-shaped values are masked first.
func (s *Session) record(text string, turn *Turn) {
	it := types.Interaction{
		NaturalLanguage: text,
		Request: types.RequestRecord{
			API:     turn.API,
			Method:  strings.ToUpper(turn.Plan.Method),
			Path:    turn.Plan.PathTemplate,
			URL:     turn.Plan.URL,
			Headers: creds.MaskHeaders(turn.Plan.Headers),
			Query:   turn.Plan.Query,
		},
	}
	if len(turn.Plan.Body) > 0 {
		if data, err := json.Marshal(turn.Plan.Body); err == nil {
			it.Request.Body = string(data)
		}
	}
	if turn.ExecError != "" {
		it.Response.Error = turn.ExecError
	} else if turn.Outcome != nil {
		it.Response.Status = turn.Outcome.Status
		body := string(turn.Outcome.Body)
		if len(body) > maxArchivedBody {
			body = body[:maxArchivedBody]
		}
		it.Response.Body = body
	}

	s.History.Add(it)
	if s.Archive != nil {
		if err := s.Archive.Save(&it); err != nil && s.Logger != nil {
			s.Logger.Warn("could not archive interaction", "error", err)
		}
	}
}

func (s *Session) contextLines() []string {
	if s.History == nil {
		return nil
	}
	return s.History.ContextLines(3)
}
