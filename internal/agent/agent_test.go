package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yourorg/apiagent/internal/auth"
	"github.com/yourorg/apiagent/internal/coordinate"
	"github.com/yourorg/apiagent/internal/creds"
	"github.com/yourorg/apiagent/internal/history"
	"github.com/yourorg/apiagent/internal/intent"
	"github.com/yourorg/apiagent/internal/request"
	"github.com/yourorg/apiagent/internal/spec"
	"github.com/yourorg/apiagent/pkg/types"
)

// fakeChat replays one canned oracle reply.
type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Chat(context.Context, string, string) (string, error) {
	return f.reply, f.err
}

// memStore is an in-memory history.Store.
type memStore struct {
	saved []types.Interaction
}

func (m *memStore) Save(it *types.Interaction) error {
	m.saved = append(m.saved, *it)
	return nil
}
func (m *memStore) List() ([]types.Interaction, error) { return m.saved, nil }
func (m *memStore) Clear() error                       { m.saved = nil; return nil }
func (m *memStore) Close() error                       { return nil }

func petSpec(t *testing.T, serverURL string) *spec.Specification {
	t.Helper()
	doc := fmt.Sprintf(`{
	  "openapi": "3.0.3",
	  "info": {"title": "Pet Store", "version": "1.0.0"},
	  "servers": [{"url": %q}],
	  "components": {"securitySchemes": {
	    "KeyAuth": {"type": "apiKey", "in": "header", "name": "X-API-Key"}
	  }},
	  "security": [{"KeyAuth": []}],
	  "paths": {
	    "/pets": {"get": {
	      "parameters": [{"name": "limit", "in": "query", "schema": {"type": "integer"}}],
	      "responses": {"200": {"description": "ok"}}
	    }},
	    "/pets/{petId}": {"get": {
	      "parameters": [{"name": "petId", "in": "path", "required": true, "schema": {"type": "string"}}],
	      "responses": {"200": {"description": "ok"}}
	    }}
	  }
	}`, serverURL)
	s, err := spec.Load("petstore", []byte(doc), spec.FormatJSON)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	return s
}

func newSession(t *testing.T, s *spec.Specification, reply string) *Session {
	t.Helper()
	src := creds.Static{"APIKEY_KEYAUTH": "secret-key-123456"}
	return &Session{
		Specs:          map[string]*spec.Specification{"petstore": s},
		Active:         "petstore",
		Resolver:       &intent.Resolver{Oracle: &fakeChat{reply: reply}},
		Auth:           auth.NewCache(&auth.Resolver{Source: src}, 0),
		Creds:          src,
		History:        history.NewLog(10),
		EndpointBudget: 50,
	}
}

func TestHandleTurnDryRun(t *testing.T) {
	s := petSpec(t, "http://api.test")
	sess := newSession(t, s, `{"intent":"endpoint_call","confidence":0.9,"path":"/pets","method":"GET",
		"parameters":{"limit":3},"reasoning":"list"}`)

	turn, err := sess.HandleTurn(context.Background(), "show 3 pets", false)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if turn.Plan == nil {
		t.Fatal("plan not finalized")
	}
	if turn.Plan.URL != "http://api.test/pets" {
		t.Errorf("url = %q", turn.Plan.URL)
	}
	if turn.Plan.Query["limit"] != "3" {
		t.Errorf("query = %v", turn.Plan.Query)
	}
	if turn.Plan.Headers["X-API-Key"] != "secret-key-123456" {
		t.Errorf("headers = %v", turn.Plan.Headers)
	}
	if !strings.HasPrefix(turn.Curl, "curl -X GET") {
		t.Errorf("curl = %q", turn.Curl)
	}
	if turn.Outcome != nil {
		t.Error("dry run must not execute")
	}
	if sess.History.Len() != 0 {
		t.Error("dry run must not be recorded")
	}
}

func TestHandleTurnExecutesAndRecords(t *testing.T) {
	var gotKey string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		fmt.Fprint(w, `{"pets":[]}`)
	}))
	defer api.Close()

	s := petSpec(t, api.URL)
	sess := newSession(t, s, `{"intent":"endpoint_call","confidence":0.9,"path":"/pets","method":"GET","reasoning":"list"}`)
	archive := &memStore{}
	sess.Archive = archive
	sess.HTTPClient = api.Client()

	turn, err := sess.HandleTurn(context.Background(), "list pets", true)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if turn.Outcome == nil || turn.Outcome.Status != 200 {
		t.Fatalf("outcome = %+v, exec error %q", turn.Outcome, turn.ExecError)
	}
	if gotKey != "secret-key-123456" {
		t.Errorf("api key sent = %q", gotKey)
	}

	if sess.History.Len() != 1 {
		t.Fatalf("history len = %d", sess.History.Len())
	}
	rec := sess.History.Entries()[0]
	if rec.Request.Headers["X-API-Key"] != "se****56" {
		t.Errorf("recorded header must be masked, got %q", rec.Request.Headers["X-API-Key"])
	}
	if rec.Response.Status != 200 || rec.Response.Body != `{"pets":[]}` {
		t.Errorf("recorded response = %+v", rec.Response)
	}
	if len(archive.saved) != 1 {
		t.Errorf("archive saved = %d", len(archive.saved))
	}
}

func TestExecuteRunsPlanResolvedWithoutExecution(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pets":[]}`)
	}))
	defer api.Close()

	s := petSpec(t, api.URL)
	sess := newSession(t, s, `{"intent":"endpoint_call","confidence":0.9,"path":"/pets","method":"GET","reasoning":"list"}`)
	sess.HTTPClient = api.Client()

	// Resolve first, execute after the caller approved the plan.
	turn, err := sess.HandleTurn(context.Background(), "list pets", false)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if turn.Outcome != nil || sess.History.Len() != 0 {
		t.Fatal("nothing may run before the plan is approved")
	}

	sess.Execute(context.Background(), "list pets", turn)
	if turn.Outcome == nil || turn.Outcome.Status != 200 {
		t.Fatalf("outcome = %+v, exec error %q", turn.Outcome, turn.ExecError)
	}
	if sess.History.Len() != 1 {
		t.Fatalf("history len = %d", sess.History.Len())
	}
}

func TestHandleTurnDiscoveryShortCircuits(t *testing.T) {
	s := petSpec(t, "http://api.test")
	sess := newSession(t, s, `{"intent":"discovery","confidence":0.95,"reasoning":"help",
		"discovery_response":"This API manages pets."}`)

	turn, err := sess.HandleTurn(context.Background(), "what can you do", true)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if turn.Decision.Kind != intent.Discovery || turn.Plan != nil {
		t.Fatalf("turn = %+v", turn)
	}
	if sess.History.Len() != 0 {
		t.Error("discovery turns are not recorded")
	}
}

func TestHandleTurnMissingPathParam(t *testing.T) {
	s := petSpec(t, "http://api.test")
	sess := newSession(t, s, `{"intent":"endpoint_call","confidence":0.9,"path":"/pets/{petId}","method":"GET","reasoning":"get"}`)

	turn, err := sess.HandleTurn(context.Background(), "get that pet", true)
	var missing *request.MissingParamsError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v", err)
	}
	if missing.Names[0] != "petId" {
		t.Errorf("names = %v", missing.Names)
	}
	if turn == nil || turn.Decision.Kind != intent.EndpointCall {
		t.Errorf("turn should still carry the decision: %+v", turn)
	}
}

func TestHandleTurnTransportFailureIsRecorded(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	api.Close() // refuse all connections

	s := petSpec(t, api.URL)
	sess := newSession(t, s, `{"intent":"endpoint_call","confidence":0.9,"path":"/pets","method":"GET","reasoning":"list"}`)

	turn, err := sess.HandleTurn(context.Background(), "list pets", true)
	if err != nil {
		t.Fatalf("transport failures are turn data, not errors: %v", err)
	}
	if turn.ExecError == "" {
		t.Fatal("exec error not captured")
	}
	if sess.History.Len() != 1 {
		t.Fatalf("history len = %d", sess.History.Len())
	}
	if sess.History.Entries()[0].Response.Error == "" {
		t.Error("recorded response must carry the error")
	}
}

func TestHandleTurnUnknownActiveAPI(t *testing.T) {
	s := petSpec(t, "http://api.test")
	sess := newSession(t, s, `{}`)
	sess.Active = "ghost"
	if _, err := sess.HandleTurn(context.Background(), "anything", false); err == nil {
		t.Fatal("expected error for unknown active API")
	}
}

// fixedStrategy always selects the same result.
type fixedStrategy struct {
	result coordinate.Result
	called bool
}

func (f *fixedStrategy) Select(context.Context, map[string]*spec.Specification, string, []string, int) coordinate.Result {
	f.called = true
	return f.result
}

func TestHandleTurnUsesStrategyForMultipleSpecs(t *testing.T) {
	a := petSpec(t, "http://api.test")
	b := petSpec(t, "http://api.test")
	sess := newSession(t, a, `unused`)
	sess.Specs["other"] = b
	strat := &fixedStrategy{result: coordinate.Result{
		Decision: intent.Decision{Kind: intent.Unknown, Reasoning: "nothing fits"},
	}}
	sess.Strategy = strat

	turn, err := sess.HandleTurn(context.Background(), "hmm", false)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strat.called {
		t.Fatal("strategy not consulted")
	}
	if turn.Decision.Kind != intent.Unknown {
		t.Fatalf("decision = %+v", turn.Decision)
	}
}

func TestHandleTurnSingleSpecIgnoresStrategy(t *testing.T) {
	s := petSpec(t, "http://api.test")
	sess := newSession(t, s, `{"intent":"endpoint_call","confidence":0.9,"path":"/pets","method":"GET","reasoning":"r"}`)
	strat := &fixedStrategy{}
	sess.Strategy = strat

	if _, err := sess.HandleTurn(context.Background(), "list pets", false); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if strat.called {
		t.Fatal("strategy must be bypassed with one loaded spec")
	}
}
