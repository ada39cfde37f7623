package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/yourorg/apiagent/internal/agent"
	"github.com/yourorg/apiagent/internal/history"
	"github.com/yourorg/apiagent/internal/request"
	"github.com/yourorg/apiagent/pkg/types"
)

// memStore is an in-memory history.Store for seeding tests.
type memStore struct {
	items []types.Interaction
}

func (m *memStore) Save(it *types.Interaction) error {
	m.items = append(m.items, *it)
	return nil
}
func (m *memStore) List() ([]types.Interaction, error) { return m.items, nil }
func (m *memStore) Clear() error                       { m.items = nil; return nil }
func (m *memStore) Close() error                       { return nil }

func archived(text string) types.Interaction {
	return types.Interaction{
		NaturalLanguage: text,
		Request:         types.RequestRecord{API: "petstore", Method: "GET", Path: "/pets"},
		Response:        types.ResponseRecord{Status: 200},
	}
}

func TestSeedHistoryKeepsArchiveTail(t *testing.T) {
	store := &memStore{}
	for _, text := range []string{"first", "second", "third", "fourth"} {
		store.items = append(store.items, archived(text))
	}

	log := history.NewLog(3)
	seedHistory(log, store)

	if log.Len() != 3 {
		t.Fatalf("log len = %d", log.Len())
	}
	entries := log.Entries()
	if entries[0].NaturalLanguage != "second" || entries[2].NaturalLanguage != "fourth" {
		t.Fatalf("entries = %q, %q, %q", entries[0].NaturalLanguage, entries[1].NaturalLanguage, entries[2].NaturalLanguage)
	}

	// The resolver context must start from the newest archived turn.
	lines := log.ContextLines(3)
	if !strings.Contains(lines[0], `"fourth"`) {
		t.Fatalf("lines = %v", lines)
	}
}

func TestSeedHistoryEmptyArchive(t *testing.T) {
	log := history.NewLog(5)
	seedHistory(log, &memStore{})
	if log.Len() != 0 {
		t.Fatalf("log len = %d", log.Len())
	}
}

func confirmWith(t *testing.T, input string) (bool, string) {
	t.Helper()
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(input))
	turn := &agent.Turn{Plan: &request.Plan{Method: "get", URL: "https://api.test/pets"}}
	return confirmExecution(cmd, turn), out.String()
}

func TestConfirmExecution(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes", "y\n", true},
		{"yes word", "Yes\n", true},
		{"no", "n\n", false},
		{"empty defaults to no", "\n", false},
		{"closed input defaults to no", "", false},
		{"garbage defaults to no", "maybe\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, out := confirmWith(t, tc.input)
			if got != tc.want {
				t.Fatalf("confirm = %v, want %v", got, tc.want)
			}
			if !strings.Contains(out, "GET https://api.test/pets") {
				t.Errorf("prompt must show the call, got %q", out)
			}
		})
	}
}

const multiPathSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Multi", "version": "1.0.0"},
  "paths": {
    "/a": {"get": {"summary": "A", "responses": {"200": {"description": "ok"}}}},
    "/b": {"get": {"summary": "B", "responses": {"200": {"description": "ok"}}}},
    "/c": {"get": {"summary": "C", "responses": {"200": {"description": "ok"}}}}
  }
}`

func TestEndpointsLimitSpansPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.json")
	if err := os.WriteFile(path, []byte(multiPathSpec), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newEndpointsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--spec", path, "--limit", "1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("endpoints: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("output = %q, want header plus one row", out.String())
	}
	if !strings.Contains(lines[1], "/a") {
		t.Errorf("row = %q", lines[1])
	}
}
