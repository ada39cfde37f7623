package history

import (
	"fmt"
	"strings"
	"testing"

	"github.com/yourorg/apiagent/pkg/types"
)

func interaction(i int) types.Interaction {
	return types.Interaction{
		NaturalLanguage: fmt.Sprintf("request %d", i),
		Request:         types.RequestRecord{API: "petstore", Method: "GET", Path: "/pets"},
		Response:        types.ResponseRecord{Status: 200},
	}
}

func TestLogEvictsOldest(t *testing.T) {
	l := NewLog(3)
	for i := 1; i <= 5; i++ {
		l.Add(interaction(i))
	}
	if l.Len() != 3 {
		t.Fatalf("len = %d", l.Len())
	}
	entries := l.Entries()
	if entries[0].NaturalLanguage != "request 3" || entries[2].NaturalLanguage != "request 5" {
		t.Fatalf("entries = %v", entries)
	}
}

func TestLogDefaultCapacity(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		l.Add(interaction(i))
	}
	if l.Len() != DefaultCapacity {
		t.Fatalf("len = %d, want %d", l.Len(), DefaultCapacity)
	}
}

func TestContextLinesNewestFirst(t *testing.T) {
	l := NewLog(10)
	for i := 1; i <= 5; i++ {
		l.Add(interaction(i))
	}
	lines := l.ContextLines(3)
	if len(lines) != 3 {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.Contains(lines[0], `"request 5"`) || !strings.Contains(lines[2], `"request 3"`) {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.Contains(lines[0], "GET /pets (API: petstore). Result: Status 200") {
		t.Fatalf("line format = %q", lines[0])
	}
}

func TestContextLinesShowsError(t *testing.T) {
	l := NewLog(10)
	it := interaction(1)
	it.Response = types.ResponseRecord{Error: "connection refused"}
	l.Add(it)
	lines := l.ContextLines(3)
	if !strings.Contains(lines[0], "Result: connection refused") {
		t.Fatalf("line = %q", lines[0])
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := NewLog(5)
	l.Add(interaction(1))
	entries := l.Entries()
	entries[0].NaturalLanguage = "mutated"
	if l.Entries()[0].NaturalLanguage != "request 1" {
		t.Fatal("internal entries leaked to callers")
	}
}
