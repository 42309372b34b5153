package agents

import (
	"testing"

	"github.com/flitsinc/agent-sessions/internal/tools"
)

func TestNewGraphValidation(t *testing.T) {
	a := &Agent{Name: "a", Handoffs: []string{"b"}}
	b := &Agent{Name: "b"}

	if _, err := NewGraph("a", a, b); err != nil {
		t.Fatalf("valid graph rejected: %v", err)
	}
	if _, err := NewGraph("a"); err == nil {
		t.Fatalf("empty graph accepted")
	}
	if _, err := NewGraph("a", a); err == nil {
		t.Fatalf("dangling handoff accepted")
	}
	if _, err := NewGraph("missing", a, b); err == nil {
		t.Fatalf("unknown entry accepted")
	}
	if _, err := NewGraph("a", a, &Agent{Name: "a"}, b); err == nil {
		t.Fatalf("duplicate agent accepted")
	}
	if _, err := NewGraph("a", a, &Agent{}, b); err == nil {
		t.Fatalf("unnamed agent accepted")
	}
}

func TestGraphCyclesAllowed(t *testing.T) {
	a := &Agent{Name: "a", Handoffs: []string{"b"}}
	b := &Agent{Name: "b", Handoffs: []string{"a"}}
	g, err := NewGraph("a", a, b)
	if err != nil {
		t.Fatalf("cyclic graph rejected: %v", err)
	}
	if g.Entry().Name != "a" {
		t.Fatalf("entry = %q", g.Entry().Name)
	}
	if got, ok := g.Get("b"); !ok || got.Name != "b" {
		t.Fatalf("lookup b = %v, %v", got, ok)
	}
}

func TestDefaultGraph(t *testing.T) {
	g, err := Default(tools.Builtin())
	if err != nil {
		t.Fatalf("default graph: %v", err)
	}

	entry := g.Entry()
	if entry.Name != "general-agent" {
		t.Fatalf("entry = %q", entry.Name)
	}
	if len(entry.Handoffs) != 1 || entry.Handoffs[0] != "mail-agent" {
		t.Fatalf("handoffs = %v", entry.Handoffs)
	}

	mail, ok := g.Get("mail-agent")
	if !ok {
		t.Fatalf("mail-agent missing")
	}
	names := map[string]bool{}
	for _, tool := range mail.Tools {
		names[tool.Name] = true
	}
	if !names["get-mails"] || !names["send-mail"] {
		t.Fatalf("mail-agent tools = %v", names)
	}
}
