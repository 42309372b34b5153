package openaiengine

import (
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
)

func intPtr(i int) *int { return &i }

func TestToolCallAccumulator(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add([]openai.ToolCall{{
		Index: intPtr(0),
		ID:    "call-1",
		Function: openai.FunctionCall{
			Name:      "get-weather",
			Arguments: `{"loc`,
		},
	}})
	acc.add([]openai.ToolCall{{
		Index:    intPtr(0),
		Function: openai.FunctionCall{Arguments: `ation":"Oslo"}`},
	}})
	acc.add([]openai.ToolCall{{
		Index: intPtr(1),
		ID:    "call-2",
		Function: openai.FunctionCall{
			Name:      "get-mails",
			Arguments: "{}",
		},
	}})

	calls := acc.calls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].ID != "call-1" || calls[0].Name != "get-weather" {
		t.Fatalf("first call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"location":"Oslo"}` {
		t.Fatalf("arguments not reassembled: %q", calls[0].Arguments)
	}
	if calls[1].ID != "call-2" {
		t.Fatalf("second call = %+v", calls[1])
	}
}

func TestToolCallAccumulatorSkipsIncomplete(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add([]openai.ToolCall{{
		Index:    intPtr(0),
		Function: openai.FunctionCall{Arguments: `{"orphan":true}`},
	}})
	if got := acc.calls(); len(got) != 0 {
		t.Fatalf("incomplete call surfaced: %+v", got)
	}
}

func TestHandoffTarget(t *testing.T) {
	agent := &agents.Agent{Name: "general-agent", Handoffs: []string{"mail-agent"}}

	target, ok := handoffTarget(agent, "transfer_to_mail-agent")
	if !ok || target != "mail-agent" {
		t.Fatalf("target = %q, ok = %v", target, ok)
	}
	if _, ok := handoffTarget(agent, "transfer_to_unknown-agent"); ok {
		t.Fatalf("handoff to agent outside the graph accepted")
	}
	if _, ok := handoffTarget(agent, "get-weather"); ok {
		t.Fatalf("plain tool name treated as handoff")
	}
}

func TestChatToolsIncludeHandoffs(t *testing.T) {
	agent := &agents.Agent{
		Name:     "general-agent",
		Handoffs: []string{"mail-agent"},
	}

	list := chatTools(agent)
	if len(list) != 1 {
		t.Fatalf("got %d tools, want 1 handoff pseudo-tool", len(list))
	}
	if list[0].Function.Name != "transfer_to_mail-agent" {
		t.Fatalf("tool name = %q", list[0].Function.Name)
	}
}

func TestChatMessages(t *testing.T) {
	agent := &agents.Agent{
		Name:         "general-agent",
		Instructions: "Handle general requests",
		Handoffs:     []string{"mail-agent"},
	}
	history := []engine.Message{
		{Role: "user", Content: "weather please"},
		{Role: "assistant", ToolCalls: []engine.ToolCallRef{{ID: "call-1", Name: "get-weather", Arguments: `{"location":"Oslo"}`}}},
		{Role: "tool", ToolCallID: "call-1", Name: "get-weather", Content: `{"condition":"Sunny"}`},
		{Role: "assistant", Content: "It is sunny."},
	}

	msgs := chatMessages(agent, history)
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want system + 4", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("first role = %q", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "transfer_to_mail-agent") {
		t.Fatalf("system prompt lacks handoff hint: %q", msgs[0].Content)
	}
	if len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].Function.Name != "get-weather" {
		t.Fatalf("assistant tool calls = %+v", msgs[2].ToolCalls)
	}
	if msgs[3].Role != openai.ChatMessageRoleTool || msgs[3].ToolCallID != "call-1" {
		t.Fatalf("tool message = %+v", msgs[3])
	}
}
