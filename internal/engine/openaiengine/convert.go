package openaiengine

import (
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
)

const handoffPrefix = "transfer_to_"

// HandoffToolName is the pseudo-tool a model calls to transfer the
// conversation to another agent.
func HandoffToolName(target string) string {
	return handoffPrefix + target
}

func handoffTarget(agent *agents.Agent, toolName string) (string, bool) {
	if !strings.HasPrefix(toolName, handoffPrefix) {
		return "", false
	}
	target := strings.TrimPrefix(toolName, handoffPrefix)
	for _, h := range agent.Handoffs {
		if h == target {
			return target, true
		}
	}
	return "", false
}

func systemPrompt(agent *agents.Agent) string {
	var b strings.Builder
	b.WriteString(agent.Instructions)
	if len(agent.Handoffs) > 0 {
		b.WriteString("\n\nYou can transfer this conversation to another agent when it is better suited to help:")
		for _, h := range agent.Handoffs {
			b.WriteString("\n- call ")
			b.WriteString(HandoffToolName(h))
			b.WriteString(" to hand off to ")
			b.WriteString(h)
		}
	}
	return b.String()
}

func chatMessages(agent *agents.Agent, history []engine.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(agent),
	})
	for _, msg := range history {
		converted := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		if msg.Role == "tool" {
			converted.Role = openai.ChatMessageRoleTool
			converted.ToolCallID = msg.ToolCallID
			converted.Name = msg.Name
		}
		if len(msg.ToolCalls) > 0 {
			converted.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				converted.ToolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}
		out = append(out, converted)
	}
	return out
}

func chatTools(agent *agents.Agent) []openai.Tool {
	var out []openai.Tool
	for _, t := range agent.Tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	for _, h := range agent.Handoffs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        HandoffToolName(h),
				Description: "Transfer the conversation to the " + h + " agent",
				Parameters:  json.RawMessage(`{"type":"object","additionalProperties":false}`),
			},
		})
	}
	return out
}

// toolCallAccumulator merges streamed tool-call fragments. The API streams
// each call's id and name in its first chunk and the JSON arguments in
// pieces after that, keyed by index.
type toolCallAccumulator struct {
	order   []int
	byIndex map[int]*engine.ToolCallRef
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: map[int]*engine.ToolCallRef{}}
}

func (a *toolCallAccumulator) add(deltas []openai.ToolCall) {
	for _, tc := range deltas {
		index := 0
		if tc.Index != nil {
			index = *tc.Index
		}
		ref, ok := a.byIndex[index]
		if !ok {
			ref = &engine.ToolCallRef{}
			a.byIndex[index] = ref
			a.order = append(a.order, index)
		}
		if tc.ID != "" {
			ref.ID = tc.ID
		}
		if tc.Function.Name != "" {
			ref.Name = tc.Function.Name
		}
		if tc.Function.Arguments != "" {
			ref.Arguments += tc.Function.Arguments
		}
	}
}

func (a *toolCallAccumulator) calls() []engine.ToolCallRef {
	var out []engine.ToolCallRef
	for _, index := range a.order {
		ref := a.byIndex[index]
		if ref.ID == "" || ref.Name == "" {
			continue
		}
		out = append(out, *ref)
	}
	return out
}
