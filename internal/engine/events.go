package engine

import "encoding/json"

// Event constructors. Every engine implementation emits these exact wire
// shapes so clients can fold any engine's stream with the same reducer. The
// schema follows the upstream agents SDK: raw model events carry deltas,
// run item events carry finalized structural items, and agent-updated
// events announce handoffs.

type agentRef struct {
	Name string `json:"name"`
}

type rawModelEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type runItemEvent struct {
	Type string `json:"type"`
	Item any    `json:"item"`
}

func marshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

func TextDeltaEvent(delta string) json.RawMessage {
	return marshal(rawModelEvent{
		Type: "raw_model_stream_event",
		Data: struct {
			Type  string `json:"type"`
			Delta string `json:"delta"`
		}{"output_text_delta", delta},
	})
}

func TextDoneEvent() json.RawMessage {
	return marshal(rawModelEvent{
		Type: "raw_model_stream_event",
		Data: struct {
			Type string `json:"type"`
		}{"output_text_done"},
	})
}

func AgentUpdatedEvent(name string) json.RawMessage {
	return marshal(struct {
		Type  string   `json:"type"`
		Agent agentRef `json:"agent"`
	}{"agent_updated_stream_event", agentRef{name}})
}

func MessageOutputEvent(agent, messageID, role, text string) json.RawMessage {
	type contentPart struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	return marshal(runItemEvent{
		Type: "run_item_stream_event",
		Item: struct {
			Type    string   `json:"type"`
			Agent   agentRef `json:"agent"`
			RawItem struct {
				ID      string        `json:"id"`
				Role    string        `json:"role"`
				Status  string        `json:"status"`
				Content []contentPart `json:"content"`
			} `json:"rawItem"`
		}{
			Type:  "message_output_item",
			Agent: agentRef{agent},
			RawItem: struct {
				ID      string        `json:"id"`
				Role    string        `json:"role"`
				Status  string        `json:"status"`
				Content []contentPart `json:"content"`
			}{messageID, role, "completed", []contentPart{{"output_text", text}}},
		},
	})
}

type toolRawItem struct {
	CallID    string `json:"callId"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Status    string `json:"status,omitempty"`
}

func ToolCallEvent(agent, callID, name, arguments string) json.RawMessage {
	return marshal(runItemEvent{
		Type: "run_item_stream_event",
		Item: struct {
			Type    string      `json:"type"`
			Agent   agentRef    `json:"agent"`
			RawItem toolRawItem `json:"rawItem"`
		}{"tool_call_item", agentRef{agent}, toolRawItem{callID, name, arguments, "in_progress"}},
	})
}

func ToolCallOutputEvent(agent, callID, name, output string) json.RawMessage {
	return marshal(runItemEvent{
		Type: "run_item_stream_event",
		Item: struct {
			Type    string      `json:"type"`
			Agent   agentRef    `json:"agent"`
			RawItem toolRawItem `json:"rawItem"`
			Output  string      `json:"output"`
		}{"tool_call_output_item", agentRef{agent}, toolRawItem{CallID: callID, Name: name, Status: "completed"}, output},
	})
}

func ToolApprovalEvent(agent, callID, name, arguments string) json.RawMessage {
	return marshal(runItemEvent{
		Type: "run_item_stream_event",
		Item: struct {
			Type    string      `json:"type"`
			Agent   agentRef    `json:"agent"`
			RawItem toolRawItem `json:"rawItem"`
		}{"tool_approval_item", agentRef{agent}, toolRawItem{CallID: callID, Name: name, Arguments: arguments}},
	})
}

func ReasoningEvent(agent, id, text string) json.RawMessage {
	type contentPart struct {
		Text string `json:"text"`
	}
	return marshal(runItemEvent{
		Type: "run_item_stream_event",
		Item: struct {
			Type    string   `json:"type"`
			Agent   agentRef `json:"agent"`
			RawItem struct {
				ID      string        `json:"id"`
				Content []contentPart `json:"content"`
			} `json:"rawItem"`
		}{
			Type:  "reasoning_item",
			Agent: agentRef{agent},
			RawItem: struct {
				ID      string        `json:"id"`
				Content []contentPart `json:"content"`
			}{id, []contentPart{{text}}},
		},
	})
}

func HandoffEvent(source, target, callID, output string) json.RawMessage {
	return marshal(runItemEvent{
		Type: "run_item_stream_event",
		Item: struct {
			Type        string   `json:"type"`
			SourceAgent agentRef `json:"sourceAgent"`
			TargetAgent agentRef `json:"targetAgent"`
			RawItem     struct {
				CallID string `json:"callId"`
				Output string `json:"output"`
			} `json:"rawItem"`
		}{
			Type:        "handoff_output_item",
			SourceAgent: agentRef{source},
			TargetAgent: agentRef{target},
			RawItem: struct {
				CallID string `json:"callId"`
				Output string `json:"output"`
			}{callID, output},
		},
	})
}
