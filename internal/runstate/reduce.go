package runstate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/flitsinc/agent-sessions/internal/idgen"
)

type agentName struct {
	Name string `json:"name"`
}

type frameEnvelope struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Data  json.RawMessage `json:"data"`
	Agent *agentName      `json:"agent"`
	Item  json.RawMessage `json:"item"`
}

type streamingData struct {
	ConversationID string `json:"conversationId"`
}

// Reduce folds one raw frame into the state. It accepts any byte payload;
// frames that do not parse or carry an unrecognized shape leave the state
// unchanged (forward compatibility).
func Reduce(state RunState, raw []byte) RunState {
	var frame frameEnvelope
	if err := json.Unmarshal(raw, &frame); err != nil {
		return state
	}

	switch frame.Type {
	case "local_user_message":
		// The optimistic local echo: the only frame not produced by the
		// server.
		s := state.clone()
		id := idgen.New()
		s.upsertMessage(Message{ID: id, Role: "user", Text: frame.Text, Done: true})
		done := true
		s.upsertTimelineMessage(timelineMessageOpts{id: id, role: "user", addText: frame.Text, done: &done})
		return s

	case "streaming":
		var data streamingData
		if err := json.Unmarshal(frame.Data, &data); err != nil || data.ConversationID == "" {
			return state
		}
		// A new run is starting; never append deltas onto a message left
		// over from the previous one.
		s := state.clone()
		s.ConversationID = data.ConversationID
		s.liveMessageID = ""
		return s

	case "complete":
		// Run over. Clear the live flags without disturbing seq order.
		s := state.clone()
		s.liveMessageID = ""
		return s

	case "agent_updated_stream_event":
		if frame.Agent == nil || frame.Agent.Name == "" {
			return state
		}
		s := state.clone()
		s.CurrentAgent = frame.Agent.Name
		return s

	case "raw_model_stream_event":
		return reduceRawModel(state, frame.Data)

	case "run_item_stream_event":
		return reduceRunItem(state, frame.Item)
	}

	return state
}

type rawModelInner struct {
	Type    string `json:"type"`
	Delta   string `json:"delta"`
	Object  string `json:"object"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	ToolCallID string          `json:"toolCallId"`
	CallID     string          `json:"callId"`
	ToolName   string          `json:"toolName"`
	Name       string          `json:"name"`
	Input      json.RawMessage `json:"input"`
}

type rawModelData struct {
	Type  string         `json:"type"`
	Delta string         `json:"delta"`
	Event *rawModelInner `json:"event"`
}

func reduceRawModel(state RunState, raw []byte) RunState {
	var data rawModelData
	if err := json.Unmarshal(raw, &data); err != nil {
		return state
	}

	if delta := extractTextDelta(data); delta != "" {
		s := state.clone()
		id := s.liveMessageID
		if id == "" {
			id = idgen.New()
		}
		prev, _ := s.findMessage(id)
		merged := Message{
			ID:     id,
			Agent:  prev.Agent,
			Role:   "assistant",
			Text:   prev.Text + delta,
			Images: prev.Images,
			Done:   false,
		}
		s.upsertMessage(merged)
		s.upsertTimelineMessage(timelineMessageOpts{id: id, agent: prev.Agent, role: "assistant", addText: delta})
		s.liveMessageID = id
		return s
	}

	if isTextDone(data) {
		if state.liveMessageID == "" {
			return state
		}
		prev, ok := state.findMessage(state.liveMessageID)
		if !ok {
			return state
		}
		s := state.clone()
		prev.Done = true
		s.upsertMessage(prev)
		done := true
		s.upsertTimelineMessage(timelineMessageOpts{id: s.liveMessageID, done: &done})
		return s
	}

	// Early tool signals surface a call before its structural item
	// arrives.
	if callID, name, args, ok := extractToolSignal(data); ok {
		s := state.clone()
		prev := s.ToolCalls[callID]
		arguments := args
		if arguments == "" {
			arguments = prev.Arguments
		}
		status := prev.Status
		if status == "" {
			status = StatusInProgress
		}
		merged := ToolCall{
			ID:        callID,
			Agent:     prev.Agent,
			Name:      name,
			Arguments: arguments,
			Status:    status,
			Output:    prev.Output,
		}
		s.ToolCalls[callID] = merged
		s.upsertTimelineToolCall(merged)
		return s
	}

	return state
}

func extractTextDelta(data rawModelData) string {
	if (data.Type == "output_text_delta" || data.Type == "response.output_text.delta") && data.Delta != "" {
		return data.Delta
	}
	if ev := data.Event; ev != nil {
		if ev.Type == "response.output_text.delta" && ev.Delta != "" {
			return ev.Delta
		}
		if ev.Object == "chat.completion.chunk" && len(ev.Choices) > 0 {
			return ev.Choices[0].Delta.Content
		}
	}
	return ""
}

func isTextDone(data rawModelData) bool {
	switch data.Type {
	case "output_text_done", "response.output_text.done", "response.completed":
		return true
	}
	if ev := data.Event; ev != nil {
		switch ev.Type {
		case "response.output_text.done", "response.completed":
			return true
		}
	}
	return false
}

func extractToolSignal(data rawModelData) (callID, name, args string, ok bool) {
	ev := data.Event
	if ev == nil || ev.Type != "tool-call" {
		return "", "", "", false
	}
	callID = ev.ToolCallID
	if callID == "" {
		callID = ev.CallID
	}
	name = ev.ToolName
	if name == "" {
		name = ev.Name
	}
	if callID == "" || name == "" {
		return "", "", "", false
	}
	return callID, name, asString(ev.Input), true
}

type contentPart struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Image string `json:"image"`
}

type runItem struct {
	Type        string          `json:"type"`
	Agent       *agentName      `json:"agent"`
	SourceAgent *agentName      `json:"sourceAgent"`
	TargetAgent *agentName      `json:"targetAgent"`
	Output      json.RawMessage `json:"output"`
	RawItem     struct {
		ID         string          `json:"id"`
		Role       string          `json:"role"`
		Status     string          `json:"status"`
		CallID     string          `json:"callId"`
		Name       string          `json:"name"`
		Arguments  json.RawMessage `json:"arguments"`
		Output     json.RawMessage `json:"output"`
		Content    []contentPart   `json:"content"`
		RawContent []contentPart   `json:"rawContent"`
	} `json:"rawItem"`
}

func reduceRunItem(state RunState, raw []byte) RunState {
	var item runItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return state
	}

	switch item.Type {
	case "message_output_item":
		return reduceMessageOutput(state, item)
	case "tool_call_item":
		return reduceToolCall(state, item)
	case "tool_call_output_item":
		return reduceToolOutput(state, item)
	case "tool_approval_item":
		return reduceApproval(state, item)
	case "reasoning_item":
		return reduceReasoning(state, item)
	case "handoff_output_item":
		return reduceHandoff(state, item)
	}
	return state
}

func reduceMessageOutput(state RunState, item runItem) RunState {
	s := state.clone()
	id := item.RawItem.ID
	if id == "" {
		id = s.liveMessageID
	}
	if id == "" {
		id = idgen.New()
	}
	role := item.RawItem.Role
	if role == "" {
		role = "assistant"
	}
	agent := agentOf(item.Agent)
	var images []string
	for _, part := range item.RawItem.Content {
		if part.Type == "image" && part.Image != "" {
			images = append(images, part.Image)
		}
	}
	done := item.RawItem.Status == "completed"

	// Text flows from deltas; the structural item only supplies metadata
	// and non-text attachments. Images accumulate, never replace.
	prev, _ := s.findMessage(id)
	merged := Message{
		ID:     id,
		Agent:  agent,
		Role:   role,
		Text:   prev.Text,
		Images: append(append([]string(nil), prev.Images...), images...),
		Done:   done,
	}
	s.upsertMessage(merged)
	s.upsertTimelineMessage(timelineMessageOpts{id: id, agent: agent, role: role, images: images, done: &done})
	s.liveMessageID = id
	return s
}

func reduceToolCall(state RunState, item runItem) RunState {
	s := state.clone()
	id := callIDOf(item)
	name := item.RawItem.Name
	if name == "" {
		name = "unknown_tool"
	}
	status := item.RawItem.Status
	if status == "" {
		status = StatusInProgress
	}
	call := ToolCall{
		ID:        id,
		Agent:     agentOf(item.Agent),
		Name:      name,
		Arguments: asString(item.RawItem.Arguments),
		Status:    status,
	}
	s.ToolCalls[id] = call
	s.upsertTimelineToolCall(call)
	return s
}

func reduceToolOutput(state RunState, item runItem) RunState {
	s := state.clone()
	id := callIDOf(item)
	prev, ok := s.ToolCalls[id]
	if !ok {
		// Out-of-order delivery: synthesize a placeholder call so the
		// output has something to attach to.
		prev = ToolCall{
			ID:     id,
			Agent:  agentOf(item.Agent),
			Name:   "unknown_tool",
			Status: StatusInProgress,
		}
	}
	status := item.RawItem.Status
	if status == "" {
		status = StatusCompleted
	}
	prev.Output = asString(item.Output)
	prev.Status = status
	s.ToolCalls[id] = prev
	s.appendTimelineToolOutput(id, prev.Agent, prev.Name, prev.Output)
	return s
}

func reduceApproval(state RunState, item runItem) RunState {
	id := callIDOf(item)
	for _, a := range state.Approvals {
		if a.ID == id {
			// Duplicate delivery; approvals are recorded once per call id.
			return state
		}
	}
	s := state.clone()
	name := item.RawItem.Name
	if name == "" {
		name = "unknown_tool"
	}
	approval := Approval{
		ID:        id,
		Agent:     agentOf(item.Agent),
		ToolName:  name,
		Arguments: asString(item.RawItem.Arguments),
	}
	s.Approvals = append(s.Approvals, approval)
	s.Timeline = append(s.Timeline, TimelineEntry{
		Kind:      KindApproval,
		ID:        id,
		Seq:       s.nextSeq(),
		Agent:     approval.Agent,
		Name:      approval.ToolName,
		Arguments: approval.Arguments,
	})
	return s
}

func reduceReasoning(state RunState, item runItem) RunState {
	s := state.clone()
	id := item.RawItem.ID
	if id == "" {
		id = idgen.New()
	}
	agent := agentOf(item.Agent)
	var parts []string
	for _, p := range append(append([]contentPart(nil), item.RawItem.RawContent...), item.RawItem.Content...) {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	text := strings.Join(parts, "\n")
	s.Reasoning = append(s.Reasoning, Reasoning{ID: id, Agent: agent, Text: text})
	seq := s.nextSeq()
	s.Timeline = append(s.Timeline, TimelineEntry{
		Kind:  KindReasoning,
		ID:    "reason:" + id + ":" + strconv.Itoa(seq),
		Seq:   seq,
		Agent: agent,
		Text:  text,
	})
	return s
}

func reduceHandoff(state RunState, item runItem) RunState {
	s := state.clone()
	id := callIDOf(item)
	source := agentOf(item.SourceAgent)
	if source == "" {
		source = agentOf(item.Agent)
	}
	if source == "" {
		source = "unknown"
	}
	target := agentOf(item.TargetAgent)
	if target == "" {
		target = "unknown"
	}
	summary := summarize(item.RawItem.Output)
	s.Handoffs = append(s.Handoffs, Handoff{ID: id, SourceAgent: source, TargetAgent: target, PayloadSummary: summary})
	s.Timeline = append(s.Timeline, TimelineEntry{
		Kind:        KindHandoff,
		ID:          "handoff:" + id,
		Seq:         s.nextSeq(),
		SourceAgent: source,
		TargetAgent: target,
		Summary:     summary,
	})
	return s
}

type timelineMessageOpts struct {
	id      string
	agent   string
	role    string
	addText string
	images  []string
	done    *bool
}

// upsertTimelineMessage extends an existing message card in place (its seq
// is fixed at first appearance) or appends a new one.
func (s *RunState) upsertTimelineMessage(opts timelineMessageOpts) {
	if i := s.findLastTimeline(KindMessage, opts.id); i >= 0 {
		cur := s.Timeline[i]
		cur.Text += opts.addText
		cur.Images = append(append([]string(nil), cur.Images...), opts.images...)
		if opts.agent != "" {
			cur.Agent = opts.agent
		}
		if opts.done != nil {
			cur.Done = *opts.done
		}
		s.Timeline[i] = cur
		return
	}
	role := opts.role
	if role == "" {
		role = "assistant"
	}
	entry := TimelineEntry{
		Kind:   KindMessage,
		ID:     opts.id,
		Seq:    s.nextSeq(),
		Agent:  opts.agent,
		Role:   role,
		Text:   opts.addText,
		Images: opts.images,
	}
	if opts.done != nil {
		entry.Done = *opts.done
	}
	s.Timeline = append(s.Timeline, entry)
}

func (s *RunState) upsertTimelineToolCall(call ToolCall) {
	if i := s.findLastTimeline(KindToolCall, call.ID); i >= 0 {
		cur := s.Timeline[i]
		if call.Agent != "" {
			cur.Agent = call.Agent
		}
		cur.Name = call.Name
		cur.Arguments = call.Arguments
		cur.Status = call.Status
		s.Timeline[i] = cur
		return
	}
	s.Timeline = append(s.Timeline, TimelineEntry{
		Kind:      KindToolCall,
		ID:        call.ID,
		Seq:       s.nextSeq(),
		Agent:     call.Agent,
		Name:      call.Name,
		Arguments: call.Arguments,
		Status:    call.Status,
	})
}

func (s *RunState) appendTimelineToolOutput(callID, agent, name, output string) {
	seq := s.nextSeq()
	s.Timeline = append(s.Timeline, TimelineEntry{
		Kind:   KindToolOutput,
		ID:     "toolout:" + callID + ":" + strconv.Itoa(seq),
		Seq:    seq,
		Agent:  agent,
		Name:   name,
		Output: output,
	})
}

func callIDOf(item runItem) string {
	if item.RawItem.CallID != "" {
		return item.RawItem.CallID
	}
	if item.RawItem.ID != "" {
		return item.RawItem.ID
	}
	return idgen.New()
}

func agentOf(a *agentName) string {
	if a == nil {
		return ""
	}
	return a.Name
}

// asString renders an arbitrary JSON value for display: strings unquoted,
// everything else indented JSON.
func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func summarize(raw json.RawMessage) string {
	s := asString(raw)
	if len(s) <= 200 {
		return s
	}
	// Back the cut off to a rune boundary so the summary stays valid
	// UTF-8.
	cut := 200
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
