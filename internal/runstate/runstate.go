// Package runstate reconstructs a coherent conversation view from the
// server's heterogeneous frame stream. Reduce is a pure fold: each frame
// produces a new independent RunState snapshot with a single append-only
// timeline whose entries carry strictly increasing sequence numbers.
package runstate

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
)

type Message struct {
	ID     string   `json:"id"`
	Agent  string   `json:"agent,omitempty"`
	Role   string   `json:"role"`
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
	Done   bool     `json:"done"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Agent     string `json:"agent,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Status    string `json:"status"`
	Output    string `json:"output,omitempty"`
}

type Handoff struct {
	ID             string `json:"id"`
	SourceAgent    string `json:"sourceAgent"`
	TargetAgent    string `json:"targetAgent"`
	PayloadSummary string `json:"payloadSummary,omitempty"`
}

type Reasoning struct {
	ID    string `json:"id"`
	Agent string `json:"agent,omitempty"`
	Text  string `json:"text"`
}

type Approval struct {
	ID        string `json:"id"`
	Agent     string `json:"agent,omitempty"`
	ToolName  string `json:"toolName"`
	Arguments string `json:"arguments"`
}

type EntryKind string

const (
	KindMessage    EntryKind = "message"
	KindToolCall   EntryKind = "tool_call"
	KindToolOutput EntryKind = "tool_output"
	KindApproval   EntryKind = "approval"
	KindHandoff    EntryKind = "handoff"
	KindReasoning  EntryKind = "reasoning"
)

// TimelineEntry is one renderable card. Seq is assigned once at first
// appearance and never changes, even when the entry is mutated in place by
// later frames; Timeline sorted by Seq is the unique render order.
type TimelineEntry struct {
	Kind EntryKind `json:"kind"`
	ID   string    `json:"id"`
	Seq  int       `json:"seq"`

	Agent  string   `json:"agent,omitempty"`
	Role   string   `json:"role,omitempty"`
	Text   string   `json:"text,omitempty"`
	Done   bool     `json:"done,omitempty"`
	Images []string `json:"images,omitempty"`

	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Status    string `json:"status,omitempty"`
	Output    string `json:"output,omitempty"`

	SourceAgent string `json:"sourceAgent,omitempty"`
	TargetAgent string `json:"targetAgent,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

type RunState struct {
	CurrentAgent   string
	ConversationID string
	Messages       []Message
	ToolCalls      map[string]ToolCall
	Handoffs       []Handoff
	Reasoning      []Reasoning
	Approvals      []Approval
	Timeline       []TimelineEntry

	seq           int
	liveMessageID string
}

func New() RunState {
	return RunState{ToolCalls: map[string]ToolCall{}}
}

// clone makes the snapshot independent: all container fields are copied so
// mutating the new state never aliases the prior one.
func (s RunState) clone() RunState {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	out.Handoffs = append([]Handoff(nil), s.Handoffs...)
	out.Reasoning = append([]Reasoning(nil), s.Reasoning...)
	out.Approvals = append([]Approval(nil), s.Approvals...)
	out.Timeline = append([]TimelineEntry(nil), s.Timeline...)
	out.ToolCalls = make(map[string]ToolCall, len(s.ToolCalls))
	for k, v := range s.ToolCalls {
		out.ToolCalls[k] = v
	}
	return out
}

func (s *RunState) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *RunState) findMessage(id string) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

func (s *RunState) upsertMessage(msg Message) {
	for i, m := range s.Messages {
		if m.ID == msg.ID {
			s.Messages[i] = msg
			return
		}
	}
	s.Messages = append(s.Messages, msg)
}

func (s *RunState) findLastTimeline(kind EntryKind, id string) int {
	for i := len(s.Timeline) - 1; i >= 0; i-- {
		if s.Timeline[i].Kind == kind && s.Timeline[i].ID == id {
			return i
		}
	}
	return -1
}
