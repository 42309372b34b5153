package engine

const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// PendingApproval is one tool call blocked on a human decision. Decision is
// empty until the client resolves it.
type PendingApproval struct {
	CallID    string `json:"callId"`
	Agent     string `json:"agent"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Decision  string `json:"decision,omitempty"`
}

// State is the suspended-run blob: everything an engine needs to pick a run
// back up once its pending approvals are resolved. The session layer treats
// it as opaque apart from the decision methods.
type State struct {
	Agent   string             `json:"agent"`
	History []Message          `json:"history"`
	Pending []*PendingApproval `json:"pending"`
}

// Approve marks the pending call approved. Unknown call ids are ignored and
// reported as such.
func (s *State) Approve(callID string) bool {
	return s.decide(callID, DecisionApproved)
}

// Reject marks the pending call rejected. Unknown call ids are ignored and
// reported as such.
func (s *State) Reject(callID string) bool {
	return s.decide(callID, DecisionRejected)
}

func (s *State) decide(callID, decision string) bool {
	for _, p := range s.Pending {
		if p.CallID == callID {
			p.Decision = decision
			return true
		}
	}
	return false
}

// Unresolved counts pending approvals still awaiting a decision.
func (s *State) Unresolved() int {
	n := 0
	for _, p := range s.Pending {
		if p.Decision == "" {
			n++
		}
	}
	return n
}
