// Package engine defines the run-engine contract: one run of an agent
// against a conversation history (or a resumed suspended state), delivered
// as an ordered stream of wire-ready events plus a final result. The
// session layer consumes engines only through this contract; event payloads
// are forwarded to clients verbatim.
package engine

import (
	"context"
	"encoding/json"

	"github.com/flitsinc/agent-sessions/internal/agents"
)

type Engine interface {
	// Run starts one run. The returned Run immediately begins producing
	// events; callers must drain Events and then call Wait.
	Run(ctx context.Context, agent *agents.Agent, req Request) (*Run, error)
}

// Request carries either a message history for a fresh run or the suspended
// state of a prior run to resume. Exactly one of History and State is set.
type Request struct {
	History  []Message
	State    *State
	MaxTurns int
}

// Message is one role-tagged entry of a conversation history. The tool
// fields are populated only for assistant tool-call turns and their tool
// result turns.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content,omitempty"`
	ToolCalls  []ToolCallRef `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type ToolCallRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Result is a run's terminal outcome. State is non-nil exactly when
// Interruptions is non-empty: the run suspended awaiting approval and can
// be resumed by passing State back in a Request.
type Result struct {
	History       []Message
	FinalOutput   string
	FinalAgent    string
	Interruptions []*PendingApproval
	State         *State
}

// Run is a handle on one in-flight run. Events yields each engine event in
// production order and is closed when the run ends; Wait then reports the
// final result.
type Run struct {
	events chan json.RawMessage
	done   chan struct{}
	result Result
	err    error
}

func NewRun(buffer int) *Run {
	if buffer <= 0 {
		buffer = 64
	}
	return &Run{
		events: make(chan json.RawMessage, buffer),
		done:   make(chan struct{}),
	}
}

func (r *Run) Events() <-chan json.RawMessage {
	return r.events
}

// Emit queues one event for delivery. Engine implementations call this from
// their run goroutine; it blocks only when the buffer is full and the
// consumer is behind.
func (r *Run) Emit(ctx context.Context, ev json.RawMessage) error {
	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish records the run's outcome, closes the event stream, and releases
// anyone blocked in Wait. It must be called exactly once.
func (r *Run) Finish(result Result, err error) {
	r.result = result
	r.err = err
	close(r.events)
	close(r.done)
}

// Wait blocks until the run has fully completed. The event stream closing
// does not imply completion; buffered work may outlive it.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
