package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
)

// Conn is one live client connection as the session layer sees it: a frame
// writer. Implementations must serialize concurrent writes; values are used
// as registry keys and so must be comparable.
type Conn interface {
	WriteFrame(ctx context.Context, data []byte) error
}

// Session is the per-connection conversation state. The generation counter
// is the only field shared across goroutines without the mutex: a
// superseded run's delivery goroutine may still be draining while the
// connection goroutine submits the next run.
type Session struct {
	conn           Conn
	conversationID string
	maxTurns       int

	closed atomic.Bool
	gen    atomic.Int64

	mu        sync.Mutex
	agent     *agents.Agent
	history   []engine.Message
	suspended *engine.State
}

func (s *Session) ConversationID() string {
	return s.conversationID
}

// Generation reports the currently authoritative run generation.
func (s *Session) Generation() int64 {
	return s.gen.Load()
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

func (s *Session) currentAgent() *agents.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// Suspended reports whether the session holds a paused run awaiting
// approval decisions.
func (s *Session) Suspended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended != nil
}

// History returns a copy of the last committed run history.
func (s *Session) History() []engine.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Message, len(s.history))
	copy(out, s.history)
	return out
}
