// Package session owns the live connection registry, the per-session run
// supervisor, and the event multiplexer that forwards engine events to
// clients. At most one run is authoritative per session at any instant;
// submitting a new message supersedes the previous generation, whose
// remaining output is drained and discarded.
package session

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
	"github.com/flitsinc/agent-sessions/internal/eventbus"
	"github.com/flitsinc/agent-sessions/internal/idgen"
	"github.com/flitsinc/agent-sessions/internal/state"
)

type Options struct {
	MaxSessions     int
	MaxHistory      int
	DefaultMaxTurns int
}

type Manager struct {
	engine engine.Engine
	graph  *agents.Graph
	bus    *eventbus.Bus
	store  *state.Store
	opts   Options

	mu       sync.Mutex
	sessions map[Conn]*Session
}

func NewManager(eng engine.Engine, graph *agents.Graph, bus *eventbus.Bus, store *state.Store, opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 256
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 200
	}
	if opts.DefaultMaxTurns <= 0 {
		opts.DefaultMaxTurns = 10
	}
	return &Manager{
		engine:   eng,
		graph:    graph,
		bus:      bus,
		store:    store,
		opts:     opts,
		sessions: map[Conn]*Session{},
	}
}

// HandleFrame dispatches one raw client frame. It is called from the
// connection's read goroutine; frames with an unrecognized kind are
// silently ignored for forward compatibility.
func (m *Manager) HandleFrame(ctx context.Context, conn Conn, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		m.sendError(ctx, conn, "", ErrInvalidJSON)
		return
	}
	switch frame.Kind {
	case FrameKindMessage:
		m.handleMessage(ctx, conn, frame)
	case FrameKindApprovals:
		m.handleApprovals(ctx, conn, frame)
	}
}

// CloseConn marks the connection's session closed so in-flight delivery
// loops stop writing, then drops it from the registry.
func (m *Manager) CloseConn(ctx context.Context, conn Conn) {
	m.mu.Lock()
	sess := m.sessions[conn]
	delete(m.sessions, conn)
	m.mu.Unlock()
	if sess == nil {
		return
	}
	sess.closed.Store(true)
	if m.store != nil {
		if err := m.store.UpdateConversation(ctx, sess.conversationID, sess.currentAgent().Name, state.ConversationClosed); err != nil {
			log.Printf("close conversation %s: %v", sess.conversationID, err)
		}
	}
}

// Lookup returns the session owned by conn, if any.
func (m *Manager) Lookup(conn Conn) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[conn]
	return s, ok
}

func (m *Manager) handleMessage(ctx context.Context, conn Conn, frame clientFrame) {
	text := strings.TrimSpace(messageText(frame.Message))
	if text == "" {
		m.sendError(ctx, conn, frame.ConversationID, ErrEmptyMessage)
		return
	}

	if frame.ConversationID == "" {
		m.startConversation(ctx, conn, frame, text)
		return
	}

	m.mu.Lock()
	sess := m.sessions[conn]
	m.mu.Unlock()
	if sess == nil || sess.conversationID != frame.ConversationID {
		m.sendError(ctx, conn, frame.ConversationID, ErrSessionNotFound)
		return
	}

	sess.mu.Lock()
	if sess.suspended != nil {
		sess.mu.Unlock()
		m.sendError(ctx, conn, sess.conversationID, ErrPendingApprovals)
		return
	}
	history := make([]engine.Message, 0, len(sess.history)+1)
	history = append(history, sess.history...)
	sess.mu.Unlock()

	history = append(history, engine.Message{Role: "user", Content: text})
	m.submit(ctx, sess, engine.Request{History: history, MaxTurns: sess.maxTurns})
}

func (m *Manager) startConversation(ctx context.Context, conn Conn, frame clientFrame, text string) {
	maxTurns := frame.MaxTurns
	if maxTurns <= 0 {
		maxTurns = m.opts.DefaultMaxTurns
	}

	m.mu.Lock()
	if prev := m.sessions[conn]; prev != nil {
		// A fresh conversation on the same connection replaces the old
		// session; its in-flight runs observe the closed flag and stop.
		prev.closed.Store(true)
	} else if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		m.sendError(ctx, conn, "", ErrSessionLimit)
		return
	}
	sess := &Session{
		conn:           conn,
		conversationID: idgen.New(),
		maxTurns:       maxTurns,
		agent:          m.graph.Entry(),
	}
	m.sessions[conn] = sess
	m.mu.Unlock()

	if m.store != nil {
		if _, err := m.store.CreateConversation(ctx, sess.conversationID, sess.agent.Name); err != nil {
			log.Printf("create conversation %s: %v", sess.conversationID, err)
		}
	}

	m.writeFrame(ctx, sess, newStreamingFrame(sess.conversationID))
	m.submit(ctx, sess, engine.Request{
		History:  []engine.Message{{Role: "user", Content: text}},
		MaxTurns: maxTurns,
	})
}

func (m *Manager) handleApprovals(ctx context.Context, conn Conn, frame clientFrame) {
	m.mu.Lock()
	sess := m.sessions[conn]
	m.mu.Unlock()
	if sess == nil {
		m.sendError(ctx, conn, frame.ConversationID, ErrSessionNotFound)
		return
	}

	sess.mu.Lock()
	suspended := sess.suspended
	if suspended == nil {
		sess.mu.Unlock()
		m.sendError(ctx, conn, sess.conversationID, ErrNoPendingApprovals)
		return
	}
	for _, d := range frame.Decisions {
		// Decisions for unknown call ids are ignored.
		switch d.Decision {
		case engine.DecisionApproved:
			suspended.Approve(d.CallID)
		case engine.DecisionRejected:
			suspended.Reject(d.CallID)
		}
	}
	if suspended.Unresolved() > 0 {
		// Partially resolved; stay suspended until the rest arrive.
		sess.mu.Unlock()
		return
	}
	sess.suspended = nil
	sess.mu.Unlock()

	m.resume(ctx, sess, suspended)
}

// submit starts a fresh run under a new generation, superseding whatever
// the session was delivering before. The bump happens under the session
// mutex so it excludes a prior run's terminal settlement in deliver: a run
// is either superseded before it settles or allowed to finish its final
// write first, never both.
func (m *Manager) submit(ctx context.Context, sess *Session, req engine.Request) {
	sess.mu.Lock()
	gen := sess.gen.Add(1)
	sess.mu.Unlock()
	m.startRun(ctx, sess, req, gen)
}

// resume re-enters the engine with the suspended state under the same
// generation; a resume never supersedes anything.
func (m *Manager) resume(ctx context.Context, sess *Session, st *engine.State) {
	req := engine.Request{State: st, MaxTurns: sess.maxTurns}
	m.startRun(ctx, sess, req, sess.gen.Load())
}

func (m *Manager) startRun(ctx context.Context, sess *Session, req engine.Request, gen int64) {
	run, err := m.engine.Run(ctx, sess.currentAgent(), req)
	if err != nil {
		if req.State != nil {
			// The resumed state was never consumed; put it back so the
			// decisions are not lost.
			sess.mu.Lock()
			sess.suspended = req.State
			sess.mu.Unlock()
		}
		m.sendError(ctx, sess.conn, sess.conversationID, err.Error())
		return
	}
	m.setStatus(ctx, sess, state.ConversationRunning)
	go m.deliver(ctx, sess, run, gen)
}

// deliver is the event multiplexer for one run: it forwards each event as
// one frame while the run's generation is still authoritative, then waits
// for the final result and settles the session. A superseded or closed
// session drains the remaining events without forwarding so the engine is
// never blocked mid-run.
func (m *Manager) deliver(ctx context.Context, sess *Session, run *engine.Run, gen int64) {
	for ev := range run.Events() {
		if sess.closed.Load() || sess.gen.Load() != gen {
			continue
		}
		m.writeFrame(ctx, sess, ev)
	}

	result, err := run.Wait(ctx)

	// Terminal settlement happens under the session mutex, the same lock
	// submit bumps the generation under. A run that passes the check here
	// owns the session until its final write is out; a submit arriving
	// meanwhile waits, so a superseded run can never land its commit or
	// complete frame after the successor's frames have started.
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.gen.Load() != gen {
		// Superseded: the result, error or not, is discarded.
		return
	}
	if err != nil {
		// Run errors leave history untouched; the session is idle again.
		m.sendError(ctx, sess.conn, sess.conversationID, err.Error())
		m.updateStatus(ctx, sess.conversationID, sess.agent.Name, state.ConversationIdle)
		return
	}
	if sess.closed.Load() {
		return
	}

	sess.history = truncateHistory(result.History, m.opts.MaxHistory)
	if result.FinalAgent != "" {
		if a, ok := m.graph.Get(result.FinalAgent); ok {
			sess.agent = a
		}
	}
	if result.State != nil && len(result.Interruptions) > 0 {
		sess.suspended = result.State
		m.updateStatus(ctx, sess.conversationID, sess.agent.Name, state.ConversationSuspended)
		return
	}
	sess.suspended = nil

	m.writeFrame(ctx, sess, newCompleteFrame(sess.conversationID, sess.history, result.FinalOutput))
	m.updateStatus(ctx, sess.conversationID, sess.agent.Name, state.ConversationIdle)
}

// writeFrame sends one frame to the client and appends it to the frame
// log. Transport errors are suppressed; they only mark the session closed
// so later writes stop trying.
func (m *Manager) writeFrame(ctx context.Context, sess *Session, data []byte) {
	if err := sess.conn.WriteFrame(ctx, data); err != nil {
		sess.closed.Store(true)
		return
	}
	m.logFrame(ctx, sess.conversationID, data)
}

func (m *Manager) sendError(ctx context.Context, conn Conn, conversationID, code string) {
	data, _ := json.Marshal(errorFrame{Error: code})
	_ = conn.WriteFrame(ctx, data)
	stream := conversationID
	if stream == "" {
		stream = "errors"
	}
	m.logFrame(ctx, stream, data)
}

func (m *Manager) logFrame(ctx context.Context, stream string, data []byte) {
	if m.bus == nil {
		return
	}
	if _, err := m.bus.Push(ctx, stream, frameKind(data), data); err != nil {
		log.Printf("log frame: %v", err)
	}
}

func (m *Manager) setStatus(ctx context.Context, sess *Session, status string) {
	m.updateStatus(ctx, sess.conversationID, sess.currentAgent().Name, status)
}

// updateStatus takes no session lock; deliver calls it while already
// holding one.
func (m *Manager) updateStatus(ctx context.Context, conversationID, agent, status string) {
	if m.store == nil {
		return
	}
	if err := m.store.UpdateConversation(ctx, conversationID, agent, status); err != nil {
		log.Printf("update conversation %s: %v", conversationID, err)
	}
}

func frameKind(data []byte) string {
	var probe struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	if probe.Error != "" {
		return "error"
	}
	return probe.Type
}

func truncateHistory(history []engine.Message, max int) []engine.Message {
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
