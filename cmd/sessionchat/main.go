// Command sessionchat is a terminal client for sessiond. It speaks the duplex
// websocket protocol, folds every server frame through the runstate reducer
// and re-renders the timeline after each change.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/flitsinc/agent-sessions/internal/runstate"
)

type clientFrame struct {
	Kind           string     `json:"kind"`
	ConversationID string     `json:"conversationId,omitempty"`
	Message        string     `json:"message,omitempty"`
	Decisions      []decision `json:"decisions,omitempty"`
}

type decision struct {
	CallID   string `json:"callId"`
	Decision string `json:"decision"`
}

func main() {
	addr := flag.String("addr", "ws://localhost:8787/ws", "session server websocket URL")
	flag.Parse()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20)

	c := &client{conn: conn, state: runstate.New()}

	go func() {
		if err := c.readLoop(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "\nconnection closed: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("Connected. Type a message, or /approve <callId>, /reject <callId>, /quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.handleInput(ctx, line); err != nil {
			if err == errQuit {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

var errQuit = fmt.Errorf("quit")

type client struct {
	conn *websocket.Conn

	mu    sync.Mutex
	state runstate.RunState
	// rendered tracks how many timeline entries were already printed so a
	// re-render only emits the new or changed tail.
	rendered map[string]string
}

func (c *client) handleInput(ctx context.Context, line string) error {
	switch {
	case line == "/quit" || line == "/exit":
		return errQuit

	case strings.HasPrefix(line, "/approve ") || strings.HasPrefix(line, "/reject "):
		verb := "approved"
		callID := strings.TrimSpace(strings.TrimPrefix(line, "/approve "))
		if strings.HasPrefix(line, "/reject ") {
			verb = "rejected"
			callID = strings.TrimSpace(strings.TrimPrefix(line, "/reject "))
		}
		if callID == "" {
			return fmt.Errorf("usage: /approve <callId>")
		}
		c.mu.Lock()
		convID := c.state.ConversationID
		c.mu.Unlock()
		return c.send(ctx, clientFrame{
			Kind:           "approvals",
			ConversationID: convID,
			Decisions:      []decision{{CallID: callID, Decision: verb}},
		})

	default:
		c.mu.Lock()
		convID := c.state.ConversationID
		echo, _ := json.Marshal(map[string]string{"type": "local_user_message", "text": line})
		c.state = runstate.Reduce(c.state, echo)
		c.mu.Unlock()
		return c.send(ctx, clientFrame{
			Kind:           "message",
			ConversationID: convID,
			Message:        line,
		})
	}
}

func (c *client) send(ctx context.Context, frame clientFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		c.apply(data)
	}
}

func (c *client) apply(data []byte) {
	var probe struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	_ = json.Unmarshal(data, &probe)
	if probe.Error != "" {
		fmt.Fprintf(os.Stderr, "\nserver error: %s\n> ", probe.Error)
		return
	}

	c.mu.Lock()
	before := len(c.state.Approvals)
	c.state = runstate.Reduce(c.state, data)
	c.render()
	after := len(c.state.Approvals)
	c.mu.Unlock()

	if after > before {
		fmt.Print("\ntool call awaiting approval; use /approve <callId> or /reject <callId>.\n> ")
	}
}

// render prints timeline entries whose content changed since the last call.
// Caller holds c.mu.
func (c *client) render() {
	if c.rendered == nil {
		c.rendered = map[string]string{}
	}
	for _, e := range c.state.Timeline {
		text := formatEntry(e)
		key := string(e.Kind) + ":" + e.ID
		if c.rendered[key] == text {
			continue
		}
		c.rendered[key] = text
		fmt.Printf("\r%s\n", text)
	}
}

func formatEntry(e runstate.TimelineEntry) string {
	switch e.Kind {
	case runstate.KindMessage:
		who := e.Role
		if e.Agent != "" {
			who = e.Agent
		}
		return fmt.Sprintf("[%s] %s", who, e.Text)
	case runstate.KindToolCall:
		return fmt.Sprintf("[tool] %s(%s) %s", e.Name, e.Arguments, e.Status)
	case runstate.KindToolOutput:
		return fmt.Sprintf("[tool] %s => %s", e.Name, e.Output)
	case runstate.KindApproval:
		return fmt.Sprintf("[approval needed] %s(%s) callId=%s", e.Name, e.Arguments, e.ID)
	case runstate.KindHandoff:
		return fmt.Sprintf("[handoff] %s -> %s", e.SourceAgent, e.TargetAgent)
	case runstate.KindReasoning:
		return fmt.Sprintf("[thinking] %s", e.Text)
	}
	return ""
}
