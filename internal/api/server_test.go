package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flitsinc/agent-sessions/internal/agents"
	"github.com/flitsinc/agent-sessions/internal/engine"
	"github.com/flitsinc/agent-sessions/internal/engine/enginetest"
	"github.com/flitsinc/agent-sessions/internal/eventbus"
	"github.com/flitsinc/agent-sessions/internal/runstate"
	"github.com/flitsinc/agent-sessions/internal/session"
	"github.com/flitsinc/agent-sessions/internal/state"
	"github.com/flitsinc/agent-sessions/internal/testutil"
	"github.com/flitsinc/agent-sessions/internal/tools"
)

func newTestServer(t *testing.T, eng engine.Engine) (*Server, *httptest.Server) {
	t.Helper()
	db, cleanup := testutil.OpenTestDB(t)
	t.Cleanup(cleanup)

	graph, err := agents.Default(tools.Builtin())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	store := state.NewStore(db)
	bus := eventbus.NewBus(db)
	srv := &Server{
		Sessions: session.NewManager(eng, graph, bus, store, session.Options{}),
		Bus:      bus,
		Store:    store,
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, enginetest.New())

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("status = %q", body.Status)
	}
}

func TestSessionWebsocketRoundtrip(t *testing.T) {
	eng := enginetest.New(enginetest.Script{
		Events: []json.RawMessage{
			engine.TextDeltaEvent("Hello "),
			engine.TextDeltaEvent("there!"),
			engine.TextDoneEvent(),
		},
		Result: engine.Result{
			History:     []engine.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "Hello there!"}},
			FinalOutput: "Hello there!",
			FinalAgent:  "general-agent",
		},
	})
	srv, ts := newTestServer(t, eng)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	frame, _ := json.Marshal(map[string]any{"kind": "message", "message": "hi"})
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Fold every delivered frame through the reducer until the run
	// completes, as a real client would.
	rs := runstate.New()
	var convID, response string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		rs = runstate.Reduce(rs, data)

		var probe struct {
			Type string `json:"type"`
			Data struct {
				ConversationID string `json:"conversationId"`
				Response       string `json:"response"`
			} `json:"data"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if probe.Type == "streaming" {
			convID = probe.Data.ConversationID
		}
		if probe.Type == "complete" {
			response = probe.Data.Response
			break
		}
	}

	if convID == "" {
		t.Fatalf("no streaming frame seen")
	}
	if response != "Hello there!" {
		t.Fatalf("response = %q", response)
	}
	if rs.ConversationID != convID {
		t.Fatalf("reducer conversation id = %q, want %q", rs.ConversationID, convID)
	}
	found := false
	for _, m := range rs.Messages {
		if m.Role == "assistant" && m.Text == "Hello there!" && m.Done {
			found = true
		}
	}
	if !found {
		t.Fatalf("assistant message not reconstructed: %+v", rs.Messages)
	}

	// The conversation settles as idle shortly after the complete frame
	// goes out.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conv, err := srv.Store.GetConversation(context.Background(), convID)
		if err != nil {
			t.Fatalf("get conversation: %v", err)
		}
		if conv.Status == state.ConversationIdle {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %q, want idle", conv.Status)
		}
		time.Sleep(2 * time.Millisecond)
	}

	// The transcript endpoint replays what the websocket delivered.
	resp, err := http.Get(ts.URL + "/api/streams/" + convID)
	if err != nil {
		t.Fatalf("get transcript: %v", err)
	}
	defer resp.Body.Close()
	var frames []eventbus.Frame
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(frames) == 0 {
		t.Fatalf("empty transcript")
	}
	if frames[0].Kind != "streaming" {
		t.Fatalf("first transcript frame kind = %q", frames[0].Kind)
	}
	if frames[len(frames)-1].Kind != "complete" {
		t.Fatalf("last transcript frame kind = %q", frames[len(frames)-1].Kind)
	}
}

func TestConversationsEndpoint(t *testing.T) {
	srv, ts := newTestServer(t, enginetest.New())

	if _, err := srv.Store.CreateConversation(context.Background(), "conv-1", "general-agent"); err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/conversations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var items []state.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].ID != "conv-1" {
		t.Fatalf("items = %+v", items)
	}

	post, err := http.Post(ts.URL+"/api/conversations", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status = %d", post.StatusCode)
	}
}

func TestStreamsEndpointRequiresStream(t *testing.T) {
	_, ts := newTestServer(t, enginetest.New())

	resp, err := http.Get(ts.URL + "/api/streams/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
