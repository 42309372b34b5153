package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// wsConn adapts a websocket connection to the session layer's frame
// writer. Delivery goroutines for distinct generations may write
// concurrently, so writes are serialized here.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteFrame(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// handleWS serves one client session connection: a read loop feeding raw
// frames to the session manager until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	ctx := r.Context()
	wc := &wsConn{conn: conn}
	defer s.Sessions.CloseConn(context.WithoutCancel(ctx), wc)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "done")
			return
		}
		s.Sessions.HandleFrame(ctx, wc, data)
	}
}
