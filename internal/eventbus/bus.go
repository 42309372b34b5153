package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Bus is the frame log: every frame the server delivers to a client is
// appended here, keyed by stream (the conversation id, or "errors"), and
// fanned out to live subscribers such as the monitor websocket.
type Bus struct {
	db *sql.DB

	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	streams map[string]struct{}
	ch      chan Frame
}

type Frame struct {
	ID        string          `json:"id"`
	Stream    string          `json:"stream"`
	Kind      string          `json:"kind,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewBus(db *sql.DB) *Bus {
	return &Bus{db: db, subs: map[string]*subscriber{}}
}

// Push records one delivered frame and broadcasts it to subscribers. The
// payload is stored verbatim; kind is advisory (the frame's top-level type
// tag, when the caller knows it).
func (b *Bus) Push(ctx context.Context, stream, kind string, payload json.RawMessage) (Frame, error) {
	if strings.TrimSpace(stream) == "" {
		return Frame{}, fmt.Errorf("stream is required")
	}
	if len(payload) == 0 {
		return Frame{}, fmt.Errorf("payload is required")
	}

	id := ulid.Make().String()
	createdAt := time.Now().UTC()

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO frames (id, stream, kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, stream, nullString(kind), string(payload), createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return Frame{}, fmt.Errorf("insert frame: %w", err)
	}

	frame := Frame{
		ID:        id,
		Stream:    stream,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: createdAt,
	}

	b.broadcast(frame)
	return frame, nil
}

// List returns the stream's frames in insertion order, oldest first, so a
// transcript reads top to bottom.
func (b *Bus) List(ctx context.Context, stream string, limit int) ([]Frame, error) {
	if strings.TrimSpace(stream) == "" {
		return nil, fmt.Errorf("stream is required")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := b.db.QueryContext(ctx, `SELECT id, stream, kind, payload, created_at FROM frames WHERE stream = ? ORDER BY id ASC LIMIT ?`, stream, limit)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		var f Frame
		var kind sql.NullString
		var payloadStr, createdAtStr string
		if err := rows.Scan(&f.ID, &f.Stream, &kind, &payloadStr, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.Kind = kind.String
		f.Payload = json.RawMessage(payloadStr)
		f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return out, nil
}

// Subscribe delivers future frames for the given streams until ctx is done.
// An empty stream list subscribes to everything. Slow subscribers drop
// frames rather than stall delivery.
func (b *Bus) Subscribe(ctx context.Context, streams []string) <-chan Frame {
	ch := make(chan Frame, 64)
	streamSet := map[string]struct{}{}
	for _, s := range streams {
		if s == "" {
			continue
		}
		streamSet[s] = struct{}{}
	}
	id := ulid.Make().String()

	sub := &subscriber{streams: streamSet, ch: ch}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) broadcast(frame Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.streams) > 0 {
			if _, ok := sub.streams[frame.Stream]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- frame:
		default:
			// Drop if subscriber is slow.
		}
	}
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
