package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/flitsinc/agent-sessions/internal/testutil"
)

func TestPushAndList(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	bus := NewBus(db)
	ctx := context.Background()

	first, err := bus.Push(ctx, "conv-1", "streaming", json.RawMessage(`{"type":"streaming"}`))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if first.ID == "" || first.Stream != "conv-1" {
		t.Fatalf("frame = %+v", first)
	}
	if _, err := bus.Push(ctx, "conv-1", "complete", json.RawMessage(`{"type":"complete"}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := bus.Push(ctx, "conv-2", "", json.RawMessage(`{"type":"other"}`)); err != nil {
		t.Fatalf("push: %v", err)
	}

	frames, err := bus.List(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Kind != "streaming" || frames[1].Kind != "complete" {
		t.Fatalf("order wrong: %s then %s", frames[0].Kind, frames[1].Kind)
	}
}

func TestPushRequiresStreamAndPayload(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	bus := NewBus(db)
	ctx := context.Background()

	if _, err := bus.Push(ctx, "", "k", json.RawMessage(`{}`)); err == nil {
		t.Fatalf("empty stream accepted")
	}
	if _, err := bus.Push(ctx, "conv-1", "k", nil); err == nil {
		t.Fatalf("empty payload accepted")
	}
}

func TestSubscribeFiltersStreams(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	bus := NewBus(db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	only := bus.Subscribe(ctx, []string{"conv-1"})
	all := bus.Subscribe(ctx, nil)

	if _, err := bus.Push(ctx, "conv-2", "", json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := bus.Push(ctx, "conv-1", "", json.RawMessage(`{"n":2}`)); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case f := <-only:
		if f.Stream != "conv-1" {
			t.Fatalf("filtered subscriber got stream %q", f.Stream)
		}
	case <-time.After(time.Second):
		t.Fatalf("filtered subscriber got nothing")
	}
	select {
	case f := <-only:
		t.Fatalf("filtered subscriber got extra frame: %+v", f)
	default:
	}

	for i := 0; i < 2; i++ {
		select {
		case <-all:
		case <-time.After(time.Second):
			t.Fatalf("catch-all subscriber got %d frames, want 2", i)
		}
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	bus := NewBus(db)
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.Subscribe(ctx, nil)
	if bus.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d", bus.SubscriberCount())
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("got frame after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	if bus.SubscriberCount() != 0 {
		t.Fatalf("subscriber not removed, count = %d", bus.SubscriberCount())
	}
}
