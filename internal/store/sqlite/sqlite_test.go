package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/roomstate/internal/state"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertMessage(t *testing.T, s *SQLiteStore, id, room, sender, body string) *state.Message {
	t.Helper()
	msg := &state.Message{ID: id, RoomID: room, SenderID: sender, SenderName: sender, Body: body}
	if err := s.InsertMessage(context.Background(), msg); err != nil {
		t.Fatalf("insert message %s: %v", id, err)
	}
	return msg
}

func TestInsertAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertMessage(t, s, "m1", "room1", "alice", "first")
	insertMessage(t, s, "m2", "room1", "bob", "second")
	insertMessage(t, s, "m3", "room2", "alice", "elsewhere")

	msgs, err := s.ListMessages(ctx, "room1", 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if msgs[0].Seq >= msgs[1].Seq {
		t.Fatalf("sequence not ascending: %d >= %d", msgs[0].Seq, msgs[1].Seq)
	}

	// Window limit keeps the newest rows.
	one, err := s.ListMessages(ctx, "room1", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(one) != 1 || one[0].ID != "m2" {
		t.Fatalf("expected newest message, got %+v", one)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMessage(context.Background(), "ghost")
	if err != state.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkMessagesReadIsConditional(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertMessage(t, s, "m1", "room1", "alice", "hi")
	insertMessage(t, s, "m2", "room1", "bob", "yo")
	insertMessage(t, s, "m3", "room1", "bob", "self-authored for bob")

	updated, latest, err := s.MarkMessagesRead(ctx, "room1", "bob")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// Only alice's message qualifies: not authored by bob, not yet read.
	if updated != 1 {
		t.Fatalf("expected 1 row updated, got %d", updated)
	}
	if latest == 0 {
		t.Fatalf("latest seq not reported")
	}

	// Second call re-writes nothing.
	updated, _, err = s.MarkMessagesRead(ctx, "room1", "bob")
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if updated != 0 {
		t.Fatalf("mark read not idempotent: %d rows re-written", updated)
	}
}

func TestAdvanceCursorIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var events []state.Event
	s.SetNotifier(func(ev state.Event) { events = append(events, ev) })

	got, err := s.AdvanceCursor(ctx, "room1", "bob", 5)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got != 5 {
		t.Fatalf("cursor = %d, want 5", got)
	}

	// Concurrent lower advance resolves by taking the maximum.
	got, err = s.AdvanceCursor(ctx, "room1", "bob", 3)
	if err != nil {
		t.Fatalf("advance lower: %v", err)
	}
	if got != 5 {
		t.Fatalf("cursor moved backward: %d", got)
	}

	stored, err := s.GetCursor(ctx, "room1", "bob")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if stored != 5 {
		t.Fatalf("stored cursor = %d, want 5", stored)
	}

	// Only the real advance produced an event.
	count := 0
	for _, ev := range events {
		if ev.Kind == state.EventReadCursorAdvanced {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected 1 cursor event, got %d", count)
	}
}

func TestCountUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertMessage(t, s, "m1", "room1", "alice", "one")
	m2 := insertMessage(t, s, "m2", "room1", "alice", "two")
	insertMessage(t, s, "m3", "room1", "bob", "own message")

	n, err := s.CountUnread(ctx, "room1", "bob")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if n != 2 {
		t.Fatalf("unread = %d, want 2", n)
	}

	if _, err := s.AdvanceCursor(ctx, "room1", "bob", m2.Seq); err != nil {
		t.Fatalf("advance: %v", err)
	}
	n, err = s.CountUnread(ctx, "room1", "bob")
	if err != nil {
		t.Fatalf("count unread after advance: %v", err)
	}
	if n != 0 {
		t.Fatalf("unread after advance = %d, want 0", n)
	}
}

func TestPinLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"a", "b", "c"} {
		entry := &state.PinEntry{
			RoomID:    "room1",
			MessageID: id,
			ActorID:   "alice",
			PinnedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if _, inserted, err := s.InsertPin(ctx, entry); err != nil || !inserted {
			t.Fatalf("insert pin %s: inserted=%v err=%v", id, inserted, err)
		}
	}

	// Duplicate pin keeps the original entry.
	dup := &state.PinEntry{RoomID: "room1", MessageID: "a", ActorID: "bob", PinnedAt: base.Add(time.Hour)}
	stored, inserted, err := s.InsertPin(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate pin: %v", err)
	}
	if inserted || stored.ActorID != "alice" {
		t.Fatalf("duplicate pin replaced original: inserted=%v stored=%+v", inserted, stored)
	}

	pins, err := s.ListPins(ctx, "room1")
	if err != nil {
		t.Fatalf("list pins: %v", err)
	}
	if len(pins) != 3 || pins[0].MessageID != "a" || pins[1].MessageID != "b" || pins[2].MessageID != "c" {
		t.Fatalf("unexpected pin order: %+v", pins)
	}

	removed, err := s.DeletePin(ctx, "room1", "b")
	if err != nil || !removed {
		t.Fatalf("delete pin: removed=%v err=%v", removed, err)
	}
	removed, err = s.DeletePin(ctx, "room1", "b")
	if err != nil || removed {
		t.Fatalf("second delete not a no-op: removed=%v err=%v", removed, err)
	}

	pins, err = s.ListPins(ctx, "room1")
	if err != nil {
		t.Fatalf("list pins after delete: %v", err)
	}
	if len(pins) != 2 || pins[0].MessageID != "a" || pins[1].MessageID != "c" {
		t.Fatalf("unexpected pins after delete: %+v", pins)
	}
}

func TestDeleteMessageDropsPin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertMessage(t, s, "m1", "room1", "alice", "pin me")
	if _, _, err := s.InsertPin(ctx, &state.PinEntry{RoomID: "room1", MessageID: "m1", ActorID: "alice"}); err != nil {
		t.Fatalf("insert pin: %v", err)
	}

	var kinds []state.EventKind
	s.SetNotifier(func(ev state.Event) { kinds = append(kinds, ev.Kind) })

	if err := s.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("delete message: %v", err)
	}

	if _, err := s.GetMessage(ctx, "m1"); err != state.ErrNotFound {
		t.Fatalf("message survived delete: %v", err)
	}
	count, err := s.CountPins(ctx, "room1")
	if err != nil {
		t.Fatalf("count pins: %v", err)
	}
	if count != 0 {
		t.Fatalf("pin survived message delete")
	}

	// Both row changes were notified.
	var sawPinRemoved, sawDeleted bool
	for _, k := range kinds {
		switch k {
		case state.EventPinRemoved:
			sawPinRemoved = true
		case state.EventMessageDeleted:
			sawDeleted = true
		}
	}
	if !sawPinRemoved || !sawDeleted {
		t.Fatalf("missing notifications: %v", kinds)
	}

	// Deleting an absent row is a no-op.
	if err := s.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestInsertMessageNotifies(t *testing.T) {
	s := newTestStore(t)

	var got *state.Message
	s.SetNotifier(func(ev state.Event) {
		if ev.Kind == state.EventMessageInserted {
			got = ev.Message
		}
	})

	msg := insertMessage(t, s, "m1", "room1", "alice", "hello")
	if got == nil || got.ID != "m1" || got.Seq != msg.Seq {
		t.Fatalf("insert not notified: %+v", got)
	}
}
