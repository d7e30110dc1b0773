package feed

import (
	"testing"
	"time"

	"github.com/vovakirdan/roomstate/internal/state"
)

func mustEvent(t *testing.T, ch <-chan state.Event, kind state.EventKind) state.Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed before event kind %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return state.Event{}
}

func TestBusFanoutToRoomSubscribers(t *testing.T) {
	bus := NewBus(nil, 0)

	a, err := bus.Subscribe("room1")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer a.Unsubscribe()
	b, err := bus.Subscribe("room1")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer b.Unsubscribe()
	other, err := bus.Subscribe("room2")
	if err != nil {
		t.Fatalf("subscribe other: %v", err)
	}
	defer other.Unsubscribe()

	bus.Publish(state.Event{Kind: state.EventPinRemoved, RoomID: "room1", MessageID: "m1"})

	for _, sub := range []*Subscription{a, b} {
		ev := mustEvent(t, sub.Events(), state.EventPinRemoved)
		if ev.MessageID != "m1" || ev.RoomID != "room1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("room2 subscriber received foreign event: %+v", ev)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil, 0)

	sub, err := bus.Subscribe("room1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	bus.Publish(state.Event{Kind: state.EventMessageDeleted, RoomID: "room1", MessageID: "m1"})

	// The channel is closed and drained; no event may arrive.
	for ev := range sub.Events() {
		t.Fatalf("event delivered after unsubscribe: %+v", ev)
	}
}

func TestSlowConsumerGetsResyncMarker(t *testing.T) {
	bus := NewBus(nil, 2)

	sub, err := bus.Subscribe("room1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	// Overflow the buffer without draining.
	for i := 0; i < 5; i++ {
		bus.Publish(state.Event{Kind: state.EventMessageDeleted, RoomID: "room1", MessageID: "m"})
	}

	// Drain the buffered events to make room for the gap marker.
	<-sub.Events()
	<-sub.Events()
	bus.Publish(state.Event{Kind: state.EventMessageDeleted, RoomID: "room1", MessageID: "m"})

	ev := mustEvent(t, sub.Events(), state.EventResyncRequired)
	if ev.RoomID != "room1" {
		t.Fatalf("resync marker for wrong room: %+v", ev)
	}
}
