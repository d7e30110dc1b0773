package feed

import (
	"sync"

	"github.com/vovakirdan/roomstate/internal/state"
)

// Feed produces per-room change-feed subscriptions.
type Feed interface {
	// Subscribe opens a channel of committed changes for one room.
	Subscribe(roomID string) (*Subscription, error)
}

// Publisher accepts locally originated events for fanout to all viewers of
// the affected room. Used for ephemeral rows with no durable write, such as
// typing signals.
type Publisher interface {
	Publish(ev state.Event)
}

// Subscription is one viewer's channel onto a room's change feed. Events are
// observed in commit order within the subscription; no total order holds
// across viewers. Delivery is at-least-once: consumers must be idempotent.
type Subscription struct {
	roomID string
	events chan state.Event

	mu     sync.Mutex
	closed bool
	gapped bool
	cancel func()
}

// NewSubscription builds a subscription for a feed implementation. cancel is
// invoked once, on Unsubscribe, before the event channel is closed.
func NewSubscription(roomID string, buffer int, cancel func()) *Subscription {
	return &Subscription{
		roomID: roomID,
		events: make(chan state.Event, buffer),
		cancel: cancel,
	}
}

// RoomID returns the room this subscription is scoped to.
func (s *Subscription) RoomID() string {
	return s.roomID
}

// Events returns the receive side of the subscription. The channel is closed
// by Unsubscribe.
func (s *Subscription) Events() <-chan state.Event {
	return s.events
}

// Unsubscribe stops further event delivery immediately and releases the
// underlying channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	// No sends can follow once closed is set, so the channel can be closed
	// here to wake a blocked receive loop.
	close(s.events)
}

// Deliver enqueues an event unless the subscription is closed. Slow consumers
// drop events rather than block the publisher; the drop marks a gap, and a
// resync marker is injected ahead of the next event that fits. Returns false
// when the event was dropped.
func (s *Subscription) Deliver(ev state.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.gapped {
		select {
		case s.events <- state.Event{Kind: state.EventResyncRequired, RoomID: s.roomID}:
			s.gapped = false
		default:
			return false
		}
	}
	select {
	case s.events <- ev:
		return true
	default:
		s.gapped = true
		return false
	}
}
