package feed

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/state"
)

// DefaultBuffer is the per-subscription event buffer when none is configured.
const DefaultBuffer = 16

// Bus is the in-process change feed: it fans committed row changes out to
// every subscription of the affected room. It bridges the backing store's
// notifier to viewer subscriptions.
type Bus struct {
	mu     sync.Mutex
	rooms  map[string]map[*Subscription]struct{}
	buffer int
	log    *zerolog.Logger
}

// NewBus constructs a bus with the given per-subscription buffer size.
func NewBus(logger *zerolog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		log:    logger,
	}
}

// Subscribe opens a subscription onto the room's change feed.
func (b *Bus) Subscribe(roomID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sub *Subscription
	sub = NewSubscription(roomID, b.buffer, func() {
		b.detach(roomID, sub)
	})

	subs, ok := b.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// Publish delivers an event to all subscriptions of its room. Slow consumers
// drop the event and are told to resync instead of blocking the publisher.
func (b *Bus) Publish(ev state.Event) {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.rooms[ev.RoomID]))
	for sub := range b.rooms[ev.RoomID] {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.Deliver(ev) && b.log != nil {
			b.log.Warn().Str("room", ev.RoomID).Msg("slow feed consumer, event dropped pending resync")
		}
	}
}

func (b *Bus) detach(roomID string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.rooms[roomID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.rooms, roomID)
		}
	}
}
