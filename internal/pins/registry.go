package pins

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/state"
	"github.com/vovakirdan/roomstate/internal/store"
)

// DefaultLimit bounds the pin set per room. The backing store imposes no hard
// cap, so the registry enforces one to keep List and rendering bounded.
const DefaultLimit = 50

// PreviewLimit is the rune limit for pinned-list message previews.
const PreviewLimit = 50

// Registry maintains the ordered pin set of a room. It enforces no permission
// policy: canUnpin comes from the permission collaborator and only gates the
// presentation affordance.
type Registry struct {
	pins  store.PinStore
	limit int
	log   *zerolog.Logger
}

// NewRegistry builds a registry over the backing store. limit <= 0 takes
// DefaultLimit.
func NewRegistry(pins store.PinStore, limit int, logger *zerolog.Logger) *Registry {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Registry{pins: pins, limit: limit, log: logger}
}

// Pin records a pin for the message. Pinning an already-pinned message is a
// no-op returning the existing entry. Returns state.ErrPinLimit once the
// room's pin set is full.
func (r *Registry) Pin(ctx context.Context, roomID, messageID, actorID string) (*state.PinEntry, error) {
	count, err := r.pins.CountPins(ctx, roomID)
	if err != nil {
		r.warn(err, roomID, messageID, "count pins failed")
		return nil, state.Transient("count pins", err)
	}
	if count >= r.limit {
		// Re-pinning an existing entry adds no row, so it stays a no-op
		// even when the set is full.
		entries, err := r.pins.ListPins(ctx, roomID)
		if err != nil {
			r.warn(err, roomID, messageID, "list pins failed")
			return nil, state.Transient("list pins", err)
		}
		for i := range entries {
			if entries[i].MessageID == messageID {
				existing := entries[i]
				return &existing, nil
			}
		}
		return nil, &state.StateError{Code: state.ErrCodePinLimit, Message: "pin limit reached", Err: state.ErrPinLimit}
	}

	entry := &state.PinEntry{
		RoomID:    roomID,
		MessageID: messageID,
		ActorID:   actorID,
		PinnedAt:  time.Now().UTC(),
	}
	stored, _, err := r.pins.InsertPin(ctx, entry)
	if err != nil {
		r.warn(err, roomID, messageID, "pin failed")
		return nil, state.Transient("pin", err)
	}
	return stored, nil
}

// Unpin removes the message's pin. Unpinning a message that is not pinned is
// a no-op: the handler must be idempotent because unpin completion may race
// a later pin of the same message.
func (r *Registry) Unpin(ctx context.Context, roomID, messageID string) error {
	if _, err := r.pins.DeletePin(ctx, roomID, messageID); err != nil {
		r.warn(err, roomID, messageID, "unpin failed")
		return state.Transient("unpin", err)
	}
	return nil
}

// List returns the room's pins ordered by pin timestamp ascending.
func (r *Registry) List(ctx context.Context, roomID string) ([]state.PinEntry, error) {
	entries, err := r.pins.ListPins(ctx, roomID)
	if err != nil {
		r.warn(err, roomID, "", "list pins failed")
		return nil, state.Transient("list pins", err)
	}
	return entries, nil
}

// PreviewBody truncates a pinned message body for list display. Display
// transform only; stored bodies are never modified.
func PreviewBody(body string) string {
	return state.Ellipsize(body, PreviewLimit)
}

func (r *Registry) warn(err error, roomID, messageID, msg string) {
	if r.log == nil {
		return
	}
	ev := r.log.Warn().Err(err).Str("room", roomID)
	if messageID != "" {
		ev = ev.Str("message", messageID)
	}
	ev.Msg(msg)
}
