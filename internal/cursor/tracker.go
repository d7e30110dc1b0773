package cursor

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/state"
	"github.com/vovakirdan/roomstate/internal/store"
)

// Tracker advances a viewer's read cursor. It is invoked on room entry and
// whenever a qualifying message arrives while the room is open, and is safe
// to call repeatedly: the cursor only ever moves forward, and a call with
// nothing new to cover produces no event.
type Tracker struct {
	messages store.MessageStore
	cursors  store.ReadStateStore
	log      *zerolog.Logger
}

// NewTracker constructs a tracker over the backing store.
func NewTracker(messages store.MessageStore, cursors store.ReadStateStore, logger *zerolog.Logger) *Tracker {
	return &Tracker{messages: messages, cursors: cursors, log: logger}
}

// MarkRead marks every unread message in the room not authored by the viewer
// as read and advances the viewer's cursor to the room's latest sequence.
// Concurrent advances resolve by taking the maximum; the cursor never moves
// backward.
//
// Failures are soft: the error is logged and returned as transient, local
// state is not rolled back, and the next triggering event retries.
func (t *Tracker) MarkRead(ctx context.Context, roomID, viewerID string) error {
	_, latest, err := t.messages.MarkMessagesRead(ctx, roomID, viewerID)
	if err != nil {
		t.warn(err, roomID, viewerID, "mark read failed")
		return state.Transient("mark read", err)
	}

	if latest == 0 {
		// No messages from other senders; nothing for the cursor to cover.
		return nil
	}

	// Idempotence comes from the cursor itself, not the shared is_read
	// column: another viewer reading first flips the rows but must not
	// stall this viewer's cursor. The max-wins upsert emits no event when
	// the cursor is already at latest.
	if _, err := t.cursors.AdvanceCursor(ctx, roomID, viewerID, latest); err != nil {
		t.warn(err, roomID, viewerID, "advance cursor failed")
		return state.Transient("advance cursor", err)
	}

	return nil
}

func (t *Tracker) warn(err error, roomID, viewerID, msg string) {
	if t.log != nil {
		t.log.Warn().Err(err).Str("room", roomID).Str("viewer", viewerID).Msg(msg)
	}
}
