package store

import (
	"context"

	"github.com/vovakirdan/roomstate/internal/state"
)

// Notifier receives one event per committed row change. The engine bridges it
// to the in-process feed so every subscribed viewer observes the change.
type Notifier func(state.Event)

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message and assigns its room sequence number.
	InsertMessage(ctx context.Context, msg *state.Message) error

	// GetMessage retrieves a message by ID. Returns state.ErrNotFound when
	// the message does not exist or has been deleted.
	GetMessage(ctx context.Context, id string) (*state.Message, error)

	// ListMessages returns the newest messages of a room in ascending
	// sequence order, at most limit rows.
	ListMessages(ctx context.Context, roomID string, limit int) ([]state.Message, error)

	// DeleteMessage removes a message row. Deleting an absent row is a no-op.
	DeleteMessage(ctx context.Context, id string) error

	// MarkMessagesRead flips is_read on every unread message in the room not
	// authored by viewerID. It is a conditional update: already-read rows are
	// excluded, never re-written. Returns the number of rows updated and the
	// highest sequence among the room's messages not authored by viewerID,
	// independent of their is_read state.
	MarkMessagesRead(ctx context.Context, roomID, viewerID string) (updated int64, latestSeq int64, err error)

	// CountUnread returns the number of messages in the room past the
	// viewer's cursor and not authored by the viewer.
	CountUnread(ctx context.Context, roomID, viewerID string) (int, error)
}

// ReadStateStore handles read-cursor persistence.
type ReadStateStore interface {
	// GetCursor returns the viewer's cursor for the room, zero when none.
	GetCursor(ctx context.Context, roomID, viewerID string) (int64, error)

	// AdvanceCursor moves the cursor forward to seq. Concurrent advances
	// resolve by taking the maximum; the cursor never moves backward.
	// Returns the resolved cursor value.
	AdvanceCursor(ctx context.Context, roomID, viewerID string, seq int64) (int64, error)
}

// PinStore handles pin persistence.
type PinStore interface {
	// InsertPin records a pin. A message is pinned at most once per room:
	// pinning an already-pinned message returns the existing entry with
	// inserted=false.
	InsertPin(ctx context.Context, entry *state.PinEntry) (stored *state.PinEntry, inserted bool, err error)

	// DeletePin removes a pin row. Returns false when no row existed.
	DeletePin(ctx context.Context, roomID, messageID string) (bool, error)

	// ListPins returns a room's pins ordered by pin timestamp ascending.
	ListPins(ctx context.Context, roomID string) ([]state.PinEntry, error)

	// CountPins returns the number of pins in a room.
	CountPins(ctx context.Context, roomID string) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore
	ReadStateStore
	PinStore

	// Close closes the underlying database connection.
	Close() error
}
