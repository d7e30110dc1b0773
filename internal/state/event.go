package state

// EventKind is a room-scoped change notification delivered over a feed.
type EventKind int

const (
	// EventMessageInserted notifies viewers about a new message row.
	EventMessageInserted EventKind = iota
	// EventMessageDeleted notifies viewers that a message row was removed.
	EventMessageDeleted
	// EventReadCursorAdvanced notifies viewers that a read cursor moved forward.
	EventReadCursorAdvanced
	// EventPinAdded notifies viewers about a new pin entry.
	EventPinAdded
	// EventPinRemoved notifies viewers that a message was unpinned.
	EventPinRemoved
	// EventTypingSignal refreshes a viewer's typing presence.
	EventTypingSignal
	// EventResyncRequired tells consumers their local cache may have a gap
	// and a full refetch is needed. Emitted after a feed reconnect.
	EventResyncRequired
)

// Event describes one committed change in a room. Consumers must treat
// handlers as idempotent: the same change may be observed more than once
// per session.
type Event struct {
	Kind   EventKind
	RoomID string

	// Message is set for EventMessageInserted.
	Message *Message
	// MessageID is set for EventMessageDeleted and EventPinRemoved.
	MessageID string

	// ViewerID and Cursor are set for EventReadCursorAdvanced.
	ViewerID string
	Cursor   int64

	// Pin is set for EventPinAdded.
	Pin *PinEntry

	// Typing is set for EventTypingSignal.
	Typing *TypingEntry
}
