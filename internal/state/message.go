package state

import "time"

// Message is the domain model for a chat message as seen by the state engine.
// ReplyToID is a weak reference: the target may be deleted independently, in
// which case reply previews degrade to a placeholder.
type Message struct {
	ID         string
	Seq        int64
	RoomID     string
	SenderID   string
	SenderName string
	Body       string
	ReplyToID  string
	Read       bool
	CreatedAt  time.Time
}

// PinEntry elevates a message to a room's persistent shortlist.
// A message is pinned at most once per room; display order is PinnedAt ascending.
type PinEntry struct {
	RoomID    string
	MessageID string
	ActorID   string
	PinnedAt  time.Time
}

// TypingEntry is an ephemeral presence signal. An entry with no refresh within
// the expiry window is stale and evicted from the next snapshot.
type TypingEntry struct {
	RoomID      string
	ViewerID    string
	DisplayName string
	LastSignal  time.Time
}

// Snapshot is the per-room aggregate handed to the presentation layer.
type Snapshot struct {
	RoomID      string
	Messages    []Message
	Pinned      []PinEntry
	TypingUsers []string
	UnreadCount int
	// CanUnpin mirrors the permission collaborator's capability flag so the
	// presentation layer can hide the unpin affordance. The engine enforces
	// no policy of its own.
	CanUnpin bool
}
