package wsfeed

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/roomstate/internal/state"
)

// envelope is the wire frame exchanged with the change-feed endpoint.
type envelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameEvent       = "event"
	frameHeartbeat   = "heartbeat"

	eventMessageInserted = "message_inserted"
	eventMessageDeleted  = "message_deleted"
	eventCursorAdvanced  = "read_cursor_advanced"
	eventPinAdded        = "pin_added"
	eventPinRemoved      = "pin_removed"
	eventTyping          = "typing"
)

// roomTopic derives the stable channel name for a room.
func roomTopic(roomID string) string {
	return "room:" + roomID
}

type messageRow struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	ReplyToID  string    `json:"reply_to_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type cursorRow struct {
	RoomID   string `json:"room_id"`
	ViewerID string `json:"viewer_id"`
	Cursor   int64  `json:"last_read_seq"`
}

type pinRow struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	ActorID   string    `json:"actor_id"`
	PinnedAt  time.Time `json:"pinned_at"`
}

type typingRow struct {
	RoomID      string    `json:"room_id"`
	ViewerID    string    `json:"viewer_id"`
	DisplayName string    `json:"display_name"`
	At          time.Time `json:"at"`
}

type deletedRow struct {
	RoomID    string `json:"room_id"`
	MessageID string `json:"message_id"`
}

// encodeEvent maps a domain event to its wire envelope. The inverse of
// decodeEvent; unknown kinds return ok=false.
func encodeEvent(ev state.Event) (envelope, bool, error) {
	var (
		name string
		data any
	)
	switch ev.Kind {
	case state.EventMessageInserted:
		if ev.Message == nil {
			return envelope{}, false, nil
		}
		name = eventMessageInserted
		data = messageRow{
			ID:         ev.Message.ID,
			Seq:        ev.Message.Seq,
			RoomID:     ev.Message.RoomID,
			SenderID:   ev.Message.SenderID,
			SenderName: ev.Message.SenderName,
			Body:       ev.Message.Body,
			ReplyToID:  ev.Message.ReplyToID,
			CreatedAt:  ev.Message.CreatedAt,
		}
	case state.EventMessageDeleted:
		name = eventMessageDeleted
		data = deletedRow{RoomID: ev.RoomID, MessageID: ev.MessageID}
	case state.EventReadCursorAdvanced:
		name = eventCursorAdvanced
		data = cursorRow{RoomID: ev.RoomID, ViewerID: ev.ViewerID, Cursor: ev.Cursor}
	case state.EventPinAdded:
		if ev.Pin == nil {
			return envelope{}, false, nil
		}
		name = eventPinAdded
		data = pinRow{RoomID: ev.Pin.RoomID, MessageID: ev.Pin.MessageID, ActorID: ev.Pin.ActorID, PinnedAt: ev.Pin.PinnedAt}
	case state.EventPinRemoved:
		name = eventPinRemoved
		data = pinRow{RoomID: ev.RoomID, MessageID: ev.MessageID}
	case state.EventTypingSignal:
		if ev.Typing == nil {
			return envelope{}, false, nil
		}
		name = eventTyping
		data = typingRow{
			RoomID:      ev.Typing.RoomID,
			ViewerID:    ev.Typing.ViewerID,
			DisplayName: ev.Typing.DisplayName,
			At:          ev.Typing.LastSignal,
		}
	default:
		return envelope{}, false, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return envelope{}, false, err
	}
	return envelope{Type: frameEvent, Topic: roomTopic(ev.RoomID), Event: name, Data: raw}, true, nil
}

// decodeEvent maps a wire envelope to a domain event. Unknown event names
// return ok=false and are skipped by the read loop.
func decodeEvent(env envelope) (state.Event, bool, error) {
	switch env.Event {
	case eventMessageInserted:
		var row messageRow
		if err := json.Unmarshal(env.Data, &row); err != nil {
			return state.Event{}, false, err
		}
		return state.Event{
			Kind:   state.EventMessageInserted,
			RoomID: row.RoomID,
			Message: &state.Message{
				ID:         row.ID,
				Seq:        row.Seq,
				RoomID:     row.RoomID,
				SenderID:   row.SenderID,
				SenderName: row.SenderName,
				Body:       row.Body,
				ReplyToID:  row.ReplyToID,
				CreatedAt:  row.CreatedAt,
			},
		}, true, nil
	case eventMessageDeleted:
		var row deletedRow
		if err := json.Unmarshal(env.Data, &row); err != nil {
			return state.Event{}, false, err
		}
		return state.Event{Kind: state.EventMessageDeleted, RoomID: row.RoomID, MessageID: row.MessageID}, true, nil
	case eventCursorAdvanced:
		var row cursorRow
		if err := json.Unmarshal(env.Data, &row); err != nil {
			return state.Event{}, false, err
		}
		return state.Event{
			Kind:     state.EventReadCursorAdvanced,
			RoomID:   row.RoomID,
			ViewerID: row.ViewerID,
			Cursor:   row.Cursor,
		}, true, nil
	case eventPinAdded:
		var row pinRow
		if err := json.Unmarshal(env.Data, &row); err != nil {
			return state.Event{}, false, err
		}
		return state.Event{
			Kind:   state.EventPinAdded,
			RoomID: row.RoomID,
			Pin: &state.PinEntry{
				RoomID:    row.RoomID,
				MessageID: row.MessageID,
				ActorID:   row.ActorID,
				PinnedAt:  row.PinnedAt,
			},
		}, true, nil
	case eventPinRemoved:
		var row pinRow
		if err := json.Unmarshal(env.Data, &row); err != nil {
			return state.Event{}, false, err
		}
		return state.Event{Kind: state.EventPinRemoved, RoomID: row.RoomID, MessageID: row.MessageID}, true, nil
	case eventTyping:
		var row typingRow
		if err := json.Unmarshal(env.Data, &row); err != nil {
			return state.Event{}, false, err
		}
		return state.Event{
			Kind:   state.EventTypingSignal,
			RoomID: row.RoomID,
			Typing: &state.TypingEntry{
				RoomID:      row.RoomID,
				ViewerID:    row.ViewerID,
				DisplayName: row.DisplayName,
				LastSignal:  row.At,
			},
		}, true, nil
	default:
		return state.Event{}, false, nil
	}
}
