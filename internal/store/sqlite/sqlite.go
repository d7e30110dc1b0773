package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/roomstate/internal/state"
	"github.com/vovakirdan/roomstate/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	room_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL,
	reply_to_id TEXT,
	is_read     BOOLEAN NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_room_seq ON messages(room_id, seq);

CREATE TABLE IF NOT EXISTS read_cursors (
	room_id       TEXT NOT NULL,
	viewer_id     TEXT NOT NULL,
	last_read_seq INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL,
	PRIMARY KEY (room_id, viewer_id)
);

CREATE TABLE IF NOT EXISTS pins (
	room_id    TEXT NOT NULL,
	message_id TEXT NOT NULL,
	actor_id   TEXT NOT NULL,
	pinned_at  DATETIME NOT NULL,
	PRIMARY KEY (room_id, message_id)
);
`

// SQLiteStore implements store.Store for SQLite. Every successful row change
// is reported to the configured notifier, which stands in for the backing
// store's change feed.
type SQLiteStore struct {
	db     *sql.DB
	notify store.Notifier
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SetNotifier installs the row-change callback. Must be called before the
// store receives writes; changes committed with no notifier are not replayed.
func (s *SQLiteStore) SetNotifier(n store.Notifier) {
	s.notify = n
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) emit(ev state.Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}

// ==== MessageStore implementation ====

// InsertMessage persists a message and assigns its sequence number.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *state.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (id, room_id, sender_id, sender_name, body, reply_to_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), 0, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Body, msg.ReplyToID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.Seq = seq

	stored := *msg
	s.emit(state.Event{Kind: state.EventMessageInserted, RoomID: msg.RoomID, Message: &stored})
	return nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*state.Message, error) {
	query := `
		SELECT seq, id, room_id, sender_id, sender_name, body, COALESCE(reply_to_id, ''), is_read, created_at
		FROM messages
		WHERE id = ?
	`
	var msg state.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.Seq,
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Body,
		&msg.ReplyToID,
		&msg.Read,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &msg, nil
}

// ListMessages returns the newest limit messages of a room, ascending by seq.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, limit int) ([]state.Message, error) {
	query := `
		SELECT seq, id, room_id, sender_id, sender_name, body, COALESCE(reply_to_id, ''), is_read, created_at
		FROM (
			SELECT * FROM messages WHERE room_id = ? ORDER BY seq DESC LIMIT ?
		)
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []state.Message
	for rows.Next() {
		var msg state.Message
		if err := rows.Scan(
			&msg.Seq,
			&msg.ID,
			&msg.RoomID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Body,
			&msg.ReplyToID,
			&msg.Read,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// DeleteMessage removes a message row and its pin, if any.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	var roomID string
	err := s.db.QueryRowContext(ctx, `SELECT room_id FROM messages WHERE id = ?`, id).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query message room: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	removed, err := s.DeletePin(ctx, roomID, id)
	if err != nil {
		return fmt.Errorf("delete pin for message: %w", err)
	}
	_ = removed // DeletePin already notified

	s.emit(state.Event{Kind: state.EventMessageDeleted, RoomID: roomID, MessageID: id})
	return nil
}

// MarkMessagesRead flips is_read on unread messages not authored by viewerID.
// The update is conditional: already-read rows are excluded, never re-written.
// latestSeq is the highest sequence among the viewer's qualifying messages,
// regardless of their is_read state: another viewer flipping the shared column
// first must not hide those rows from this viewer's cursor.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, roomID, viewerID string) (int64, int64, error) {
	query := `
		UPDATE messages
		SET is_read = 1
		WHERE room_id = ? AND sender_id <> ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, roomID, viewerID)
	if err != nil {
		return 0, 0, fmt.Errorf("mark messages read: %w", err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("rows affected: %w", err)
	}

	var latest int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE room_id = ? AND sender_id <> ?`,
		roomID, viewerID).Scan(&latest)
	if err != nil {
		return 0, 0, fmt.Errorf("query latest seq: %w", err)
	}

	return updated, latest, nil
}

// CountUnread counts messages past the viewer's cursor not authored by the viewer.
func (s *SQLiteStore) CountUnread(ctx context.Context, roomID, viewerID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		WHERE m.room_id = ?
		  AND m.sender_id <> ?
		  AND m.seq > COALESCE(
			(SELECT last_read_seq FROM read_cursors WHERE room_id = ? AND viewer_id = ?), 0)
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, roomID, viewerID, roomID, viewerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// ==== ReadStateStore implementation ====

// GetCursor returns the viewer's cursor for the room, zero when none.
func (s *SQLiteStore) GetCursor(ctx context.Context, roomID, viewerID string) (int64, error) {
	var cursor int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_seq FROM read_cursors WHERE room_id = ? AND viewer_id = ?`,
		roomID, viewerID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query cursor: %w", err)
	}
	return cursor, nil
}

// AdvanceCursor moves the cursor forward to seq, taking the maximum of the
// stored and requested values. The cursor never moves backward.
func (s *SQLiteStore) AdvanceCursor(ctx context.Context, roomID, viewerID string, seq int64) (int64, error) {
	query := `
		INSERT INTO read_cursors (room_id, viewer_id, last_read_seq, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, viewer_id) DO UPDATE
		SET last_read_seq = MAX(last_read_seq, excluded.last_read_seq),
		    updated_at = excluded.updated_at
	`
	before, err := s.GetCursor(ctx, roomID, viewerID)
	if err != nil {
		return 0, err
	}

	if _, err := s.db.ExecContext(ctx, query, roomID, viewerID, seq, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("advance cursor: %w", err)
	}

	resolved := before
	if seq > resolved {
		resolved = seq
	}
	if resolved > before {
		s.emit(state.Event{
			Kind:     state.EventReadCursorAdvanced,
			RoomID:   roomID,
			ViewerID: viewerID,
			Cursor:   resolved,
		})
	}
	return resolved, nil
}

// ==== PinStore implementation ====

// InsertPin records a pin. Pinning an already-pinned message returns the
// existing entry unchanged.
func (s *SQLiteStore) InsertPin(ctx context.Context, entry *state.PinEntry) (*state.PinEntry, bool, error) {
	if entry.PinnedAt.IsZero() {
		entry.PinnedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO pins (room_id, message_id, actor_id, pinned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id, message_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, entry.RoomID, entry.MessageID, entry.ActorID, entry.PinnedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert pin: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	var stored state.PinEntry
	err = s.db.QueryRowContext(ctx,
		`SELECT room_id, message_id, actor_id, pinned_at FROM pins WHERE room_id = ? AND message_id = ?`,
		entry.RoomID, entry.MessageID).Scan(&stored.RoomID, &stored.MessageID, &stored.ActorID, &stored.PinnedAt)
	if err != nil {
		return nil, false, fmt.Errorf("query pin: %w", err)
	}

	if inserted > 0 {
		notify := stored
		s.emit(state.Event{Kind: state.EventPinAdded, RoomID: stored.RoomID, Pin: &notify})
	}
	return &stored, inserted > 0, nil
}

// DeletePin removes a pin row. Removing an absent pin is a no-op.
func (s *SQLiteStore) DeletePin(ctx context.Context, roomID, messageID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM pins WHERE room_id = ? AND message_id = ?`, roomID, messageID)
	if err != nil {
		return false, fmt.Errorf("delete pin: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if removed > 0 {
		s.emit(state.Event{Kind: state.EventPinRemoved, RoomID: roomID, MessageID: messageID})
	}
	return removed > 0, nil
}

// ListPins returns a room's pins ordered by pin timestamp ascending.
func (s *SQLiteStore) ListPins(ctx context.Context, roomID string) ([]state.PinEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id, message_id, actor_id, pinned_at FROM pins WHERE room_id = ? ORDER BY pinned_at ASC, message_id ASC`,
		roomID)
	if err != nil {
		return nil, fmt.Errorf("query pins: %w", err)
	}
	defer rows.Close()

	var pins []state.PinEntry
	for rows.Next() {
		var p state.PinEntry
		if err := rows.Scan(&p.RoomID, &p.MessageID, &p.ActorID, &p.PinnedAt); err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pins: %w", err)
	}

	return pins, nil
}

// CountPins returns the number of pins in a room.
func (s *SQLiteStore) CountPins(ctx context.Context, roomID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pins WHERE room_id = ?`, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pins: %w", err)
	}
	return count, nil
}
