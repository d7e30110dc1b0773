package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/cursor"
	"github.com/vovakirdan/roomstate/internal/feed"
	"github.com/vovakirdan/roomstate/internal/state"
	"github.com/vovakirdan/roomstate/internal/store"
)

// DefaultTypingExpiry is how long a typing entry stays live without refresh.
const DefaultTypingExpiry = 4 * time.Second

// DefaultMessageWindow is the number of messages kept locally per room.
const DefaultMessageWindow = 200

// Options configures a per-room state store.
type Options struct {
	RoomID   string
	ViewerID string
	// CanUnpin is the permission collaborator's capability flag, plumbed
	// opaquely into snapshots.
	CanUnpin bool

	Store   store.Store
	Tracker *cursor.Tracker
	Sub     *feed.Subscription

	Clock         clock.Clock
	TypingExpiry  time.Duration
	MessageWindow int
	Log           *zerolog.Logger
}

// Store aggregates one room's interaction state (message window, pin set,
// typing presence, unread count) into a queryable snapshot. It is recomputed
// incrementally from feed events; a full resynchronization fetch happens only
// on room entry and after a subscription gap.
type Store struct {
	mu sync.Mutex

	roomID   string
	viewerID string
	canUnpin bool

	store   store.Store
	tracker *cursor.Tracker
	sub     *feed.Subscription

	clk          clock.Clock
	typingExpiry time.Duration
	window       int
	log          *zerolog.Logger

	messages []state.Message
	pins     []state.PinEntry
	typing   map[string]state.TypingEntry
	cursor   int64
	unread   int
}

// New constructs the room store. Call Resync before Run to load the initial
// snapshot.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.TypingExpiry <= 0 {
		opts.TypingExpiry = DefaultTypingExpiry
	}
	if opts.MessageWindow <= 0 {
		opts.MessageWindow = DefaultMessageWindow
	}
	return &Store{
		roomID:       opts.RoomID,
		viewerID:     opts.ViewerID,
		canUnpin:     opts.CanUnpin,
		store:        opts.Store,
		tracker:      opts.Tracker,
		sub:          opts.Sub,
		clk:          opts.Clock,
		typingExpiry: opts.TypingExpiry,
		window:       opts.MessageWindow,
		log:          opts.Log,
		typing:       make(map[string]state.TypingEntry),
	}
}

// Run consumes the room's subscription until the context is cancelled or the
// subscription is torn down. Events are applied in arrival order; cross-row
// ordering is last-writer-wins, so every handler is idempotent.
func (s *Store) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.sub.Events():
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

// Close stops event delivery for the room.
func (s *Store) Close() {
	s.sub.Unsubscribe()
}

func (s *Store) handle(ctx context.Context, ev state.Event) {
	if ev.RoomID != s.roomID && ev.Kind != state.EventResyncRequired {
		return
	}

	var markRead bool

	s.mu.Lock()
	switch ev.Kind {
	case state.EventMessageInserted:
		if ev.Message == nil {
			s.mu.Unlock()
			s.resyncSoft(ctx, "malformed insert event")
			return
		}
		if s.applyInsert(*ev.Message) {
			markRead = ev.Message.SenderID != s.viewerID
		}
	case state.EventMessageDeleted:
		s.applyDelete(ev.MessageID)
	case state.EventReadCursorAdvanced:
		if ev.ViewerID == s.viewerID && ev.Cursor > s.cursor {
			s.cursor = ev.Cursor
			s.recountUnreadLocked()
		}
	case state.EventPinAdded:
		if ev.Pin != nil {
			s.applyPin(*ev.Pin)
		}
	case state.EventPinRemoved:
		s.removePinLocked(ev.MessageID)
	case state.EventTypingSignal:
		if ev.Typing != nil && ev.Typing.ViewerID != s.viewerID {
			// Full replace, never a partial update of the stored entry.
			s.typing[ev.Typing.ViewerID] = *ev.Typing
		}
	case state.EventResyncRequired:
		s.mu.Unlock()
		s.resyncSoft(ctx, "subscription gap")
		return
	}
	s.mu.Unlock()

	if markRead && s.tracker != nil {
		// Room is open: a qualifying new message advances the cursor.
		// Soft failure; the next qualifying event retries.
		_ = s.tracker.MarkRead(ctx, s.roomID, s.viewerID)
	}
}

// applyInsert adds the message to the local window. Reprocessing a known
// message is a no-op. Returns true when the message was new.
func (s *Store) applyInsert(msg state.Message) bool {
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return false
		}
	}

	s.messages = append(s.messages, msg)
	// Events normally arrive in commit order; repair locally when not.
	if n := len(s.messages); n > 1 && s.messages[n-2].Seq > msg.Seq {
		sort.Slice(s.messages, func(i, j int) bool { return s.messages[i].Seq < s.messages[j].Seq })
	}
	if len(s.messages) > s.window {
		s.messages = s.messages[len(s.messages)-s.window:]
	}

	if msg.SenderID != s.viewerID && msg.Seq > s.cursor {
		s.unread++
	}
	return true
}

func (s *Store) applyDelete(messageID string) {
	for i, m := range s.messages {
		if m.ID != messageID {
			continue
		}
		if m.SenderID != s.viewerID && m.Seq > s.cursor && s.unread > 0 {
			s.unread--
		}
		s.messages = append(s.messages[:i], s.messages[i+1:]...)
		break
	}
	// A deleted message cannot stay pinned.
	s.removePinLocked(messageID)
}

// applyPin inserts the entry keeping PinnedAt ascending order. Reprocessing
// a pin for an already-pinned message is a no-op.
func (s *Store) applyPin(entry state.PinEntry) {
	for _, p := range s.pins {
		if p.MessageID == entry.MessageID {
			return
		}
	}
	i := sort.Search(len(s.pins), func(i int) bool {
		return s.pins[i].PinnedAt.After(entry.PinnedAt)
	})
	s.pins = append(s.pins, state.PinEntry{})
	copy(s.pins[i+1:], s.pins[i:])
	s.pins[i] = entry
}

func (s *Store) removePinLocked(messageID string) {
	for i, p := range s.pins {
		if p.MessageID == messageID {
			s.pins = append(s.pins[:i], s.pins[i+1:]...)
			return
		}
	}
}

func (s *Store) recountUnreadLocked() {
	count := 0
	for _, m := range s.messages {
		if m.SenderID != s.viewerID && m.Seq > s.cursor {
			count++
		}
	}
	s.unread = count
}

// Resync replaces the local cache with a full fetch from the backing store.
// Used on initial room entry and whenever the subscription reports a gap.
// Typing presence is local-only ephemeral state and survives the refetch.
func (s *Store) Resync(ctx context.Context) error {
	messages, err := s.store.ListMessages(ctx, s.roomID, s.window)
	if err != nil {
		return state.Transient("resync messages", err)
	}
	pins, err := s.store.ListPins(ctx, s.roomID)
	if err != nil {
		return state.Transient("resync pins", err)
	}
	cur, err := s.store.GetCursor(ctx, s.roomID, s.viewerID)
	if err != nil {
		return state.Transient("resync cursor", err)
	}
	unread, err := s.store.CountUnread(ctx, s.roomID, s.viewerID)
	if err != nil {
		return state.Transient("resync unread", err)
	}

	s.mu.Lock()
	s.messages = messages
	s.pins = pins
	s.cursor = cur
	s.unread = unread
	s.mu.Unlock()
	return nil
}

func (s *Store) resyncSoft(ctx context.Context, reason string) {
	if err := s.Resync(ctx); err != nil && s.log != nil {
		s.log.Warn().Err(err).Str("room", s.roomID).Str("reason", reason).Msg("resync failed")
	}
}

// Snapshot returns the current per-room aggregate. Stale typing entries are
// evicted first, so an entry past its expiry window is absent from the result.
func (s *Store) Snapshot() state.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	var typingNames []string
	for id, entry := range s.typing {
		if now.Sub(entry.LastSignal) > s.typingExpiry {
			delete(s.typing, id)
			continue
		}
		typingNames = append(typingNames, entry.DisplayName)
	}
	sort.Strings(typingNames)

	snap := state.Snapshot{
		RoomID:      s.roomID,
		Messages:    make([]state.Message, len(s.messages)),
		Pinned:      make([]state.PinEntry, len(s.pins)),
		TypingUsers: typingNames,
		UnreadCount: s.unread,
		CanUnpin:    s.canUnpin,
	}
	copy(snap.Messages, s.messages)
	copy(snap.Pinned, s.pins)
	return snap
}
