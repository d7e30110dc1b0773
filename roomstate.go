// Package roomstate keeps a chat room's interaction state (read cursors,
// typing presence, pins, reply references) consistent across all
// concurrently connected viewers. It is a library consumed by a presentation
// layer; cross-viewer coordination happens through the backing store's
// last-writer-wins rows and its change feed, never a shared lock.
package roomstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomstate/internal/config"
	"github.com/vovakirdan/roomstate/internal/cursor"
	"github.com/vovakirdan/roomstate/internal/feed"
	"github.com/vovakirdan/roomstate/internal/feed/wsfeed"
	"github.com/vovakirdan/roomstate/internal/gesture"
	"github.com/vovakirdan/roomstate/internal/log"
	"github.com/vovakirdan/roomstate/internal/pins"
	"github.com/vovakirdan/roomstate/internal/replies"
	"github.com/vovakirdan/roomstate/internal/room"
	"github.com/vovakirdan/roomstate/internal/state"
	"github.com/vovakirdan/roomstate/internal/store"
	"github.com/vovakirdan/roomstate/internal/store/sqlite"
)

// Engine wires the backing store, change feed, and per-room state stores for
// one client session.
type Engine struct {
	cfg config.Config
	log *zerolog.Logger
	clk clock.Clock

	store  store.Store
	source feed.Feed
	pub    feed.Publisher
	remote *wsfeed.Client

	tracker  *cursor.Tracker
	registry *pins.Registry
	graph    *replies.Graph

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New constructs an engine from configuration. With FeedURL unset the engine
// runs against the local SQLite store and its in-process change feed;
// otherwise subscriptions come from the remote change-feed endpoint.
func New(cfg config.Config, logger *zerolog.Logger) (*Engine, error) {
	return newEngine(cfg, logger, clock.New())
}

// NewFromConfigFile loads configuration from path (or the default location
// when empty) and constructs an engine with a logger at the configured level.
func NewFromConfigFile(path string) (*Engine, error) {
	bootstrap := log.New("info")
	cfg, resolved, err := config.Load(bootstrap, path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", resolved, err)
	}
	return New(cfg, log.New(cfg.LogLevel))
}

func newEngine(cfg config.Config, logger *zerolog.Logger, clk clock.Clock) (*Engine, error) {
	def := config.Default()
	def.UpdateFrom(cfg)
	cfg = def

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	bus := feed.NewBus(logger, cfg.FeedBuffer)
	st.SetNotifier(bus.Publish)

	e := &Engine{
		cfg:      cfg,
		log:      logger,
		clk:      clk,
		store:    st,
		source:   bus,
		pub:      bus,
		sessions: make(map[string]*Session),
	}

	if cfg.FeedURL != "" {
		e.remote = wsfeed.New(wsfeed.Options{
			URL:    cfg.FeedURL,
			Token:  cfg.FeedToken,
			Buffer: cfg.FeedBuffer,
		}, logger)
		e.source = e.remote
		e.pub = e.remote
	}

	e.tracker = cursor.NewTracker(st, st, logger)
	e.registry = pins.NewRegistry(st, cfg.PinLimit, logger)
	e.graph = replies.NewGraph(st, logger)
	return e, nil
}

// Store exposes the backing store's row operations for the hosting
// application (message composition and deletion live outside this core).
func (e *Engine) Store() store.Store {
	return e.store
}

// Pins returns the room pin registry.
func (e *Engine) Pins() *pins.Registry {
	return e.registry
}

// Replies returns the reply reference resolver.
func (e *Engine) Replies() *replies.Graph {
	return e.graph
}

// OpenOptions describes one room session.
type OpenOptions struct {
	RoomID      string
	ViewerID    string
	DisplayName string
	// CanUnpin comes from the permission collaborator. The engine enforces
	// no policy: the flag only reaches snapshots so the presentation layer
	// can hide the unpin affordance.
	CanUnpin bool
	// OnTap receives resolved tap intents (single after the debounce window,
	// double immediately).
	OnTap func(gesture.TapKind)
}

// OpenRoom subscribes to the room's change feed, loads the initial snapshot,
// marks the room read, and starts the event loop. One session per
// (client session, room); close it on navigation away.
func (e *Engine) OpenRoom(ctx context.Context, opts OpenOptions) (*Session, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine closed")
	}
	if _, exists := e.sessions[opts.RoomID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("room %s already open", opts.RoomID)
	}
	// Reserve the slot before releasing the lock so a concurrent open of
	// the same room fails the check above instead of racing this one.
	e.sessions[opts.RoomID] = nil
	e.mu.Unlock()

	sub, err := e.source.Subscribe(opts.RoomID)
	if err != nil {
		e.closeSession(opts.RoomID)
		return nil, fmt.Errorf("subscribe room %s: %w", opts.RoomID, err)
	}

	rs := room.New(room.Options{
		RoomID:        opts.RoomID,
		ViewerID:      opts.ViewerID,
		CanUnpin:      opts.CanUnpin,
		Store:         e.store,
		Tracker:       e.tracker,
		Sub:           sub,
		Clock:         e.clk,
		TypingExpiry:  e.cfg.TypingExpiry,
		MessageWindow: e.cfg.MessageWindow,
		Log:           e.log,
	})

	resyncCtx, cancelResync := context.WithTimeout(ctx, e.cfg.ResyncTimeout)
	err = rs.Resync(resyncCtx)
	cancelResync()
	if err != nil {
		sub.Unsubscribe()
		e.closeSession(opts.RoomID)
		return nil, err
	}

	// Entering the room reads it. Soft failure: unread counts stay stale
	// until the next qualifying event retries.
	if err := e.tracker.MarkRead(ctx, opts.RoomID, opts.ViewerID); err != nil && e.log != nil {
		e.log.Warn().Err(err).Str("room", opts.RoomID).Msg("mark read on entry failed")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		engine:      e,
		roomID:      opts.RoomID,
		viewerID:    opts.ViewerID,
		displayName: opts.DisplayName,
		room:        rs,
		cancel:      cancel,
	}
	sess.debouncer = gesture.NewDebouncer(e.clk, gesture.Config{
		DoubleTapWindow:  e.cfg.DoubleTapWindow,
		TypingIdleWindow: e.cfg.TypingIdleWindow,
	}, opts.OnTap)

	go rs.Run(runCtx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		sess.Close()
		return nil, fmt.Errorf("engine closed")
	}
	e.sessions[opts.RoomID] = sess
	e.mu.Unlock()
	return sess, nil
}

// Close tears down every open session and the backing store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		if s != nil { // rooms still opening hold a reservation, not a session
			sessions = append(sessions, s)
		}
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if e.remote != nil {
		e.remote.Close()
	}
	return e.store.Close()
}

func (e *Engine) closeSession(roomID string) {
	e.mu.Lock()
	delete(e.sessions, roomID)
	e.mu.Unlock()
}

// Session is one viewer's open room: the conversation state store plus the
// gesture debouncer that owns all timers for the room. Closing the session
// stops event delivery immediately and releases pending timers.
type Session struct {
	engine      *Engine
	roomID      string
	viewerID    string
	displayName string

	room      *room.Store
	debouncer *gesture.Debouncer
	cancel    context.CancelFunc

	closeOnce sync.Once
}

// Snapshot returns the current room aggregate for rendering.
func (s *Session) Snapshot() state.Snapshot {
	return s.room.Snapshot()
}

// MarkRead advances this viewer's read cursor over all qualifying unread
// messages. Idempotent; failures are soft.
func (s *Session) MarkRead(ctx context.Context) error {
	return s.engine.tracker.MarkRead(ctx, s.roomID, s.viewerID)
}

// Pin pins a message in this room on behalf of the session's viewer.
func (s *Session) Pin(ctx context.Context, messageID string) (*state.PinEntry, error) {
	return s.engine.registry.Pin(ctx, s.roomID, messageID, s.viewerID)
}

// Unpin removes a message's pin. The engine performs no permission check;
// gate the affordance on Snapshot().CanUnpin at the presentation boundary.
func (s *Session) Unpin(ctx context.Context, messageID string) error {
	return s.engine.registry.Unpin(ctx, s.roomID, messageID)
}

// ObserveTap feeds a tap gesture into the debouncer. TapDouble returns
// synchronously; TapSingle arrives later via the session's OnTap callback.
func (s *Session) ObserveTap() gesture.TapKind {
	return s.debouncer.ObserveTap()
}

// ObserveKeystroke feeds a local keystroke into the debouncer and, when the
// signal is due, publishes a typing refresh to the room. No stop signal is
// ever sent; other viewers expire the entry.
func (s *Session) ObserveKeystroke() {
	if !s.debouncer.ObserveKeystroke() {
		return
	}
	s.engine.pub.Publish(state.Event{
		Kind:   state.EventTypingSignal,
		RoomID: s.roomID,
		Typing: &state.TypingEntry{
			RoomID:      s.roomID,
			ViewerID:    s.viewerID,
			DisplayName: s.displayName,
			LastSignal:  s.engine.clk.Now().UTC(),
		},
	})
}

// Resync forces a full refetch of the room from the backing store.
func (s *Session) Resync(ctx context.Context) error {
	return s.room.Resync(ctx)
}

// Close unsubscribes from the room feed, stops the event loop, and cancels
// the debouncer's pending timers.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.debouncer.Close()
		s.cancel()
		s.room.Close()
		s.engine.closeSession(s.roomID)
	})
}
