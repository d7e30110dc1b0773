package gesture

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TapKind classifies an observed tap gesture.
type TapKind int

const (
	// TapNone means the tap is pending classification.
	TapNone TapKind = iota
	// TapSingle is emitted after the double-tap window elapses with no pair.
	TapSingle
	// TapDouble is emitted immediately when a second tap lands in the window.
	TapDouble
)

// DefaultDoubleTapWindow is how long a first tap waits for its pair.
const DefaultDoubleTapWindow = 300 * time.Millisecond

// DefaultTypingIdleWindow suppresses repeated typing signals. It must stay
// shorter than the typing expiry so continuous typing refreshes the remote
// entry before it goes stale.
const DefaultTypingIdleWindow = 3 * time.Second

// Debouncer collapses rapid-fire local interaction signals into single
// intents before they reach the network. All timers are owned by the
// instance and released by Close; nothing outlives the owning room session.
type Debouncer struct {
	mu sync.Mutex

	clk        clock.Clock
	tapWindow  time.Duration
	idleWindow time.Duration
	emit       func(TapKind)

	lastTap    time.Time
	pending    *clock.Timer
	gen        uint64 // invalidates stale timer fires that lost the Stop race
	lastTyping time.Time
	closed     bool
}

// Config tunes the debounce windows. Zero values take defaults.
type Config struct {
	DoubleTapWindow  time.Duration
	TypingIdleWindow time.Duration
}

// NewDebouncer constructs a debouncer. emit receives every resolved tap:
// TapDouble synchronously from ObserveTap, TapSingle from the delayed timer.
func NewDebouncer(clk clock.Clock, cfg Config, emit func(TapKind)) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.DoubleTapWindow <= 0 {
		cfg.DoubleTapWindow = DefaultDoubleTapWindow
	}
	if cfg.TypingIdleWindow <= 0 {
		cfg.TypingIdleWindow = DefaultTypingIdleWindow
	}
	return &Debouncer{
		clk:        clk,
		tapWindow:  cfg.DoubleTapWindow,
		idleWindow: cfg.TypingIdleWindow,
		emit:       emit,
	}
}

// ObserveTap records a tap. A tap landing within the window of the previous
// one resolves the pair as TapDouble and consumes it, so three rapid taps do
// not yield two doubles from overlapping windows. Otherwise the tap is
// pending: TapSingle fires after the window elapses unless superseded.
// Returns the synchronous classification (TapDouble or TapNone).
func (d *Debouncer) ObserveTap() TapKind {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return TapNone
	}

	now := d.clk.Now()

	// Any new tap invalidates a pending single-tap timer; a late fire after
	// a double would deliver both intents.
	d.cancelPendingLocked()

	if !d.lastTap.IsZero() && now.Sub(d.lastTap) <= d.tapWindow {
		d.lastTap = time.Time{} // consume the pair
		emit := d.emit
		d.mu.Unlock()
		if emit != nil {
			emit(TapDouble)
		}
		return TapDouble
	}

	d.lastTap = now
	gen := d.gen
	d.pending = d.clk.AfterFunc(d.tapWindow, func() { d.fireSingle(gen) })
	d.mu.Unlock()
	return TapNone
}

// fireSingle resolves a pending tap as TapSingle once the window has elapsed
// with no pair. gen rejects fires from timers cancelled after triggering.
func (d *Debouncer) fireSingle(gen uint64) {
	d.mu.Lock()
	if d.closed || d.pending == nil || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = nil
	d.lastTap = time.Time{}
	emit := d.emit
	d.mu.Unlock()

	if emit != nil {
		emit(TapSingle)
	}
}

// ObserveKeystroke reports whether a "started typing" signal must be emitted
// now. The first keystroke returns true; further keystrokes are suppressed
// until the idle window elapses, after which the next keystroke refreshes
// the signal. No "stopped typing" is ever sent: consumers infer stop from
// typing-state expiry.
func (d *Debouncer) ObserveKeystroke() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}

	now := d.clk.Now()
	if !d.lastTyping.IsZero() && now.Sub(d.lastTyping) < d.idleWindow {
		return false
	}
	d.lastTyping = now
	return true
}

// Close cancels any pending timers. Further observations are no-ops.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.cancelPendingLocked()
	d.lastTap = time.Time{}
}

func (d *Debouncer) cancelPendingLocked() {
	d.gen++
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}
