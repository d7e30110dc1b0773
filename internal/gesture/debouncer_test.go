package gesture

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type tapRecorder struct {
	mu   sync.Mutex
	taps []TapKind
}

func (r *tapRecorder) record(k TapKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taps = append(r.taps, k)
}

func (r *tapRecorder) all() []TapKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TapKind, len(r.taps))
	copy(out, r.taps)
	return out
}

func TestDoubleTapWithinWindow(t *testing.T) {
	mock := clock.NewMock()
	rec := &tapRecorder{}
	d := NewDebouncer(mock, Config{}, rec.record)
	defer d.Close()

	if k := d.ObserveTap(); k != TapNone {
		t.Fatalf("first tap classified %v, want TapNone", k)
	}
	mock.Add(250 * time.Millisecond)
	if k := d.ObserveTap(); k != TapDouble {
		t.Fatalf("second tap classified %v, want TapDouble", k)
	}

	// Let any stray single-tap timer elapse.
	mock.Add(time.Second)

	got := rec.all()
	if len(got) != 1 || got[0] != TapDouble {
		t.Fatalf("expected exactly one double tap, got %v", got)
	}
}

func TestSlowTapsYieldTwoSingles(t *testing.T) {
	mock := clock.NewMock()
	rec := &tapRecorder{}
	d := NewDebouncer(mock, Config{}, rec.record)
	defer d.Close()

	d.ObserveTap()
	mock.Add(400 * time.Millisecond) // window elapses at +300

	if k := d.ObserveTap(); k != TapNone {
		t.Fatalf("second slow tap classified %v, want TapNone", k)
	}
	mock.Add(400 * time.Millisecond)

	got := rec.all()
	if len(got) != 2 || got[0] != TapSingle || got[1] != TapSingle {
		t.Fatalf("expected two single taps, got %v", got)
	}
}

func TestTripleTapConsumesPair(t *testing.T) {
	mock := clock.NewMock()
	rec := &tapRecorder{}
	d := NewDebouncer(mock, Config{}, rec.record)
	defer d.Close()

	d.ObserveTap()
	mock.Add(100 * time.Millisecond)
	if k := d.ObserveTap(); k != TapDouble {
		t.Fatalf("pair not detected")
	}
	mock.Add(50 * time.Millisecond)
	// Third rapid tap starts a fresh window instead of pairing with the
	// consumed second tap.
	if k := d.ObserveTap(); k != TapNone {
		t.Fatalf("third tap classified %v, want TapNone", k)
	}
	mock.Add(time.Second)

	got := rec.all()
	if len(got) != 2 || got[0] != TapDouble || got[1] != TapSingle {
		t.Fatalf("expected [double single], got %v", got)
	}
}

func TestPendingSingleCancelledByDouble(t *testing.T) {
	mock := clock.NewMock()
	rec := &tapRecorder{}
	d := NewDebouncer(mock, Config{}, rec.record)
	defer d.Close()

	d.ObserveTap()
	mock.Add(200 * time.Millisecond)
	d.ObserveTap() // double; pending single must not fire later
	mock.Add(time.Second)

	for _, k := range rec.all() {
		if k == TapSingle {
			t.Fatalf("late single tap fired after double: %v", rec.all())
		}
	}
}

func TestKeystrokeSuppression(t *testing.T) {
	mock := clock.NewMock()
	d := NewDebouncer(mock, Config{}, nil)
	defer d.Close()

	if !d.ObserveKeystroke() {
		t.Fatal("first keystroke must emit started typing")
	}
	if d.ObserveKeystroke() {
		t.Fatal("immediate keystroke must be suppressed")
	}
	mock.Add(time.Second)
	if d.ObserveKeystroke() {
		t.Fatal("keystroke inside idle window must be suppressed")
	}
	mock.Add(DefaultTypingIdleWindow)
	if !d.ObserveKeystroke() {
		t.Fatal("keystroke after idle window must refresh the signal")
	}
}

func TestCloseReleasesPendingTimer(t *testing.T) {
	mock := clock.NewMock()
	rec := &tapRecorder{}
	d := NewDebouncer(mock, Config{}, rec.record)

	d.ObserveTap()
	d.Close()
	mock.Add(time.Second)

	if got := rec.all(); len(got) != 0 {
		t.Fatalf("tap fired after Close: %v", got)
	}
	if k := d.ObserveTap(); k != TapNone {
		t.Fatalf("closed debouncer classified tap %v", k)
	}
}

func TestCustomWindow(t *testing.T) {
	mock := clock.NewMock()
	rec := &tapRecorder{}
	d := NewDebouncer(mock, Config{DoubleTapWindow: 100 * time.Millisecond}, rec.record)
	defer d.Close()

	d.ObserveTap()
	mock.Add(150 * time.Millisecond)
	if k := d.ObserveTap(); k != TapNone {
		t.Fatalf("tap outside custom window classified %v", k)
	}
}
