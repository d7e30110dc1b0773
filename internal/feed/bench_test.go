package feed

import (
	"strconv"
	"testing"

	"github.com/vovakirdan/roomstate/internal/state"
)

func benchmarkBusFanout(b *testing.B, subscribers int) {
	bus := NewBus(nil, 64)

	target, err := bus.Subscribe("bench")
	if err != nil {
		b.Fatalf("subscribe: %v", err)
	}
	defer target.Unsubscribe()

	for i := 0; i < subscribers-1; i++ {
		sub, err := bus.Subscribe("bench")
		if err != nil {
			b.Fatalf("subscribe %d: %v", i, err)
		}
		defer sub.Unsubscribe()
		// Drain to avoid channel backpressure on all but the target.
		go func(s *Subscription) {
			for range s.Events() {
			}
		}(sub)
	}

	ev := state.Event{Kind: state.EventMessageDeleted, RoomID: "bench", MessageID: strconv.Itoa(subscribers)}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		bus.Publish(ev)
		<-target.Events()
	}
}

func BenchmarkBusFanout_10(b *testing.B)  { benchmarkBusFanout(b, 10) }
func BenchmarkBusFanout_100(b *testing.B) { benchmarkBusFanout(b, 100) }
func BenchmarkBusFanout_500(b *testing.B) { benchmarkBusFanout(b, 500) }
