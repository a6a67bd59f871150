package eventbus

import (
	"sync"
	"testing"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	bus := New()
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubA()
	defer unsubB()

	bus.Publish(Event{Type: TypeRunState, Data: "running"})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		if e.Type != TypeRunState || e.Data != "running" {
			t.Fatalf("got %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("Publish should stamp Time")
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(Event{Type: "a"})
	bus.Publish(Event{Type: "b"})

	if e := <-ch; e.Type != "a" {
		t.Fatalf("got %q, want a", e.Type)
	}
	if got := Dropped(bus); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}

	// Publishing concurrently with unsubscribes must not panic.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		_, u := bus.Subscribe(1)
		wg.Add(2)
		go func() { defer wg.Done(); bus.Publish(Event{Type: "x"}) }()
		go func() { defer wg.Done(); u() }()
	}
	wg.Wait()
}
