package events

import (
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	bus.Publish(NewEvent(EventRunStart, "run-1"))

	select {
	case event := <-ch:
		if event.Type != EventRunStart {
			t.Errorf("expected EventRunStart, got %s", event.Type)
		}
		if event.Data != "run-1" {
			t.Errorf("expected data 'run-1', got %v", event.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryBusFilter(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe(EventPollEnd)
	defer bus.Unsubscribe(ch)

	bus.Publish(NewPollEvent(EventPollStart, 1, "should-be-filtered"))
	bus.Publish(NewPollEvent(EventPollEnd, 1, "should-arrive"))

	select {
	case event := <-ch:
		if event.Type != EventPollEnd {
			t.Errorf("expected EventPollEnd, got %s", event.Type)
		}
		if event.Poll != 1 {
			t.Errorf("expected poll 1, got %d", event.Poll)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}

	select {
	case event := <-ch:
		t.Errorf("unexpected event: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	defer bus.Unsubscribe(ch1)
	defer bus.Unsubscribe(ch2)

	bus.Publish(NewEvent(EventRunEnd, "PASSED"))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			if event.Type != EventRunEnd {
				t.Errorf("expected EventRunEnd, got %s", event.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestMemoryBusHistory(t *testing.T) {
	bus := NewMemoryBus()

	t1 := time.Now()
	bus.Publish(NewEvent(EventPollStart, "first"))
	time.Sleep(10 * time.Millisecond)
	t2 := time.Now()
	bus.Publish(NewEvent(EventPollEnd, "second"))

	all := bus.History(t1)
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}

	since := bus.History(t2)
	if len(since) != 1 {
		t.Fatalf("expected 1 event since t2, got %d", len(since))
	}
	if since[0].Data != "second" {
		t.Errorf("expected 'second', got %v", since[0].Data)
	}
}

func TestMemoryBusHistoryLimit(t *testing.T) {
	bus := NewMemoryBusWithLimit(3)
	for i := 1; i <= 5; i++ {
		bus.Publish(NewPollEvent(EventPollStart, i, nil))
	}

	history := bus.History(time.Time{})
	if len(history) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(history))
	}
	if history[0].Poll != 3 || history[2].Poll != 5 {
		t.Errorf("expected polls 3..5, got %d..%d", history[0].Poll, history[2].Poll)
	}
}

func TestMemoryBusLatest(t *testing.T) {
	bus := NewMemoryBus()
	if _, ok := bus.Latest(EventPollEnd); ok {
		t.Error("expected no event on empty bus")
	}

	bus.Publish(NewPollEvent(EventPollEnd, 1, "FAILED"))
	bus.Publish(NewPollEvent(EventPollStart, 2, nil))
	bus.Publish(NewPollEvent(EventPollEnd, 2, "PASSED"))

	ev, ok := bus.Latest(EventPollEnd)
	if !ok || ev.Poll != 2 {
		t.Errorf("Latest = %+v, %v; want poll 2", ev, ok)
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	// Channel should be closed after unsubscribe.
	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed")
	}
}
