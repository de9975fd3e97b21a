package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()

	bus.Publish(NewEvent(EventIntentStart, "run-1", map[string]any{"kind": "click"}))

	select {
	case e := <-ch:
		if e.Type != EventIntentStart {
			t.Errorf("type = %s, want %s", e.Type, EventIntentStart)
		}
		if e.RunID != "run-1" {
			t.Errorf("run id = %s, want run-1", e.RunID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFilter(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe(EventTaskCompleted)

	bus.Publish(NewEvent(EventIntentStart, "run-1", nil))
	bus.Publish(NewEvent(EventTaskCompleted, "run-1", nil))

	select {
	case e := <-ch:
		if e.Type != EventTaskCompleted {
			t.Errorf("filtered subscriber received %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case e := <-ch:
		t.Errorf("unexpected extra event %s", e.Type)
	default:
	}
}

func TestHistorySince(t *testing.T) {
	bus := NewMemoryBus()

	bus.Publish(NewEvent(EventTaskStart, "run-1", nil))
	cutoff := time.Now().Add(time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	bus.Publish(NewEvent(EventTaskCompleted, "run-1", nil))

	all := bus.History(time.Time{})
	if len(all) != 2 {
		t.Fatalf("full history length = %d, want 2", len(all))
	}

	recent := bus.History(cutoff)
	if len(recent) != 1 || recent[0].Type != EventTaskCompleted {
		t.Errorf("history since cutoff = %+v, want only task.completed", recent)
	}
}

func TestHistoryBounded(t *testing.T) {
	bus := NewMemoryBus()
	for i := 0; i < maxHistory+10; i++ {
		bus.Publish(NewEvent(EventIntentEnd, "run-1", nil))
	}
	if got := len(bus.History(time.Time{})); got != maxHistory {
		t.Errorf("history length = %d, want %d", got, maxHistory)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel should be closed after unsubscribe")
	}
}
