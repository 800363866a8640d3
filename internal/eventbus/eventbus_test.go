package eventbus_test

import (
	"testing"
	"time"

	"github.com/webintel/webintel/internal/eventbus"
)

func TestSubscribePublish_DeliversToAllSubscribers(t *testing.T) {
	bus := eventbus.New()
	ch1, unsub1 := bus.Subscribe(1)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(1)
	defer unsub2()

	bus.Publish(eventbus.Event{Type: "explorer.page_fetched", Source: "run-1"})

	select {
	case evt := <-ch1:
		if evt.Type != "explorer.page_fetched" {
			t.Errorf("ch1 got Type = %q", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("ch1 did not receive event")
	}
	select {
	case evt := <-ch2:
		if evt.Source != "run-1" {
			t.Errorf("ch2 got Source = %q", evt.Source)
		}
	case <-time.After(time.Second):
		t.Fatal("ch2 did not receive event")
	}
}

func TestPublish_FullBufferDropsWithoutBlocking(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	bus.Publish(eventbus.Event{Type: "first"})
	done := make(chan struct{})
	go func() {
		bus.Publish(eventbus.Event{Type: "second"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	evt := <-ch
	if evt.Type != "first" {
		t.Errorf("expected to still receive the first buffered event, got %q", evt.Type)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	unsub()

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}

	bus.Publish(eventbus.Event{Type: "after unsubscribe"})
}
