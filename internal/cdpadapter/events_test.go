package cdpadapter

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := newEventBus(zap.NewNop())

	ch, release := bus.Subscribe(4)
	defer release()

	bus.publish(RawEvent{Kind: EventPageNavigated, Page: coretypes.PageId("p1"), URL: "https://example.com"})

	select {
	case ev := <-ch:
		if ev.Kind != EventPageNavigated || ev.URL != "https://example.com" {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_DropsOnFullSubscriber(t *testing.T) {
	bus := newEventBus(zap.NewNop())

	ch, release := bus.Subscribe(1)
	defer release()

	// Fill the buffer, then publish again: the second publish must not block.
	bus.publish(RawEvent{Kind: EventError, Err: "first"})
	done := make(chan struct{})
	go func() {
		bus.publish(RawEvent{Kind: EventError, Err: "second"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber instead of dropping")
	}

	ev := <-ch
	if ev.Err != "first" {
		t.Errorf("expected to keep the first buffered event, got %+v", ev)
	}
}

func TestEventBus_ReleaseStopsDelivery(t *testing.T) {
	bus := newEventBus(zap.NewNop())

	ch, release := bus.Subscribe(4)
	release()

	bus.publish(RawEvent{Kind: EventPageNavigated})

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after release")
	}
}
