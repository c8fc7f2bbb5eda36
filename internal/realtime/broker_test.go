package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(zap.NewNop())

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	ev := Event{Kind: EventThreadCreated, ThreadID: uuid.New(), ParentID: uuid.New()}
	b.Publish(ev)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, ev, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	b := NewBroker(zap.NewNop())

	ch, cancel := b.Subscribe()
	cancel()
	// Idempotent.
	cancel()

	_, ok := <-ch
	require.False(t, ok, "cancel should close the channel")

	// Publishing after cancel must not panic or block.
	b.Publish(Event{Kind: EventMessageAdded, ThreadID: uuid.New()})
}

func TestBrokerSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBroker(zap.NewNop())

	ch, cancel := b.Subscribe()
	defer cancel()

	// Overflow the buffer; Publish must never block on a slow reader.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish(Event{Kind: EventMessageAdded, ThreadID: uuid.New()})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The subscriber still gets the buffered prefix.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected at least one buffered event")
	}
}
