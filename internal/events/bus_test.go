package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	t.Parallel()

	bus := NewBus(4)
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	evt := Event{
		Type:       TypeEndpointStatusChanged,
		EndpointID: "ep-1",
		Status:     "connected",
		Timestamp:  time.Now(),
	}
	bus.Publish(evt)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, TypeEndpointStatusChanged, got.Type)
			assert.Equal(t, "ep-1", got.EndpointID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	t.Parallel()

	bus := NewBus(2)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	// Nobody drains ch; publishes past the buffer must be dropped, not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Type: TypeSyncCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	assert.Equal(t, uint64(8), bus.Dropped())
	assert.Len(t, ch, 2)
}

func TestBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus(0)
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	// The channel is closed on unsubscribe
	_, open := <-ch
	assert.False(t, open)

	// Cancel is safe to call more than once
	cancel()

	// Publishing after unsubscribe reaches nobody and drops nothing
	bus.Publish(Event{Type: TypeSyncConflict})
	assert.Equal(t, uint64(0), bus.Dropped())
}

func TestBusClose(t *testing.T) {
	t.Parallel()

	bus := NewBus(0)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Close()

	_, open := <-ch
	require.False(t, open)
}
