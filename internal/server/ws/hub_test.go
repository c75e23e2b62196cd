package ws

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }
func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func TestSubscriberExitsOnCancelWithFullBuffer(t *testing.T) {
	// More pending events than the hub's broadcast buffer holds, and nothing
	// draining it: the forwarding send must still yield to cancellation.
	bus := &chanBus{ch: make(chan []byte, 128)}
	for i := 0; i < 128; i++ {
		bus.ch <- []byte(`{}`)
	}

	h := NewHub(bus, "serve", slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.subscribeToChannel(ctx, "catalog.updated")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber goroutine did not exit after cancel")
	}
}
