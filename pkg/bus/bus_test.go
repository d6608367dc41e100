package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsume(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	msg := Message{ID: "m-1", Sender: "alice", Body: "hi"}
	if err := mb.PublishAccepted(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, ok := mb.ConsumeAccepted(context.Background())
	if !ok {
		t.Fatal("expected a message")
	}
	if got.ID != "m-1" || got.Sender != "alice" {
		t.Errorf("got %+v", got)
	}
}

func TestPublishAfterClose(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close() // idempotent

	if err := mb.PublishAccepted(context.Background(), Message{ID: "m-1"}); err != ErrBusClosed {
		t.Errorf("got %v, want ErrBusClosed", err)
	}
	if _, ok := mb.ConsumeAccepted(context.Background()); ok {
		t.Error("consume on closed bus should report not ok")
	}
}

func TestConsumeCanceledContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := mb.ConsumeAccepted(ctx); ok {
		t.Error("expected not ok on context timeout")
	}
}
