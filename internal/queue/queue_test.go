package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "audit", Body: json.RawMessage(`{"n":1}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: "audit", Body: json.RawMessage(`{"n":2}`)}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	for _, want := range []string{`{"n":1}`, `{"n":2}`} {
		select {
		case msg := <-ch:
			assert.Equal(t, "audit", msg.Type)
			assert.JSONEq(t, want, string(msg.Body))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.DeadlineExceeded)
}

func TestConsumeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewInMemory(1).Consume(ctx)
	require.NoError(t, err)
	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestWireFormat(t *testing.T) {
	raw, err := serialize(Message{Type: "audit", Body: json.RawMessage(`{"kind":"login"}`)})
	require.NoError(t, err)
	msg, err := deserialize(string(raw))
	require.NoError(t, err)
	assert.Equal(t, "audit", msg.Type)
	assert.JSONEq(t, `{"kind":"login"}`, string(msg.Body))

	_, err = deserialize("audit|{}")
	assert.Error(t, err)
}
