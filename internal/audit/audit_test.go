package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendtrack/internal/audit"
	"attendtrack/internal/queue"
	"attendtrack/internal/store/memstore"
)

func TestPublishAndConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	store := memstore.New().Audit()
	pub := audit.NewPublisher(q, nil)
	pub.Record(ctx, audit.Event{Kind: audit.PasswordLogin, StudentID: 3, Actor: "1MJ22CS001"})

	done := make(chan error, 1)
	go func() { done <- audit.NewConsumer(q, store, nil).Run(ctx) }()

	require.Eventually(t, func() bool {
		events, err := store.List(ctx, 10)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)

	events, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, audit.PasswordLogin, events[0].Kind)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].At.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestHandleSkipsForeignAndRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	store := memstore.New().Audit()
	c := audit.NewConsumer(queue.NewInMemory(1), store, nil)

	require.NoError(t, c.Handle(ctx, queue.Message{Type: "checkin", Body: json.RawMessage(`{}`)}))
	assert.Error(t, c.Handle(ctx, queue.Message{Type: audit.MessageType, Body: json.RawMessage(`not json`)}))

	body, err := json.Marshal(audit.Event{ID: "e1", Kind: audit.Logout, At: time.Now()})
	require.NoError(t, err)
	msg := queue.Message{Type: audit.MessageType, Body: body}
	require.NoError(t, c.Handle(ctx, msg))
	require.NoError(t, c.Handle(ctx, msg))

	events, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1, "redelivery is idempotent")
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *audit.Publisher
	p.Record(context.Background(), audit.Event{Kind: audit.Logout})
}
