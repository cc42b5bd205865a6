package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_NotifyDeliversToUserClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	userID := uuid.New()
	client := &Client{hub: hub, userID: userID, send: make(chan []byte, 1)}
	other := &Client{hub: hub, userID: uuid.New(), send: make(chan []byte, 1)}
	hub.Register(client)
	hub.Register(other)

	require.NoError(t, hub.Notify(ctx, userID, "booking.accepted", map[string]any{"status": "accepted"}))

	select {
	case raw := <-client.send:
		var msg map[string]any
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "booking.accepted", msg["type"])
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
	assert.Empty(t, other.send)
	assert.True(t, hub.Online(userID))
}

func TestHub_NotifyAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	// буфер broadcast ещё принимает, поэтому заполняем его
	var err error
	for i := 0; i < cap(hub.broadcast)+1 && err == nil; i++ {
		err = hub.Notify(context.Background(), uuid.New(), "qc.passed", nil)
	}
	assert.ErrorIs(t, err, errHubStopped)
}
