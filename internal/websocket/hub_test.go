package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesClient(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)

	client := &Client{send: make(chan []byte, 4), id: "c1"}
	hub.register <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast(TypeQuotaChanged, map[string]int{"remaining": 2})

	select {
	case msg := <-client.send:
		assert.Contains(t, string(msg), TypeQuotaChanged)
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the client")
	}
}

func TestSlowConsumerDropped(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	t.Cleanup(hub.Stop)

	// Nothing ever reads from this client, so its buffer fills immediately.
	client := &Client{send: make(chan []byte), id: "slow"}
	hub.register <- client

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast(TypeReminderState, nil)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond, "slow consumer was not dropped")
}

func TestDropClientReturnsAfterStop(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.dropClient(&Client{send: make(chan []byte), id: "late"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dropClient blocked after the hub stopped")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	hub.Stop()
	hub.Stop()
}
