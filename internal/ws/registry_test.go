package ws

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func testClient(buffer int) *Client {
	return &Client{
		ID:   uuid.New(),
		send: make(chan []byte, buffer),
	}
}

func TestRegisterSecondConnectionAdds(t *testing.T) {
	r := NewRegistry()
	c1 := testClient(4)
	c2 := testClient(4)

	r.Register(7, c1)
	r.Register(7, c2)

	if got := len(r.ConnectionsFor(7)); got != 2 {
		t.Fatalf("Expected 2 connections, got %d", got)
	}

	if !r.Send(7, "receiveMessage", map[string]string{"content": "hi"}) {
		t.Fatal("Expected delivery to at least one connection")
	}
	if len(c1.send) != 1 || len(c2.send) != 1 {
		t.Error("Expected fan-out to every connection of the identity")
	}
}

func TestRegisterIsIdempotentPerConnection(t *testing.T) {
	r := NewRegistry()
	c := testClient(4)

	r.Register(7, c)
	r.Register(7, c)

	if got := len(r.ConnectionsFor(7)); got != 1 {
		t.Errorf("Expected 1 connection after double register, got %d", got)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := testClient(4)

	r.Register(7, c)
	r.Unregister(c)
	r.Unregister(c) // must be a no-op, not a panic

	if got := len(r.ConnectionsFor(7)); got != 0 {
		t.Errorf("Expected 0 connections, got %d", got)
	}
}

func TestSendToOfflineIdentityReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if r.Send(42, "receiveMessage", map[string]string{"content": "hi"}) {
		t.Error("Expected false for an identity with zero live connections")
	}
}

func TestSendDoesNotCrossIdentities(t *testing.T) {
	r := NewRegistry()
	mine := testClient(4)
	theirs := testClient(4)
	r.Register(1, mine)
	r.Register(2, theirs)

	r.Send(1, "receiveMessage", map[string]string{"content": "hi"})

	if len(theirs.send) != 0 {
		t.Error("Event for identity 1 leaked to identity 2")
	}
}

func TestSlowConnectionIsDroppedNotStalled(t *testing.T) {
	r := NewRegistry()
	slow := testClient(1)
	healthy := testClient(4)
	r.Register(7, slow)
	r.Register(7, healthy)

	// Fill the slow connection's buffer so the next write cannot complete.
	slow.send <- []byte("backlog")

	if !r.Send(7, "receiveMessage", map[string]string{"content": "hi"}) {
		t.Fatal("Healthy connection should still have received the event")
	}
	if len(healthy.send) != 1 {
		t.Error("Expected delivery to the healthy connection")
	}

	// The slow connection is treated as disconnected.
	for _, c := range r.ConnectionsFor(7) {
		if c == slow {
			t.Error("Expected the slow connection to be unregistered")
		}
	}
}

func TestSendToClosedConnectionDoesNotPanic(t *testing.T) {
	r := NewRegistry()
	gone := testClient(4)
	healthy := testClient(4)
	r.Register(7, gone)
	r.Register(7, healthy)

	// The disconnect path closed the channel after Send snapshotted the
	// connection set but before the write. The write must fail, never panic.
	gone.close()

	if !r.Send(7, "receiveMessage", map[string]string{"content": "hi"}) {
		t.Fatal("Healthy connection should still have received the event")
	}
	if len(healthy.send) != 1 {
		t.Error("Expected delivery to the healthy connection")
	}
	for _, c := range r.ConnectionsFor(7) {
		if c == gone {
			t.Error("Expected the closed connection to be unregistered")
		}
	}
}

func TestConcurrentSendAndDisconnect(t *testing.T) {
	r := NewRegistry()

	clients := make([]*Client, 32)
	for i := range clients {
		clients[i] = testClient(1)
		r.Register(7, clients[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Send(7, "receiveMessage", map[string]string{"content": "hi"})
			}
		}()
	}
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			r.Unregister(c)
			c.close()
		}(c)
	}
	wg.Wait()

	if got := len(r.ConnectionsFor(7)); got != 0 {
		t.Errorf("Expected 0 connections after every disconnect, got %d", got)
	}
}
