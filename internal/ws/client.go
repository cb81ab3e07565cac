package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/matheus3301/dmserver/internal/bus"
)

// Client is one live WebSocket session. Events are queued on a bounded
// buffer and written by the connection's write loop.
type Client struct {
	id     string
	userID string
	send   chan bus.Event
	done   chan struct{}
	once   sync.Once
}

func newClient(userID string, buffer int) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan bus.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues evt without blocking. It reports false when the buffer is full
// or the session is closing.
func (c *Client) Send(evt bus.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// close stops accepting events. The send channel stays open so concurrent
// publishers never write to a closed channel.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}
