package ws_session

import (
	"errors"

	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrClientSlow   = errors.New("client send buffer full")
)

const sendBuffer = 32

// Client is one live websocket session: the opaque sink the registry hands to
// the broadcaster, plus the socket it drains into.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func newClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		id:   id,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues a payload without blocking. A closed or saturated client
// reports an error and the broadcaster moves on; the slow consumer only
// loses its own updates.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrClientSlow
	}
}

func (c *Client) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
