// Unified Inbox - Account Process Supervisor and Event Relay
// Copyright 2026 Shahzaib-ai70
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Shahzaib-ai70/Drugs-Chat-Box-sub001/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Commands carry small payloads; media
	// travels worker to client only.
	maxMessageSize = 512 * 1024

	// DefaultSendBuffer is the per-client outbound queue length.
	DefaultSendBuffer = 256
)

// clientIDCounter gives every client a unique, monotonically increasing id
// so that broadcast order is stable.
var clientIDCounter atomic.Uint64

// Handler receives a client's inbound frames and its close notification.
// HandleClose is called exactly once, after the read loop has ended.
type Handler interface {
	HandleMessage(c *Client, msg Inbound)
	HandleClose(c *Client)
}

// Client is one WebSocket connection with a bounded outbound queue.
type Client struct {
	id      uint64
	conn    *websocket.Conn
	send    chan Message
	done    chan struct{}
	once    sync.Once
	handler Handler
	logger  zerolog.Logger
}

// NewClient wraps conn. bufSize <= 0 selects DefaultSendBuffer.
func NewClient(conn *websocket.Conn, handler Handler, bufSize int) *Client {
	if bufSize <= 0 {
		bufSize = DefaultSendBuffer
	}
	id := clientIDCounter.Add(1)
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan Message, bufSize),
		done:    make(chan struct{}),
		handler: handler,
		logger:  logging.WithComponent("websocket").With().Uint64("client_id", id).Logger(),
	}
}

// ID returns the client's process-unique id.
func (c *Client) ID() uint64 {
	return c.id
}

// Send queues msg without blocking. It returns false when the client is
// closed or its queue is full; callers drop such clients.
func (c *Client) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write loop, which sends a close frame and closes the
// connection. Safe to call more than once and from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed when the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Start launches the read and write loops.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps frames from the connection to the handler.
func (c *Client) readPump() {
	defer func() {
		c.Close()
		if c.handler != nil {
			c.handler.HandleClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(Message{Type: MessageTypeError, Data: ErrorData{Message: "malformed frame"}})
			continue
		}

		if msg.Type == MessageTypePing {
			c.Send(Message{Type: MessageTypePong, Ref: msg.Ref})
			continue
		}
		if c.handler != nil {
			c.handler.HandleMessage(c, msg)
		}
	}
}

// writePump pumps queued messages to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write failed")
				c.Close()
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		// A payload that cannot be encoded is dropped, the connection stays up.
		c.logger.Warn().Err(err).Str("message_type", msg.Type).Msg("Failed to encode WebSocket message")
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
