package chat

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Client struct {
	ID       string
	Username string
	Conn     ConnLike
	// Send is written only by the hub loop and closed exactly once by close.
	Send chan []byte

	hub       *Hub
	limiter   *rate.Limiter
	closeOnce sync.Once
}

type ConnLike interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

func (h *Hub) newClient(username string, conn ConnLike) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Username: username,
		Conn:     conn,
		Send:     make(chan []byte, h.sendBuffer),
		hub:      h,
		limiter:  rate.NewLimiter(h.frameRate, h.frameBurst),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// ReadPump decodes inbound frames until the connection fails.
func (c *Client) ReadPump() {
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.hub.replyError(c, "rate-limited", "")
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.hub.replyError(c, "bad-frame", "")
			continue
		}
		c.hub.handleRequest(c, f)
	}
}

// WritePump drains Send and closes the connection once Send is closed or a
// write fails.
func (c *Client) WritePump() {
	defer c.Conn.Close()
	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.hub.log.Debug("client_write_failed", "client", c.ID, "error", err)
			c.hub.Unregister(c)
			// keep draining until the hub closes Send
			for range c.Send {
			}
			return
		}
	}
}
