package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// SocketUpgrade authenticates the websocket handshake from the sid cookie
// or, for clients that cannot send cookies, the sid query parameter.
func (a *API) SocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Cookies(sessionCookie)
	if token == "" {
		token = c.Query(sessionCookie)
	}
	s, err := a.Sessions.Lookup(token)
	if err != nil {
		return err
	}
	c.Locals(localUsername, s.Username)
	return c.Next()
}

// SocketHandler GET /ws
func (a *API) SocketHandler(c *websocket.Conn) {
	username, _ := c.Locals(localUsername).(string)
	a.Log.Debug("socket_opened", "username", username)
	// Serve returns only after the writer stopped, so c can be released.
	a.Hub.Serve(username, c)
	a.Log.Debug("socket_closed", "username", username)
}
