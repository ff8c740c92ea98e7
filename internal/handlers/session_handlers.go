package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	sessionCookie = "sid"
	localUsername = "username"
	localToken    = "token"
)

type usernameRequest struct {
	Username string `json:"username"`
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.ErrBadRequest
	}
	return nil
}

func currentUser(c *fiber.Ctx) string {
	name, _ := c.Locals(localUsername).(string)
	return name
}

// RequireSession resolves the sid cookie to a live session.
func (a *API) RequireSession(c *fiber.Ctx) error {
	token := c.Cookies(sessionCookie)
	s, err := a.Sessions.Lookup(token)
	if err != nil {
		return err
	}
	c.Locals(localUsername, s.Username)
	c.Locals(localToken, token)
	return c.Next()
}

// RegisterHandler POST /api/v1/register
func (a *API) RegisterHandler(c *fiber.Ctx) error {
	var req usernameRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	name, err := a.Sessions.Register(c.UserContext(), req.Username)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"username": name})
}

// LoginHandler POST /api/v1/session
func (a *API) LoginHandler(c *fiber.Ctx) error {
	var req usernameRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	s, err := a.Sessions.Login(c.UserContext(), req.Username)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.JSON(fiber.Map{"username": s.Username})
}

// SessionHandler GET /api/v1/session
func (a *API) SessionHandler(c *fiber.Ctx) error {
	name := currentUser(c)
	return c.JSON(fiber.Map{"username": name, "role": a.Sessions.Role(name)})
}

// LogoutHandler DELETE /api/v1/session
func (a *API) LogoutHandler(c *fiber.Ctx) error {
	token, _ := c.Locals(localToken).(string)
	if err := a.Sessions.Logout(c.UserContext(), token); err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
	})
	return c.JSON(fiber.Map{"wasLoggedIn": true})
}

// UsersHandler GET /api/v1/users
func (a *API) UsersHandler(c *fiber.Ctx) error {
	return c.JSON(a.Sessions.Online())
}

type channelRequest struct {
	Name string `json:"name"`
}

// ListChannelsHandler GET /api/v1/channels
func (a *API) ListChannelsHandler(c *fiber.Ctx) error {
	return c.JSON(a.Channels.List())
}

// CreateChannelHandler POST /api/v1/channels
func (a *API) CreateChannelHandler(c *fiber.Ctx) error {
	var req channelRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ch, err := a.Channels.Create(c.UserContext(), req.Name, currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(ch)
}
