package handlers

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/channels"
	"github.com/pelusa-v/threadchat/internal/chat"
	"github.com/pelusa-v/threadchat/internal/messages"
	"github.com/pelusa-v/threadchat/internal/session"
)

// API holds the components the request handlers act on.
type API struct {
	Sessions *session.Manager
	Channels *channels.Registry
	Messages *messages.Store
	Hub      *chat.Hub
	Log      *slog.Logger
}

type AppOptions struct {
	// Requests per second per client IP under /api/v1. Zero disables.
	RateLimit int
	StaticDir string
}

func NewApp(api *API, opts AppOptions) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "threadchat",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(api.Log),
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/ws", api.SocketUpgrade, websocket.New(api.SocketHandler))

	v1 := app.Group("/api/v1")
	if opts.RateLimit > 0 {
		v1.Use(limiter.New(limiter.Config{
			Max:        opts.RateLimit,
			Expiration: time.Second,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate-limited"})
			},
		}))
	}

	v1.Post("/register", api.RegisterHandler)
	v1.Post("/session", api.LoginHandler)

	auth := v1.Group("", api.RequireSession)
	auth.Get("/session", api.SessionHandler)
	auth.Delete("/session", api.LogoutHandler)
	auth.Get("/users", api.UsersHandler)

	auth.Get("/channels", api.ListChannelsHandler)
	auth.Post("/channels", api.CreateChannelHandler)
	auth.Get("/channels/:channelId/messages", api.ChannelRootsHandler)

	auth.Get("/messages", api.ListRootsHandler)
	auth.Post("/messages", api.PostMessageHandler)
	auth.Patch("/messages/:id", api.EditMessageHandler)
	auth.Post("/messages/:id/forward", api.ForwardHandler)
	auth.Post("/messages/:id/reactions", api.AddReactionHandler)
	auth.Delete("/messages/:id/reactions/:key", api.RemoveReactionHandler)

	auth.Get("/threads/:tid", api.ThreadHandler)
	auth.Post("/threads/:tid", api.PostReplyHandler)

	if opts.StaticDir != "" {
		if info, err := os.Stat(opts.StaticDir); err == nil && info.IsDir() {
			app.Static("/", opts.StaticDir)
		}
	}
	return app
}

// ErrorHandler answers every failed request with {"error": code}.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		status := apperr.Status(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request_failed", "method", c.Method(), "path", c.Path(), "error", err)
		}
		return c.Status(status).JSON(fiber.Map{"error": apperr.CodeOf(err)})
	}
}
