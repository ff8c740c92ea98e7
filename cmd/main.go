package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"

	"github.com/pelusa-v/threadchat/internal/channels"
	"github.com/pelusa-v/threadchat/internal/chat"
	"github.com/pelusa-v/threadchat/internal/config"
	"github.com/pelusa-v/threadchat/internal/docstore"
	"github.com/pelusa-v/threadchat/internal/handlers"
	"github.com/pelusa-v/threadchat/internal/logging"
	"github.com/pelusa-v/threadchat/internal/messages"
	"github.com/pelusa-v/threadchat/internal/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHAT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (docstore.Store, error) {
	if cfg.Storage.Driver == "pebble" {
		return docstore.OpenPebble(cfg.Storage.Path)
	}
	return docstore.NewMemory(), nil
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	docs, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := docs.Close(); err != nil && !errors.Is(err, docstore.ErrClosed) {
			log.Error("storage_close_failed", "error", err)
		}
	}()
	log.Info("storage_opened", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	sessions := session.NewManager(docs, cfg.Auth.Admin, cfg.Auth.SessionTTL, log)
	if err := sessions.Bootstrap(ctx); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	registry := channels.NewRegistry(docs, cfg.Auth.Admin, log)
	if err := registry.Bootstrap(ctx); err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	store := messages.NewStore(docs, registry, log)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	hub := chat.NewHub(chat.Options{
		SendBuffer: cfg.Hub.SendBuffer,
		FrameRate:  cfg.Hub.FrameRate,
		FrameBurst: cfg.Hub.FrameBurst,
		Channels:   lo.Map(registry.List(), func(ch channels.Channel, _ int) string { return ch.ID }),
		Presence:   sessions.Online,
	}, log)
	relay := chat.NewRelay(hub)
	registry.SetObserver(relay)
	store.SetObserver(relay)
	sessions.OnPresence(hub.PresenceChanged)
	sessions.OnExpired(relay.SessionExpired)

	sweeper, err := session.NewSweeper(sessions, cfg.Auth.SweepCron, log)
	if err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)
	go sweeper.Run(ctx)

	app := handlers.NewApp(&handlers.API{
		Sessions: sessions,
		Channels: registry,
		Messages: store,
		Hub:      hub,
		Log:      log,
	}, handlers.AppOptions{RateLimit: cfg.Server.RateLimit, StaticDir: cfg.Server.StaticDir})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_listening", "addr", cfg.Server.Addr)
		errCh <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_shutting_down")
	// stopping the hub closes every socket so Shutdown does not wait on them
	stopHub()
	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
