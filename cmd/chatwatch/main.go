// chatwatch connects to the pokojowo realtime server and streams chat
// events and notifications to the console.
// Usage: go run ./cmd/chatwatch --config configs/client.local.yaml --join chat-1,chat-2
//
// The auth token is usually supplied via the environment:
//
//	POKOJOWO_TOKEN - JWT for the connecting user (referenced from the config file)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/pokojowo/realtime/internal/config"
	"github.com/pokojowo/realtime/internal/dispatch"
	"github.com/pokojowo/realtime/internal/realtime"
	"github.com/pokojowo/realtime/internal/version"
	"github.com/pokojowo/realtime/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	joinRooms := flag.String("join", "", "comma-separated chat ids to join")
	verbose := flag.Bool("verbose", false, "debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("chatwatch", version.String())
		return
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.Token == "" {
		logger.Error("no auth token configured", "hint", "set POKOJOWO_TOKEN and reference it from the config file")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := realtime.NewManager(realtime.Config{
		URL: cfg.Server.URL,
		Policy: realtime.Policy{
			MaxAttempts:        cfg.Reconnect.MaxAttempts,
			BaseDelay:          cfg.Reconnect.BaseDelay,
			MaxDelay:           cfg.Reconnect.MaxDelay,
			HandshakeTimeout:   cfg.Reconnect.HandshakeTimeout,
			GiveUpRebuildDelay: cfg.Reconnect.GiveUpRebuildDelay,
		},
		WriteTimeout:         cfg.Transport.WriteTimeout,
		PingInterval:         cfg.Transport.PingInterval,
		PongTimeout:          cfg.Transport.PongTimeout,
		MessageBufferSize:    cfg.Transport.BufferSize,
		NotificationCapacity: cfg.Notifications.Capacity,
	}, realtime.StaticTokenSource(cfg.Auth.Token), logger)

	mgr.On(wire.EventNewMessage, func(ev dispatch.Event) {
		var nm wire.NewMessage
		if err := (wire.Envelope{Event: ev.Name, Data: ev.Data}).DecodeData(&nm); err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", nm.ChatID, nm.Message.SenderID, nm.Message.Content)
	})

	mgr.On(wire.EventNotification, func(ev dispatch.Event) {
		var n wire.Notification
		if err := (wire.Envelope{Event: ev.Name, Data: ev.Data}).DecodeData(&n); err != nil {
			return
		}
		fmt.Printf("** %s from %s: %s\n", n.Type, n.SenderID, n.Preview)
	})

	mgr.On(wire.EventUserStatus, func(ev dispatch.Event) {
		var st wire.UserStatus
		if err := (wire.Envelope{Event: ev.Name, Data: ev.Data}).DecodeData(&st); err != nil {
			return
		}
		state := "offline"
		if st.IsOnline {
			state = "online"
		}
		fmt.Printf("-- %s is %s\n", st.UserID, state)
	})

	mgr.On(realtime.EventReconnectFailed, func(dispatch.Event) {
		logger.Error("gave up reconnecting, waiting for rebuild")
	})
	mgr.On(realtime.EventAuthFailed, func(dispatch.Event) {
		logger.Error("authentication failed, sign in again")
		cancel()
	})

	if err := mgr.Connect(ctx, cfg.Auth.Token); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	for _, room := range strings.Split(*joinRooms, ",") {
		room = strings.TrimSpace(room)
		if room != "" {
			mgr.Join(room)
			logger.Info("joined chat", "chat_id", room)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Wait()

	unread := mgr.Notifications().UnreadCount()
	mgr.Disconnect()
	logger.Info("bye", "unread_notifications", unread)
}
