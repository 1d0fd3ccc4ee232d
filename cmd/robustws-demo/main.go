// robustws-demo connects one or more RobustConnections to WebSocket
// endpoints and prints what arrives on each.
// Usage: go run ./cmd/robustws-demo --config configs/demo.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/robustws/internal/config"
	"github.com/rickgao/robustws/resend"
	"github.com/rickgao/robustws/robust"
	"github.com/rickgao/robustws/transport"
)

func main() {
	configPath := flag.String("config", "configs/demo.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print every message payload")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	endpoints := cfg.Connections
	if len(endpoints) == 0 {
		endpoints = []config.EndpointConfig{{Name: cfg.Instance.ID, URL: cfg.Connection.URL}}
	}

	factory := transport.NewFactory(transport.WSConfig{
		HandshakeTimeout: cfg.Connection.DialTimeout,
		Logger:           logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			runConnection(gctx, ep, cfg, factory, logger, *verbose)
			return nil
		})
	}

	logger.Info("streaming started - press Ctrl+C to stop", "connections", len(endpoints))

	if err := g.Wait(); err != nil {
		logger.Error("connection group returned error", "error", err)
	}

	logger.Info("shutdown complete")
}

// liveConnection is the surface runConnection drives, satisfied by
// both *robust.RobustConnection and *resend.BufferedResendConnection
// so the demo doesn't duplicate its event loop per mode.
type liveConnection interface {
	Start()
	Close(code int, reason string) error
	Stats() robust.Stats
}

func runConnection(ctx context.Context, ep config.EndpointConfig, cfg *config.DemoConfig, factory transport.Factory, logger *slog.Logger, verbose bool) {
	log := logger.With("connection", ep.Name)

	rc := robust.New(robust.Config{
		URL:         ep.URL,
		Timeout:     cfg.Connection.Timeout,
		DialTimeout: cfg.Connection.DialTimeout,
		Factory:     factory,
		Logger:      log,
	})

	printMessage := func(data []byte) {
		if verbose {
			log.Debug("message", "payload", string(data))
		} else {
			fmt.Printf("[%s] %s\n", ep.Name, data)
		}
	}

	closed := make(chan struct{})
	onClose := func(evt robust.CloseEvent) {
		log.Info("close", "code", evt.Code, "reason", evt.Reason, "wasClean", evt.WasClean)
		close(closed)
	}

	var conn liveConnection
	if cfg.Resend.Enabled {
		bc := resend.Wrap(rc, log)
		bc.OnOpen = func() { log.Info("open") }
		bc.OnClose = onClose
		bc.OnError = func(err error) { log.Warn("error", "error", err) }
		bc.OnMessage = printMessage
		bc.OnDisconnect = func() { log.Info("disconnect") }
		bc.OnReconnect = func() { log.Info("reconnect") }
		conn = bc
	} else {
		rc.OnOpen = func() { log.Info("open") }
		rc.OnClose = onClose
		rc.OnError = func(err error) { log.Warn("error", "error", err) }
		rc.OnMessage = printMessage
		rc.OnDisconnect = func() { log.Info("disconnect") }
		rc.OnReconnect = func() { log.Info("reconnect") }
		conn = rc
	}
	conn.Start()

	statsTicker := time.NewTicker(10 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(1000, "shutting down")
			return
		case <-closed:
			return
		case <-statsTicker.C:
			s := conn.Stats()
			log.Info("stats",
				"state", s.State,
				"attempts", s.AttemptCount,
				"disconnects", s.DisconnectCount,
				"pending_sends", s.PendingSends,
			)
		}
	}
}
