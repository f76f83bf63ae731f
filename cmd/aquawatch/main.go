package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"aquawatch/internal/alerts"
	"aquawatch/internal/api"
	"aquawatch/internal/archive"
	"aquawatch/internal/backend"
	"aquawatch/internal/config"
	"aquawatch/internal/dispatch"
	"aquawatch/internal/feed"
	"aquawatch/internal/history"
	"aquawatch/internal/logging"
	"aquawatch/internal/model"
	"aquawatch/internal/pairing"
	"aquawatch/internal/stream"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	siteID := flag.String("site", "SITE-01", "primary site to bootstrap history for")
	flag.Parse()

	var cfgMgr *config.Manager
	if *configPath != "" {
		path := config.ResolvePath(*configPath)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			// Seed a starter config so operators can edit it in place.
			if err := config.Save(path, config.DefaultConfig()); err != nil {
				fmt.Fprintf(os.Stderr, "config: %v\n", err)
				os.Exit(1)
			}
		}
		m, err := config.NewManager(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfgMgr = m
	} else {
		cfgMgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := cfgMgr.Get()

	logger, logLevel := logging.NewDynamicLogger(cfg.LogLevel)
	logger.Info("aquawatch starting", "version", version, "site", *siteID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfgMgr.Path() != "" {
		go cfgMgr.Watch(0,
			func(c *config.Config) {
				logLevel.Set(logging.ParseLevel(c.LogLevel))
				logger.Info("config reloaded", "log_level", c.LogLevel)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done())
	}

	historyStore := history.NewStore(cfg.History.Capacity)
	alertStore := alerts.NewStore(cfg.Alerts.StoreLimit, cfg.Alerts.RecentWindow)
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logging.Component(logger, "backend"))

	archiveStore, err := archive.NewStore(cfg.Archive)
	if err != nil {
		logger.Error("archive init failed", "err", err)
		os.Exit(1)
	}
	if archiveStore != nil {
		if err := archiveStore.Init(ctx); err != nil {
			logger.Error("archive schema init failed", "err", err)
			os.Exit(1)
		}
		defer archiveStore.Close()
		logger.Info("archive enabled", "driver", cfg.Archive.Driver)
	}

	dispatcher := dispatch.New(historyStore, alertStore, backendClient, archiveStore, *siteID, cfg.Alerts.FetchLimit, logging.Component(logger, "dispatch"))

	var streamClient *stream.Client
	if cfg.Stream.Enabled {
		handlers := dispatcher.StreamHandlers(ctx, func(connected bool) {
			logger.Info("stream connection changed", "connected", connected)
		})
		streamClient = stream.NewClient(cfg.Stream.URL, cfg.Stream.PingInterval, handlers, logging.Component(logger, "stream"))
		runner := stream.NewRunner(streamClient, cfg.Stream.InitialBackoff, cfg.Stream.MaxBackoff, logging.Component(logger, "stream"))
		go runner.Run(ctx)
	} else {
		logger.Info("stream disabled")
		dispatcher.Bootstrap(ctx)
	}

	if cfg.Feed.Enabled {
		events := make(chan model.Envelope, 1024)
		feed.StartKafka(ctx, cfg.Feed, events, logging.Component(logger, "feed"))
		dispatcher.Start(ctx, events)
	}

	pairingMgr := pairing.NewManager(
		pairingEndpoint(cfg),
		cfg.Pairing.TTL,
		connectionGate(streamClient),
		nil,
		logging.Component(logger, "pairing"),
	)

	api.Start(ctx, cfgMgr, historyStore, alertStore, dispatcher, pairingMgr, connectionGate(streamClient), logging.Component(logger, "api"), version)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	cancel()
	if streamClient != nil {
		streamClient.Close()
	}
}

func pairingEndpoint(cfg *config.Config) string {
	base := strings.TrimSuffix(cfg.Backend.BaseURL, "/")
	return base + cfg.Pairing.Path
}

// connectionGate adapts an optional stream client to the pairing and api
// connectivity checks. With the stream disabled the gate reports false and
// pairing stays blocked, matching the live-backend precondition.
func connectionGate(c *stream.Client) interface {
	Connected() bool
} {
	if c == nil {
		return disconnectedGate{}
	}
	return c
}

type disconnectedGate struct{}

func (disconnectedGate) Connected() bool { return false }
