package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/figpins/bridge/auth"
	"github.com/figpins/bridge/ingest"
	"github.com/figpins/bridge/metrics"
	"github.com/figpins/bridge/monitor"
	"github.com/figpins/bridge/registry"
	"github.com/figpins/bridge/resolver"
	httpServer "github.com/figpins/bridge/server/http"
	websocketServer "github.com/figpins/bridge/server/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		listenAddr    = fs.StringP("listen-addr", "a", ":3333", "listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
		probeInterval = fs.Duration("probe-interval", 30*time.Second, "connection health probe interval")
		appID         = fs.String("app-id", os.Getenv("PINTEREST_APP_ID"), "provider app id")
		appSecret     = fs.String("app-secret", os.Getenv("PINTEREST_APP_SECRET"), "provider app secret")
		redirectURI   = fs.String("redirect-uri", os.Getenv("PINTEREST_REDIRECT_URI"), "oauth redirect uri")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	rooms := registry.New(&logger)
	promReg := prometheus.NewRegistry()
	mtr := metrics.New(promReg, rooms)

	mon := monitor.New(monitor.Config{
		Logger:        &logger,
		Rooms:         rooms,
		Observer:      mtr,
		ProbeInterval: *probeInterval,
	})
	credentials := auth.New(auth.Config{
		Logger:      &logger,
		AppID:       *appID,
		AppSecret:   *appSecret,
		RedirectURI: *redirectURI,
	})
	pins := resolver.New(resolver.Config{Logger: &logger})
	fetcher := ingest.NewFetcher(ingest.Config{Logger: &logger})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:  &logger,
		Rooms:   rooms,
		Tracker: mon,
	})
	srv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		Rooms:       rooms,
		Credentials: credentials,
		Resolver:    pins,
		Fetcher:     fetcher,
		Metrics:     mtr,
		Gatherer:    promReg,
		WSHandler:   wsSrv.Handle,
		ListenAddr:  *listenAddr,
	})

	if *appID == "" || *appSecret == "" {
		logger.Warn().Msg("provider app credentials not configured, publish by pin id will fail")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(2)
	go srv.Run(ctx, wg, errc)
	go mon.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
