package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/figpins/bridge/metrics"
	"github.com/figpins/bridge/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	serviceName    = "figpins-bridge"
	serviceVersion = "2.0.0"

	defaultShutdownDeadline = 10 * time.Second
)

var ErrUnexpected = errors.New("unexpected server error")

type (
	Rooms interface {
		Broadcast(roomID string, frame []byte) int
		Clients(roomID string) int
	}

	Credentials interface {
		ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error)
		RefreshToken(ctx context.Context, refreshToken string) (model.TokenResponse, error)
		EnsureValid(ctx context.Context, cred model.Credential) (model.Credential, error)
	}

	Resolver interface {
		Resolve(ctx context.Context, pinID, accessToken string) (model.ResourceDescriptor, error)
	}

	Fetcher interface {
		Fetch(ctx context.Context, url string) (model.NormalizedImage, error)
	}

	Config struct {
		Logger      *zerolog.Logger
		Rooms       Rooms
		Credentials Credentials
		Resolver    Resolver
		Fetcher     Fetcher
		Metrics     *metrics.Metrics
		Gatherer    prometheus.Gatherer
		WSHandler   http.HandlerFunc
		ListenAddr  string
	}

	// Server is the relay gateway: it composes the credential manager,
	// resolver, ingestion pipeline, and room registry behind the public
	// HTTP surface, and hosts the websocket join endpoint.
	Server struct {
		logger  zerolog.Logger
		rooms   Rooms
		creds   Credentials
		pins    Resolver
		fetcher Fetcher
		metrics *metrics.Metrics
		*http.Server
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:  cfg.Logger.With().Str("component", "gateway").Logger(),
		rooms:   cfg.Rooms,
		creds:   cfg.Credentials,
		pins:    cfg.Resolver,
		fetcher: cfg.Fetcher,
		metrics: cfg.Metrics,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", srv.health)
	r.Get("/auth/callback", srv.authCallback)
	r.Post("/api/auth/token", srv.exchangeToken)
	r.Post("/api/auth/refresh", srv.refreshToken)
	r.Post("/api/send-pin", srv.sendPin)
	r.Post("/send-image-http", srv.sendImage)
	r.Get("/api/rooms/{roomID}", srv.roomInfo)
	if cfg.WSHandler != nil {
		r.Get("/ws", cfg.WSHandler)
	}
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

func (srv *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err = w.Write(b); err != nil {
		srv.logger.Debug().Err(err).Msg("failed to write response")
	}
}
