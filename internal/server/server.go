// Package server exposes the webhook, webhook registration, diagnostic,
// health and metrics endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/bootstrap"
	"mediagrab_bot/internal/config"
	"mediagrab_bot/internal/logging"
)

const (
	readHeaderTimeout = 2 * time.Second
	listenPrefix      = ":"
	serviceName       = "Telegram Bot Webhook"
)

// Bot is the subset of the Telegram client the endpoints drive.
type Bot interface {
	ProcessUpdates(ctx context.Context, updates []*models.Update)
	RegisterWebhook(ctx context.Context, url string) error
}

// BotProvider hands out the lazily built bot.
type BotProvider interface {
	Bot(ctx context.Context) (Bot, error)
	Initialized() bool
}

// StorageChecker defines the storage behavior required for health.
type StorageChecker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to StorageChecker.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Probe is one dependency check reported by /debug/test-import.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators behind the endpoints. Any of them may be nil.
type Deps struct {
	Bots    BotProvider
	Storage StorageChecker
	Probes  []Probe
}

// Server hosts the HTTP endpoints and owns the underlying HTTP server.
type Server struct {
	server *http.Server
	cfg    config.Config
	deps   Deps
	logger *logrus.Entry
}

// NewServer constructs a server listening on cfg.HTTPPort.
func NewServer(cfg config.Config, deps Deps, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = config.DefaultWebhookPath
	}

	srv := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, cfg.HTTPPort),
		Handler:           srv.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverJSON(s.logger))

	r.Handle("/metrics", promhttp.Handler())

	r.Post(s.cfg.WebhookPath, s.handleWebhook)
	r.Get("/set-webhook", s.handleSetWebhook)
	r.Get("/set_webhook", s.handleSetWebhook)

	r.Get("/", s.handleRoot)
	r.Get("/test", s.handleTest)
	r.Get("/debug", s.handleDebug)
	r.Get("/debug/test-import", s.handleTestImport)
	r.Get("/healthz", s.handleHealth)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event":        "http_listen",
		"addr":         s.server.Addr,
		"webhook_path": s.cfg.WebhookPath,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

// bot resolves the bot or the client-facing reason it is unavailable.
func (s *Server) bot(ctx context.Context) (Bot, string) {
	if s.deps.Bots == nil {
		return nil, notInitializedText
	}
	b, err := s.deps.Bots.Bot(ctx)
	if err != nil || b == nil {
		if errors.Is(err, bootstrap.ErrMissingToken) {
			return nil, missingTokenText
		}
		return nil, notInitializedText
	}
	return b, ""
}

const (
	notInitializedText = "Bot not initialized"
	missingTokenText   = "Bot not initialized. Missing " + config.KeyTelegramToken
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
