package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/bootstrap"
	"mediagrab_bot/internal/config"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/server"
)

const (
	httpShutdownTimeout     = 5 * time.Second
	telegramShutdownTimeout = 30 * time.Second
	pollingStopTimeout      = 10 * time.Second
)

// botSource exposes the provider to the HTTP layer.
type botSource struct {
	provider *bootstrap.Provider
}

func (b botSource) Bot(ctx context.Context) (server.Bot, error) {
	client, err := b.provider.Get(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (b botSource) Initialized() bool {
	return b.provider.Initialized()
}

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":           "startup",
		"bot_mode":        cfg.BotMode,
		"storage_backend": cfg.StorageBackend,
		"token_set":       cfg.HasToken(),
	}).Info("configuration loaded")

	provider := bootstrap.NewProvider(cfg, logger)

	httpServer := server.NewServer(cfg, server.Deps{
		Bots:    botSource{provider: provider},
		Storage: server.PingFunc(provider.CheckStorage),
		Probes: []server.Probe{
			{Name: "yt-dlp", Check: provider.CheckYTDLP},
			{Name: "ffmpeg", Check: provider.CheckFFmpeg},
			{Name: "storage", Check: provider.CheckStorage},
			{Name: "go-telegram/bot", Check: provider.CheckBot},
		},
	}, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.ListenAndServe()
	}()

	pollCtx, cancelPolling := context.WithCancel(context.Background())
	pollDone := make(chan struct{})
	if cfg.BotMode == config.ModePolling {
		go func() {
			defer close(pollDone)
			runPolling(pollCtx, provider, logger)
		}()
	} else {
		close(pollDone)
	}

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, shutting down")
	case err := <-httpDone:
		if err != nil {
			logger.WithField("event", "http_failed").WithError(err).Error("http server stopped unexpectedly")
		}
	}

	cancelPolling()
	waitCtx, cancelWait := context.WithTimeout(context.Background(), pollingStopTimeout)
	select {
	case <-pollDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram polling to stop")
	}
	cancelWait()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.WithField("event", "http_shutdown").WithError(err).Error("http server shutdown error")
	}
	cancelHTTP()

	closeCtx, cancelClose := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	if err := provider.Close(closeCtx); err != nil {
		logger.WithField("event", "bot_shutdown").WithError(err).Error("bot shutdown error")
	}
	cancelClose()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

// runPolling starts long polling once the bot can be built. Without a token
// polling cannot start and the HTTP endpoints report the bot as not initialized.
func runPolling(ctx context.Context, provider *bootstrap.Provider, logger *logrus.Entry) {
	client, err := provider.Get(ctx)
	if err != nil {
		logger.WithField("event", "telegram_polling_unavailable").WithError(err).Error("cannot start polling")
		return
	}

	if err := client.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithField("event", "telegram_polling_failed").WithError(err).Error("telegram polling failed")
	}
}
