// Package bootstrap builds the bot and its collaborators on first use and
// hands the same instances to every later caller in the process.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/config"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/media"
	"mediagrab_bot/internal/store"
	"mediagrab_bot/internal/telegram"
)

var (
	// ErrNotInitialized is returned while the bot cannot be constructed.
	ErrNotInitialized = errors.New("bot not initialized")
	// ErrMissingToken is the ErrNotInitialized case for an absent bot token.
	ErrMissingToken = fmt.Errorf("%w: missing %s", ErrNotInitialized, config.KeyTelegramToken)
)

const storeOpenTimeout = 10 * time.Second

// Constructors are overridable for tests.
var (
	openStore = func(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*store.Store, error) {
		return store.Open(ctx, cfg, logger)
	}
	newMediaService = func(cfg config.Config, logger *logrus.Entry) (*media.Service, error) {
		return media.NewService(cfg, logger)
	}
	newClient = func(cfg config.Config, logger *logrus.Entry, opts ...telegram.Option) (*telegram.Client, error) {
		return telegram.NewClient(cfg, logger, opts...)
	}
)

// Provider is a get-or-create accessor for the Telegram client. A failed
// construction is not remembered, so the next call tries again.
type Provider struct {
	cfg    config.Config
	logger *logrus.Entry

	mu     sync.Mutex
	client *telegram.Client
	store  *store.Store
	media  *media.Service
}

// NewProvider returns a Provider that has not built anything yet.
func NewProvider(cfg config.Config, logger *logrus.Entry) *Provider {
	if logger == nil {
		logger = logging.Logger()
	}
	return &Provider{cfg: cfg, logger: logger}
}

// Get returns the process-wide client, building it on the first successful call.
// Storage problems degrade saved-media features instead of failing the bot.
func (p *Provider) Get(ctx context.Context) (*telegram.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	if !p.cfg.HasToken() {
		p.logger.WithField("event", "bootstrap_failed").Error("telegram bot token is not set")
		return nil, ErrMissingToken
	}

	svc, err := p.mediaLocked()
	if err != nil {
		p.logger.WithField("event", "bootstrap_failed").WithError(err).Error("failed to prepare media service")
		return nil, fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}

	opts := []telegram.Option{
		telegram.WithDownloader(svc),
		telegram.WithAudioExtractor(svc),
	}
	if st, storeErr := p.storeLocked(ctx); storeErr != nil {
		p.logger.WithFields(logging.Fields{
			"event":   "bootstrap_storage_unavailable",
			"backend": p.cfg.StorageBackend,
		}).WithError(storeErr).Warn("saved media disabled: storage could not be opened")
	} else {
		opts = append(opts, telegram.WithMediaStore(st))
	}

	client, err := newClient(p.cfg, p.logger, opts...)
	if err != nil {
		logging.WithStack(p.logger).WithField("event", "bootstrap_failed").WithError(err).Error("failed to initialize telegram client")
		return nil, fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}

	p.client = client
	p.logger.WithFields(logging.Fields{
		"event":   "bootstrap_ready",
		"backend": p.cfg.StorageBackend,
	}).Info("telegram client initialized")
	return client, nil
}

// Initialized reports whether Get has succeeded.
func (p *Provider) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.client != nil
}

// CheckBot reports whether the client can be constructed. It leaves the
// provider untouched and makes no network call.
func (p *Provider) CheckBot(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}
	if !p.cfg.HasToken() {
		return ErrMissingToken
	}
	if _, err := newClient(p.cfg, p.logger, telegram.WithoutGetMe()); err != nil {
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	}
	return nil
}

// CheckStorage pings the open store, or opens a temporary one and closes
// it again when the bot has not been built yet.
func (p *Provider) CheckStorage(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store != nil {
		return p.store.Ping(ctx)
	}

	openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	st, err := openStore(openCtx, p.cfg, p.logger)
	if err != nil {
		return err
	}
	pingErr := st.Ping(openCtx)
	if err := st.Close(context.WithoutCancel(ctx)); err != nil && pingErr == nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return pingErr
}

// CheckYTDLP runs the configured yt-dlp binary.
func (p *Provider) CheckYTDLP(ctx context.Context) error {
	svc, err := p.mediaService()
	if err != nil {
		return err
	}
	return svc.CheckYTDLP(ctx)
}

// CheckFFmpeg runs the configured ffmpeg binary.
func (p *Provider) CheckFFmpeg(ctx context.Context) error {
	svc, err := p.mediaService()
	if err != nil {
		return err
	}
	return svc.CheckFFmpeg(ctx)
}

// Close waits for background bot work and releases storage.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	client, st := p.client, p.store
	p.mu.Unlock()

	var errs []error
	if client != nil {
		if err := client.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("wait for bot tasks: %w", err))
		}
	}
	if st != nil {
		if err := st.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) mediaService() (*media.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.mediaLocked()
}

func (p *Provider) mediaLocked() (*media.Service, error) {
	if p.media != nil {
		return p.media, nil
	}
	svc, err := newMediaService(p.cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.media = svc
	return svc, nil
}

func (p *Provider) storeLocked(ctx context.Context) (*store.Store, error) {
	if p.store != nil {
		return p.store, nil
	}
	// The store outlives the request that happened to open it.
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeOpenTimeout)
	defer cancel()

	st, err := openStore(openCtx, p.cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.store = st
	return st, nil
}
