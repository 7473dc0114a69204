// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/config"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/metrics"
)

type botAPI interface {
	Start(ctx context.Context)
	ProcessUpdate(ctx context.Context, update *models.Update)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
	DeleteWebhook(ctx context.Context, params *bot.DeleteWebhookParams) (bool, error)
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	bot    botAPI
	router *Router
	secret string
	source string
	logger *logrus.Entry

	store      MediaStore
	downloader Downloader
	extractor  AudioExtractor
	skipGetMe  bool
}

// Option wires optional collaborators into the client.
type Option func(*Client)

// WithMediaStore enables /list, /my, /delete and the save buttons.
func WithMediaStore(store MediaStore) Option {
	return func(c *Client) { c.store = store }
}

// WithDownloader enables link handling.
func WithDownloader(d Downloader) Option {
	return func(c *Client) { c.downloader = d }
}

// WithAudioExtractor enables the audio extraction button.
func WithAudioExtractor(e AudioExtractor) Option {
	return func(c *Client) { c.extractor = e }
}

// WithoutGetMe skips the getMe call bot construction normally makes.
func WithoutGetMe() Option {
	return func(c *Client) { c.skipGetMe = true }
}

// NewClient initializes the Telegram bot with the update router as default handler.
func NewClient(cfg config.Config, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{
		secret: cfg.WebhookSecret,
		source: config.ModeWebhook,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.router = NewRouter(c.store, c.downloader, c.extractor, logger)

	// Handlers run inline so Shutdown only has to wait for spawned tasks.
	botOpts := []bot.Option{
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handle),
		bot.WithErrorsHandler(errorHandler(logger)),
		bot.WithNotAsyncHandlers(),
	}
	if c.skipGetMe {
		botOpts = append(botOpts, bot.WithSkipGetMe())
	}

	tgBot, err := createBot(cfg.TelegramToken, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	c.bot = tgBot

	return c, nil
}

// ProcessUpdates hands each update to the bot's handler chain in order.
func (c *Client) ProcessUpdates(ctx context.Context, updates []*models.Update) {
	for _, update := range updates {
		if update == nil {
			continue
		}
		c.bot.ProcessUpdate(ctx, update)
	}
}

// RegisterWebhook replaces any existing webhook with url.
func (c *Client) RegisterWebhook(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook url is required")
	}

	if err := c.RemoveWebhook(ctx); err != nil {
		return err
	}

	ok, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    c.secret,
		AllowedUpdates: defaultAllowedUpdates,
	})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !ok {
		return errors.New("set webhook: telegram returned false")
	}

	c.logger.WithFields(logging.Fields{
		"event":       "telegram_webhook_set",
		"webhook_url": url,
	}).Info("telegram webhook registered")
	return nil
}

// RemoveWebhook deletes the current webhook, keeping pending updates.
func (c *Client) RemoveWebhook(ctx context.Context) error {
	if _, err := c.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{DropPendingUpdates: false}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// StartPolling removes any webhook and receives updates via long polling
// until the context is canceled.
func (c *Client) StartPolling(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := c.RemoveWebhook(ctx); err != nil {
		return err
	}
	c.source = config.ModePolling

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
	return nil
}

// Shutdown waits for in-flight downloads and extractions.
func (c *Client) Shutdown(ctx context.Context) error {
	if c == nil || c.router == nil {
		return nil
	}
	return c.router.Wait(ctx)
}

func (c *Client) handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	metrics.UpdatesProcessed.WithLabelValues(c.source).Inc()
	c.router.Handle(ctx, b, update)
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram api error")
	}
}
