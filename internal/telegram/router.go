package telegram

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/media"
)

// Sender is the subset of the Bot API the handlers call. *bot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendAudio(ctx context.Context, params *bot.SendAudioParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	EditMessageCaption(ctx context.Context, params *bot.EditMessageCaptionParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// MediaStore keeps media users chose to save.
type MediaStore interface {
	Save(ctx context.Context, userID int64, name, srcPath string, mediaType domain.MediaType) (domain.SavedMedia, error)
	Retrieve(ctx context.Context, userID int64, name string) (domain.SavedMedia, error)
	List(ctx context.Context, userID int64) ([]domain.SavedMedia, error)
	Delete(ctx context.Context, userID int64, name string) error
}

// Downloader fetches the media behind a link.
type Downloader interface {
	Download(ctx context.Context, link string, kind domain.ContentKind, platform domain.Platform) (media.Result, error)
}

// AudioExtractor derives an audio track from a downloaded video.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
}

// Router dispatches updates to command, link and button handlers.
type Router struct {
	store      MediaStore
	downloader Downloader
	extractor  AudioExtractor
	sessions   *sessions
	logger     *logrus.Entry

	wg    sync.WaitGroup
	spawn func(func())
}

// NewRouter builds a Router. Nil collaborators make the matching features
// reply that they are unavailable.
func NewRouter(store MediaStore, downloader Downloader, extractor AudioExtractor, logger *logrus.Entry) *Router {
	if logger == nil {
		logger = logging.Logger()
	}

	r := &Router{
		store:      store,
		downloader: downloader,
		extractor:  extractor,
		sessions:   newSessions(),
		logger:     logger,
	}
	r.spawn = r.goSpawn
	return r
}

// Handle processes a single update.
func (r *Router) Handle(ctx context.Context, s Sender, update *models.Update) {
	if update == nil {
		return
	}

	meta := extractUpdateMeta(update)
	logger := logging.Enrich(r.logger, logging.Context{
		UserID:   meta.userID,
		ChatID:   meta.chatID,
		UpdateID: update.ID,
		Event:    "telegram_update",
	}).WithField("update_type", meta.updateType)
	if meta.text != "" {
		logger = logger.WithField("text", meta.text)
	}
	logger.Info("telegram update received")

	defer func() {
		if rec := recover(); rec != nil {
			logging.WithStack(r.logger).WithFields(logging.Fields{
				"event":     "telegram_handler_panic",
				"update_id": update.ID,
				"panic":     rec,
			}).Error("handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, s, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, s, update.Message)
	}
}

// Wait blocks until background work finishes or ctx is done.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Router) goSpawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logging.WithStack(r.logger).WithFields(logging.Fields{
					"event": "telegram_task_panic",
					"panic": rec,
				}).Error("background task panicked")
			}
		}()
		fn()
	}()
}

func (r *Router) handleMessage(ctx context.Context, s Sender, msg *models.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	uid := userID(msg.From)

	if command, args, ok := parseCommand(text); ok {
		r.handleCommand(ctx, s, msg, command, args)
		return
	}

	if pending, ok := r.sessions.pendingSave(uid); ok {
		r.completeSave(ctx, s, msg, pending)
		return
	}

	if link, ok := domain.ExtractURL(text); ok {
		r.handleLink(ctx, s, msg, link)
	}
}

// parseCommand splits "/cmd@bot args" into its lowercase command and args.
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}

	head, args, _ := strings.Cut(text, " ")
	command := strings.TrimPrefix(head, "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	if command == "" {
		return "", "", false
	}
	return strings.ToLower(command), strings.TrimSpace(args), true
}

func (r *Router) reply(ctx context.Context, s Sender, msg *models.Message, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		r.logSendError("reply", msg.Chat.ID, err)
	}
}

func (r *Router) send(ctx context.Context, s Sender, chatID int64, text string) {
	if _, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		r.logSendError("send_message", chatID, err)
	}
}

func (r *Router) logSendError(op string, chatID int64, err error) {
	r.logger.WithFields(logging.Fields{
		"event":   "telegram_send_failed",
		"op":      op,
		"chat_id": chatID,
	}).WithError(err).Warn("telegram api call failed")
}

// upload opens path as a multipart file for the Bot API.
func upload(path string) (*models.InputFileUpload, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, func() {}, err
	}
	return &models.InputFileUpload{Filename: filepath.Base(path), Data: f}, func() { _ = f.Close() }, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func keyboard(buttons ...models.InlineKeyboardButton) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{buttons}}
}
