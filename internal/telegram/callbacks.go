package telegram

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
)

const (
	videoGoneText = "⚠️ Video file no longer available. Please download it again."
	mediaGoneText = "⚠️ Media file no longer available. Please download it again."
	saveNameText  = "📝 Please enter a name to save this media.\n" +
		"You'll be able to retrieve it later using /my [name]\n\n" +
		"Type /cancel to abort."
)

func (r *Router) handleCallback(ctx context.Context, s Sender, q *models.CallbackQuery) {
	if _, err := s.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: q.ID}); err != nil {
		r.logSendError("answer_callback", messageChatID(q.Message), err)
	}

	data := strings.TrimSpace(q.Data)
	switch {
	case strings.HasPrefix(data, callbackExtractPrefix):
		r.handleExtract(ctx, s, q, strings.TrimPrefix(data, callbackExtractPrefix))
	case strings.HasPrefix(data, callbackSavePrefix):
		r.handleSaveButton(ctx, s, q, data)
	}
}

func (r *Router) handleExtract(ctx context.Context, s Sender, q *models.CallbackQuery, id string) {
	uid := q.From.ID
	chat := messageChatID(q.Message)
	msgID := messageID(q.Message)

	cached, ok := r.sessions.lookup(uid, id)
	if !ok || !fileExists(cached.path) {
		if ok {
			r.sessions.forget(uid, id)
		}
		r.editCaption(ctx, s, chat, msgID, videoGoneText, nil)
		return
	}
	if r.extractor == nil {
		r.editCaption(ctx, s, chat, msgID, "❌ Failed to extract audio.", nil)
		return
	}

	r.editCaption(ctx, s, chat, msgID, "🔄 Extracting audio... Please wait.", nil)

	bg := context.WithoutCancel(ctx)
	r.spawn(func() {
		audioPath, err := r.extractor.ExtractAudio(bg, cached.path)
		if err != nil {
			r.editCaption(bg, s, chat, msgID, "❌ Failed to extract audio.", nil)
			return
		}

		audioID := r.sessions.remember(uid, audioPath, domain.MediaAudio)
		if err := r.sendAudioFile(bg, s, chat, audioPath, "Here's the extracted audio!", "", keyboard(saveMediaButton(domain.MediaAudio, audioID))); err != nil {
			r.logSendError("send_extracted_audio", chat, err)
		}

		r.editCaption(bg, s, chat, msgID, downloadedVideoText, videoMarkup(id))

		logging.Enrich(r.logger, logging.Context{
			UserID:  uid,
			ChatID:  chat,
			MediaID: id,
			Event:   "audio_delivered",
		}).WithField("audio_id", audioID).Info("sent extracted audio")
	})
}

func (r *Router) handleSaveButton(ctx context.Context, s Sender, q *models.CallbackQuery, data string) {
	uid := q.From.ID
	chat := messageChatID(q.Message)

	parts := strings.SplitN(data, "_", 3)
	if len(parts) != 3 {
		r.send(ctx, s, chat, "❌ Invalid data format.")
		return
	}
	mediaType, ok := domain.ParseMediaType(parts[1])
	if !ok {
		r.send(ctx, s, chat, "❌ Invalid data format.")
		return
	}
	id := parts[2]

	cached, ok := r.sessions.lookup(uid, id)
	if !ok || !fileExists(cached.path) {
		if ok {
			r.sessions.forget(uid, id)
		}
		r.send(ctx, s, chat, mediaGoneText)
		return
	}

	r.sessions.beginSave(uid, pendingSave{
		mediaID:   id,
		path:      cached.path,
		mediaType: mediaType,
		chatID:    chat,
	})
	r.send(ctx, s, chat, saveNameText)
}

func (r *Router) editCaption(ctx context.Context, s Sender, chatID int64, messageID int, caption string, markup *models.InlineKeyboardMarkup) {
	params := &bot.EditMessageCaptionParams{ChatID: chatID, MessageID: messageID, Caption: caption}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := s.EditMessageCaption(ctx, params); err != nil {
		r.logSendError("edit_caption", chatID, err)
	}
}
