package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/media"
)

const (
	processingText        = "🔄 Processing your request. This may take a moment..."
	downloadFailedText    = "❌ Failed to download the media. Please check the URL and try again."
	slideshowFailedText   = "❌ Failed to download the TikTok slideshow. The content may be private or no longer available."
	downloadedVideoText   = "Here's your downloaded video!"
	downloadedImageText   = "Here's your downloaded image!"
	downloadedMediaText   = "Here's your downloaded media!"
	extractAudioButton    = "🎵 Download Audio"
	saveButton            = "💾 Save"
	callbackExtractPrefix = "extract_"
	callbackSavePrefix    = "save_"
)

type downloadJob struct {
	chatID   int64
	userID   int64
	statusID int
	link     string
	kind     domain.ContentKind
	platform domain.Platform
}

func (r *Router) handleLink(ctx context.Context, s Sender, msg *models.Message, link string) {
	kind, platform := domain.ClassifyURL(link)
	logger := logging.Enrich(r.logger, logging.Context{
		UserID:   userID(msg.From),
		ChatID:   msg.Chat.ID,
		Platform: string(platform),
		Event:    "link_received",
	}).WithField("kind", kind)

	if isGroupChat(msg.Chat) && !domain.AllowedInGroups(platform) {
		logger.Info("ignoring link in group chat")
		return
	}
	if r.downloader == nil {
		r.reply(ctx, s, msg, downloadFailedText)
		return
	}

	status, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: processingText})
	if err != nil || status == nil {
		r.logSendError("status_message", msg.Chat.ID, err)
		return
	}

	job := downloadJob{
		chatID:   msg.Chat.ID,
		userID:   userID(msg.From),
		statusID: status.ID,
		link:     link,
		kind:     kind,
		platform: platform,
	}
	bg := context.WithoutCancel(ctx)
	r.spawn(func() { r.runDownload(bg, s, job) })
}

func (r *Router) runDownload(ctx context.Context, s Sender, job downloadJob) {
	result, err := r.downloader.Download(ctx, job.link, job.kind, job.platform)
	if err != nil {
		text := downloadFailedText
		if job.kind == domain.KindSlideshow {
			text = slideshowFailedText
		}
		r.editStatus(ctx, s, job, text)
		return
	}

	if job.kind == domain.KindSlideshow && len(result.Images()) > 0 {
		r.deliverSlideshow(ctx, s, job, result)
		return
	}
	r.deliverSingle(ctx, s, job, result)
}

func (r *Router) deliverSingle(ctx context.Context, s Sender, job downloadJob, result media.Result) {
	file, ok := result.Primary()
	if !ok || !fileExists(file.Path) {
		r.editStatus(ctx, s, job, "❌ Failed to access the downloaded media file.")
		return
	}

	id := r.sessions.remember(job.userID, file.Path, file.Type)
	markup := markupFor(file.Type, id)

	if _, err := s.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: job.chatID, MessageID: job.statusID}); err != nil {
		r.logSendError("delete_status", job.chatID, err)
	}

	input, closeFile, err := upload(file.Path)
	if err != nil {
		r.send(ctx, s, job.chatID, "❌ Failed to access the downloaded media file.")
		return
	}
	defer closeFile()

	switch file.Type {
	case domain.MediaVideo:
		_, err = s.SendVideo(ctx, &bot.SendVideoParams{ChatID: job.chatID, Video: input, Caption: downloadedVideoText, ReplyMarkup: markup})
	case domain.MediaImage:
		_, err = s.SendPhoto(ctx, &bot.SendPhotoParams{ChatID: job.chatID, Photo: input, Caption: downloadedImageText, ReplyMarkup: markup})
	default:
		_, err = s.SendDocument(ctx, &bot.SendDocumentParams{ChatID: job.chatID, Document: input, Caption: downloadedMediaText, ReplyMarkup: markup})
	}
	if err != nil {
		r.logSendError("send_media", job.chatID, err)
		r.send(ctx, s, job.chatID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	logging.Enrich(r.logger, logging.Context{
		UserID:   job.userID,
		ChatID:   job.chatID,
		Platform: string(job.platform),
		MediaID:  id,
		Event:    "media_delivered",
	}).WithField("media_type", file.Type).Info("sent downloaded media")
}

func (r *Router) deliverSlideshow(ctx context.Context, s Sender, job downloadJob, result media.Result) {
	images := result.Images()
	audio, hasAudio := result.Audio()

	summary := fmt.Sprintf("✅ Downloaded TikTok slideshow with %d images", len(images))
	if hasAudio {
		summary += " and audio"
	}
	r.editStatus(ctx, s, job, summary+"! Sending now...")

	for i, img := range images {
		id := r.sessions.remember(job.userID, img.Path, domain.MediaImage)
		if err := r.sendPhotoFile(ctx, s, job.chatID, img.Path, fmt.Sprintf("Slideshow image %d/%d", i+1, len(images)), keyboard(saveMediaButton(domain.MediaImage, id))); err != nil {
			r.logSendError("send_slideshow_image", job.chatID, err)
			r.send(ctx, s, job.chatID, fmt.Sprintf("⚠️ Error sending image %d", i+1))
		}
	}

	if hasAudio && fileExists(audio.Path) {
		id := r.sessions.remember(job.userID, audio.Path, domain.MediaAudio)
		if err := r.sendAudioFile(ctx, s, job.chatID, audio.Path, "Slideshow audio track", "TikTok Slideshow Audio", keyboard(saveMediaButton(domain.MediaAudio, id))); err != nil {
			r.logSendError("send_slideshow_audio", job.chatID, err)
			r.send(ctx, s, job.chatID, "⚠️ Error sending audio track")
		}
	}

	r.logger.WithFields(logging.Fields{
		"event":     "slideshow_delivered",
		"user_id":   job.userID,
		"images":    len(images),
		"has_audio": hasAudio,
	}).Info("sent slideshow")
}

func (r *Router) sendPhotoFile(ctx context.Context, s Sender, chatID int64, path, caption string, markup models.ReplyMarkup) error {
	file, closeFile, err := upload(path)
	if err != nil {
		return err
	}
	defer closeFile()

	_, err = s.SendPhoto(ctx, &bot.SendPhotoParams{ChatID: chatID, Photo: file, Caption: caption, ReplyMarkup: markup})
	return err
}

func (r *Router) sendAudioFile(ctx context.Context, s Sender, chatID int64, path, caption, title string, markup models.ReplyMarkup) error {
	file, closeFile, err := upload(path)
	if err != nil {
		return err
	}
	defer closeFile()

	_, err = s.SendAudio(ctx, &bot.SendAudioParams{ChatID: chatID, Audio: file, Caption: caption, Title: title, ReplyMarkup: markup})
	return err
}

func (r *Router) editStatus(ctx context.Context, s Sender, job downloadJob, text string) {
	_, err := s.EditMessageText(ctx, &bot.EditMessageTextParams{ChatID: job.chatID, MessageID: job.statusID, Text: text})
	if err != nil {
		r.logSendError("edit_status", job.chatID, err)
	}
}

// markupFor returns the buttons shown under a delivered file.
func markupFor(mediaType domain.MediaType, id string) *models.InlineKeyboardMarkup {
	if mediaType == domain.MediaVideo {
		return videoMarkup(id)
	}
	return keyboard(saveMediaButton(mediaType, id))
}

func videoMarkup(id string) *models.InlineKeyboardMarkup {
	return keyboard(
		models.InlineKeyboardButton{Text: extractAudioButton, CallbackData: callbackExtractPrefix + id},
		saveMediaButton(domain.MediaVideo, id),
	)
}

func saveMediaButton(mediaType domain.MediaType, id string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: saveButton, CallbackData: callbackSavePrefix + string(mediaType) + "_" + id}
}
