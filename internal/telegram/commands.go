package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/metrics"
	"mediagrab_bot/internal/store"
)

const (
	startText = "👋 Welcome to Social Media Downloader Bot!\n\n" +
		"I can help you download videos and images from social media platforms, extract audio, and save your media.\n\n" +
		"Just send me a link to a video from TikTok, Instagram, YouTube Shorts, or Pinterest, or a link to a photo from Pinterest.\n\n" +
		"Commands:\n" +
		"/help - Show help information\n" +
		"/list - List your saved media\n" +
		"/my [name] - Retrieve your saved media by name\n" +
		"/delete [name] - Delete your saved media by name"

	helpText = "📋 Bot Instructions:\n\n" +
		"1️⃣ Send a link to a video from TikTok, Instagram, YouTube Shorts, or Pinterest\n" +
		"   OR send a link to a Pinterest image\n" +
		"2️⃣ I'll download and send you the video or image\n" +
		"3️⃣ For videos: Use the '🎵 Download Audio' button to extract audio\n" +
		"4️⃣ Use the '💾 Save' button to save any media with a custom name\n" +
		"5️⃣ Use /list to see all your saved media (🎬 videos, 🎵 audio, 🖼️ images)\n" +
		"6️⃣ Use /my [name] to retrieve your saved media\n" +
		"7️⃣ Use /delete [name] to delete your saved media\n\n" +
		"Examples:\n" +
		"• To retrieve: /my my_favorite_image\n" +
		"• To delete: /delete my_favorite_image"

	storageUnavailableText = "⚠️ Saved media is not available right now. Please try again later."
)

func (r *Router) handleCommand(ctx context.Context, s Sender, msg *models.Message, command, args string) {
	switch command {
	case "start":
		r.reply(ctx, s, msg, startText)
	case "help":
		r.reply(ctx, s, msg, helpText)
	case "list":
		r.listCommand(ctx, s, msg)
	case "my":
		r.retrieveCommand(ctx, s, msg, args)
	case "delete":
		r.deleteCommand(ctx, s, msg, args)
	case "cancel":
		r.cancelCommand(ctx, s, msg)
	}
}

func (r *Router) listCommand(ctx context.Context, s Sender, msg *models.Message) {
	if r.store == nil {
		r.reply(ctx, s, msg, storageUnavailableText)
		return
	}

	uid := userID(msg.From)
	entries, err := r.store.List(ctx, uid)
	metrics.SavedMediaOps.WithLabelValues("list", metrics.Outcome(err)).Inc()
	if err != nil {
		r.logger.WithFields(logging.Fields{"event": "media_list", "user_id": uid}).WithError(err).Error("failed to list saved media")
		r.reply(ctx, s, msg, "❌ Failed to load your saved media. Please try again.")
		return
	}

	if len(entries) == 0 {
		r.reply(ctx, s, msg, "You don't have any saved media yet.")
		return
	}

	var b strings.Builder
	b.WriteString("📋 Your saved media:\n\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, entry.Type.Icon(), entry.Name)
	}
	b.WriteString("\nTo retrieve a file, use /my [name]")
	b.WriteString("\nTo delete a file, use /delete [name]")
	r.reply(ctx, s, msg, b.String())
}

func (r *Router) retrieveCommand(ctx context.Context, s Sender, msg *models.Message, name string) {
	if name == "" {
		r.reply(ctx, s, msg, "Please provide a name. Usage: /my [name]")
		return
	}
	if r.store == nil {
		r.reply(ctx, s, msg, storageUnavailableText)
		return
	}

	uid := userID(msg.From)
	entry, err := r.store.Retrieve(ctx, uid, name)
	metrics.SavedMediaOps.WithLabelValues("retrieve", metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.reply(ctx, s, msg, fmt.Sprintf("No media found with the name '%s'.", name))
			return
		}
		r.logger.WithFields(logging.Fields{"event": "media_retrieve", "user_id": uid}).WithError(err).Error("failed to retrieve saved media")
		r.reply(ctx, s, msg, "Sorry, the media file could not be found.")
		return
	}

	chat := msg.Chat.ID
	r.send(ctx, s, chat, fmt.Sprintf("Sending your saved media: %s", entry.Name))

	file, closeFile, err := upload(entry.Path)
	if err != nil {
		r.reply(ctx, s, msg, "Sorry, the media file could not be found.")
		return
	}
	defer closeFile()

	switch entry.Type {
	case domain.MediaAudio:
		_, err = s.SendAudio(ctx, &bot.SendAudioParams{ChatID: chat, Audio: file, Title: entry.Name})
	case domain.MediaImage:
		_, err = s.SendPhoto(ctx, &bot.SendPhotoParams{ChatID: chat, Photo: file, Caption: "Your saved image: " + entry.Name})
	default:
		_, err = s.SendVideo(ctx, &bot.SendVideoParams{ChatID: chat, Video: file, Caption: "Your saved video: " + entry.Name})
	}
	if err != nil {
		r.logSendError("send_saved_media", chat, err)
	}
}

func (r *Router) deleteCommand(ctx context.Context, s Sender, msg *models.Message, name string) {
	if name == "" {
		r.reply(ctx, s, msg, "Please provide a name. Usage: /delete [name]")
		return
	}
	if r.store == nil {
		r.reply(ctx, s, msg, storageUnavailableText)
		return
	}

	uid := userID(msg.From)
	err := r.store.Delete(ctx, uid, name)
	metrics.SavedMediaOps.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.WithFields(logging.Fields{"event": "media_delete", "user_id": uid}).WithError(err).Error("failed to delete saved media")
		}
		r.reply(ctx, s, msg, fmt.Sprintf("❌ No media found with the name '%s' or deletion failed.", name))
		return
	}

	r.reply(ctx, s, msg, fmt.Sprintf("✅ Media '%s' has been deleted successfully.", name))
}

func (r *Router) cancelCommand(ctx context.Context, s Sender, msg *models.Message) {
	if _, ok := r.sessions.endSave(userID(msg.From)); ok {
		r.reply(ctx, s, msg, "❌ Save operation cancelled.")
		return
	}
	r.reply(ctx, s, msg, "No active operation to cancel.")
}

func (r *Router) completeSave(ctx context.Context, s Sender, msg *models.Message, pending pendingSave) {
	uid := userID(msg.From)
	name := strings.TrimSpace(msg.Text)

	if !domain.ValidName(name) {
		r.reply(ctx, s, msg, fmt.Sprintf("⚠️ Please provide a valid name (max %d characters).", domain.MaxNameLength))
		return
	}

	r.sessions.endSave(uid)

	if !fileExists(pending.path) {
		r.sessions.forget(uid, pending.mediaID)
		r.reply(ctx, s, msg, "⚠️ Media file no longer available.")
		return
	}
	if r.store == nil {
		r.reply(ctx, s, msg, storageUnavailableText)
		return
	}

	saved, err := r.store.Save(ctx, uid, name, pending.path, pending.mediaType)
	metrics.SavedMediaOps.WithLabelValues("save", metrics.Outcome(err)).Inc()
	if err != nil {
		r.logger.WithFields(logging.Fields{"event": "media_save", "user_id": uid}).WithError(err).Error("failed to save media")
		r.reply(ctx, s, msg, fmt.Sprintf("❌ Failed to save the %s. Please try again.", pending.mediaType))
		return
	}

	r.sessions.forget(uid, pending.mediaID)
	r.reply(ctx, s, msg, fmt.Sprintf("✅ %s saved as '%s'!\nYou can retrieve it using /my %s", pending.mediaType.Title(), saved.Name, saved.Name))
}
