package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"mediagrab_bot/internal/domain"
	"mediagrab_bot/internal/media"
	"mediagrab_bot/internal/store"
)

type sentItem struct {
	method  string
	chatID  any
	text    string
	replyTo int
	markup  models.ReplyMarkup
	msgID   int
	title   string
}

type fakeSender struct {
	mu     sync.Mutex
	items  []sentItem
	nextID int
	err    error
}

func (f *fakeSender) record(item sentItem) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, item)
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	return &models.Message{ID: 1000 + f.nextID}, nil
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	item := sentItem{method: "sendMessage", chatID: p.ChatID, text: p.Text, markup: p.ReplyMarkup}
	if p.ReplyParameters != nil {
		item.replyTo = p.ReplyParameters.MessageID
	}
	return f.record(item)
}

func (f *fakeSender) SendVideo(_ context.Context, p *bot.SendVideoParams) (*models.Message, error) {
	return f.record(sentItem{method: "sendVideo", chatID: p.ChatID, text: p.Caption, markup: p.ReplyMarkup})
}

func (f *fakeSender) SendPhoto(_ context.Context, p *bot.SendPhotoParams) (*models.Message, error) {
	return f.record(sentItem{method: "sendPhoto", chatID: p.ChatID, text: p.Caption, markup: p.ReplyMarkup})
}

func (f *fakeSender) SendAudio(_ context.Context, p *bot.SendAudioParams) (*models.Message, error) {
	return f.record(sentItem{method: "sendAudio", chatID: p.ChatID, text: p.Caption, markup: p.ReplyMarkup, title: p.Title})
}

func (f *fakeSender) SendDocument(_ context.Context, p *bot.SendDocumentParams) (*models.Message, error) {
	return f.record(sentItem{method: "sendDocument", chatID: p.ChatID, text: p.Caption, markup: p.ReplyMarkup})
}

func (f *fakeSender) EditMessageText(_ context.Context, p *bot.EditMessageTextParams) (*models.Message, error) {
	return f.record(sentItem{method: "editMessageText", chatID: p.ChatID, text: p.Text, msgID: p.MessageID})
}

func (f *fakeSender) EditMessageCaption(_ context.Context, p *bot.EditMessageCaptionParams) (*models.Message, error) {
	return f.record(sentItem{method: "editMessageCaption", chatID: p.ChatID, text: p.Caption, msgID: p.MessageID, markup: p.ReplyMarkup})
}

func (f *fakeSender) DeleteMessage(_ context.Context, p *bot.DeleteMessageParams) (bool, error) {
	_, err := f.record(sentItem{method: "deleteMessage", chatID: p.ChatID, msgID: p.MessageID})
	return err == nil, err
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, p *bot.AnswerCallbackQueryParams) (bool, error) {
	_, err := f.record(sentItem{method: "answerCallbackQuery", text: p.CallbackQueryID})
	return err == nil, err
}

func (f *fakeSender) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item.method)
	}
	return out
}

func (f *fakeSender) last() sentItem {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return sentItem{}
	}
	return f.items[len(f.items)-1]
}

func (f *fakeSender) find(method string) []sentItem {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []sentItem
	for _, item := range f.items {
		if item.method == method {
			out = append(out, item)
		}
	}
	return out
}

type fakeStore struct {
	entries map[string]domain.SavedMedia
	saveErr error
	saved   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]domain.SavedMedia{}}
}

func (f *fakeStore) key(userID int64, name string) string {
	return fmt.Sprintf("%d|%s", userID, strings.ToLower(name))
}

func (f *fakeStore) Save(_ context.Context, userID int64, name, srcPath string, mediaType domain.MediaType) (domain.SavedMedia, error) {
	if f.saveErr != nil {
		return domain.SavedMedia{}, f.saveErr
	}
	entry := domain.SavedMedia{UserID: userID, Name: domain.SanitizeName(name), Type: mediaType, Path: srcPath}
	f.entries[f.key(userID, entry.Name)] = entry
	f.saved = append(f.saved, entry.Name)
	return entry, nil
}

func (f *fakeStore) Retrieve(_ context.Context, userID int64, name string) (domain.SavedMedia, error) {
	entry, ok := f.entries[f.key(userID, name)]
	if !ok {
		return domain.SavedMedia{}, store.ErrNotFound
	}
	return entry, nil
}

func (f *fakeStore) List(_ context.Context, userID int64) ([]domain.SavedMedia, error) {
	var out []domain.SavedMedia
	for _, entry := range f.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, userID int64, name string) error {
	key := f.key(userID, name)
	if _, ok := f.entries[key]; !ok {
		return store.ErrNotFound
	}
	delete(f.entries, key)
	return nil
}

type fakeDownloader struct {
	result media.Result
	err    error
	links  []string
	kinds  []domain.ContentKind
}

func (f *fakeDownloader) Download(_ context.Context, link string, kind domain.ContentKind, _ domain.Platform) (media.Result, error) {
	f.links = append(f.links, link)
	f.kinds = append(f.kinds, kind)
	return f.result, f.err
}

type fakeExtractor struct {
	out string
	err error
}

func (f *fakeExtractor) ExtractAudio(context.Context, string) (string, error) {
	return f.out, f.err
}

type routerFixture struct {
	router     *Router
	sender     *fakeSender
	store      *fakeStore
	downloader *fakeDownloader
	extractor  *fakeExtractor
	hook       *logtest.Hook
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	hookLogger, hook := logtest.NewNullLogger()
	fx := &routerFixture{
		sender:     &fakeSender{},
		store:      newFakeStore(),
		downloader: &fakeDownloader{},
		extractor:  &fakeExtractor{},
		hook:       hook,
	}
	fx.router = NewRouter(fx.store, fx.downloader, fx.extractor, logrus.NewEntry(hookLogger))
	fx.router.spawn = func(fn func()) { fn() }
	ids := 0
	fx.router.sessions.newID = func() string {
		ids++
		return fmt.Sprintf("id%d", ids)
	}
	return fx
}

func (fx *routerFixture) text(t *testing.T, userID int64, text string) {
	t.Helper()
	fx.router.Handle(context.Background(), fx.sender, &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   42,
			From: &models.User{ID: userID},
			Chat: models.Chat{ID: userID, Type: "private"},
			Text: text,
		},
	})
}

func (fx *routerFixture) callback(t *testing.T, userID int64, data string) {
	t.Helper()
	fx.router.Handle(context.Background(), fx.sender, &models.Update{
		ID: 2,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: userID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type:    models.MaybeInaccessibleMessageTypeMessage,
				Message: &models.Message{ID: 77, Chat: models.Chat{ID: userID}},
			},
		},
	})
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func callbackData(t *testing.T, markup models.ReplyMarkup) []string {
	t.Helper()
	kb, ok := markup.(*models.InlineKeyboardMarkup)
	if !ok || kb == nil {
		t.Fatalf("expected inline keyboard, got %T", markup)
	}
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, button := range row {
			out = append(out, button.CallbackData)
		}
	}
	return out
}

func TestStartAndHelpReply(t *testing.T) {
	fx := newRouterFixture(t)

	fx.text(t, 1, "/start")
	fx.text(t, 1, "/help@MediaBot")

	sent := fx.sender.find("sendMessage")
	if len(sent) != 2 {
		t.Fatalf("expected 2 replies, got %v", fx.sender.methods())
	}
	if sent[0].text != startText || sent[0].replyTo != 42 {
		t.Fatalf("unexpected start reply %+v", sent[0])
	}
	if sent[1].text != helpText {
		t.Fatalf("unexpected help reply %q", sent[1].text)
	}

	last := fx.hook.AllEntries()[0]
	if last.Data["event"] != "telegram_update" || last.Data["update_type"] != "message" {
		t.Fatalf("expected update log, got %+v", last.Data)
	}
}

func TestListCommand(t *testing.T) {
	fx := newRouterFixture(t)

	fx.text(t, 1, "/list")
	if got := fx.sender.last().text; got != "You don't have any saved media yet." {
		t.Fatalf("unexpected empty list reply %q", got)
	}

	fx.store.entries["1|song"] = domain.SavedMedia{UserID: 1, Name: "song", Type: domain.MediaAudio}
	fx.store.entries["1|clip"] = domain.SavedMedia{UserID: 1, Name: "Clip", Type: domain.MediaVideo}
	fx.text(t, 1, "/list")

	got := fx.sender.last().text
	if !strings.Contains(got, "1. 🎬 Clip\n2. 🎵 song\n") {
		t.Fatalf("expected numbered list with icons, got %q", got)
	}
}

func TestRetrieveCommand(t *testing.T) {
	fx := newRouterFixture(t)

	fx.text(t, 1, "/my")
	if got := fx.sender.last().text; got != "Please provide a name. Usage: /my [name]" {
		t.Fatalf("unexpected usage reply %q", got)
	}

	fx.text(t, 1, "/my nothing")
	if got := fx.sender.last().text; got != "No media found with the name 'nothing'." {
		t.Fatalf("unexpected not found reply %q", got)
	}

	path := tempFile(t, "pic.jpg")
	fx.store.entries["1|pic"] = domain.SavedMedia{UserID: 1, Name: "pic", Type: domain.MediaImage, Path: path}
	fx.text(t, 1, "/my PIC")

	methods := fx.sender.methods()
	tail := methods[len(methods)-2:]
	if tail[0] != "sendMessage" || tail[1] != "sendPhoto" {
		t.Fatalf("expected announcement then photo, got %v", methods)
	}
	if got := fx.sender.last().text; got != "Your saved image: pic" {
		t.Fatalf("unexpected caption %q", got)
	}
}

func TestDeleteCommand(t *testing.T) {
	fx := newRouterFixture(t)

	fx.text(t, 1, "/delete")
	if got := fx.sender.last().text; got != "Please provide a name. Usage: /delete [name]" {
		t.Fatalf("unexpected usage reply %q", got)
	}

	fx.text(t, 1, "/delete ghost")
	if got := fx.sender.last().text; got != "❌ No media found with the name 'ghost' or deletion failed." {
		t.Fatalf("unexpected failure reply %q", got)
	}

	fx.store.entries["1|keep"] = domain.SavedMedia{UserID: 1, Name: "keep"}
	fx.text(t, 1, "/delete keep")
	if got := fx.sender.last().text; got != "✅ Media 'keep' has been deleted successfully." {
		t.Fatalf("unexpected success reply %q", got)
	}
}

func TestCancelWithoutPendingSave(t *testing.T) {
	fx := newRouterFixture(t)

	fx.text(t, 1, "/cancel")
	if got := fx.sender.last().text; got != "No active operation to cancel." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestLinkDownloadsAndSendsVideo(t *testing.T) {
	fx := newRouterFixture(t)
	video := tempFile(t, "media_00001.mp4")
	fx.downloader.result = media.Result{Files: []media.File{{Path: video, Type: domain.MediaVideo}}}

	fx.text(t, 5, "look https://www.tiktok.com/@u/video/123 nice")

	if len(fx.downloader.links) != 1 || fx.downloader.links[0] != "https://www.tiktok.com/@u/video/123" {
		t.Fatalf("expected extracted link to be downloaded, got %v", fx.downloader.links)
	}

	methods := fx.sender.methods()
	want := []string{"sendMessage", "deleteMessage", "sendVideo"}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, methods)
	}

	status := fx.sender.find("sendMessage")[0]
	if status.text != processingText {
		t.Fatalf("unexpected status text %q", status.text)
	}
	if deleted := fx.sender.find("deleteMessage")[0]; deleted.msgID != 1001 {
		t.Fatalf("expected status message to be deleted, got %+v", deleted)
	}

	videoMsg := fx.sender.last()
	if videoMsg.text != downloadedVideoText {
		t.Fatalf("unexpected caption %q", videoMsg.text)
	}
	buttons := callbackData(t, videoMsg.markup)
	if strings.Join(buttons, ",") != "extract_id1,save_video_id1" {
		t.Fatalf("unexpected buttons %v", buttons)
	}
}

func TestLinkSendsImageWithSaveButton(t *testing.T) {
	fx := newRouterFixture(t)
	img := tempFile(t, "pinterest_image.jpg")
	fx.downloader.result = media.Result{Files: []media.File{{Path: img, Type: domain.MediaImage}}}

	fx.text(t, 5, "https://www.pinterest.com/pin/1/")

	if fx.downloader.kinds[0] != domain.KindImage {
		t.Fatalf("expected image kind, got %s", fx.downloader.kinds[0])
	}
	photo := fx.sender.last()
	if photo.method != "sendPhoto" || photo.text != downloadedImageText {
		t.Fatalf("unexpected delivery %+v", photo)
	}
	if buttons := callbackData(t, photo.markup); len(buttons) != 1 || buttons[0] != "save_image_id1" {
		t.Fatalf("unexpected buttons %v", buttons)
	}
}

func TestLinkDownloadFailureEditsStatus(t *testing.T) {
	fx := newRouterFixture(t)
	fx.downloader.err = media.ErrNoMedia

	fx.text(t, 5, "https://youtu.be/abc")

	edit := fx.sender.last()
	if edit.method != "editMessageText" || edit.text != downloadFailedText || edit.msgID != 1001 {
		t.Fatalf("expected status edit with failure, got %+v", edit)
	}
}

func TestSlideshowFailureUsesSlideshowText(t *testing.T) {
	fx := newRouterFixture(t)
	fx.downloader.err = errors.New("private")

	fx.text(t, 5, "https://www.tiktok.com/@u/photo/9")

	if got := fx.sender.last().text; got != slideshowFailedText {
		t.Fatalf("unexpected failure text %q", got)
	}
}

func TestSlideshowSendsImagesAndAudio(t *testing.T) {
	fx := newRouterFixture(t)
	fx.downloader.result = media.Result{Files: []media.File{
		{Path: tempFile(t, "1.jpg"), Type: domain.MediaImage},
		{Path: tempFile(t, "2.jpg"), Type: domain.MediaImage},
		{Path: tempFile(t, "3.mp3"), Type: domain.MediaAudio},
	}}

	fx.text(t, 5, "https://www.tiktok.com/@u/photo/9")

	edit := fx.sender.find("editMessageText")
	if len(edit) != 1 || edit[0].text != "✅ Downloaded TikTok slideshow with 2 images and audio! Sending now..." {
		t.Fatalf("unexpected status edit %+v", edit)
	}

	photos := fx.sender.find("sendPhoto")
	if len(photos) != 2 || photos[1].text != "Slideshow image 2/2" {
		t.Fatalf("unexpected photos %+v", photos)
	}
	if buttons := callbackData(t, photos[0].markup); buttons[0] != "save_image_id1" {
		t.Fatalf("unexpected image buttons %v", buttons)
	}

	audio := fx.sender.find("sendAudio")
	if len(audio) != 1 || audio[0].title != "TikTok Slideshow Audio" {
		t.Fatalf("unexpected audio %+v", audio)
	}
	if buttons := callbackData(t, audio[0].markup); buttons[0] != "save_audio_id3" {
		t.Fatalf("unexpected audio buttons %v", buttons)
	}
}

func TestGroupChatIgnoresUnsupportedPlatforms(t *testing.T) {
	fx := newRouterFixture(t)

	fx.router.Handle(context.Background(), fx.sender, &models.Update{
		Message: &models.Message{
			ID:   1,
			From: &models.User{ID: 5},
			Chat: models.Chat{ID: -100, Type: "supergroup"},
			Text: "https://www.youtube.com/shorts/abc",
		},
	})

	if len(fx.sender.methods()) != 0 || len(fx.downloader.links) != 0 {
		t.Fatalf("expected youtube link to be ignored in groups, got %v", fx.sender.methods())
	}

	fx.downloader.err = errors.New("x")
	fx.router.Handle(context.Background(), fx.sender, &models.Update{
		Message: &models.Message{
			ID:   2,
			From: &models.User{ID: 5},
			Chat: models.Chat{ID: -100, Type: "group"},
			Text: "https://www.instagram.com/reel/abc",
		},
	})
	if len(fx.downloader.links) != 1 {
		t.Fatalf("expected instagram link to be processed in groups")
	}
}

func TestSaveFlow(t *testing.T) {
	fx := newRouterFixture(t)
	video := tempFile(t, "clip.mp4")
	id := fx.router.sessions.remember(7, video, domain.MediaVideo)

	fx.callback(t, 7, "save_video_"+id)

	if fx.sender.find("answerCallbackQuery")[0].text != "cb-1" {
		t.Fatalf("expected callback to be answered")
	}
	if got := fx.sender.last().text; got != saveNameText {
		t.Fatalf("expected name prompt, got %q", got)
	}

	fx.text(t, 7, strings.Repeat("x", domain.MaxNameLength+1))
	if got := fx.sender.last().text; got != "⚠️ Please provide a valid name (max 50 characters)." {
		t.Fatalf("expected validation reply, got %q", got)
	}
	if _, ok := fx.router.sessions.pendingSave(7); !ok {
		t.Fatalf("expected save to stay pending after invalid name")
	}

	fx.text(t, 7, "Holiday")
	if got := fx.sender.last().text; got != "✅ Video saved as 'Holiday'!\nYou can retrieve it using /my Holiday" {
		t.Fatalf("unexpected save reply %q", got)
	}
	if len(fx.store.saved) != 1 || fx.store.saved[0] != "Holiday" {
		t.Fatalf("expected store save, got %v", fx.store.saved)
	}
	if _, ok := fx.router.sessions.pendingSave(7); ok {
		t.Fatalf("expected pending save to be cleared")
	}
	if _, ok := fx.router.sessions.lookup(7, id); ok {
		t.Fatalf("expected cached media to be released after save")
	}
}

func TestSaveFlowCancel(t *testing.T) {
	fx := newRouterFixture(t)
	id := fx.router.sessions.remember(7, tempFile(t, "a.mp3"), domain.MediaAudio)

	fx.callback(t, 7, "save_audio_"+id)
	fx.text(t, 7, "/help")
	if _, ok := fx.router.sessions.pendingSave(7); !ok {
		t.Fatalf("expected other commands to keep the save pending")
	}

	fx.text(t, 7, "/cancel")
	if got := fx.sender.last().text; got != "❌ Save operation cancelled." {
		t.Fatalf("unexpected cancel reply %q", got)
	}
	if len(fx.store.saved) != 0 {
		t.Fatalf("expected nothing saved")
	}
}

func TestSaveFlowStoreFailure(t *testing.T) {
	fx := newRouterFixture(t)
	fx.store.saveErr = errors.New("disk full")
	id := fx.router.sessions.remember(7, tempFile(t, "a.jpg"), domain.MediaImage)

	fx.callback(t, 7, "save_image_"+id)
	fx.text(t, 7, "pic")

	if got := fx.sender.last().text; got != "❌ Failed to save the image. Please try again." {
		t.Fatalf("unexpected failure reply %q", got)
	}
}

func TestSaveButtonErrors(t *testing.T) {
	fx := newRouterFixture(t)

	fx.callback(t, 7, "save_video")
	if got := fx.sender.last().text; got != "❌ Invalid data format." {
		t.Fatalf("unexpected reply %q", got)
	}

	fx.callback(t, 7, "save_sticker_abc")
	if got := fx.sender.last().text; got != "❌ Invalid data format." {
		t.Fatalf("unexpected reply %q", got)
	}

	fx.callback(t, 7, "save_video_unknown")
	if got := fx.sender.last().text; got != mediaGoneText {
		t.Fatalf("unexpected reply %q", got)
	}

	gone := filepath.Join(t.TempDir(), "gone.mp4")
	id := fx.router.sessions.remember(7, gone, domain.MediaVideo)
	fx.callback(t, 7, "save_video_"+id)
	if got := fx.sender.last().text; got != mediaGoneText {
		t.Fatalf("unexpected reply %q", got)
	}
	if _, ok := fx.router.sessions.lookup(7, id); ok {
		t.Fatalf("expected missing file to be dropped from the cache")
	}
}

func TestExtractCallback(t *testing.T) {
	fx := newRouterFixture(t)
	video := tempFile(t, "clip.mp4")
	fx.extractor.out = tempFile(t, "clip.mp3")
	id := fx.router.sessions.remember(7, video, domain.MediaVideo)

	fx.callback(t, 7, "extract_"+id)

	captions := fx.sender.find("editMessageCaption")
	if len(captions) != 2 {
		t.Fatalf("expected progress and restore captions, got %+v", captions)
	}
	if captions[0].text != "🔄 Extracting audio... Please wait." || captions[0].msgID != 77 {
		t.Fatalf("unexpected progress caption %+v", captions[0])
	}
	if captions[1].text != downloadedVideoText {
		t.Fatalf("unexpected restored caption %q", captions[1].text)
	}
	if buttons := callbackData(t, captions[1].markup); strings.Join(buttons, ",") != "extract_"+id+",save_video_"+id {
		t.Fatalf("expected original buttons restored, got %v", buttons)
	}

	audio := fx.sender.find("sendAudio")
	if len(audio) != 1 || audio[0].text != "Here's the extracted audio!" {
		t.Fatalf("unexpected audio message %+v", audio)
	}
	if buttons := callbackData(t, audio[0].markup); buttons[0] != "save_audio_id2" {
		t.Fatalf("unexpected audio buttons %v", buttons)
	}
}

func TestExtractCallbackFailures(t *testing.T) {
	fx := newRouterFixture(t)

	fx.callback(t, 7, "extract_missing")
	if got := fx.sender.last(); got.method != "editMessageCaption" || got.text != videoGoneText {
		t.Fatalf("expected video gone caption, got %+v", got)
	}

	fx.extractor.err = errors.New("ffmpeg failed")
	id := fx.router.sessions.remember(7, tempFile(t, "clip.mp4"), domain.MediaVideo)
	fx.callback(t, 7, "extract_"+id)
	if got := fx.sender.last().text; got != "❌ Failed to extract audio." {
		t.Fatalf("expected extraction failure caption, got %q", got)
	}
}

func TestHandleRecoversFromPanics(t *testing.T) {
	fx := newRouterFixture(t)
	fx.router.downloader = panicDownloader{}

	fx.text(t, 5, "https://www.tiktok.com/@u/video/1")

	found := false
	for _, entry := range fx.hook.AllEntries() {
		if entry.Data["event"] == "telegram_handler_panic" {
			found = true
			if _, ok := entry.Data["stack"]; !ok {
				t.Fatalf("expected stack on panic log")
			}
		}
	}
	if !found {
		t.Fatalf("expected panic to be logged")
	}
}

type panicDownloader struct{}

func (panicDownloader) Download(context.Context, string, domain.ContentKind, domain.Platform) (media.Result, error) {
	panic("boom")
}

func TestWaitReturnsAfterBackgroundWork(t *testing.T) {
	hookLogger, _ := logtest.NewNullLogger()
	r := NewRouter(nil, nil, nil, logrus.NewEntry(hookLogger))

	done := make(chan struct{})
	r.spawn(func() { close(done) })

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatalf("expected background task to finish before Wait returns")
	}
}
