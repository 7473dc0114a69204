package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"mediagrab_bot/internal/bootstrap"
	"mediagrab_bot/internal/config"
)

type fakeBot struct {
	mu          sync.Mutex
	updates     []*models.Update
	registered  []string
	registerErr error
	ctxErr      error
}

func (f *fakeBot) ProcessUpdates(ctx context.Context, updates []*models.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.updates = append(f.updates, updates...)
}

func (f *fakeBot) RegisterWebhook(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, url)
	return f.registerErr
}

type fakeProvider struct {
	bot   Bot
	err   error
	calls int
}

func (f *fakeProvider) Bot(context.Context) (Bot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bot, nil
}

func (f *fakeProvider) Initialized() bool {
	return f.err == nil && f.bot != nil
}

type stubStorage struct {
	err error
}

func (s stubStorage) Ping(context.Context) error {
	return s.err
}

func newTestServer(t *testing.T, cfg config.Config, deps Deps) (*Server, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	return NewServer(cfg, deps, logrus.NewEntry(logger)), hook
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestHealthHandlerOK(t *testing.T) {
	server, _ := newTestServer(t, config.Config{}, Deps{
		Bots:    &fakeProvider{bot: &fakeBot{}},
		Storage: stubStorage{},
	})

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"ok","bot_initialized":true}` {
		t.Fatalf("unexpected body: %s", body)
	}

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
}

func TestHealthHandlerStorageError(t *testing.T) {
	server, hook := newTestServer(t, config.Config{}, Deps{Storage: stubStorage{err: errors.New("bolt locked")}})

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","bot_initialized":false,"storage":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "health_storage_error" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected storage error log")
	}
}

func TestHealthHandlerMissingStorageChecker(t *testing.T) {
	server, _ := newTestServer(t, config.Config{}, Deps{})

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	body := strings.TrimSpace(rr.Body.String())
	if body != `{"status":"degraded","bot_initialized":false,"storage":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	server, _ := newTestServer(t, config.Config{}, Deps{})

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Not found" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, config.Config{}, Deps{})

	serve(server, httptest.NewRequest(http.MethodGet, "/test", nil))
	rr := serve(server, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "mediabot_http_requests_total") {
		t.Fatalf("expected http request counter in metrics output")
	}
}

func TestRecoverJSONConvertsPanics(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	handler := recoverJSON(logrus.NewEntry(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "kaboom" {
		t.Fatalf("unexpected body %v", body)
	}

	last := hook.LastEntry()
	if last == nil || last.Data["event"] != "http_panic" {
		t.Fatalf("expected panic log, got %+v", last)
	}
	if _, ok := last.Data["stack"]; !ok {
		t.Fatalf("expected stack on panic log")
	}
}

func TestRequestLoggerLogsEveryRequest(t *testing.T) {
	server, hook := newTestServer(t, config.Config{}, Deps{})

	serve(server, httptest.NewRequest(http.MethodGet, "/test", nil))

	last := hook.LastEntry()
	if last == nil || last.Data["event"] != "http_request" {
		t.Fatalf("expected request log, got %+v", last)
	}
	if last.Data["status"] != http.StatusOK || last.Data["path"] != "/test" {
		t.Fatalf("unexpected request log fields %+v", last.Data)
	}
}

func TestNotInitializedMessages(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want string
	}{
		{"no provider", Deps{}, "Bot not initialized"},
		{"missing token", Deps{Bots: &fakeProvider{err: bootstrap.ErrMissingToken}}, "Bot not initialized. Missing TELEGRAM_BOT_TOKEN"},
		{"construction failure", Deps{Bots: &fakeProvider{err: errors.New("boom")}}, "Bot not initialized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, config.Config{}, tt.deps)
			_, reason := server.bot(context.Background())
			if reason != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, reason)
			}
		})
	}
}
