package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediagrab_bot/internal/bootstrap"
	"mediagrab_bot/internal/config"
)

const startUpdate = `{"update_id":10,"message":{"message_id":1,"date":1700000000,"chat":{"id":5,"type":"private"},"from":{"id":5,"is_bot":false,"first_name":"A"},"text":"/start"}}`

func webhookRequest(body, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestWebhookForwardsSingleUpdate(t *testing.T) {
	b := &fakeBot{}
	server, _ := newTestServer(t, config.Config{}, Deps{Bots: &fakeProvider{bot: b}})

	rr := serve(server, webhookRequest(startUpdate, "application/json"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"status":"success"}` {
		t.Fatalf("unexpected body %s", got)
	}
	if len(b.updates) != 1 {
		t.Fatalf("expected exactly one forwarded update, got %d", len(b.updates))
	}
	if b.updates[0].ID != 10 || b.updates[0].Message == nil || b.updates[0].Message.Text != "/start" {
		t.Fatalf("unexpected forwarded update %+v", b.updates[0])
	}
	if b.ctxErr != nil {
		t.Fatalf("expected processing context detached from the request, got %v", b.ctxErr)
	}
}

func TestWebhookRejectsContentTypes(t *testing.T) {
	for _, contentType := range []string{"", "text/plain", "application/json; charset=utf-8", "Application/JSON"} {
		t.Run(contentType, func(t *testing.T) {
			b := &fakeBot{}
			provider := &fakeProvider{bot: b}
			server, _ := newTestServer(t, config.Config{}, Deps{Bots: provider})

			rr := serve(server, webhookRequest(startUpdate, contentType))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if body := decodeBody(t, rr); body["error"] != "Invalid content type" {
				t.Fatalf("unexpected body %v", body)
			}
			if len(b.updates) != 0 || provider.calls != 0 {
				t.Fatalf("expected bot not to be touched")
			}
		})
	}
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	tests := map[string]string{
		"truncated":   `{"update_id":1,`,
		"not json":    `hello`,
		"wrong type":  `{"update_id":"ten"}`,
		"invalid utf": "\xff\xfe",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			b := &fakeBot{}
			server, _ := newTestServer(t, config.Config{}, Deps{Bots: &fakeProvider{bot: b}})

			rr := serve(server, webhookRequest(body, "application/json"))

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			msg, _ := decodeBody(t, rr)["error"].(string)
			if msg == "" {
				t.Fatalf("expected decode error message")
			}
			if len(b.updates) != 0 {
				t.Fatalf("expected no forwarded update")
			}
		})
	}
}

func TestWebhookNotInitialized(t *testing.T) {
	server, _ := newTestServer(t, config.Config{}, Deps{Bots: &fakeProvider{err: bootstrap.ErrMissingToken}})

	rr := serve(server, webhookRequest(startUpdate, "application/json"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "Bot not initialized. Missing TELEGRAM_BOT_TOKEN" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestWebhookSecretToken(t *testing.T) {
	cfg := config.Config{WebhookSecret: "s3cret"}

	b := &fakeBot{}
	server, _ := newTestServer(t, cfg, Deps{Bots: &fakeProvider{bot: b}})

	rr := serve(server, webhookRequest(startUpdate, "application/json"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rr.Code)
	}

	req := webhookRequest(startUpdate, "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rr = serve(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with secret, got %d", rr.Code)
	}
	if len(b.updates) != 1 {
		t.Fatalf("expected only the authorized update to be forwarded, got %d", len(b.updates))
	}
}

func TestWebhookCustomPath(t *testing.T) {
	b := &fakeBot{}
	server, _ := newTestServer(t, config.Config{WebhookPath: "/api/webhook"}, Deps{Bots: &fakeProvider{bot: b}})

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(startUpdate))
	req.Header.Set("Content-Type", "application/json")
	rr := serve(server, req)

	if rr.Code != http.StatusOK || len(b.updates) != 1 {
		t.Fatalf("expected update on custom path, got %d", rr.Code)
	}
}
