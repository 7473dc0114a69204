package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"

	"mediagrab_bot/internal/logging"
	"mediagrab_bot/internal/metrics"
)

const (
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
	jsonContentType   = "application/json"
	maxUpdateBytes    = 1 << 20
)

var errInvalidUTF8 = errors.New("request body is not valid UTF-8")

// handleWebhook accepts one Telegram update. A 200 response means the update
// was handed to the bot, not that the command it carries succeeded.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.WithField("event", "webhook_update")

	if s.cfg.WebhookSecret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
			metrics.WebhookUpdates.WithLabelValues("unauthorized").Inc()
			logger.Warn("webhook secret token mismatch")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}

	if r.Header.Get("Content-Type") != jsonContentType {
		metrics.WebhookUpdates.WithLabelValues("bad_content_type").Inc()
		logger.WithField("content_type", r.Header.Get("Content-Type")).Warn("rejected webhook content type")
		writeError(w, http.StatusBadRequest, "Invalid content type")
		return
	}

	b, reason := s.bot(r.Context())
	if b == nil {
		metrics.WebhookUpdates.WithLabelValues("not_initialized").Inc()
		writeError(w, http.StatusInternalServerError, reason)
		return
	}

	update, err := decodeUpdate(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		metrics.WebhookUpdates.WithLabelValues("bad_body").Inc()
		logging.WithStack(logger).WithError(err).Error("failed to decode update")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics.WebhookUpdates.WithLabelValues("accepted").Inc()
	b.ProcessUpdates(context.WithoutCancel(r.Context()), []*models.Update{update})

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func decodeUpdate(body io.Reader) (*models.Update, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(raw) {
		return nil, errInvalidUTF8
	}

	var update models.Update
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, err
	}
	return &update, nil
}
