package server

import (
	"net/http"
	"strings"

	"mediagrab_bot/internal/logging"
)

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	b, reason := s.bot(r.Context())
	if b == nil {
		writeError(w, http.StatusInternalServerError, reason)
		return
	}

	url := s.webhookURL(r)
	if err := b.RegisterWebhook(r.Context(), url); err != nil {
		logging.WithStack(s.logger).WithFields(logging.Fields{
			"event":       "webhook_register_failed",
			"webhook_url": url,
		}).WithError(err).Error("failed to set webhook")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"webhook_url": url,
	})
}

// webhookURL prefers the url query parameter and otherwise rebuilds the
// public address from proxy headers.
func (s *Server) webhookURL(r *http.Request) string {
	if explicit := strings.TrimSpace(r.URL.Query().Get("url")); explicit != "" {
		return explicit
	}

	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	proto := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	if proto == "" {
		proto = "https"
	}

	return proto + "://" + host + s.cfg.WebhookPath
}

// firstHeaderValue returns the first entry of a comma separated proxy header.
func firstHeaderValue(value string) string {
	first, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(first)
}
