package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"mediagrab_bot/internal/config"
	"mediagrab_bot/internal/logging"
)

const (
	debugEnvLimit    = 20
	probeTimeout     = 10 * time.Second
	storagePingLimit = 2 * time.Second
)

// environ is overridable for tests.
var environ = os.Environ

var errNoCheck = errors.New("probe has no check")

type probePanic struct{ value any }

func (p *probePanic) Error() string { return fmt.Sprintf("probe panicked: %v", p.value) }

type healthResponse struct {
	Status         string `json:"status"`
	BotInitialized bool   `json:"bot_initialized"`
	Storage        string `json:"storage,omitempty"`
}

type importReport struct {
	OK     []string          `json:"ok"`
	Errors map[string]string `json:"errors"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "alive",
		"service":      serviceName,
		"env_vars_set": s.envVarsSet(),
	})
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Test endpoint is working",
	})
}

func (s *Server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "alive",
		"go_version":      runtime.Version(),
		"env_vars":        envNames(debugEnvLimit),
		"token_set":       s.cfg.HasToken(),
		"bot_initialized": s.botInitialized(),
	})
}

// handleTestImport runs every probe and reports each outcome; one failing
// probe does not stop the rest.
func (s *Server) handleTestImport(w http.ResponseWriter, r *http.Request) {
	report := importReport{OK: []string{}, Errors: map[string]string{}}

	for _, probe := range s.deps.Probes {
		if err := runProbe(r.Context(), probe); err != nil {
			report.Errors[probe.Name] = err.Error()
			s.logger.WithFields(logging.Fields{
				"event": "debug_probe_failed",
				"probe": probe.Name,
			}).WithError(err).Warn("dependency probe failed")
			continue
		}
		report.OK = append(report.OK, probe.Name)
	}

	writeJSON(w, http.StatusOK, report)
}

func runProbe(ctx context.Context, probe Probe) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &probePanic{value: rec}
		}
	}()

	if probe.Check == nil {
		return errNoCheck
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return probe.Check(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", BotInitialized: s.botInitialized()}

	if s.deps.Storage == nil {
		resp.Status = "degraded"
		resp.Storage = "error"
		s.logger.WithField("event", "health_storage_missing").Warn("storage checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(r.Context(), storagePingLimit)
		err := s.deps.Storage.Ping(pingCtx)
		cancel()

		if err != nil {
			resp.Status = "degraded"
			resp.Storage = "error"
			s.logger.WithField("event", "health_storage_error").WithError(err).Warn("storage ping failed during health check")
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) botInitialized() bool {
	return s.deps.Bots != nil && s.deps.Bots.Initialized()
}

// envVarsSet reports which known configuration keys are present. Values are
// never exposed.
func (s *Server) envVarsSet() map[string]bool {
	present := make(map[string]bool, len(config.Contract))
	for _, spec := range config.Contract {
		present[spec.Key] = false
	}
	for _, name := range envNames(-1) {
		if _, known := present[name]; known {
			present[name] = true
		}
	}
	return present
}

// envNames returns sorted environment variable names, at most limit of them
// when limit is positive.
func envNames(limit int) []string {
	names := make([]string, 0)
	for _, kv := range environ() {
		name, _, _ := strings.Cut(kv, "=")
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names
}
